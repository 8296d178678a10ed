package importer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"idcard-studio/internal/studio/models"
)

var ErrLibraryUnavailable = errors.New("layered document library not available")

// UnsupportedFormatError names a file whose extension no importer handles.
type UnsupportedFormatError struct {
	Filename string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Filename)
}

const (
	minCanvasWidth  = 400.0
	minCanvasHeight = 600.0
)

// ============================================================
// Import result
// ============================================================

type BackgroundSpec struct {
	Color  string  `json:"color,omitempty"`
	Src    string  `json:"src,omitempty"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ImportResult is returned by every importer; failures are reported in
// Errors with Success false, never as a panic or a bare error.
type ImportResult struct {
	Success    bool                     `json:"success"`
	Elements   []models.ImportedElement `json:"elements"`
	Background *BackgroundSpec          `json:"background,omitempty"`
	Canvas     models.Canvas            `json:"canvas"`
	Errors     []string                 `json:"errors,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`

	// Err is the first fatal error, kept for errors.Is / errors.As.
	Err error `json:"-"`
}

func failed(err error, warnings ...string) ImportResult {
	return ImportResult{
		Success:  false,
		Elements: []models.ImportedElement{},
		Errors:   []string{err.Error()},
		Warnings: warnings,
		Err:      err,
	}
}

// Document converts the result into a fresh scene document.
func (r ImportResult) Document(id, name string) *models.SceneDocument {
	width, height := r.Canvas.Width, r.Canvas.Height
	if width <= 0 || height <= 0 {
		width, height = minCanvasWidth, minCanvasHeight
	}

	doc := models.NewDocument(id, name, width, height)
	for _, el := range r.Elements {
		doc.Elements = append(doc.Elements, el.SceneElement())
	}
	return doc
}

// ============================================================
// Dispatcher
// ============================================================

// Importer converts one source file into imported elements.
type Importer interface {
	Import(ctx context.Context, filename string, data []byte) ImportResult
}

type Dispatcher struct {
	byExt    map[string]Importer
	maxBytes int64
	logger   *slog.Logger
}

// NewDispatcher wires the format importers. A nil layered parser leaves
// .psd files recognised but failing with ErrLibraryUnavailable.
func NewDispatcher(layered LayeredDocumentParser, maxBytes int64) *Dispatcher {
	raster := NewRasterImporter()
	d := &Dispatcher{
		byExt: map[string]Importer{
			".docx": NewWordImporter(),
			".psd":  NewLayeredImporter(layered),
			".svg":  NewVectorImporter(),
		},
		maxBytes: maxBytes,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, ext := range RasterExtensions {
		d.byExt[ext] = raster
	}
	return d
}

func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Supported reports whether filename has an importable extension.
func (d *Dispatcher) Supported(filename string) bool {
	_, ok := d.byExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func (d *Dispatcher) Import(ctx context.Context, filename string, r io.Reader) ImportResult {
	imp, ok := d.byExt[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		d.logger.Warn("Import rejected", "file", filename)
		return failed(&UnsupportedFormatError{Filename: filename})
	}

	if d.maxBytes > 0 {
		r = io.LimitReader(r, d.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return failed(fmt.Errorf("read %s: %w", filename, err))
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return failed(fmt.Errorf("%s exceeds %d bytes", filename, d.maxBytes))
	}

	res := imp.Import(ctx, filename, data)
	if res.Success {
		d.logger.Info("Import completed", "file", filename, "elements", len(res.Elements), "warnings", len(res.Warnings))
	} else {
		d.logger.Warn("Import failed", "file", filename, "errors", res.Errors)
	}
	return res
}

// ImportFile is a convenience for callers holding the bytes already.
func (d *Dispatcher) ImportFile(ctx context.Context, filename string, data []byte) ImportResult {
	return d.Import(ctx, filename, bytes.NewReader(data))
}

// ============================================================
// Helpers
// ============================================================

func dataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// fitWithin scales w×h down to fit the box, preserving aspect ratio.
func fitWithin(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := min(1, maxW/w, maxH/h)
	return w * scale, h * scale
}
