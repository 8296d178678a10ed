// Package export turns scene documents and rendered cards into
// downloadable artifacts.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"

	"idcard-studio/internal/common/validation"
	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/render"
)

// ============================================================
// Types
// ============================================================

type Artifact struct {
	Format      string `json:"format"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

// ProgressFunc receives done out of total steps. A failed export reports
// done=0 before returning.
type ProgressFunc func(done, total int, stage string)

type ExportError struct {
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

var ErrNoCards = errors.New("no cards to export")

// ============================================================
// Exporter
// ============================================================

type Exporter struct {
	renderer  *render.Renderer
	validator *validation.Validator
	logger    *slog.Logger
}

func NewExporter(renderer *render.Renderer, v *validation.Validator, logger *slog.Logger) *Exporter {
	if renderer == nil {
		renderer = render.NewRenderer(nil, nil, logger)
	}
	if v == nil {
		v = validation.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{renderer: renderer, validator: v, logger: logger}
}

type tracker struct {
	fn    ProgressFunc
	total int
	done  int
}

func (t *tracker) step(stage string) {
	t.done++
	if t.fn != nil {
		t.fn(t.done, t.total, stage)
	}
}

func (t *tracker) reset() {
	t.done = 0
	if t.fn != nil {
		t.fn(0, t.total, "failed")
	}
}

// ExportDocument serializes or rasterizes a whole document in the format
// named by opts.
func (e *Exporter) ExportDocument(ctx context.Context, doc *models.SceneDocument, opts models.ExportOptions, progress ProgressFunc) (*Artifact, error) {
	tr := &tracker{fn: progress, total: 3}

	art, err := e.exportDocument(ctx, doc, opts, tr)
	if err != nil {
		tr.reset()
		e.logger.Warn("Export failed", "format", opts.Format, "error", err)
		return nil, &ExportError{Format: opts.Format, Err: err}
	}
	e.logger.Info("Document exported", "format", art.Format, "file", art.Filename, "bytes", len(art.Data))
	return art, nil
}

func (e *Exporter) exportDocument(ctx context.Context, doc *models.SceneDocument, opts models.ExportOptions, tr *tracker) (*Artifact, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	if err := e.validator.Struct(opts); err != nil {
		return nil, errors.New(e.validator.Message(err))
	}
	tr.step("validated")

	base := baseName(doc)
	var (
		art *Artifact
		err error
	)
	switch opts.Format {
	case models.FormatJSON:
		art, err = exportJSON(doc, opts, base)
	case models.FormatPNG:
		art, err = e.exportPNG(ctx, doc, opts, base)
	case models.FormatPDF:
		art, err = e.exportPDF(ctx, doc, opts, base)
	case models.FormatEPS:
		art, err = exportEPS(doc, opts, base)
	case models.FormatSVG:
		art, err = exportSVG(doc, base)
	default:
		err = fmt.Errorf("unsupported format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}
	tr.step("encoded")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr.step("done")
	return art, nil
}

// ============================================================
// JSON
// ============================================================

func exportJSON(doc *models.SceneDocument, opts models.ExportOptions, base string) (*Artifact, error) {
	out := doc.Clone()
	if !opts.IncludeMetadata {
		out.Metadata = nil
	}
	if !opts.IncludeVersionHistory {
		out.VersionHistory = nil
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	if !opts.Compress {
		return &Artifact{Format: models.FormatJSON, Filename: base + ".json", ContentType: "application/json", Data: data}, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	zw.Name = base + ".json"
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress document: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress document: %w", err)
	}
	return &Artifact{Format: models.FormatJSON, Filename: base + ".json.gz", ContentType: "application/gzip", Data: buf.Bytes()}, nil
}

// ============================================================
// PNG
// ============================================================

// renderDocument rasterizes the template itself at its canvas size.
func (e *Exporter) renderDocument(ctx context.Context, doc *models.SceneDocument, opts models.ExportOptions) (*render.Card, error) {
	s := render.Settings{DPI: opts.DPI, Quality: opts.Quality, Format: render.FormatPNG, UseCanvasSize: true, Preview: true}
	card, err := e.renderer.Render(ctx, doc, nil, s)
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	for _, f := range card.Failures {
		e.logger.Warn("Element skipped in export", "element", f.ElementID, "error", f.Message)
	}
	return card, nil
}

func (e *Exporter) exportPNG(ctx context.Context, doc *models.SceneDocument, opts models.ExportOptions, base string) (*Artifact, error) {
	card, err := e.renderDocument(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := render.Encode(&buf, card.Image, render.Settings{Format: render.FormatPNG, Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &Artifact{Format: models.FormatPNG, Filename: base + ".png", ContentType: "image/png", Data: buf.Bytes()}, nil
}

// ============================================================
// Naming
// ============================================================

var unsafeName = regexp.MustCompile(`[\p{Z}\p{Cc}/\\:*?"<>|]+`)

// safeName collapses whitespace, control characters and path-reserved
// characters to underscores. Letters in any script are kept.
func safeName(s string) string {
	s = unsafeName.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(s, "_.")
}

func baseName(doc *models.SceneDocument) string {
	if doc.Metadata != nil {
		if name := safeName(doc.Metadata.Name); name != "" {
			return name
		}
	}
	return "template"
}
