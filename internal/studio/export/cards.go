package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/render"
)

const cardSuffix = "_ID_Card.png"

// CardFilename is the archive entry name for a student's card.
func CardFilename(studentName string) string {
	name := safeName(studentName)
	if name == "" {
		name = "Student"
	}
	return name + cardSuffix
}

// ExportCards packages generated cards as a zip of PNGs or as printable
// A4 sheets.
func (e *Exporter) ExportCards(ctx context.Context, cards []*render.Card, format, orientation string, opts models.ExportOptions, progress ProgressFunc) (*Artifact, error) {
	tr := &tracker{fn: progress, total: len(cards) + 1}

	art, err := e.exportCards(ctx, cards, format, orientation, opts, tr)
	if err != nil {
		tr.reset()
		e.logger.Warn("Card export failed", "format", format, "cards", len(cards), "error", err)
		return nil, &ExportError{Format: format, Err: err}
	}
	tr.step("done")
	e.logger.Info("Cards exported", "format", format, "cards", len(cards), "bytes", len(art.Data))
	return art, nil
}

func (e *Exporter) exportCards(ctx context.Context, cards []*render.Card, format, orientation string, opts models.ExportOptions, tr *tracker) (*Artifact, error) {
	if len(cards) == 0 {
		return nil, ErrNoCards
	}

	switch format {
	case models.FormatZIP:
		data, err := cardArchive(ctx, cards, tr)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: models.FormatZIP, Filename: "ID_Cards.zip", ContentType: "application/zip", Data: data}, nil
	case models.FormatPDF:
		data, err := cardSheetPDF(ctx, cards, orientation, marksFor(opts), tr)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: models.FormatPDF, Filename: "ID_Cards.pdf", ContentType: "application/pdf", Data: data}, nil
	}
	return nil, fmt.Errorf("unsupported card format %q", format)
}

// cardArchive writes one PNG per card. Repeated names get a numeric suffix.
func cardArchive(ctx context.Context, cards []*render.Card, tr *tracker) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := map[string]bool{}
	now := time.Now()

	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := CardFilename(card.StudentName)
		base := strings.TrimSuffix(name, cardSuffix)
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d%s", base, n, cardSuffix)
		}
		used[name] = true

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
		if err := render.Encode(w, card.Image, render.Settings{Format: render.FormatPNG}); err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		tr.step("card")
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
