package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/go-pdf/fpdf"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/render"
)

const (
	mmPerPoint = 25.4 / render.ReferenceDPI

	cropMarkGap    = 1.0
	cropMarkLength = 4.0

	sheetMargin    = 10.0
	sheetGap       = 10.0
	sheetCardWidth = 80.0
	sheetColumns   = 2
)

// Cards per A4 sheet by card orientation.
var cardsPerSheet = map[string]int{
	models.OrientationPortrait:  2,
	models.OrientationLandscape: 3,
}

// printMarks is the space reserved around a trimmed card.
type printMarks struct {
	bleed     float64
	cropMarks bool
}

func marksFor(opts models.ExportOptions) printMarks {
	m := printMarks{cropMarks: opts.IncludeCropMarks}
	if opts.IncludeBleed {
		m.bleed = opts.BleedSize
	}
	return m
}

// pad is the distance from the trim box to the edge of everything drawn.
func (m printMarks) pad() float64 {
	p := m.bleed
	if m.cropMarks {
		p += cropMarkGap + cropMarkLength
	}
	return p
}

func newPDF(size fpdf.SizeType, title string) *fpdf.Fpdf {
	pdf := fpdf.NewCustom(&fpdf.InitType{OrientationStr: "P", UnitStr: "mm", Size: size})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	pdf.SetTitle(title, true)
	pdf.SetCreator("idcard-studio", true)
	pdf.SetCreationDate(time.Now())
	pdf.SetCatalogSort(true)
	return pdf
}

// placeCard draws one raster with its bleed and crop marks; x,y,w,h is
// the trim box in millimetres.
func placeCard(pdf *fpdf.Fpdf, name string, img image.Image, x, y, w, h float64, m printMarks) error {
	var buf bytes.Buffer
	if err := render.Encode(&buf, img, render.Settings{Format: render.FormatPNG}); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &buf)

	if m.bleed > 0 {
		// Bleed repeats the card's edge colour past the trim line.
		r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
		pdf.SetFillColor(int(r>>8), int(g>>8), int(b>>8))
		pdf.Rect(x-m.bleed, y-m.bleed, w+2*m.bleed, h+2*m.bleed, "F")
	}

	pdf.ImageOptions(name, x, y, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	if m.cropMarks {
		drawCropMarks(pdf, x, y, w, h, m.bleed)
	}
	return pdf.Error()
}

// drawCropMarks puts hairlines at each corner of the trim box, outside the
// bleed area.
func drawCropMarks(pdf *fpdf.Fpdf, x, y, w, h, bleed float64) {
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.1)

	near := bleed + cropMarkGap
	far := near + cropMarkLength
	for _, cx := range []float64{x, x + w} {
		for _, cy := range []float64{y, y + h} {
			sx := -1.0
			if cx > x {
				sx = 1
			}
			sy := -1.0
			if cy > y {
				sy = 1
			}
			pdf.Line(cx+sx*near, cy, cx+sx*far, cy)
			pdf.Line(cx, cy+sy*near, cx, cy+sy*far)
		}
	}
}

// ============================================================
// Document PDF
// ============================================================

// exportPDF places the rasterized document on a page the size of its
// canvas plus bleed and crop mark margins.
func (e *Exporter) exportPDF(ctx context.Context, doc *models.SceneDocument, opts models.ExportOptions, base string) (*Artifact, error) {
	card, err := e.renderDocument(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	if opts.ColorSpace == models.ColorSpaceCMYK {
		e.logger.Warn("PDF export is RGB only; CMYK request ignored", "file", base)
	}

	m := marksFor(opts)
	w := doc.Canvas.Width * mmPerPoint
	h := doc.Canvas.Height * mmPerPoint
	pad := m.pad()

	pdf := newPDF(fpdf.SizeType{Wd: w + 2*pad, Ht: h + 2*pad}, base)
	pdf.AddPage()
	if err := placeCard(pdf, "document", card.Image, pad, pad, w, h, m); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &Artifact{Format: models.FormatPDF, Filename: base + ".pdf", ContentType: "application/pdf", Data: buf.Bytes()}, nil
}

// ============================================================
// Card sheets
// ============================================================

// cardSheetPDF lays cards out on A4 sheets in two columns.
func cardSheetPDF(ctx context.Context, cards []*render.Card, orientation string, m printMarks, tr *tracker) ([]byte, error) {
	perPage, ok := cardsPerSheet[orientation]
	if !ok {
		perPage = cardsPerSheet[models.OrientationPortrait]
	}

	pdf := newPDF(fpdf.SizeType{Wd: 210, Ht: 297}, "ID Cards")
	pad := m.pad()
	gap := max(sheetGap, 2*pad)

	for i, card := range cards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slot := i % perPage
		if slot == 0 {
			pdf.AddPage()
		}

		w := sheetCardWidth
		h := w * float64(card.Height) / float64(card.Width)
		col := slot % sheetColumns
		row := slot / sheetColumns
		x := sheetMargin + pad + float64(col)*(w+gap)
		y := sheetMargin + pad + float64(row)*(h+gap)

		if err := placeCard(pdf, fmt.Sprintf("card-%d", i), card.Image, x, y, w, h, m); err != nil {
			return nil, err
		}
		tr.step("card")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
