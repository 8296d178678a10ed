package importer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/parser"
)

// LayeredDocumentParser decodes a layered image document. parser.PSDParser
// is the production implementation.
type LayeredDocumentParser interface {
	Parse(ctx context.Context, r io.Reader) (*parser.LayeredDocument, error)
}

type LayeredImporter struct {
	parser LayeredDocumentParser
}

func NewLayeredImporter(p LayeredDocumentParser) *LayeredImporter {
	return &LayeredImporter{parser: p}
}

func (l *LayeredImporter) Import(ctx context.Context, filename string, data []byte) ImportResult {
	if l.parser == nil {
		return failed(ErrLibraryUnavailable)
	}

	doc, err := l.parser.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return failed(fmt.Errorf("parse %s: %w", filename, err))
	}

	res := ImportResult{
		Success:  true,
		Elements: []models.ImportedElement{},
		Canvas:   models.Canvas{Width: float64(doc.Width), Height: float64(doc.Height)},
	}

	if doc.Composite != nil {
		src, err := encodePNG(doc.Composite)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("composite image skipped: %v", err))
		} else {
			res.Elements = append(res.Elements, models.ImportedElement{
				ID:      models.ImportedID(models.TypeBackground, 0),
				Name:    "Background",
				Width:   res.Canvas.Width,
				Height:  res.Canvas.Height,
				Opacity: 1,
				Visible: true,
				ZIndex:  -1,
				Content: models.BackgroundContent{Src: src},
			})
			res.Background = &BackgroundSpec{Src: src, Width: res.Canvas.Width, Height: res.Canvas.Height}
		}
	}

	z := 0
	l.walk(doc.Layers, 0, 0, &res, &z)
	return res
}

// walk emits visible leaf layers bottom to top; hidden subtrees are skipped.
func (l *LayeredImporter) walk(layers []parser.Layer, offsetX, offsetY int, res *ImportResult, z *int) {
	for _, layer := range layers {
		if !layer.Visible {
			continue
		}
		x, y := offsetX+layer.Left, offsetY+layer.Top

		if layer.Folder || len(layer.Children) > 0 {
			l.walk(layer.Children, x, y, res, z)
			continue
		}
		if layer.Image == nil || layer.Width <= 0 || layer.Height <= 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("layer %q has no pixel data", layer.Name))
			continue
		}

		src, err := encodePNG(layer.Image)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("layer %q skipped: %v", layer.Name, err))
			continue
		}

		res.Elements = append(res.Elements, models.ImportedElement{
			ID:      models.ImportedID(models.TypeImage, len(res.Elements)),
			Name:    layer.Name,
			X:       float64(x),
			Y:       float64(y),
			Width:   float64(layer.Width),
			Height:  float64(layer.Height),
			Opacity: float64(layer.Alpha) / 255,
			Visible: true,
			ZIndex:  *z,
			Content: models.ImageContent{Src: src},
		})
		*z++
	}
}

func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", err
	}
	return dataURI("image/png", buf.Bytes()), nil
}
