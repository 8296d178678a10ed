package importer

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/parser"
)

// VectorImporter maps SVG shapes one to one onto scene elements. Shapes
// that cover the whole canvas before anything else is drawn become the
// background.
type VectorImporter struct{}

func NewVectorImporter() *VectorImporter { return &VectorImporter{} }

func (v *VectorImporter) Import(ctx context.Context, filename string, data []byte) ImportResult {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	doc, err := parser.ParseSVG(bytes.NewReader(data))
	if err != nil {
		return failed(fmt.Errorf("parse %s: %w", filename, err))
	}

	res := ImportResult{
		Success:  true,
		Elements: make([]models.ImportedElement, 0, len(doc.Shapes)),
		Warnings: doc.Warnings,
		Canvas:   models.Canvas{Width: doc.Width, Height: doc.Height},
	}
	if res.Canvas.Width <= 0 || res.Canvas.Height <= 0 {
		right, bottom := 0.0, 0.0
		for _, s := range doc.Shapes {
			right, bottom = math.Max(right, s.X+s.Width), math.Max(bottom, s.Y+s.Height)
		}
		res.Canvas = models.Canvas{Width: max(minCanvasWidth, right), Height: max(minCanvasHeight, bottom)}
		res.Warnings = append(res.Warnings, "svg has no usable size; canvas fitted to content")
	}

	shapes := doc.Shapes
	var bg BackgroundSpec
	for len(shapes) > 0 && coversCanvas(shapes[0], res.Canvas) {
		s := shapes[0]
		if s.Kind == parser.ShapeRect && bg.Color == "" && bg.Src == "" && s.Fill != "" {
			bg.Color = s.Fill
		} else if s.Kind == parser.ShapeImage && bg.Src == "" {
			bg.Src = s.Href
		} else {
			break
		}
		shapes = shapes[1:]
	}
	if bg.Color != "" || bg.Src != "" {
		bg.Width, bg.Height = res.Canvas.Width, res.Canvas.Height
		res.Background = &bg
		res.Elements = append(res.Elements, models.ImportedElement{
			ID:      models.ImportedID(models.TypeBackground, 0),
			Name:    "Background",
			Width:   bg.Width,
			Height:  bg.Height,
			Opacity: 1,
			Visible: true,
			ZIndex:  -1,
			Content: models.BackgroundContent{Color: bg.Color, Src: bg.Src},
		})
	}

	for i, s := range shapes {
		el, ok := vectorElement(i, s)
		if !ok {
			continue
		}
		res.Elements = append(res.Elements, el)
	}
	return res
}

func coversCanvas(s parser.VectorShape, canvas models.Canvas) bool {
	const eps = 0.5
	return s.Rotation == 0 && s.Opacity >= 1 && s.Stroke == "" &&
		math.Abs(s.X) < eps && math.Abs(s.Y) < eps &&
		s.Width >= canvas.Width-eps && s.Height >= canvas.Height-eps
}

func vectorElement(i int, s parser.VectorShape) (models.ImportedElement, bool) {
	el := models.ImportedElement{
		Name:     s.ID,
		X:        s.X,
		Y:        s.Y,
		Width:    s.Width,
		Height:   s.Height,
		Rotation: s.Rotation,
		Opacity:  s.Opacity,
		Visible:  true,
		ZIndex:   i,
	}

	switch s.Kind {
	case parser.ShapeRect, parser.ShapeCircle:
		if s.Fill == "" && s.Stroke == "" {
			return el, false
		}
		shape := models.ShapeRect
		if s.Kind == parser.ShapeCircle {
			shape = models.ShapeCircle
		}
		el.Content = models.ShapeContent{
			Shape:        shape,
			Fill:         s.Fill,
			Stroke:       s.Stroke,
			StrokeWidth:  s.StrokeWidth,
			CornerRadius: s.CornerRadius,
		}
	case parser.ShapeText:
		el.Content = models.TextContent{
			Text:       s.Text,
			FontSize:   s.FontSize,
			FontFamily: s.FontFamily,
			FontWeight: s.FontWeight,
			FontStyle:  s.FontStyle,
			TextAlign:  s.Align,
			Fill:       s.Fill,
		}
	case parser.ShapeImage:
		el.Content = models.ImageContent{Src: s.Href}
	default:
		return el, false
	}

	el.ID = models.ImportedID(el.Type(), i)
	if el.Name == "" {
		el.Name = el.Type()
	}
	return el, true
}
