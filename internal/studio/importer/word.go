package importer

import (
	"context"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/parser"
)

const (
	wordStartY       = 50.0
	wordMarginX      = 50.0
	wordTextStep     = 40.0
	wordImageStep    = 220.0
	wordCanvasWidth  = 800.0
	wordImageMaxW    = 300.0
	wordImageMaxH    = 200.0
	wordBottomMargin = 50.0
)

// WordImporter lays word-processor blocks out top to bottom.
type WordImporter struct{}

func NewWordImporter() *WordImporter { return &WordImporter{} }

func (w *WordImporter) Import(ctx context.Context, filename string, data []byte) ImportResult {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	doc, err := parser.ParseDOCX(data)
	if err != nil {
		return failed(err)
	}

	res := ImportResult{
		Success:  true,
		Elements: make([]models.ImportedElement, 0, len(doc.Blocks)),
		Warnings: doc.Warnings,
	}

	y := wordStartY
	for _, block := range doc.Blocks {
		i := len(res.Elements)
		switch block.Kind {
		case parser.BlockText:
			res.Elements = append(res.Elements, textElement(i, block, y))
			y += wordTextStep
		case parser.BlockImage:
			width, height := fitWithin(block.Width, block.Height, wordImageMaxW, wordImageMaxH)
			if block.Width <= 0 || block.Height <= 0 {
				width, height = wordImageMaxH, wordImageMaxH
			}
			res.Elements = append(res.Elements, models.ImportedElement{
				ID:      models.ImportedID(models.TypeImage, i),
				Name:    "Image",
				X:       wordMarginX,
				Y:       y,
				Width:   width,
				Height:  height,
				Opacity: 1,
				Visible: true,
				ZIndex:  i,
				Content: models.ImageContent{Src: dataURI(block.MediaType, block.Image)},
			})
			y += wordImageStep
		}
	}

	res.Canvas = models.Canvas{Width: wordCanvasWidth, Height: max(minCanvasHeight, y+wordBottomMargin)}
	return res
}

func textElement(i int, block parser.Block, y float64) models.ImportedElement {
	style := block.Style
	weight, slant := "normal", "normal"
	if style.Bold {
		weight = "bold"
	}
	if style.Italic {
		slant = "italic"
	}

	return models.ImportedElement{
		ID:      models.ImportedID(models.TypeText, i),
		Name:    "Text",
		X:       wordMarginX,
		Y:       y,
		Width:   wordCanvasWidth - 2*wordMarginX,
		Height:  style.FontSize * 1.5,
		Opacity: 1,
		Visible: true,
		ZIndex:  i,
		Content: models.TextContent{
			Text:       block.Text,
			FontSize:   style.FontSize,
			FontFamily: style.FontFamily,
			FontWeight: weight,
			FontStyle:  slant,
			TextAlign:  style.Align,
			Fill:       style.Color,
		},
	}
}
