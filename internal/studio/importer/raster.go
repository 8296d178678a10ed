package importer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"idcard-studio/internal/studio/models"
)

var RasterExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

const (
	backgroundMinWidth  = 800
	backgroundMinHeight = 600
	foregroundMaxSide   = 300.0
	foregroundOffset    = 50.0
)

// RasterImporter classifies a flat image as background or foreground by
// its pixel size alone.
type RasterImporter struct{}

func NewRasterImporter() *RasterImporter { return &RasterImporter{} }

func (ri *RasterImporter) Import(ctx context.Context, filename string, data []byte) ImportResult {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return failed(fmt.Errorf("decode %s: %w", filename, err))
	}
	src := dataURI("image/"+format, data)
	w, h := float64(cfg.Width), float64(cfg.Height)

	if IsBackground(cfg.Width, cfg.Height) {
		return ImportResult{
			Success: true,
			Elements: []models.ImportedElement{{
				ID:      models.ImportedID(models.TypeBackground, 0),
				Name:    "Background",
				Width:   w,
				Height:  h,
				Opacity: 1,
				Visible: true,
				ZIndex:  -1,
				Content: models.BackgroundContent{Src: src},
			}},
			Background: &BackgroundSpec{Src: src, Width: w, Height: h},
			Canvas:     models.Canvas{Width: w, Height: h},
		}
	}

	ew, eh := fitWithin(w, h, foregroundMaxSide, foregroundMaxSide)
	return ImportResult{
		Success: true,
		Elements: []models.ImportedElement{{
			ID:      models.ImportedID(models.TypeImage, 0),
			Name:    "Image",
			X:       foregroundOffset,
			Y:       foregroundOffset,
			Width:   ew,
			Height:  eh,
			Opacity: 1,
			Visible: true,
			ZIndex:  0,
			Content: models.ImageContent{Src: src},
		}},
		Canvas: models.Canvas{Width: max(minCanvasWidth, w), Height: max(minCanvasHeight, h)},
	}
}

// IsBackground is a coarse size heuristic: anything wider than 800 or
// taller than 600 pixels is treated as a full-card background.
func IsBackground(width, height int) bool {
	return width > backgroundMinWidth || height > backgroundMinHeight
}
