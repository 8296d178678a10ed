package render

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	qrcode "github.com/skip2/go-qrcode"

	"idcard-studio/internal/studio/models"
)

func fillOrBlack(fill string) string {
	if fill == "" {
		return "#000000"
	}
	return fill
}

func fillAndStroke(dc *gg.Context, el models.SceneElement) {
	if c, ok := ParseColor(fillOrBlack(el.Fill)); ok {
		dc.SetColor(c)
		dc.FillPreserve()
	}
	if c, ok := ParseColor(el.Stroke); ok && el.StrokeWidth > 0 {
		dc.SetColor(c)
		dc.SetLineWidth(el.StrokeWidth)
		dc.StrokePreserve()
	}
	dc.ClearPath()
}

func drawRect(dc *gg.Context, el models.SceneElement) {
	if el.CornerRadius > 0 {
		dc.DrawRoundedRectangle(0, 0, el.Width, el.Height, el.CornerRadius)
	} else {
		dc.DrawRectangle(0, 0, el.Width, el.Height)
	}
	fillAndStroke(dc, el)
}

// drawCircle centres the circle in the element box, radius min(w,h)/2.
func drawCircle(dc *gg.Context, el models.SceneElement) {
	r := min(el.Width, el.Height) / 2
	dc.DrawCircle(el.Width/2, el.Height/2, r)
	fillAndStroke(dc, el)
}

// drawImageBox draws src into the logical box x,y,w,h, cropping first when
// crop is set. The bitmap is resampled to device pixels before drawing.
func (r *Renderer) drawImageBox(dc *gg.Context, st *renderState, src string, x, y, w, h float64, crop *image.Rectangle) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	img, err := r.assets.Load(st.ctx, src)
	if err != nil {
		return err
	}
	if crop != nil {
		img = imaging.Crop(img, *crop)
	}
	return blit(dc, img, x, y, w, h, st.scale, imaging.Lanczos)
}

func blit(dc *gg.Context, img image.Image, x, y, w, h, scale float64, filter imaging.ResampleFilter) error {
	pw, ph := int(w*scale+0.5), int(h*scale+0.5)
	if pw <= 0 || ph <= 0 {
		return nil
	}
	if b := img.Bounds(); b.Empty() {
		return fmt.Errorf("empty image")
	}
	resized := imaging.Resize(img, pw, ph, filter)

	dc.Push()
	defer dc.Pop()
	dc.Scale(1/scale, 1/scale)
	dc.DrawImage(resized, int(x*scale+0.5), int(y*scale+0.5))
	return nil
}

func drawQRCode(dc *gg.Context, data string, w, h, scale float64) error {
	if data == "" {
		return fmt.Errorf("qr code has no data")
	}
	q, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("qr code: %w", err)
	}
	side := int(max(w, h)*scale + 0.5)
	if side <= 0 {
		return nil
	}
	return blit(dc, q.Image(side), 0, 0, w, h, scale, imaging.NearestNeighbor)
}
