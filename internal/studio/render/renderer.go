package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"

	"github.com/fogleman/gg"

	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/models"
)

// ============================================================
// Settings
// ============================================================

const (
	// ReferenceDPI is the screen resolution the logical card size is expressed in.
	ReferenceDPI = 72.0
	DefaultDPI   = 300.0

	BaseWidth  = 300.0
	BaseHeight = 400.0

	FormatPNG  = "png"
	FormatJPEG = "jpeg"

	maxSurfacePixels = 64 << 20
)

type Settings struct {
	DPI           float64 `json:"dpi" validate:"gte=36,lte=1200"`
	Quality       float64 `json:"quality" validate:"gte=0,lte=1"`
	Format        string  `json:"format" validate:"omitempty,oneof=png jpeg"`
	UseCanvasSize bool    `json:"useCanvasSize"`
	// Preview leaves placeholders unresolved, for rasterizing a template
	// rather than a student's card.
	Preview bool `json:"preview"`
}

func DefaultSettings() Settings {
	return Settings{DPI: DefaultDPI, Quality: 1, Format: FormatPNG}
}

// Scale is the device pixels per logical unit.
func (s Settings) Scale() float64 {
	if s.DPI <= 0 {
		return DefaultDPI / ReferenceDPI
	}
	return s.DPI / ReferenceDPI
}

// LogicalSize is the card size before DPI scaling. Generation uses fixed
// card proportions unless useCanvas asks for the document's own canvas.
func LogicalSize(doc *models.SceneDocument, useCanvas bool) (float64, float64) {
	if useCanvas && doc.Canvas.Width > 0 && doc.Canvas.Height > 0 {
		return doc.Canvas.Width, doc.Canvas.Height
	}
	if doc.Orientation() == models.OrientationLandscape {
		return BaseHeight, BaseWidth
	}
	return BaseWidth, BaseHeight
}

// ============================================================
// Results
// ============================================================

// ElementFailure records an element that was skipped during a render.
type ElementFailure struct {
	ElementID string `json:"elementId"`
	Type      string `json:"type"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

type Card struct {
	StudentID   string           `json:"studentId"`
	StudentName string           `json:"studentName"`
	Image       *image.RGBA      `json:"-"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	Failures    []ElementFailure `json:"failures,omitempty"`
}

// ============================================================
// Renderer
// ============================================================

type SurfaceFunc func(width, height int) (*gg.Context, error)

func defaultSurface(width, height int) (*gg.Context, error) {
	if width <= 0 || height <= 0 || width*height > maxSurfacePixels {
		return nil, fmt.Errorf("surface %dx%d out of range", width, height)
	}
	return gg.NewContext(width, height), nil
}

type Renderer struct {
	registry *fields.Registry
	assets   *AssetLoader
	logger   *slog.Logger

	newSurface SurfaceFunc
}

func NewRenderer(registry *fields.Registry, assets *AssetLoader, logger *slog.Logger) *Renderer {
	if registry == nil {
		registry = fields.NewRegistry()
	}
	if assets == nil {
		assets = NewAssetLoader(DefaultAssetTimeout, "")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{registry: registry, assets: assets, logger: logger, newSurface: defaultSurface}
}

// WithSurface replaces the drawing surface factory.
func (r *Renderer) WithSurface(fn SurfaceFunc) *Renderer {
	r.newSurface = fn
	return r
}

// renderState is the per-card working set.
type renderState struct {
	ctx      context.Context
	record   fields.Record
	scale    float64
	width    float64 // logical
	height   float64
	fonts    *FontCache
	failures []ElementFailure
	preview  bool
	groups   []models.SceneElement // enclosing groups, outermost first
}

// Render paints doc for one record. Element failures are recorded on the
// card; an error is returned only when no card could be produced.
func (r *Renderer) Render(ctx context.Context, doc *models.SceneDocument, record fields.Record, s Settings) (*Card, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scale := s.Scale()
	lw, lh := LogicalSize(doc, s.UseCanvasSize)
	pw, ph := int(lw*scale+0.5), int(lh*scale+0.5)

	dc, err := r.newSurface(pw, ph)
	if err != nil {
		return nil, fmt.Errorf("create surface: %w", err)
	}
	dc.Scale(scale, scale)

	st := &renderState{
		ctx:     ctx,
		record:  fields.StudentRecord(record),
		scale:   scale,
		width:   lw,
		height:  lh,
		fonts:   NewFontCache(),
		preview: s.Preview,
	}
	defer st.fonts.Close()

	r.paintBackground(dc, st, doc.Background)

	for _, i := range models.PaintOrder(doc.Elements) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		el := doc.Elements[i]
		if !el.IsVisible() {
			continue
		}
		r.paintElement(dc, st, el)
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, errors.New("unexpected surface image type")
	}

	return &Card{
		StudentID:   st.record[fields.StudentID],
		StudentName: st.record[fields.StudentName],
		Image:       img,
		Width:       pw,
		Height:      ph,
		Failures:    st.failures,
	}, nil
}

func (r *Renderer) paintBackground(dc *gg.Context, st *renderState, bg models.Background) {
	if c, ok := ParseColor(bg.Color); ok {
		dc.SetColor(c)
		dc.DrawRectangle(0, 0, st.width, st.height)
		dc.Fill()
	}
	if bg.Image != "" {
		if err := r.drawImageBox(dc, st, bg.Image, 0, 0, st.width, st.height, nil); err != nil {
			st.fail(models.SceneElement{ID: "document-background", Type: models.TypeBackground}, err)
			r.logger.Warn("Background image skipped", "error", err)
		}
	}
}

// resolve substitutes placeholders unless the render is a template preview.
func (r *Renderer) resolve(st *renderState, text string) string {
	if st.preview {
		return text
	}
	return r.registry.Replace(text, st.record)
}

func (st *renderState) fail(el models.SceneElement, err error) {
	st.failures = append(st.failures, ElementFailure{ElementID: el.ID, Type: el.Type, Err: err, Message: err.Error()})
}

// paintElement isolates one element: a panic or error is recorded and the
// card continues.
func (r *Renderer) paintElement(dc *gg.Context, st *renderState, el models.SceneElement) {
	defer func() {
		if p := recover(); p != nil {
			st.fail(el, fmt.Errorf("panic: %v", p))
			r.logger.Error("Element render panicked", "element", el.ID, "panic", p)
		}
	}()

	alpha := el.Alpha()
	if alpha <= 0 {
		return
	}

	target := dc
	if alpha < 1 {
		layer, err := r.newSurface(dc.Width(), dc.Height())
		if err != nil {
			st.fail(el, err)
			return
		}
		layer.Scale(st.scale, st.scale)
		for _, g := range st.groups {
			layer.Translate(g.X, g.Y)
			if g.Rotation != 0 {
				layer.Rotate(gg.Radians(g.Rotation))
			}
		}
		target = layer
	}

	if err := r.drawElement(target, st, el); err != nil {
		st.fail(el, err)
		r.logger.Warn("Element skipped", "element", el.ID, "type", el.Type, "error", err)
		return
	}

	if target != dc {
		composite(dc, target, alpha)
	}
}

// composite blends layer over dc at a uniform opacity.
func composite(dc, layer *gg.Context, alpha float64) {
	dst, ok := dc.Image().(draw.Image)
	if !ok {
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(alpha*255 + 0.5)})
	draw.DrawMask(dst, dst.Bounds(), layer.Image(), image.Point{}, mask, image.Point{}, draw.Over)
}

func (r *Renderer) drawElement(dc *gg.Context, st *renderState, el models.SceneElement) error {
	if el.Type == models.TypeBackground {
		return r.drawBackgroundElement(dc, st, el)
	}

	dc.Push()
	defer dc.Pop()
	dc.Translate(el.X, el.Y)
	if el.Rotation != 0 {
		dc.Rotate(gg.Radians(el.Rotation))
	}

	switch el.Type {
	case models.TypeText, models.TypeDynamicField:
		return drawText(dc, st.fonts, el, r.resolve(st, el.Text), st.scale)
	case models.TypeRect, models.TypeRectangle:
		drawRect(dc, el)
	case models.TypeCircle:
		drawCircle(dc, el)
	case models.TypeShape:
		if el.ShapeType == models.ShapeCircle {
			drawCircle(dc, el)
		} else {
			drawRect(dc, el)
		}
	case models.TypeImage:
		src := r.resolve(st, el.Src)
		if src == "" || (st.preview && len(fields.Placeholders(src)) > 0) {
			return nil
		}
		var crop *image.Rectangle
		if el.CropWidth > 0 && el.CropHeight > 0 {
			rect := image.Rect(int(el.CropX), int(el.CropY), int(el.CropX+el.CropWidth), int(el.CropY+el.CropHeight))
			crop = &rect
		}
		return r.drawImageBox(dc, st, src, 0, 0, el.Width, el.Height, crop)
	case models.TypeQRCode:
		return drawQRCode(dc, r.resolve(st, el.Data), el.Width, el.Height, st.scale)
	case models.TypeGroup:
		st.groups = append(st.groups, el)
		for _, i := range models.PaintOrder(el.Children) {
			child := el.Children[i]
			if child.IsVisible() {
				r.paintElement(dc, st, child)
			}
		}
		st.groups = st.groups[:len(st.groups)-1]
	default:
		return fmt.Errorf("unknown element type %q", el.Type)
	}
	return nil
}

// drawBackgroundElement covers the full card regardless of the element box.
func (r *Renderer) drawBackgroundElement(dc *gg.Context, st *renderState, el models.SceneElement) error {
	if c, ok := ParseColor(el.Fill); ok {
		dc.SetColor(c)
		dc.DrawRectangle(0, 0, st.width, st.height)
		dc.Fill()
	}
	src := r.resolve(st, el.Src)
	if src == "" || (st.preview && len(fields.Placeholders(src)) > 0) {
		return nil
	}
	return r.drawImageBox(dc, st, src, 0, 0, st.width, st.height, nil)
}
