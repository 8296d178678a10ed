package render

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"idcard-studio/internal/studio/models"
)

const (
	defaultFontSize   = 16.0
	defaultFontFamily = "Arial"
	lineSpacing       = 1.2
)

// ============================================================
// Font shorthand
// ============================================================

// FontSpec is the parsed form of a CSS-like font shorthand.
type FontSpec struct {
	Style  string
	Weight string
	Size   float64
	Family string
}

func FontSpecFor(el models.SceneElement) FontSpec {
	spec := FontSpec{
		Style:  el.FontStyle,
		Weight: el.FontWeight,
		Size:   el.FontSize,
		Family: el.FontFamily,
	}
	if spec.Style == "" {
		spec.Style = "normal"
	}
	if spec.Weight == "" {
		spec.Weight = "normal"
	}
	if spec.Size <= 0 {
		spec.Size = defaultFontSize
	}
	if spec.Family == "" {
		spec.Family = defaultFontFamily
	}
	return spec
}

// String renders the shorthand, e.g. "italic bold 16px Arial".
func (f FontSpec) String() string {
	return fmt.Sprintf("%s %s %gpx %s", f.Style, f.Weight, f.Size, f.Family)
}

func (f FontSpec) Bold() bool {
	switch f.Weight {
	case "bold", "bolder", "600", "700", "800", "900":
		return true
	}
	return false
}

func (f FontSpec) Italic() bool {
	return f.Style == "italic" || f.Style == "oblique"
}

func (f FontSpec) Monospace() bool {
	family := strings.ToLower(f.Family)
	return strings.Contains(family, "mono") || strings.Contains(family, "courier") || strings.Contains(family, "consolas")
}

// ============================================================
// Font cache
// ============================================================

type variant int

const (
	regular variant = iota
	bold
	italic
	boldItalic
	mono
	monoBold
	monoItalic
	monoBoldItalic
)

var fontData = map[variant][]byte{
	regular:        goregular.TTF,
	bold:           gobold.TTF,
	italic:         goitalic.TTF,
	boldItalic:     gobolditalic.TTF,
	mono:           gomono.TTF,
	monoBold:       gomonobold.TTF,
	monoItalic:     gomonoitalic.TTF,
	monoBoldItalic: gomonobolditalic.TTF,
}

var (
	parsedOnce  sync.Once
	parsedFonts map[variant]*opentype.Font
	parseErr    error
)

// loadFonts parses the embedded families once; parsed fonts are shared,
// faces are not.
func loadFonts() (map[variant]*opentype.Font, error) {
	parsedOnce.Do(func() {
		parsedFonts = make(map[variant]*opentype.Font, len(fontData))
		for v, data := range fontData {
			f, err := opentype.Parse(data)
			if err != nil {
				parseErr = fmt.Errorf("parse font %d: %w", v, err)
				return
			}
			parsedFonts[v] = f
		}
	})
	return parsedFonts, parseErr
}

func variantFor(spec FontSpec) variant {
	v := regular
	if spec.Monospace() {
		v = mono
	}
	switch {
	case spec.Bold() && spec.Italic():
		v += 3
	case spec.Italic():
		v += 2
	case spec.Bold():
		v++
	}
	return v
}

type faceKey struct {
	v    variant
	size float64
}

// FontCache hands out font faces for a single render. A face is not safe
// for concurrent use, so every card gets its own cache.
type FontCache struct {
	faces map[faceKey]font.Face
}

func NewFontCache() *FontCache {
	return &FontCache{faces: map[faceKey]font.Face{}}
}

// Face returns the face for spec at size pixels.
func (c *FontCache) Face(spec FontSpec, size float64) (font.Face, error) {
	key := faceKey{v: variantFor(spec), size: math.Round(size*4) / 4}
	if face, ok := c.faces[key]; ok {
		return face, nil
	}

	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(fonts[key.v], &opentype.FaceOptions{
		Size:    key.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("face %s: %w", spec, err)
	}
	c.faces[key] = face
	return face, nil
}

func (c *FontCache) Close() {
	for _, face := range c.faces {
		face.Close()
	}
	c.faces = nil
}

// ============================================================
// Text drawing
// ============================================================

// drawText paints text at the element origin. Glyphs are rasterised at
// device resolution: the current transform is unscaled for the duration.
func drawText(dc *gg.Context, fonts *FontCache, el models.SceneElement, text string, scale float64) error {
	if text == "" {
		return nil
	}
	spec := FontSpecFor(el)
	face, err := fonts.Face(spec, spec.Size*scale)
	if err != nil {
		return err
	}

	dc.Push()
	defer dc.Pop()
	dc.Scale(1/scale, 1/scale)
	dc.SetFontFace(face)

	width := el.Width * scale
	x, ax := 0.0, 0.0
	switch el.TextAlign {
	case "center":
		x, ax = width/2, 0.5
	case "right", "end":
		x, ax = width, 1
	}

	lines := strings.Split(strings.ReplaceAll(text, "\t", "    "), "\n")
	lineHeight := spec.Size * scale * lineSpacing

	if stroke, ok := ParseColor(el.Stroke); ok && el.StrokeWidth > 0 {
		dc.SetColor(stroke)
		offset := el.StrokeWidth * scale / 2
		for i := range 8 {
			angle := float64(i) * math.Pi / 4
			dx, dy := offset*math.Cos(angle), offset*math.Sin(angle)
			for n, line := range lines {
				dc.DrawStringAnchored(line, x+dx, float64(n)*lineHeight+dy, ax, 1)
			}
		}
	}

	fill, ok := ParseColor(fillOrBlack(el.Fill))
	if !ok {
		return nil
	}
	dc.SetColor(fill)
	for n, line := range lines {
		dc.DrawStringAnchored(line, x, float64(n)*lineHeight, ax, 1)
	}
	return nil
}
