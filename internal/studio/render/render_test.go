package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/models"
)

func newTestRenderer() *Renderer {
	return NewRenderer(fields.NewRegistry(), NewAssetLoader(2*time.Second, ""), nil)
}

func screen() Settings {
	return Settings{DPI: 72, Quality: 1, Format: FormatPNG}
}

func pngDataURI(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, c), imaging.PNG))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func rgba(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func portraitDoc(elements ...models.SceneElement) *models.SceneDocument {
	doc := models.NewDocument("doc", "Card", 300, 400)
	doc.Elements = elements
	return doc
}

// ============================================================
// Geometry
// ============================================================

func TestRender_DPIScaling(t *testing.T) {
	r := newTestRenderer()

	card, err := r.Render(context.Background(), portraitDoc(), nil, Settings{DPI: 144})
	require.NoError(t, err)
	assert.Equal(t, 600, card.Width)
	assert.Equal(t, 800, card.Height)
	assert.Equal(t, image.Rect(0, 0, 600, 800), card.Image.Bounds())

	landscape := models.NewDocument("doc", "Card", 1011, 638)
	card, err = r.Render(context.Background(), landscape, nil, screen())
	require.NoError(t, err)
	assert.Equal(t, 400, card.Width)
	assert.Equal(t, 300, card.Height)

	custom := models.NewDocument("doc", "Card", 500, 500)
	card, err = r.Render(context.Background(), custom, nil, Settings{DPI: 72, UseCanvasSize: true})
	require.NoError(t, err)
	assert.Equal(t, 500, card.Width)

	assert.Equal(t, 300.0/72.0, DefaultSettings().Scale())
}

func TestRender_BackgroundColorThenImage(t *testing.T) {
	doc := portraitDoc()
	doc.Background = models.Background{Color: "#ff0000"}
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, rgba(card.Image, 5, 5))

	doc.Background.Image = pngDataURI(t, 10, 10, color.NRGBA{B: 255, A: 255})
	card, err = newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, rgba(card.Image, 150, 200))
}

func TestRender_ZOrderAndVisibility(t *testing.T) {
	doc := portraitDoc(
		models.SceneElement{ID: "top", Type: models.TypeRect, X: 0, Y: 0, Width: 100, Height: 100, Fill: "#ff0000", ZIndex: 2},
		models.SceneElement{ID: "bottom", Type: models.TypeRect, X: 0, Y: 0, Width: 100, Height: 100, Fill: "#0000ff", ZIndex: 1},
		models.SceneElement{ID: "hidden", Type: models.TypeRect, X: 0, Y: 0, Width: 100, Height: 100, Fill: "#00ff00", ZIndex: 9, Visible: models.Bool(false)},
	)
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, rgba(card.Image, 50, 50))
	assert.Empty(t, card.Failures)
}

func TestRender_Opacity(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "veil", Type: models.TypeRect, Width: 100, Height: 100, Fill: "#000000", Opacity: models.Float(0.5)})
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)

	px := rgba(card.Image, 50, 50)
	assert.InDelta(t, 127, int(px.R), 2)
	assert.Equal(t, uint8(255), px.A)
}

func TestRender_Rotation(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "bar", Type: models.TypeRect, X: 100, Y: 10, Width: 50, Height: 20, Fill: "#00ff00", Rotation: 90})
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{0, 255, 0, 255}, rgba(card.Image, 90, 40))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba(card.Image, 120, 15))
}

func TestRender_CircleUsesShortSide(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "dot", Type: models.TypeShape, ShapeType: models.ShapeCircle, X: 0, Y: 0, Width: 100, Height: 40, Fill: "#0000ff"})
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{0, 0, 255, 255}, rgba(card.Image, 50, 20))
	// radius is 20, so the box corner stays white
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba(card.Image, 5, 5))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba(card.Image, 90, 20))
}

// ============================================================
// Content
// ============================================================

func hasDarkPixel(img *image.RGBA, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y).R < 128 {
				return true
			}
		}
	}
	return false
}

func TestRender_TextResolvesPlaceholders(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "name", Type: models.TypeDynamicField, X: 10, Y: 10, Width: 280, Height: 30, Text: "{{student_name}}", FontSize: 20, FontWeight: "bold"})

	card, err := newTestRenderer().Render(context.Background(), doc, fields.Record{fields.StudentName: "Asha"}, screen())
	require.NoError(t, err)
	assert.True(t, hasDarkPixel(card.Image, image.Rect(10, 10, 290, 40)))
	assert.Equal(t, "Asha", card.StudentName)

	// a missing student attribute resolves to the empty string
	card, err = newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.False(t, hasDarkPixel(card.Image, image.Rect(0, 0, 300, 60)))
}

func TestRender_ImageFailureIsSwallowed(t *testing.T) {
	doc := portraitDoc(
		models.SceneElement{ID: "photo", Type: models.TypeImage, X: 0, Y: 0, Width: 50, Height: 50, Src: "{{photo}}"},
		models.SceneElement{ID: "after", Type: models.TypeRect, X: 100, Y: 100, Width: 50, Height: 50, Fill: "#ff0000", ZIndex: 1},
	)
	card, err := newTestRenderer().Render(context.Background(), doc, fields.Record{fields.Photo: "/no/such/photo.png"}, screen())
	require.NoError(t, err)
	require.Len(t, card.Failures, 1)
	assert.Equal(t, "photo", card.Failures[0].ElementID)
	assert.True(t, errors.Is(card.Failures[0].Err, ErrAssetUnavailable))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, rgba(card.Image, 120, 120))

	// an empty resolved source is skipped silently
	card, err = newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.Empty(t, card.Failures)
}

func TestRender_ImageCrop(t *testing.T) {
	src := imaging.New(20, 10, color.NRGBA{R: 255, A: 255})
	src = imaging.Paste(src, imaging.New(10, 10, color.NRGBA{G: 255, A: 255}), image.Pt(10, 0))
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, src, imaging.PNG))
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	doc := portraitDoc(models.SceneElement{ID: "img", Type: models.TypeImage, Width: 40, Height: 40, Src: uri, CropX: 10, CropWidth: 10, CropHeight: 10})
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, rgba(card.Image, 20, 20))
}

func TestRender_QRCode(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "qr", Type: models.TypeQRCode, X: 10, Y: 10, Width: 120, Height: 120, Data: "ID:{{student_id}}"})
	card, err := newTestRenderer().Render(context.Background(), doc, fields.Record{fields.StudentID: "S-1"}, screen())
	require.NoError(t, err)
	assert.Empty(t, card.Failures)
	assert.True(t, hasDarkPixel(card.Image, image.Rect(10, 10, 130, 130)))

	empty := portraitDoc(models.SceneElement{ID: "qr", Type: models.TypeQRCode, Width: 50, Height: 50})
	card, err = newTestRenderer().Render(context.Background(), empty, nil, screen())
	require.NoError(t, err)
	assert.Len(t, card.Failures, 1)
}

func TestRender_BackgroundElementCoversCard(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "bg", Type: models.TypeBackground, X: 100, Y: 100, Width: 10, Height: 10, Fill: "#00ff00", ZIndex: -1})
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, rgba(card.Image, 1, 1))
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, rgba(card.Image, 298, 398))
}

func TestRender_GroupChildrenUseGroupSpace(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "g", Type: models.TypeGroup, X: 100, Y: 100, Children: []models.SceneElement{
		{ID: "c", Type: models.TypeRect, X: 10, Y: 10, Width: 20, Height: 20, Fill: "#ff0000"},
	}})
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, rgba(card.Image, 120, 120))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba(card.Image, 20, 20))
}

func TestRender_TranslucentGroupChild(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "g", Type: models.TypeGroup, X: 100, Y: 100, Children: []models.SceneElement{
		{ID: "c", Type: models.TypeRect, X: 10, Y: 10, Width: 20, Height: 20, Fill: "#ff0000", Opacity: models.Float(0.5)},
	}})
	card, err := newTestRenderer().Render(context.Background(), doc, nil, screen())
	require.NoError(t, err)

	inside := rgba(card.Image, 120, 120)
	assert.Equal(t, uint8(255), inside.R)
	assert.InDelta(t, 128, int(inside.G), 3)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba(card.Image, 20, 20))
}

func TestRender_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestRenderer().Render(ctx, portraitDoc(), nil, screen())
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================
// Batch
// ============================================================

func roster(n int) []fields.Student {
	out := make([]fields.Student, n)
	for i := range out {
		out[i] = fields.Student{ID: string(rune('a' + i)), Name: "Student " + string(rune('A'+i))}
	}
	return out
}

func TestGenerateAll_BadPhotoDoesNotStopBatch(t *testing.T) {
	doc := portraitDoc(models.SceneElement{ID: "photo", Type: models.TypeImage, Width: 50, Height: 50, Src: "{{photo}}"})
	students := roster(5)
	for i := range students {
		students[i].PhotoURL = pngDataURI(t, 4, 4, color.NRGBA{R: 255, A: 255})
	}
	students[2].PhotoURL = "data:image/png;base64,not-an-image"

	res, err := newTestRenderer().GenerateAll(context.Background(), doc, students, screen(), 2)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Requested)
	assert.Equal(t, 5, res.Succeeded)
	assert.Len(t, res.Cards[2].Failures, 1)
	assert.Empty(t, res.Cards[1].Failures)
	assert.Equal(t, "c", res.Cards[2].StudentID)
}

func TestGenerateAll_CardFailureIsReported(t *testing.T) {
	var calls atomic.Int32
	r := newTestRenderer().WithSurface(func(w, h int) (*gg.Context, error) {
		if calls.Add(1) == 3 {
			return nil, errors.New("canvas unavailable")
		}
		return gg.NewContext(w, h), nil
	})

	res, err := r.GenerateAll(context.Background(), portraitDoc(), roster(5), screen(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Requested)
	assert.Equal(t, 4, res.Succeeded)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "c", res.Failures[0].StudentID)
	assert.Contains(t, res.Failures[0].Message, "canvas unavailable")
}

func TestGenerateAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newTestRenderer().GenerateAll(ctx, portraitDoc(), roster(3), screen(), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Succeeded)
}

// ============================================================
// Encoding, colors, assets
// ============================================================

func TestEncode(t *testing.T) {
	img := imaging.New(8, 6, color.NRGBA{R: 10, A: 255})

	var pngBuf bytes.Buffer
	require.NoError(t, Encode(&pngBuf, img, Settings{Format: FormatPNG, Quality: 1}))
	cfg, format, err := image.DecodeConfig(&pngBuf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, cfg.Width)

	var jpgBuf bytes.Buffer
	require.NoError(t, Encode(&jpgBuf, img, Settings{Format: FormatJPEG, Quality: 0.5}))
	_, format, err = image.DecodeConfig(&jpgBuf)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	assert.Error(t, Encode(&bytes.Buffer{}, img, Settings{Format: "tiff"}))
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"#f00":                 {R: 255, A: 255},
		"#00FF00":              {G: 255, A: 255},
		"#0000ff80":            {B: 255, A: 128},
		"rgb(1, 2, 3)":         {R: 1, G: 2, B: 3, A: 255},
		"rgba(255,255,255,0)":  {R: 255, G: 255, B: 255, A: 0},
	}
	for in, want := range cases {
		got, ok := ParseColor(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	named, ok := ParseColor("Navy")
	require.True(t, ok)
	r, g, b, _ := named.RGBA()
	assert.Equal(t, []uint32{0, 0, 0x8080}, []uint32{r, g, b})

	for _, bad := range []string{"", "transparent", "none", "#12", "rgb(1,2)", "chartreuse-ish"} {
		_, ok := ParseColor(bad)
		assert.False(t, ok, bad)
	}
}

func TestFontSpec(t *testing.T) {
	spec := FontSpecFor(models.SceneElement{FontStyle: "italic", FontWeight: "bold", FontSize: 18, FontFamily: "Courier New"})
	assert.Equal(t, "italic bold 18px Courier New", spec.String())
	assert.Equal(t, monoBoldItalic, variantFor(spec))

	def := FontSpecFor(models.SceneElement{})
	assert.Equal(t, "normal normal 16px Arial", def.String())
	assert.Equal(t, regular, variantFor(def))
}

func TestAssetLoader_Sources(t *testing.T) {
	loader := NewAssetLoader(time.Second, t.TempDir())

	img, err := loader.Load(context.Background(), pngDataURI(t, 3, 2, color.White))
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(5, 5, color.Black), imaging.PNG))
	require.NoError(t, os.WriteFile(filepath.Join(loader.BaseDir, "logo.png"), buf.Bytes(), 0o644))
	img, err = loader.Load(context.Background(), "logo.png")
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	img, err = loader.Load(context.Background(), srv.URL+"/photo.png")
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dy())

	_, err = loader.Load(context.Background(), srv.URL+"/missing.png")
	assert.ErrorIs(t, err, ErrAssetUnavailable)
}

func TestAssetLoader_StaysInsideBaseDir(t *testing.T) {
	outer := t.TempDir()
	base := filepath.Join(outer, "assets")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "photos"), 0o755))

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(4, 4, color.Black), imaging.PNG))
	secret := filepath.Join(outer, "secret.png")
	require.NoError(t, os.WriteFile(secret, buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "photos", "jo.png"), buf.Bytes(), 0o644))

	loader := NewAssetLoader(time.Second, base)
	ctx := context.Background()

	_, err := loader.Load(ctx, "photos/jo.png")
	require.NoError(t, err)

	for _, src := range []string{"../secret.png", "photos/../../secret.png", secret, "file://" + filepath.ToSlash(secret)} {
		_, err := loader.Load(ctx, src)
		assert.ErrorIs(t, err, ErrAssetUnavailable, src)
	}

	_, err = NewAssetLoader(time.Second, "").Load(ctx, secret)
	assert.ErrorIs(t, err, ErrAssetUnavailable)
}

func TestAssetLoader_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	loader := NewAssetLoader(50*time.Millisecond, "")
	start := time.Now()
	_, err := loader.Load(context.Background(), srv.URL+"/slow.png")
	assert.ErrorIs(t, err, ErrAssetUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}
