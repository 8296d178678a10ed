package importer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/parser"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, A: 255}), imaging.PNG))
	return buf.Bytes()
}

// ============================================================
// Dispatcher
// ============================================================

func TestDispatcher_UnsupportedFormat(t *testing.T) {
	d := NewDispatcher(nil, 0)

	res := d.ImportFile(context.Background(), "card.pdf", []byte("%PDF"))
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)

	var unsupported *UnsupportedFormatError
	require.True(t, errors.As(res.Err, &unsupported))
	assert.Equal(t, "card.pdf", unsupported.Filename)
	assert.Contains(t, res.Errors[0], "card.pdf")

	assert.True(t, d.Supported("PHOTO.JPG"))
	assert.False(t, d.Supported("notes.txt"))
}

func TestDispatcher_SizeLimit(t *testing.T) {
	d := NewDispatcher(nil, 10)
	res := d.ImportFile(context.Background(), "big.png", pngBytes(t, 20, 20))
	assert.False(t, res.Success)
}

func TestDispatcher_LayeredUnavailable(t *testing.T) {
	d := NewDispatcher(nil, 0)
	res := d.ImportFile(context.Background(), "design.psd", []byte("8BPS"))
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, ErrLibraryUnavailable))

	// other importers are unaffected
	res = d.ImportFile(context.Background(), "logo.png", pngBytes(t, 10, 10))
	assert.True(t, res.Success)
}

// ============================================================
// Raster
// ============================================================

func TestRaster_ClassificationBoundary(t *testing.T) {
	ri := NewRasterImporter()

	bg := ri.Import(context.Background(), "a.png", pngBytes(t, 801, 100))
	require.True(t, bg.Success)
	require.Len(t, bg.Elements, 1)
	assert.Equal(t, models.TypeBackground, bg.Elements[0].Type())
	assert.Equal(t, -1, bg.Elements[0].ZIndex)
	assert.Equal(t, models.Canvas{Width: 801, Height: 100}, bg.Canvas)
	require.NotNil(t, bg.Background)

	fg := ri.Import(context.Background(), "b.png", pngBytes(t, 800, 100))
	require.True(t, fg.Success)
	require.Len(t, fg.Elements, 1)
	assert.Equal(t, models.TypeImage, fg.Elements[0].Type())
	assert.Nil(t, fg.Background)

	tall := ri.Import(context.Background(), "c.png", pngBytes(t, 10, 601))
	assert.Equal(t, models.TypeBackground, tall.Elements[0].Type())
}

func TestRaster_ForegroundIsCapped(t *testing.T) {
	res := NewRasterImporter().Import(context.Background(), "logo.png", pngBytes(t, 600, 300))
	require.True(t, res.Success)

	el := res.Elements[0]
	assert.Equal(t, 300.0, el.Width)
	assert.Equal(t, 150.0, el.Height)
	assert.Equal(t, models.Canvas{Width: 600, Height: 600}, res.Canvas)

	content, ok := el.Content.(models.ImageContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(content.Src, "data:image/png;base64,"))

	small := NewRasterImporter().Import(context.Background(), "dot.png", pngBytes(t, 20, 10))
	assert.Equal(t, 20.0, small.Elements[0].Width)
	assert.Equal(t, models.Canvas{Width: 400, Height: 600}, small.Canvas)
}

func TestRaster_CorruptImage(t *testing.T) {
	res := NewRasterImporter().Import(context.Background(), "broken.png", []byte("nope"))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
}

// ============================================================
// Layered
// ============================================================

type stubParser struct {
	doc *parser.LayeredDocument
	err error
}

func (s stubParser) Parse(_ context.Context, _ io.Reader) (*parser.LayeredDocument, error) {
	return s.doc, s.err
}

func solid(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{G: 255, A: 255})
}

func TestLayered_WalksVisibleLeaves(t *testing.T) {
	doc := &parser.LayeredDocument{
		Width:     600,
		Height:    400,
		Composite: solid(600, 400),
		Layers: []parser.Layer{
			{Name: "photo", Left: 10, Top: 20, Width: 100, Height: 120, Alpha: 255, Visible: true, Image: solid(100, 120)},
			{Name: "group", Left: 100, Top: 50, Width: 200, Height: 200, Visible: true, Folder: true, Children: []parser.Layer{
				{Name: "logo", Left: 5, Top: 6, Width: 40, Height: 40, Alpha: 51, Visible: true, Image: solid(40, 40)},
				{Name: "hidden-child", Left: 0, Top: 0, Width: 10, Height: 10, Alpha: 255, Visible: false, Image: solid(10, 10)},
			}},
			{Name: "hidden-group", Visible: false, Folder: true, Children: []parser.Layer{
				{Name: "inside", Width: 10, Height: 10, Alpha: 255, Visible: true, Image: solid(10, 10)},
			}},
			{Name: "empty", Visible: true, Alpha: 255},
		},
	}

	res := NewLayeredImporter(stubParser{doc: doc}).Import(context.Background(), "card.psd", nil)
	require.True(t, res.Success)
	assert.Equal(t, models.Canvas{Width: 600, Height: 400}, res.Canvas)
	require.Len(t, res.Elements, 3)

	bg := res.Elements[0]
	assert.Equal(t, "background_0", bg.ID)
	assert.Equal(t, -1, bg.ZIndex)
	require.NotNil(t, res.Background)

	photo := res.Elements[1]
	assert.Equal(t, "photo", photo.Name)
	assert.Equal(t, 10.0, photo.X)
	assert.Equal(t, 1.0, photo.Opacity)
	assert.Equal(t, 0, photo.ZIndex)

	logo := res.Elements[2]
	assert.Equal(t, "logo", logo.Name)
	assert.Equal(t, 105.0, logo.X)
	assert.Equal(t, 56.0, logo.Y)
	assert.InDelta(t, 0.2, logo.Opacity, 1e-9)
	assert.Equal(t, 1, logo.ZIndex)

	assert.Contains(t, res.Warnings, `layer "empty" has no pixel data`)
}

func TestLayered_ParseError(t *testing.T) {
	res := NewLayeredImporter(stubParser{err: errors.New("bad header")}).Import(context.Background(), "x.psd", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Errors[0], "bad header")
}

// ============================================================
// Word
// ============================================================

func docxBytes(t *testing.T, body string, media map[string][]byte, rels string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name string, data []byte) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	write("word/document.xml", []byte(`<?xml version="1.0"?><w:document `+
		`xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" `+
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" `+
		`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><w:body>`+body+`</w:body></w:document>`))
	if rels != "" {
		write("word/_rels/document.xml.rels", []byte(rels))
	}
	for name, data := range media {
		write(name, data)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestWord_LaysOutBlocks(t *testing.T) {
	body := `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>{{school_name}}</w:t></w:r></w:p>` +
		`<w:p><w:r><w:drawing><a:blip r:embed="rId1"/></w:drawing></w:r></w:p>` +
		`<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:t>{{student_name}}</w:t></w:r></w:p>`
	rels := `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Target="media/photo.png"/></Relationships>`

	data := docxBytes(t, body, map[string][]byte{"word/media/photo.png": pngBytes(t, 4, 4)}, rels)
	res := NewDispatcher(nil, 0).ImportFile(context.Background(), "template.docx", data)
	require.True(t, res.Success, res.Errors)
	require.Len(t, res.Elements, 3)

	title := res.Elements[0]
	assert.Equal(t, "text_0", title.ID)
	assert.Equal(t, 50.0, title.X)
	assert.Equal(t, 50.0, title.Y)
	text := title.Content.(models.TextContent)
	assert.Equal(t, "{{school_name}}", text.Text)
	assert.Equal(t, "bold", text.FontWeight)

	img := res.Elements[1]
	assert.Equal(t, "image_1", img.ID)
	assert.Equal(t, 90.0, img.Y)

	name := res.Elements[2]
	assert.Equal(t, 310.0, name.Y)
	assert.Equal(t, "center", name.Content.(models.TextContent).TextAlign)

	assert.Equal(t, 800.0, res.Canvas.Width)
	assert.Equal(t, 600.0, res.Canvas.Height)

	doc := res.Document("tpl-1", "Imported")
	assert.Len(t, doc.Elements, 3)
	assert.Equal(t, models.OrientationLandscape, doc.Metadata.Orientation)
}

func TestWord_CanvasGrowsWithContent(t *testing.T) {
	var body strings.Builder
	for range 20 {
		body.WriteString(`<w:p><w:r><w:t>line</w:t></w:r></w:p>`)
	}
	res := NewWordImporter().Import(context.Background(), "long.docx", docxBytes(t, body.String(), nil, ""))
	require.True(t, res.Success)
	// 50 + 20*40 = 850, plus the bottom margin
	assert.Equal(t, 900.0, res.Canvas.Height)
}

func TestWord_FatalConversionError(t *testing.T) {
	res := NewWordImporter().Import(context.Background(), "bad.docx", []byte("plain text"))
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, parser.ErrNotWordDocument))
}
