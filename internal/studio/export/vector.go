package export

import (
	"fmt"
	"html"
	"image/color"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/render"
)

const lineSpacing = 1.2

// qrModules returns the code matrix for data, or nil while data is still a
// template placeholder.
func qrModules(data string) [][]bool {
	if data == "" || len(fields.Placeholders(data)) > 0 {
		return nil
	}
	q, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil
	}
	return q.Bitmap()
}

func textAnchor(align string, width float64) (float64, string) {
	switch align {
	case "center":
		return width / 2, "middle"
	case "right":
		return width, "end"
	}
	return 0, "start"
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}

// ============================================================
// SVG
// ============================================================

func exportSVG(doc *models.SceneDocument, base string) (*Artifact, error) {
	out := renderSVG(doc)
	return &Artifact{Format: models.FormatSVG, Filename: base + ".svg", ContentType: "image/svg+xml", Data: []byte(out)}, nil
}

// renderSVG writes the document as SVG with placeholders left in place.
func renderSVG(doc *models.SceneDocument) string {
	width, height := doc.Canvas.Width, doc.Canvas.Height

	var elements []string
	if doc.Background.Color != "" {
		elements = append(elements, fmt.Sprintf(`<rect width="%s" height="%s" fill="%s"/>`,
			formatFloat(width), formatFloat(height), html.EscapeString(doc.Background.Color)))
	}
	if doc.Background.Image != "" {
		elements = append(elements, svgImage(doc.Background.Image, width, height))
	}
	elements = append(elements, svgElements(doc.Elements, width, height)...)

	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	builder.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatFloat(width), formatFloat(height), formatFloat(width), formatFloat(height)))
	builder.WriteString("\n")

	for _, elem := range elements {
		builder.WriteString("  ")
		builder.WriteString(elem)
		builder.WriteString("\n")
	}

	builder.WriteString(`</svg>`)
	return builder.String()
}

func svgElements(elements []models.SceneElement, width, height float64) []string {
	var out []string
	for _, i := range models.PaintOrder(elements) {
		el := elements[i]
		if !el.IsVisible() || el.Alpha() <= 0 {
			continue
		}
		if body := svgElement(el, width, height); body != "" {
			out = append(out, body)
		}
	}
	return out
}

func svgElement(el models.SceneElement, width, height float64) string {
	if el.Type == models.TypeBackground {
		var parts []string
		if el.Fill != "" {
			parts = append(parts, fmt.Sprintf(`<rect width="%s" height="%s" fill="%s"/>`,
				formatFloat(width), formatFloat(height), html.EscapeString(el.Fill)))
		}
		if el.Src != "" {
			parts = append(parts, svgImage(el.Src, width, height))
		}
		return svgGroup(el, "", parts)
	}

	transform := fmt.Sprintf("translate(%s %s)", formatFloat(el.X), formatFloat(el.Y))
	if el.Rotation != 0 {
		transform += fmt.Sprintf(" rotate(%s)", formatFloat(el.Rotation))
	}

	var parts []string
	switch el.Type {
	case models.TypeText, models.TypeDynamicField:
		parts = append(parts, svgText(el))
	case models.TypeRect, models.TypeRectangle:
		parts = append(parts, svgRect(el))
	case models.TypeCircle:
		parts = append(parts, svgCircle(el))
	case models.TypeShape:
		if el.ShapeType == models.ShapeCircle {
			parts = append(parts, svgCircle(el))
		} else {
			parts = append(parts, svgRect(el))
		}
	case models.TypeImage:
		if el.Src == "" {
			return ""
		}
		parts = append(parts, svgImage(el.Src, el.Width, el.Height))
	case models.TypeQRCode:
		parts = append(parts, svgQRCode(el))
	case models.TypeGroup:
		parts = svgElements(el.Children, width, height)
	default:
		return ""
	}
	return svgGroup(el, transform, parts)
}

func svgGroup(el models.SceneElement, transform string, parts []string) string {
	var attrs []string
	attrs = append(attrs, fmt.Sprintf(`id="%s"`, html.EscapeString(el.ID)))
	if transform != "" {
		attrs = append(attrs, fmt.Sprintf(`transform="%s"`, transform))
	}
	if a := el.Alpha(); a < 1 {
		attrs = append(attrs, fmt.Sprintf(`opacity="%s"`, formatFloat(a)))
	}
	return "<g " + strings.Join(attrs, " ") + ">" + strings.Join(parts, "") + "</g>"
}

func svgPaint(el models.SceneElement) string {
	fill := el.Fill
	if fill == "" {
		fill = "#000000"
	}
	attrs := fmt.Sprintf(`fill="%s"`, html.EscapeString(fill))
	if el.Stroke != "" && el.StrokeWidth > 0 {
		attrs += fmt.Sprintf(` stroke="%s" stroke-width="%s"`, html.EscapeString(el.Stroke), formatFloat(el.StrokeWidth))
	}
	return attrs
}

func svgRect(el models.SceneElement) string {
	radius := ""
	if el.CornerRadius > 0 {
		radius = fmt.Sprintf(` rx="%s"`, formatFloat(el.CornerRadius))
	}
	return fmt.Sprintf(`<rect width="%s" height="%s"%s %s/>`,
		formatFloat(el.Width), formatFloat(el.Height), radius, svgPaint(el))
}

func svgCircle(el models.SceneElement) string {
	r := min(el.Width, el.Height) / 2
	return fmt.Sprintf(`<circle cx="%s" cy="%s" r="%s" %s/>`,
		formatFloat(el.Width/2), formatFloat(el.Height/2), formatFloat(r), svgPaint(el))
}

func svgImage(src string, w, h float64) string {
	return fmt.Sprintf(`<image href="%s" width="%s" height="%s" preserveAspectRatio="none"/>`,
		html.EscapeString(src), formatFloat(w), formatFloat(h))
}

func svgText(el models.SceneElement) string {
	spec := render.FontSpecFor(el)
	x, anchor := textAnchor(el.TextAlign, el.Width)

	var b strings.Builder
	b.WriteString(fmt.Sprintf(`<text font-family="%s" font-size="%s" font-weight="%s" font-style="%s" text-anchor="%s" dominant-baseline="hanging" %s>`,
		html.EscapeString(spec.Family), formatFloat(spec.Size), html.EscapeString(spec.Weight), html.EscapeString(spec.Style), anchor, svgPaint(el)))
	for i, line := range strings.Split(el.Text, "\n") {
		b.WriteString(fmt.Sprintf(`<tspan x="%s" y="%s">%s</tspan>`,
			formatFloat(x), formatFloat(float64(i)*spec.Size*lineSpacing), html.EscapeString(line)))
	}
	b.WriteString("</text>")
	return b.String()
}

// svgQRCode draws the code as module rects, or an outlined box while the
// data is unresolved.
func svgQRCode(el models.SceneElement) string {
	bitmap := qrModules(el.Data)
	if bitmap == nil {
		return fmt.Sprintf(`<rect width="%s" height="%s" fill="none" stroke="#999999" stroke-dasharray="4 2"/>`,
			formatFloat(el.Width), formatFloat(el.Height))
	}
	cell := min(el.Width, el.Height) / float64(len(bitmap))

	var b strings.Builder
	b.WriteString(`<rect width="` + formatFloat(el.Width) + `" height="` + formatFloat(el.Height) + `" fill="#ffffff"/>`)
	for y, row := range bitmap {
		for x, on := range row {
			if on {
				b.WriteString(fmt.Sprintf(`<rect x="%s" y="%s" width="%s" height="%s" fill="#000000"/>`,
					formatFloat(float64(x)*cell), formatFloat(float64(y)*cell), formatFloat(cell), formatFloat(cell)))
			}
		}
	}
	return b.String()
}

// ============================================================
// EPS
// ============================================================

// exportEPS writes shapes, text and QR codes as PostScript vectors.
// Images are drawn as outlined boxes and opacity is ignored.
func exportEPS(doc *models.SceneDocument, opts models.ExportOptions, base string) (*Artifact, error) {
	w := &epsWriter{cmyk: opts.ColorSpace == models.ColorSpaceCMYK}
	out := w.render(doc, base)
	return &Artifact{Format: models.FormatEPS, Filename: base + ".eps", ContentType: "application/postscript", Data: []byte(out)}, nil
}

type epsWriter struct {
	cmyk bool
	b    strings.Builder
}

func (w *epsWriter) line(format string, args ...any) {
	w.b.WriteString(fmt.Sprintf(format, args...))
	w.b.WriteString("\n")
}

func (w *epsWriter) render(doc *models.SceneDocument, title string) string {
	width, height := doc.Canvas.Width, doc.Canvas.Height

	w.line("%%!PS-Adobe-3.0 EPSF-3.0")
	w.line("%%%%BoundingBox: 0 0 %d %d", int(width+0.999), int(height+0.999))
	w.line("%%%%HiResBoundingBox: 0 0 %s %s", formatFloat(width), formatFloat(height))
	w.line("%%%%Title: %s", title)
	w.line("%%%%Creator: idcard-studio")
	w.line("%%%%Pages: 1")
	w.line("%%%%EndComments")
	w.line("gsave")
	// Flip to a top-left origin so element coordinates apply unchanged.
	w.line("0 %s translate 1 -1 scale", formatFloat(height))

	if w.setColor(doc.Background.Color) {
		w.line("0 0 %s %s rectfill", formatFloat(width), formatFloat(height))
	}
	if doc.Background.Image != "" {
		w.imageBox(width, height)
	}
	w.elements(doc.Elements, width, height)

	w.line("grestore")
	w.line("showpage")
	w.line("%%%%EOF")
	return w.b.String()
}

func (w *epsWriter) elements(elements []models.SceneElement, width, height float64) {
	for _, i := range models.PaintOrder(elements) {
		el := elements[i]
		if !el.IsVisible() || el.Alpha() <= 0 {
			continue
		}
		w.element(el, width, height)
	}
}

func (w *epsWriter) element(el models.SceneElement, width, height float64) {
	w.line("gsave")
	defer w.line("grestore")

	if el.Type == models.TypeBackground {
		if w.setColor(el.Fill) {
			w.line("0 0 %s %s rectfill", formatFloat(width), formatFloat(height))
		}
		if el.Src != "" {
			w.imageBox(width, height)
		}
		return
	}

	w.line("%s %s translate", formatFloat(el.X), formatFloat(el.Y))
	if el.Rotation != 0 {
		w.line("%s rotate", formatFloat(el.Rotation))
	}

	switch el.Type {
	case models.TypeText, models.TypeDynamicField:
		w.text(el)
	case models.TypeRect, models.TypeRectangle:
		w.rect(el)
	case models.TypeCircle:
		w.circle(el)
	case models.TypeShape:
		if el.ShapeType == models.ShapeCircle {
			w.circle(el)
		} else {
			w.rect(el)
		}
	case models.TypeImage:
		if el.Src != "" {
			w.imageBox(el.Width, el.Height)
		}
	case models.TypeQRCode:
		w.qrCode(el)
	case models.TypeGroup:
		w.elements(el.Children, width, height)
	}
}

// setColor emits a colour operator; false means nothing should be painted.
func (w *epsWriter) setColor(s string) bool {
	c, ok := render.ParseColor(s)
	if !ok {
		return false
	}
	rgba := color.NRGBAModel.Convert(c).(color.NRGBA)
	r, g, b := float64(rgba.R)/255, float64(rgba.G)/255, float64(rgba.B)/255
	if w.cmyk {
		cy, m, y, k := toCMYK(r, g, b)
		w.line("%s %s %s %s setcmykcolor", fmtUnit(cy), fmtUnit(m), fmtUnit(y), fmtUnit(k))
	} else {
		w.line("%s %s %s setrgbcolor", fmtUnit(r), fmtUnit(g), fmtUnit(b))
	}
	return true
}

func toCMYK(r, g, b float64) (float64, float64, float64, float64) {
	k := 1 - max(r, g, b)
	if k >= 1 {
		return 0, 0, 0, 1
	}
	return (1 - r - k) / (1 - k), (1 - g - k) / (1 - k), (1 - b - k) / (1 - k), k
}

func fmtUnit(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func (w *epsWriter) paint(el models.SceneElement) {
	w.line("gsave")
	if w.setColor(fillOrBlack(el.Fill)) {
		w.line("fill")
	}
	w.line("grestore")
	if el.Stroke != "" && el.StrokeWidth > 0 && w.setColor(el.Stroke) {
		w.line("%s setlinewidth stroke", formatFloat(el.StrokeWidth))
	}
	w.line("newpath")
}

func fillOrBlack(fill string) string {
	if fill == "" {
		return "#000000"
	}
	return fill
}

func (w *epsWriter) rect(el models.SceneElement) {
	width, height := formatFloat(el.Width), formatFloat(el.Height)
	r := min(el.CornerRadius, el.Width/2, el.Height/2)
	w.line("newpath")
	if r > 0 {
		rs := formatFloat(r)
		w.line("%s 0 moveto", rs)
		w.line("%s 0 %s %s %s arct", width, width, height, rs)
		w.line("%s %s 0 %s %s arct", width, height, height, rs)
		w.line("0 %s 0 0 %s arct", height, rs)
		w.line("0 0 %s 0 %s arct", width, rs)
	} else {
		w.line("0 0 moveto %s 0 lineto %s %s lineto 0 %s lineto", width, width, height, height)
	}
	w.line("closepath")
	w.paint(el)
}

func (w *epsWriter) circle(el models.SceneElement) {
	r := min(el.Width, el.Height) / 2
	w.line("newpath %s %s %s 0 360 arc closepath", formatFloat(el.Width/2), formatFloat(el.Height/2), formatFloat(r))
	w.paint(el)
}

func (w *epsWriter) imageBox(width, height float64) {
	w.line("0.9 setgray 0 0 %s %s rectfill", formatFloat(width), formatFloat(height))
	w.line("0.6 setgray 0.5 setlinewidth 0 0 %s %s rectstroke", formatFloat(width), formatFloat(height))
}

func (w *epsWriter) text(el models.SceneElement) {
	spec := render.FontSpecFor(el)
	x, anchor := textAnchor(el.TextAlign, el.Width)

	if !w.setColor(fillOrBlack(el.Fill)) {
		return
	}
	w.line("/%s findfont %s scalefont setfont", postScriptFont(spec), formatFloat(spec.Size))
	for i, line := range strings.Split(el.Text, "\n") {
		baseline := float64(i)*spec.Size*lineSpacing + spec.Size*0.8
		w.line("gsave %s %s translate 1 -1 scale 0 0 moveto", formatFloat(x), formatFloat(baseline))
		switch anchor {
		case "middle":
			w.line("(%s) dup stringwidth pop 2 div neg 0 rmoveto show", escapePS(line))
		case "end":
			w.line("(%s) dup stringwidth pop neg 0 rmoveto show", escapePS(line))
		default:
			w.line("(%s) show", escapePS(line))
		}
		w.line("grestore")
	}
}

func (w *epsWriter) qrCode(el models.SceneElement) {
	bitmap := qrModules(el.Data)
	if bitmap == nil {
		w.imageBox(el.Width, el.Height)
		return
	}
	cell := min(el.Width, el.Height) / float64(len(bitmap))
	w.line("1 setgray 0 0 %s %s rectfill", formatFloat(el.Width), formatFloat(el.Height))
	w.line("0 setgray")
	for y, row := range bitmap {
		for x, on := range row {
			if on {
				w.line("%s %s %s %s rectfill", formatFloat(float64(x)*cell), formatFloat(float64(y)*cell), formatFloat(cell), formatFloat(cell))
			}
		}
	}
}

// postScriptFont maps a font spec onto the standard 14 fonts.
func postScriptFont(spec render.FontSpec) string {
	family := "Helvetica"
	lower := strings.ToLower(spec.Family)
	switch {
	case spec.Monospace():
		family = "Courier"
	case strings.Contains(lower, "times") || strings.Contains(lower, "serif") && !strings.Contains(lower, "sans"):
		family = "Times"
	}

	bold, italic := spec.Bold(), spec.Italic()
	switch family {
	case "Times":
		switch {
		case bold && italic:
			return "Times-BoldItalic"
		case bold:
			return "Times-Bold"
		case italic:
			return "Times-Italic"
		}
		return "Times-Roman"
	default:
		switch {
		case bold && italic:
			return family + "-BoldOblique"
		case bold:
			return family + "-Bold"
		case italic:
			return family + "-Oblique"
		}
		return family
	}
}

// escapePS quotes a PostScript string literal. Non-ASCII runes become '?'.
func escapePS(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString("    ")
		case r < 0x20 || r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
