package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ============================================================
// Vector document structures
// ============================================================

const (
	ShapeRect   = "rect"
	ShapeCircle = "circle"
	ShapeText   = "text"
	ShapeImage  = "image"
)

// VectorShape is one drawable leaf of an SVG, flattened into canvas
// coordinates. X/Y is the top-left corner before Rotation, which turns
// about that corner.
type VectorShape struct {
	Kind     string
	ID       string
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Rotation float64
	Opacity  float64

	Fill         string
	Stroke       string
	StrokeWidth  float64
	CornerRadius float64

	Text       string
	FontSize   float64
	FontFamily string
	FontWeight string
	FontStyle  string
	Align      string

	Href string
}

type VectorDocument struct {
	Width    float64
	Height   float64
	Shapes   []VectorShape
	Warnings []string
}

var ErrNotSVG = errors.New("not an svg document")

const (
	defaultSVGFontSize = 16.0
	// avgGlyphWidth estimates text width in ems when the SVG carries none.
	avgGlyphWidth = 0.6
	svgLineHeight = 1.2
	svgAscent     = 0.8
)

// ============================================================
// XML Structures
// ============================================================

type svgNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []svgNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n svgNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ============================================================
// Parser
// ============================================================

// ParseSVG flattens an SVG into positioned shapes. Groups contribute their
// translate/rotate transforms and opacity; other transforms are ignored
// with a warning.
func ParseSVG(r io.Reader) (*VectorDocument, error) {
	var root svgNode
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSVG, err)
	}
	if root.XMLName.Local != "svg" {
		return nil, fmt.Errorf("%w: root element is <%s>", ErrNotSVG, root.XMLName.Local)
	}

	doc := &VectorDocument{}
	doc.Width, doc.Height = svgSize(root)

	w := &svgWalker{doc: doc}
	w.children(root, svgState{opacity: 1, style: inherited{fill: "#000000"}})
	return doc, nil
}

// svgSize prefers unit-less width/height, then the viewBox.
func svgSize(root svgNode) (float64, float64) {
	width, wok := parseLength(root.attr("width"))
	height, hok := parseLength(root.attr("height"))
	if wok && hok {
		return width, height
	}
	box := parseNumbers(root.attr("viewBox"))
	if len(box) == 4 {
		return box[2], box[3]
	}
	return 0, 0
}

type inherited struct {
	fill        string
	stroke      string
	strokeWidth float64
	fontSize    float64
	fontFamily  string
	fontWeight  string
	fontStyle   string
	anchor      string
}

type svgState struct {
	transform svgTransform
	opacity   float64
	style     inherited
	id        string
}

type svgWalker struct {
	doc    *VectorDocument
	warned map[string]bool
}

func (w *svgWalker) warn(msg string) {
	if w.warned == nil {
		w.warned = map[string]bool{}
	}
	if w.warned[msg] {
		return
	}
	w.warned[msg] = true
	w.doc.Warnings = append(w.doc.Warnings, msg)
}

func (w *svgWalker) children(n svgNode, st svgState) {
	for _, child := range n.Children {
		w.node(child, st)
	}
}

func (w *svgWalker) node(n svgNode, parent svgState) {
	switch n.XMLName.Local {
	case "defs", "title", "desc", "metadata", "style", "clipPath", "mask", "linearGradient", "radialGradient", "pattern", "symbol":
		return
	}
	if n.attr("display") == "none" || n.attr("visibility") == "hidden" {
		return
	}

	st := parent
	st.style = mergeStyle(parent.style, n)
	if v, err := strconv.ParseFloat(styleValue(n, "opacity"), 64); err == nil {
		st.opacity *= clampUnit(v)
	}
	if t := n.attr("transform"); t != "" {
		local, ok := parseTransform(t)
		if !ok {
			w.warn("unsupported transform ignored: " + t)
		}
		st.transform = parent.transform.then(local)
	}
	if id := n.attr("id"); id != "" {
		st.id = id
	}

	switch n.XMLName.Local {
	case "svg", "g", "a":
		w.children(n, st)
	case "rect":
		w.rect(n, st)
	case "circle", "ellipse":
		w.ellipse(n, st)
	case "path", "polygon":
		w.path(n, st)
	case "text":
		w.text(n, st)
	case "image":
		w.image(n, st)
	default:
		w.warn("unsupported svg element <" + n.XMLName.Local + "> skipped")
	}
}

func (w *svgWalker) place(st svgState, kind string, x, y, width, height float64) VectorShape {
	px, py := st.transform.apply(x, y)
	return VectorShape{
		Kind:        kind,
		ID:          st.id,
		X:           px,
		Y:           py,
		Width:       width,
		Height:      height,
		Rotation:    st.transform.rot,
		Opacity:     st.opacity,
		Fill:        st.style.fill,
		Stroke:      st.style.stroke,
		StrokeWidth: st.style.strokeWidth,
	}
}

func (w *svgWalker) rect(n svgNode, st svgState) {
	width, height := num(n, "width"), num(n, "height")
	if width <= 0 || height <= 0 {
		return
	}
	shape := w.place(st, ShapeRect, num(n, "x"), num(n, "y"), width, height)
	shape.CornerRadius = max(num(n, "rx"), num(n, "ry"))
	w.doc.Shapes = append(w.doc.Shapes, shape)
}

func (w *svgWalker) ellipse(n svgNode, st svgState) {
	rx, ry := num(n, "r"), num(n, "r")
	if n.XMLName.Local == "ellipse" {
		rx, ry = num(n, "rx"), num(n, "ry")
	}
	if rx <= 0 || ry <= 0 {
		return
	}
	shape := w.place(st, ShapeCircle, num(n, "cx")-rx, num(n, "cy")-ry, 2*rx, 2*ry)
	w.doc.Shapes = append(w.doc.Shapes, shape)
}

// path keeps only outlines that close into an axis-aligned rectangle,
// the form many design tools write rectangles in.
func (w *svgWalker) path(n svgNode, st svgState) {
	var points []Point
	var err error
	if n.XMLName.Local == "polygon" {
		coords := parseNumbers(n.attr("points"))
		for i := 0; i+1 < len(coords); i += 2 {
			points = append(points, Point{X: coords[i], Y: coords[i+1]})
		}
	} else {
		points, err = ParsePath(n.attr("d"))
	}
	if err != nil {
		w.warn("path skipped: " + err.Error())
		return
	}

	minX, minY, maxX, maxY, ok := rectangleBounds(points)
	if !ok {
		w.warn("curved or irregular paths are not supported and were skipped")
		return
	}
	shape := w.place(st, ShapeRect, minX, minY, maxX-minX, maxY-minY)
	w.doc.Shapes = append(w.doc.Shapes, shape)
}

func (w *svgWalker) text(n svgNode, st svgState) {
	type line struct {
		text string
		x, y string
	}
	var lines []line
	if s := strings.TrimSpace(n.Text); s != "" {
		lines = append(lines, line{text: s})
	}
	for _, child := range n.Children {
		if child.XMLName.Local != "tspan" {
			continue
		}
		lines = append(lines, line{text: child.Text, x: child.attr("x"), y: child.attr("y")})
	}
	if len(lines) == 0 {
		return
	}

	size := st.style.fontSize
	if size <= 0 {
		size = defaultSVGFontSize
	}
	// A tspan position is absolute and replaces the text's own.
	x, y := num(n, "x"), num(n, "y")
	if v, ok := parseLength(lines[0].x); ok {
		x = v
	}
	if v, ok := parseLength(lines[0].y); ok {
		y = v
	}
	if styleValue(n, "dominant-baseline") != "hanging" {
		y -= size * svgAscent
	}

	texts := make([]string, len(lines))
	longest := 0
	for i, l := range lines {
		texts[i] = l.text
		longest = max(longest, utf8.RuneCountInString(l.text))
	}
	width := max(float64(longest)*size*avgGlyphWidth, size)
	height := float64(len(lines)) * size * svgLineHeight

	align := "left"
	switch st.style.anchor {
	case "middle":
		align = "center"
		x -= width / 2
	case "end":
		align = "right"
		x -= width
	}

	shape := w.place(st, ShapeText, x, y, width, height)
	shape.Text = strings.Join(texts, "\n")
	shape.FontSize = size
	shape.FontFamily = st.style.fontFamily
	shape.FontWeight = st.style.fontWeight
	shape.FontStyle = st.style.fontStyle
	shape.Align = align
	w.doc.Shapes = append(w.doc.Shapes, shape)
}

func (w *svgWalker) image(n svgNode, st svgState) {
	href := n.attr("href")
	width, height := num(n, "width"), num(n, "height")
	if href == "" || width <= 0 || height <= 0 {
		return
	}
	shape := w.place(st, ShapeImage, num(n, "x"), num(n, "y"), width, height)
	shape.Href = href
	shape.Fill, shape.Stroke, shape.StrokeWidth = "", "", 0
	w.doc.Shapes = append(w.doc.Shapes, shape)
}

// ============================================================
// Attributes and styles
// ============================================================

// styleValue reads a presentation attribute, letting an inline style
// declaration win.
func styleValue(n svgNode, name string) string {
	for _, decl := range strings.Split(n.attr("style"), ";") {
		key, value, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(key) == name {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(n.attr(name))
}

func mergeStyle(parent inherited, n svgNode) inherited {
	out := parent
	if v := styleValue(n, "fill"); v != "" {
		if v == "none" || v == "transparent" {
			v = ""
		}
		out.fill = v
	}
	if v := styleValue(n, "stroke"); v != "" {
		if v == "none" {
			v = ""
		}
		out.stroke = v
	}
	if v, ok := parseLength(styleValue(n, "stroke-width")); ok {
		out.strokeWidth = v
	}
	if v, ok := parseLength(styleValue(n, "font-size")); ok {
		out.fontSize = v
	}
	if v := styleValue(n, "font-family"); v != "" {
		out.fontFamily = strings.Trim(strings.TrimSpace(strings.Split(v, ",")[0]), `"'`)
	}
	if v := styleValue(n, "font-weight"); v != "" {
		out.fontWeight = v
	}
	if v := styleValue(n, "font-style"); v != "" {
		out.fontStyle = v
	}
	if v := styleValue(n, "text-anchor"); v != "" {
		out.anchor = v
	}
	return out
}

func num(n svgNode, name string) float64 {
	v, _ := parseLength(n.attr(name))
	return v
}

// parseLength accepts unit-less and px values only.
func parseLength(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var numberPattern = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)

func parseNumbers(s string) []float64 {
	var out []float64
	for _, m := range numberPattern.FindAllString(s, -1) {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ============================================================
// Transforms
// ============================================================

// svgTransform is a translation followed by a rotation in degrees.
type svgTransform struct {
	tx, ty, rot float64
}

func (t svgTransform) apply(x, y float64) (float64, float64) {
	if t.rot == 0 {
		return t.tx + x, t.ty + y
	}
	sin, cos := math.Sincos(t.rot * math.Pi / 180)
	return t.tx + x*cos - y*sin, t.ty + x*sin + y*cos
}

func (t svgTransform) then(local svgTransform) svgTransform {
	x, y := t.apply(local.tx, local.ty)
	return svgTransform{tx: x, ty: y, rot: t.rot + local.rot}
}

var transformPattern = regexp.MustCompile(`(\w+)\s*\(([^)]*)\)`)

// parseTransform understands translate and rotate. ok is false when some
// other operation was present and dropped.
func parseTransform(s string) (svgTransform, bool) {
	var t svgTransform
	ok := true
	for _, m := range transformPattern.FindAllStringSubmatch(s, -1) {
		args := parseNumbers(m[2])
		switch m[1] {
		case "translate":
			if len(args) == 0 {
				continue
			}
			dy := 0.0
			if len(args) > 1 {
				dy = args[1]
			}
			t = t.then(svgTransform{tx: args[0], ty: dy})
		case "rotate":
			if len(args) == 0 {
				continue
			}
			if len(args) >= 3 {
				cx, cy := args[1], args[2]
				t = t.then(svgTransform{tx: cx, ty: cy}).
					then(svgTransform{rot: args[0]}).
					then(svgTransform{tx: -cx, ty: -cy})
				continue
			}
			t = t.then(svgTransform{rot: args[0]})
		default:
			ok = false
		}
	}
	return t, ok
}

// ============================================================
// Path geometry
// ============================================================

type Point struct {
	X float64
	Y float64
}

var pathPattern = regexp.MustCompile(`([MmLlHhVvZz])([^MmLlHhVvZz]*)`)

// ParsePath reads the straight-segment subset of SVG path data
// (M, L, H, V, Z and their relative forms) into points. Curves make it
// fail.
func ParsePath(d string) ([]Point, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return nil, fmt.Errorf("empty path")
	}
	if strings.ContainsAny(d, "CcSsQqTtAa") {
		return nil, fmt.Errorf("curved path")
	}

	var points []Point
	var currentX, currentY float64

	for _, match := range pathPattern.FindAllStringSubmatch(d, -1) {
		cmd := match[1]
		coords := parseNumbers(match[2])

		switch cmd {
		case "M", "L":
			for i := 0; i+1 < len(coords); i += 2 {
				currentX, currentY = coords[i], coords[i+1]
				points = append(points, Point{X: currentX, Y: currentY})
			}
		case "m", "l":
			for i := 0; i+1 < len(coords); i += 2 {
				currentX += coords[i]
				currentY += coords[i+1]
				points = append(points, Point{X: currentX, Y: currentY})
			}
		case "H", "h":
			for _, v := range coords {
				if cmd == "H" {
					currentX = v
				} else {
					currentX += v
				}
				points = append(points, Point{X: currentX, Y: currentY})
			}
		case "V", "v":
			for _, v := range coords {
				if cmd == "V" {
					currentY = v
				} else {
					currentY += v
				}
				points = append(points, Point{X: currentX, Y: currentY})
			}
		case "Z", "z":
			if len(points) > 0 {
				points = append(points, points[0])
			}
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("path has no points")
	}
	return points, nil
}

// rectangleBounds reports the bounding box when every point lies on a
// corner of it and all four corners are visited.
func rectangleBounds(points []Point) (minX, minY, maxX, maxY float64, ok bool) {
	if len(points) < 4 {
		return 0, 0, 0, 0, false
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	if maxX-minX <= 0 || maxY-minY <= 0 {
		return 0, 0, 0, 0, false
	}

	const eps = 1e-6
	near := func(a, b float64) bool { return math.Abs(a-b) < eps }
	var corners [4]bool
	for _, p := range points {
		left, right := near(p.X, minX), near(p.X, maxX)
		top, bottom := near(p.Y, minY), near(p.Y, maxY)
		switch {
		case left && top:
			corners[0] = true
		case right && top:
			corners[1] = true
		case right && bottom:
			corners[2] = true
		case left && bottom:
			corners[3] = true
		default:
			return 0, 0, 0, 0, false
		}
	}
	for _, c := range corners {
		if !c {
			return 0, 0, 0, 0, false
		}
	}
	return minX, minY, maxX, maxY, true
}
