package models

import "fmt"

// ============================================================
// Imported Elements
// ============================================================

// ElementContent is the type-specific payload of an imported element.
// The set of implementations is closed: TextContent, ShapeContent,
// ImageContent and BackgroundContent.
type ElementContent interface {
	Kind() string
	sealed()
}

type TextContent struct {
	Text       string  `json:"text"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontWeight string  `json:"fontWeight,omitempty"`
	FontStyle  string  `json:"fontStyle,omitempty"`
	TextAlign  string  `json:"textAlign,omitempty"`
	Fill       string  `json:"fill,omitempty"`
}

type ShapeContent struct {
	Shape        string  `json:"shape"`
	Fill         string  `json:"fill,omitempty"`
	Stroke       string  `json:"stroke,omitempty"`
	StrokeWidth  float64 `json:"strokeWidth,omitempty"`
	CornerRadius float64 `json:"cornerRadius,omitempty"`
}

type ImageContent struct {
	Src        string  `json:"src"`
	CropX      float64 `json:"cropX,omitempty"`
	CropY      float64 `json:"cropY,omitempty"`
	CropWidth  float64 `json:"cropWidth,omitempty"`
	CropHeight float64 `json:"cropHeight,omitempty"`
}

type BackgroundContent struct {
	Color string `json:"color,omitempty"`
	Src   string `json:"src,omitempty"`
}

func (TextContent) Kind() string       { return TypeText }
func (c ShapeContent) Kind() string    { return shapeKind(c.Shape) }
func (ImageContent) Kind() string      { return TypeImage }
func (BackgroundContent) Kind() string { return TypeBackground }

func (TextContent) sealed()       {}
func (ShapeContent) sealed()      {}
func (ImageContent) sealed()      {}
func (BackgroundContent) sealed() {}

func shapeKind(shape string) string {
	if shape == ShapeCircle {
		return TypeCircle
	}
	return TypeRect
}

// ImportedElement is the importer's intermediate form. IDs are only unique
// within a single import pass.
type ImportedElement struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Width    float64        `json:"width"`
	Height   float64        `json:"height"`
	Rotation float64        `json:"rotation,omitempty"`
	Opacity  float64        `json:"opacity"`
	Visible  bool           `json:"visible"`
	ZIndex   int            `json:"zIndex"`
	Content  ElementContent `json:"properties"`
}

func (e ImportedElement) Type() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Kind()
}

// SceneElement maps the imported element onto the scene model without loss.
func (e ImportedElement) SceneElement() SceneElement {
	out := SceneElement{
		ID:       e.ID,
		Type:     e.Type(),
		Name:     e.Name,
		X:        e.X,
		Y:        e.Y,
		Width:    e.Width,
		Height:   e.Height,
		Rotation: e.Rotation,
		Opacity:  Float(e.Opacity),
		Visible:  Bool(e.Visible),
		ZIndex:   e.ZIndex,
	}

	switch c := e.Content.(type) {
	case TextContent:
		out.Text = c.Text
		out.FontSize = c.FontSize
		out.FontFamily = c.FontFamily
		out.FontWeight = c.FontWeight
		out.FontStyle = c.FontStyle
		out.TextAlign = c.TextAlign
		out.Fill = c.Fill
	case ShapeContent:
		out.ShapeType = c.Shape
		out.Fill = c.Fill
		out.Stroke = c.Stroke
		out.StrokeWidth = c.StrokeWidth
		out.CornerRadius = c.CornerRadius
	case ImageContent:
		out.Src = c.Src
		out.CropX = c.CropX
		out.CropY = c.CropY
		out.CropWidth = c.CropWidth
		out.CropHeight = c.CropHeight
	case BackgroundContent:
		out.Fill = c.Color
		out.Src = c.Src
	}
	return out
}

// ImportedID builds the deterministic importer id.
func ImportedID(kind string, index int) string {
	return fmt.Sprintf("%s_%d", kind, index)
}
