package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================
// Element types
// ============================================================

const (
	TypeText         = "text"
	TypeDynamicField = "dynamic-field"
	TypeRect         = "rect"
	TypeRectangle    = "rectangle"
	TypeShape        = "shape"
	TypeCircle       = "circle"
	TypeImage        = "image"
	TypeQRCode       = "qr-code"
	TypeGroup        = "group"
	TypeBackground   = "background"
)

const (
	ShapeRect   = "rect"
	ShapeCircle = "circle"
)

const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// MinElementSize is the smallest width/height an interactive resize may produce.
const MinElementSize = 5.0

// ============================================================
// Scene Element
// ============================================================

type SceneElement struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Name     string   `json:"name,omitempty"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Rotation float64  `json:"rotation,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Visible  *bool    `json:"visible,omitempty"`
	Locked   bool     `json:"locked,omitempty"`
	ZIndex   int      `json:"zIndex"`

	// text, dynamic-field
	Text        string  `json:"text,omitempty"`
	FieldID     string  `json:"fieldId,omitempty"`
	FontSize    float64 `json:"fontSize,omitempty"`
	FontFamily  string  `json:"fontFamily,omitempty"`
	FontWeight  string  `json:"fontWeight,omitempty"`
	FontStyle   string  `json:"fontStyle,omitempty"`
	TextAlign   string  `json:"textAlign,omitempty"`
	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`

	// rect, circle, shape
	ShapeType    string  `json:"shapeType,omitempty"`
	CornerRadius float64 `json:"cornerRadius,omitempty"`

	// image, background
	Src        string  `json:"src,omitempty"`
	CropX      float64 `json:"cropX,omitempty"`
	CropY      float64 `json:"cropY,omitempty"`
	CropWidth  float64 `json:"cropWidth,omitempty"`
	CropHeight float64 `json:"cropHeight,omitempty"`

	// qr-code
	Data string `json:"data,omitempty"`

	// group
	Children []SceneElement `json:"children,omitempty"`
	Expanded bool           `json:"expanded,omitempty"`
}

// IsVisible treats a missing visible flag as visible.
func (e SceneElement) IsVisible() bool {
	return e.Visible == nil || *e.Visible
}

// Alpha returns the element opacity clamped to [0,1]; unset means opaque.
func (e SceneElement) Alpha() float64 {
	if e.Opacity == nil {
		return 1
	}
	return clamp(*e.Opacity, 0, 1)
}

// Clone returns a deep copy.
func (e SceneElement) Clone() SceneElement {
	out := e
	if e.Opacity != nil {
		v := *e.Opacity
		out.Opacity = &v
	}
	if e.Visible != nil {
		v := *e.Visible
		out.Visible = &v
	}
	if e.Children != nil {
		out.Children = CloneElements(e.Children)
	}
	return out
}

// Merge applies a partial update with JSON object semantics. The id never changes.
func (e SceneElement) Merge(patch map[string]any) (SceneElement, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("encode element: %w", err)
	}

	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return e, fmt.Errorf("decode element: %w", err)
	}
	for key, value := range patch {
		if key == "id" {
			continue
		}
		if value == nil {
			delete(fields, key)
			continue
		}
		fields[key] = value
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return e, fmt.Errorf("encode patch: %w", err)
	}

	var out SceneElement
	if err := json.Unmarshal(merged, &out); err != nil {
		return e, fmt.Errorf("apply patch: %w", err)
	}
	out.ID = e.ID
	return out, nil
}

func CloneElements(elements []SceneElement) []SceneElement {
	out := make([]SceneElement, len(elements))
	for i, el := range elements {
		out[i] = el.Clone()
	}
	return out
}

// ElementUpdate is emitted by an authoring surface and applied by the editor.
type ElementUpdate struct {
	ID    string         `json:"id"`
	Patch map[string]any `json:"patch"`
}

// ============================================================
// Scene Document
// ============================================================

type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Background struct {
	Color string `json:"color,omitempty"`
	Image string `json:"image,omitempty"`
}

func (b Background) IsEmpty() bool {
	return b.Color == "" && b.Image == ""
}

type Metadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	CanvasType  string    `json:"canvasType,omitempty"`
	Orientation string    `json:"orientation"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type VersionEntry struct {
	Version      int       `json:"version"`
	SavedAt      time.Time `json:"savedAt"`
	ElementCount int       `json:"elementCount"`
}

type SceneDocument struct {
	Canvas         Canvas         `json:"canvas"`
	Background     Background     `json:"background"`
	Elements       []SceneElement `json:"elements"`
	Metadata       *Metadata      `json:"metadata,omitempty"`
	VersionHistory []VersionEntry `json:"versionHistory,omitempty"`
}

// Orientation is derived from the canvas, never stored independently.
func (d *SceneDocument) Orientation() string {
	return Orientation(d.Canvas.Width, d.Canvas.Height)
}

// Normalize re-derives metadata fields that mirror the canvas.
func (d *SceneDocument) Normalize() {
	if d.Elements == nil {
		d.Elements = []SceneElement{}
	}
	if d.Metadata == nil {
		return
	}
	d.Metadata.Width = d.Canvas.Width
	d.Metadata.Height = d.Canvas.Height
	d.Metadata.Orientation = d.Orientation()
}

func (d *SceneDocument) Clone() *SceneDocument {
	out := *d
	out.Elements = CloneElements(d.Elements)
	if d.Metadata != nil {
		meta := *d.Metadata
		meta.Tags = append([]string(nil), d.Metadata.Tags...)
		out.Metadata = &meta
	}
	out.VersionHistory = append([]VersionEntry(nil), d.VersionHistory...)
	return &out
}

// FindElement searches top-level elements and group children.
func (d *SceneDocument) FindElement(id string) (SceneElement, bool) {
	return findElement(d.Elements, id)
}

func findElement(elements []SceneElement, id string) (SceneElement, bool) {
	for _, el := range elements {
		if el.ID == id {
			return el, true
		}
		if found, ok := findElement(el.Children, id); ok {
			return found, true
		}
	}
	return SceneElement{}, false
}

func NewDocument(id, name string, width, height float64) *SceneDocument {
	now := time.Now().UTC()
	doc := &SceneDocument{
		Canvas:     Canvas{Width: width, Height: height},
		Background: Background{Color: "#ffffff"},
		Elements:   []SceneElement{},
		Metadata: &Metadata{
			ID:         id,
			Name:       name,
			Version:    1,
			CanvasType: "id-card",
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	doc.Normalize()
	return doc
}

// ============================================================
// Helpers
// ============================================================

// Orientation reports landscape only when width is strictly greater than height.
func Orientation(width, height float64) string {
	if width > height {
		return OrientationLandscape
	}
	return OrientationPortrait
}

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
