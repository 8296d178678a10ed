package surface

import (
	"fmt"

	"idcard-studio/internal/studio/models"
)

// ============================================================
// Object canvas
// ============================================================

// Object is the flat object shape used by the object-style canvas:
// position is left/top, size changes are expressed as scale factors.
type Object struct {
	ID          string   `json:"id"`
	Kind        string   `json:"type"`
	Name        string   `json:"name,omitempty"`
	Left        float64  `json:"left"`
	Top         float64  `json:"top"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	ScaleX      float64  `json:"scaleX"`
	ScaleY      float64  `json:"scaleY"`
	Angle       float64  `json:"angle"`
	Opacity     float64  `json:"opacity"`
	Visible     bool     `json:"visible"`
	Selectable  bool     `json:"selectable"`
	Evented     bool     `json:"evented"`
	ZIndex      int      `json:"zIndex"`
	Fill        string   `json:"fill,omitempty"`
	Stroke      string   `json:"stroke,omitempty"`
	StrokeWidth float64  `json:"strokeWidth,omitempty"`
	Rx          float64  `json:"rx,omitempty"`
	Ry          float64  `json:"ry,omitempty"`
	Radius      float64  `json:"radius,omitempty"`
	Text        string   `json:"text,omitempty"`
	FontSize    float64  `json:"fontSize,omitempty"`
	FontFamily  string   `json:"fontFamily,omitempty"`
	FontWeight  string   `json:"fontWeight,omitempty"`
	FontStyle   string   `json:"fontStyle,omitempty"`
	TextAlign   string   `json:"textAlign,omitempty"`
	Src         string   `json:"src,omitempty"`
	Objects     []Object `json:"objects,omitempty"`
}

func objectKind(el models.SceneElement) string {
	switch el.Type {
	case models.TypeText, models.TypeDynamicField:
		return "textbox"
	case models.TypeCircle:
		return "circle"
	case models.TypeShape:
		if el.ShapeType == models.ShapeCircle {
			return "circle"
		}
		return "rect"
	case models.TypeRect, models.TypeRectangle:
		return "rect"
	case models.TypeImage, models.TypeQRCode:
		return "image"
	case models.TypeGroup:
		return "group"
	case models.TypeBackground:
		return "background"
	}
	return "rect"
}

// ObjectFromElement builds the view object for a scene element.
func ObjectFromElement(el models.SceneElement) Object {
	obj := Object{
		ID:          el.ID,
		Kind:        objectKind(el),
		Name:        el.Name,
		Left:        el.X,
		Top:         el.Y,
		Width:       el.Width,
		Height:      el.Height,
		ScaleX:      1,
		ScaleY:      1,
		Angle:       el.Rotation,
		Opacity:     el.Alpha(),
		Visible:     el.IsVisible(),
		Selectable:  !el.Locked,
		Evented:     !el.Locked && el.IsVisible(),
		ZIndex:      el.ZIndex,
		Fill:        el.Fill,
		Stroke:      el.Stroke,
		StrokeWidth: el.StrokeWidth,
		Src:         el.Src,
	}

	switch obj.Kind {
	case "textbox":
		obj.Text = el.Text
		obj.FontSize = fontSizeOrDefault(el.FontSize)
		obj.FontFamily = el.FontFamily
		obj.FontWeight = el.FontWeight
		obj.FontStyle = el.FontStyle
		obj.TextAlign = el.TextAlign
		obj.Fill = fillOrDefault(el.Fill)
	case "rect":
		obj.Rx, obj.Ry = el.CornerRadius, el.CornerRadius
		obj.Fill = fillOrDefault(el.Fill)
	case "circle":
		obj.Radius = min(el.Width, el.Height) / 2
		obj.Fill = fillOrDefault(el.Fill)
	case "image":
		if el.Type == models.TypeQRCode {
			obj.Src = el.Data
		}
	case "group":
		for _, child := range orderedElements(el.Children) {
			obj.Objects = append(obj.Objects, ObjectFromElement(child))
		}
	}
	return obj
}

// ObjectFromImported maps an importer element to the object shape.
func ObjectFromImported(el models.ImportedElement) Object {
	return ObjectFromElement(el.SceneElement())
}

// ObjectCanvas is a disposable object-style view of a document.
type ObjectCanvas struct {
	emitter
	width      float64
	height     float64
	background models.Background
	objects    []Object
	index      map[string]int
}

func NewObjectCanvas(listener Listener) *ObjectCanvas {
	return &ObjectCanvas{emitter: emitter{listener: listener}, index: map[string]int{}}
}

// Sync rebuilds the whole view from doc.
func (c *ObjectCanvas) Sync(doc *models.SceneDocument) {
	c.width = doc.Canvas.Width
	c.height = doc.Canvas.Height
	c.background = doc.Background
	c.objects = c.objects[:0]
	c.index = make(map[string]int, len(doc.Elements))

	for _, el := range orderedElements(doc.Elements) {
		c.index[el.ID] = len(c.objects)
		c.objects = append(c.objects, ObjectFromElement(el))
	}
}

func (c *ObjectCanvas) Size() (float64, float64) { return c.width, c.height }

func (c *ObjectCanvas) Background() models.Background { return c.background }

// Objects returns the view objects in paint order.
func (c *ObjectCanvas) Objects() []Object {
	return append([]Object(nil), c.objects...)
}

func (c *ObjectCanvas) Object(id string) (Object, bool) {
	i, ok := c.index[id]
	if !ok {
		return Object{}, false
	}
	return c.objects[i], true
}

func (c *ObjectCanvas) editable(id string) (Object, error) {
	obj, ok := c.Object(id)
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	if err := checkEditable(id, !obj.Selectable, obj.Visible); err != nil {
		return Object{}, err
	}
	return obj, nil
}

// Move reports a drag to left/top.
func (c *ObjectCanvas) Move(id string, left, top float64) error {
	if _, err := c.editable(id); err != nil {
		return err
	}
	c.emit(id, map[string]any{"x": left, "y": top})
	return nil
}

// Scale reports a resize gesture; the scale is folded back into width/height.
func (c *ObjectCanvas) Scale(id string, scaleX, scaleY float64) error {
	obj, err := c.editable(id)
	if err != nil {
		return err
	}
	c.emit(id, map[string]any{
		"width":  clampSize(obj.Width * scaleX),
		"height": clampSize(obj.Height * scaleY),
	})
	return nil
}

func (c *ObjectCanvas) Rotate(id string, angle float64) error {
	if _, err := c.editable(id); err != nil {
		return err
	}
	c.emit(id, map[string]any{"rotation": angle})
	return nil
}

func (c *ObjectCanvas) BringForward(id string) error {
	obj, err := c.editable(id)
	if err != nil {
		return err
	}
	c.emit(id, map[string]any{"zIndex": obj.ZIndex + 1})
	return nil
}

func (c *ObjectCanvas) SendBackwards(id string) error {
	obj, err := c.editable(id)
	if err != nil {
		return err
	}
	c.emit(id, map[string]any{"zIndex": obj.ZIndex - 1})
	return nil
}

func (c *ObjectCanvas) SetLocked(id string, locked bool) error {
	if _, ok := c.Object(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	c.emit(id, map[string]any{"locked": locked})
	return nil
}

func (c *ObjectCanvas) SetVisible(id string, visible bool) error {
	if _, ok := c.Object(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	c.emit(id, map[string]any{"visible": visible})
	return nil
}
