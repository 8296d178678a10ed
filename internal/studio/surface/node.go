package surface

import (
	"fmt"
	"strings"

	"idcard-studio/internal/studio/models"
)

// ============================================================
// Node canvas
// ============================================================

type Crop struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeAttrs follows the node-style convention: circles are positioned by
// their centre and the font style string carries both weight and slant.
type NodeAttrs struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Rotation     float64 `json:"rotation"`
	Opacity      float64 `json:"opacity"`
	Visible      bool    `json:"visible"`
	Draggable    bool    `json:"draggable"`
	Listening    bool    `json:"listening"`
	Fill         string  `json:"fill,omitempty"`
	Stroke       string  `json:"stroke,omitempty"`
	StrokeWidth  float64 `json:"strokeWidth,omitempty"`
	CornerRadius float64 `json:"cornerRadius,omitempty"`
	Radius       float64 `json:"radius,omitempty"`
	Text         string  `json:"text,omitempty"`
	FontSize     float64 `json:"fontSize,omitempty"`
	FontFamily   string  `json:"fontFamily,omitempty"`
	FontStyle    string  `json:"fontStyle,omitempty"`
	Align        string  `json:"align,omitempty"`
	Image        string  `json:"image,omitempty"`
	Crop         *Crop   `json:"crop,omitempty"`
}

type Node struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	ClassName string    `json:"className"`
	ZIndex    int       `json:"zIndex"`
	Attrs     NodeAttrs `json:"attrs"`
	Children  []Node    `json:"children,omitempty"`
}

func nodeClass(el models.SceneElement) string {
	switch el.Type {
	case models.TypeText, models.TypeDynamicField:
		return "Text"
	case models.TypeCircle:
		return "Circle"
	case models.TypeShape:
		if el.ShapeType == models.ShapeCircle {
			return "Circle"
		}
		return "Rect"
	case models.TypeImage, models.TypeQRCode, models.TypeBackground:
		return "Image"
	case models.TypeGroup:
		return "Group"
	}
	return "Rect"
}

func nodeFontStyle(weight, style string) string {
	var parts []string
	if style == "italic" || style == "oblique" {
		parts = append(parts, "italic")
	}
	if weight == "bold" || weight == "600" || weight == "700" || weight == "800" || weight == "900" {
		parts = append(parts, "bold")
	}
	if len(parts) == 0 {
		return "normal"
	}
	return strings.Join(parts, " ")
}

// NodeFromElement builds the view node for a scene element.
func NodeFromElement(el models.SceneElement) Node {
	n := Node{
		ID:        el.ID,
		Name:      el.Name,
		ClassName: nodeClass(el),
		ZIndex:    el.ZIndex,
		Attrs: NodeAttrs{
			X:           el.X,
			Y:           el.Y,
			Width:       el.Width,
			Height:      el.Height,
			Rotation:    el.Rotation,
			Opacity:     el.Alpha(),
			Visible:     el.IsVisible(),
			Draggable:   !el.Locked,
			Listening:   el.IsVisible(),
			Fill:        el.Fill,
			Stroke:      el.Stroke,
			StrokeWidth: el.StrokeWidth,
		},
	}

	switch n.ClassName {
	case "Text":
		n.Attrs.Text = el.Text
		n.Attrs.FontSize = fontSizeOrDefault(el.FontSize)
		n.Attrs.FontFamily = el.FontFamily
		n.Attrs.FontStyle = nodeFontStyle(el.FontWeight, el.FontStyle)
		n.Attrs.Align = el.TextAlign
		n.Attrs.Fill = fillOrDefault(el.Fill)
	case "Rect":
		n.Attrs.CornerRadius = el.CornerRadius
		n.Attrs.Fill = fillOrDefault(el.Fill)
	case "Circle":
		n.Attrs.Radius = min(el.Width, el.Height) / 2
		n.Attrs.X = el.X + el.Width/2
		n.Attrs.Y = el.Y + el.Height/2
		n.Attrs.Fill = fillOrDefault(el.Fill)
	case "Image":
		n.Attrs.Image = el.Src
		if el.Type == models.TypeQRCode {
			n.Attrs.Image = el.Data
		}
		if el.CropWidth > 0 && el.CropHeight > 0 {
			n.Attrs.Crop = &Crop{X: el.CropX, Y: el.CropY, Width: el.CropWidth, Height: el.CropHeight}
		}
	case "Group":
		for _, child := range orderedElements(el.Children) {
			n.Children = append(n.Children, NodeFromElement(child))
		}
	}
	return n
}

// NodeFromImported maps an importer element to the node shape.
func NodeFromImported(el models.ImportedElement) Node {
	return NodeFromElement(el.SceneElement())
}

// Transform is the result of a transformer gesture on one node.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
}

// NodeCanvas is a disposable node-style view of a document.
type NodeCanvas struct {
	emitter
	width  float64
	height float64
	nodes  []Node
	index  map[string]int
}

func NewNodeCanvas(listener Listener) *NodeCanvas {
	return &NodeCanvas{emitter: emitter{listener: listener}, index: map[string]int{}}
}

// Sync rebuilds the whole view from doc.
func (c *NodeCanvas) Sync(doc *models.SceneDocument) {
	c.width = doc.Canvas.Width
	c.height = doc.Canvas.Height
	c.nodes = c.nodes[:0]
	c.index = make(map[string]int, len(doc.Elements))

	for _, el := range orderedElements(doc.Elements) {
		c.index[el.ID] = len(c.nodes)
		c.nodes = append(c.nodes, NodeFromElement(el))
	}
}

func (c *NodeCanvas) Size() (float64, float64) { return c.width, c.height }

// Nodes returns the view nodes in paint order.
func (c *NodeCanvas) Nodes() []Node {
	return append([]Node(nil), c.nodes...)
}

func (c *NodeCanvas) Node(id string) (Node, bool) {
	i, ok := c.index[id]
	if !ok {
		return Node{}, false
	}
	return c.nodes[i], true
}

func (c *NodeCanvas) editable(id string) (Node, error) {
	n, ok := c.Node(id)
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	if err := checkEditable(id, !n.Attrs.Draggable, n.Attrs.Visible); err != nil {
		return Node{}, err
	}
	return n, nil
}

// topLeft converts a node position back to element coordinates.
func (n Node) topLeft(x, y float64) (float64, float64) {
	if n.ClassName == "Circle" {
		return x - n.Attrs.Width/2, y - n.Attrs.Height/2
	}
	return x, y
}

// DragEnd reports the node's final position.
func (c *NodeCanvas) DragEnd(id string, x, y float64) error {
	n, err := c.editable(id)
	if err != nil {
		return err
	}
	ex, ey := n.topLeft(x, y)
	c.emit(id, map[string]any{"x": ex, "y": ey})
	return nil
}

// TransformEnd reports a transformer gesture; scale is folded into size.
func (c *NodeCanvas) TransformEnd(id string, t Transform) error {
	n, err := c.editable(id)
	if err != nil {
		return err
	}
	if t.ScaleX == 0 {
		t.ScaleX = 1
	}
	if t.ScaleY == 0 {
		t.ScaleY = 1
	}

	width := clampSize(n.Attrs.Width * t.ScaleX)
	height := clampSize(n.Attrs.Height * t.ScaleY)
	x, y := t.X, t.Y
	if n.ClassName == "Circle" {
		x, y = x-width/2, y-height/2
	}

	c.emit(id, map[string]any{
		"x":        x,
		"y":        y,
		"width":    width,
		"height":   height,
		"rotation": t.Rotation,
	})
	return nil
}

func (c *NodeCanvas) MoveUp(id string) error {
	n, err := c.editable(id)
	if err != nil {
		return err
	}
	c.emit(id, map[string]any{"zIndex": n.ZIndex + 1})
	return nil
}

func (c *NodeCanvas) MoveDown(id string) error {
	n, err := c.editable(id)
	if err != nil {
		return err
	}
	c.emit(id, map[string]any{"zIndex": n.ZIndex - 1})
	return nil
}

func (c *NodeCanvas) SetLocked(id string, locked bool) error {
	if _, ok := c.Node(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	c.emit(id, map[string]any{"locked": locked})
	return nil
}

func (c *NodeCanvas) SetVisible(id string, visible bool) error {
	if _, ok := c.Node(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	c.emit(id, map[string]any{"visible": visible})
	return nil
}
