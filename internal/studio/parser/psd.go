package parser

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/oov/psd"
)

// ============================================================
// Layered documents
// ============================================================

// Layer is one node of a layered document tree. Left/Top are relative to
// the parent node; children are ordered bottom to top.
type Layer struct {
	Name     string
	Left     int
	Top      int
	Width    int
	Height   int
	Alpha    uint8
	Visible  bool
	Folder   bool
	Image    image.Image
	Children []Layer
}

type LayeredDocument struct {
	Width     int
	Height    int
	Composite image.Image
	Layers    []Layer
}

// PSDParser reads Photoshop documents.
type PSDParser struct {
	// SkipComposite leaves LayeredDocument.Composite nil.
	SkipComposite bool
}

func (p PSDParser) Parse(ctx context.Context, r io.Reader) (*LayeredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, _, err := psd.Decode(r, &psd.DecodeOptions{SkipMergedImage: p.SkipComposite})
	if err != nil {
		return nil, fmt.Errorf("decode psd: %w", err)
	}

	out := &LayeredDocument{
		Width:     doc.Config.Rect.Dx(),
		Height:    doc.Config.Rect.Dy(),
		Composite: doc.Picker,
	}
	out.Layers = convertLayers(doc.Layer, doc.Config.Rect.Min)
	return out, nil
}

// convertLayers rebases the absolute layer rectangles onto their parent.
func convertLayers(layers []psd.Layer, origin image.Point) []Layer {
	out := make([]Layer, 0, len(layers))
	for i := range layers {
		l := &layers[i]
		rect := l.Rect
		if l.Folder() {
			rect = folderBounds(l)
		}

		node := Layer{
			Name:    l.Name,
			Left:    rect.Min.X - origin.X,
			Top:     rect.Min.Y - origin.Y,
			Width:   rect.Dx(),
			Height:  rect.Dy(),
			Alpha:   l.Opacity,
			Visible: l.Visible(),
			Folder:  l.Folder(),
			Image:   l.Picker,
		}
		if len(l.Layer) > 0 {
			node.Children = convertLayers(l.Layer, rect.Min)
		}
		out = append(out, node)
	}
	return out
}

// folderBounds is the union of the folder's descendants.
func folderBounds(l *psd.Layer) image.Rectangle {
	var r image.Rectangle
	for i := range l.Layer {
		child := &l.Layer[i]
		cr := child.Rect
		if child.Folder() {
			cr = folderBounds(child)
		}
		r = r.Union(cr)
	}
	return r
}
