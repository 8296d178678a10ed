package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrientation(t *testing.T) {
	cases := []struct {
		width, height float64
		want          string
	}{
		{400, 300, OrientationLandscape},
		{300, 400, OrientationPortrait},
		{400, 400, OrientationPortrait},
	}
	for _, tc := range cases {
		doc := &SceneDocument{Canvas: Canvas{Width: tc.width, Height: tc.height}}
		assert.Equal(t, tc.want, doc.Orientation(), "canvas %vx%v", tc.width, tc.height)
	}
}

func TestNormalize_DerivesMetadataOrientation(t *testing.T) {
	doc := NewDocument("doc-1", "Card", 300, 400)
	doc.Metadata.Orientation = OrientationLandscape
	doc.Canvas = Canvas{Width: 500, Height: 200}

	doc.Normalize()

	assert.Equal(t, OrientationLandscape, doc.Metadata.Orientation)
	assert.Equal(t, 500.0, doc.Metadata.Width)
	assert.Equal(t, 200.0, doc.Metadata.Height)
}

func TestPaintOrder_StableOnTies(t *testing.T) {
	elements := []SceneElement{{ZIndex: 3}, {ZIndex: 1}, {ZIndex: 2}, {ZIndex: 1}}

	assert.Equal(t, []int{1, 3, 2, 0}, PaintOrder(elements))
}

func TestSceneElement_Visibility(t *testing.T) {
	assert.True(t, SceneElement{}.IsVisible())
	assert.True(t, SceneElement{Visible: Bool(true)}.IsVisible())
	assert.False(t, SceneElement{Visible: Bool(false)}.IsVisible())
}

func TestSceneElement_Alpha(t *testing.T) {
	assert.Equal(t, 1.0, SceneElement{}.Alpha())
	assert.Equal(t, 0.0, SceneElement{Opacity: Float(0)}.Alpha())
	assert.Equal(t, 1.0, SceneElement{Opacity: Float(4)}.Alpha())
}

func TestSceneElement_Merge(t *testing.T) {
	el := SceneElement{ID: "e1", Type: TypeText, X: 10, Y: 10, Text: "Hello", Fill: "#000"}

	merged, err := el.Merge(map[string]any{
		"id":      "other",
		"x":       42.0,
		"visible": false,
		"text":    "{{student_name}}",
	})
	require.NoError(t, err)

	assert.Equal(t, "e1", merged.ID)
	assert.Equal(t, 42.0, merged.X)
	assert.Equal(t, 10.0, merged.Y)
	assert.False(t, merged.IsVisible())
	assert.Equal(t, "{{student_name}}", merged.Text)
	assert.Equal(t, "#000", merged.Fill)
}

func TestSceneElement_MergeRejectsBadTypes(t *testing.T) {
	el := SceneElement{ID: "e1", Type: TypeRect}

	_, err := el.Merge(map[string]any{"width": "wide"})
	assert.Error(t, err)
}

func TestSceneElement_CloneIsDeep(t *testing.T) {
	el := SceneElement{
		ID:       "g1",
		Type:     TypeGroup,
		Opacity:  Float(0.5),
		Children: []SceneElement{{ID: "c1", Type: TypeRect}},
	}

	clone := el.Clone()
	*clone.Opacity = 1
	clone.Children[0].ID = "changed"

	assert.Equal(t, 0.5, *el.Opacity)
	assert.Equal(t, "c1", el.Children[0].ID)
}

func TestFindElement_SearchesGroups(t *testing.T) {
	doc := &SceneDocument{Elements: []SceneElement{
		{ID: "g1", Type: TypeGroup, Children: []SceneElement{{ID: "inner", Type: TypeText}}},
	}}

	el, ok := doc.FindElement("inner")
	require.True(t, ok)
	assert.Equal(t, TypeText, el.Type)

	_, ok = doc.FindElement("missing")
	assert.False(t, ok)
}

func TestImportedElement_SceneElement(t *testing.T) {
	imported := ImportedElement{
		ID: "text_0", X: 50, Y: 60, Width: 200, Height: 30, Opacity: 0.8, Visible: true, ZIndex: 2,
		Content: TextContent{Text: "Hello", FontSize: 18, FontWeight: "bold", Fill: "#333333"},
	}

	el := imported.SceneElement()

	assert.Equal(t, TypeText, el.Type)
	assert.Equal(t, "Hello", el.Text)
	assert.Equal(t, 18.0, el.FontSize)
	assert.Equal(t, "bold", el.FontWeight)
	assert.Equal(t, 0.8, el.Alpha())
	assert.Equal(t, 2, el.ZIndex)

	circle := ImportedElement{ID: "shape_1", Visible: true, Opacity: 1, Content: ShapeContent{Shape: ShapeCircle, Fill: "#f00"}}
	assert.Equal(t, TypeCircle, circle.Type())
	assert.Equal(t, ShapeCircle, circle.SceneElement().ShapeType)
}
