package scene

import (
	"errors"
	"strings"
	"testing"

	"idcard-studio/internal/studio/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmptyEditor() *Editor {
	return NewEditor(models.NewDocument("doc-1", "Card", 300, 400))
}

func ids(elements []models.SceneElement) []string {
	out := make([]string, len(elements))
	for i, el := range elements {
		out[i] = el.ID
	}
	return out
}

func TestEditor_UndoRedoRoundTrip(t *testing.T) {
	ed := newEmptyEditor()

	_, err := ed.AddElement(models.SceneElement{ID: "A", Type: models.TypeRect})
	require.NoError(t, err)
	_, err = ed.AddElement(models.SceneElement{ID: "B", Type: models.TypeRect})
	require.NoError(t, err)

	require.True(t, ed.Undo())
	assert.Equal(t, []string{"A"}, ids(ed.Elements()))

	require.True(t, ed.Redo())
	assert.Equal(t, []string{"A", "B"}, ids(ed.Elements()))
}

func TestEditor_NewEditDiscardsForwardHistory(t *testing.T) {
	ed := newEmptyEditor()
	_, _ = ed.AddElement(models.SceneElement{ID: "A", Type: models.TypeRect})
	_, _ = ed.AddElement(models.SceneElement{ID: "B", Type: models.TypeRect})

	require.True(t, ed.Undo())
	_, err := ed.AddElement(models.SceneElement{ID: "C", Type: models.TypeRect})
	require.NoError(t, err)

	assert.False(t, ed.CanRedo())
	assert.False(t, ed.Redo())
	assert.Equal(t, []string{"A", "C"}, ids(ed.Elements()))
	assert.Equal(t, 3, ed.HistoryLen())
	assert.Equal(t, 2, ed.HistoryIndex())
}

func TestEditor_UndoDoesNotPushHistory(t *testing.T) {
	ed := newEmptyEditor()
	_, _ = ed.AddElement(models.SceneElement{ID: "A", Type: models.TypeRect})

	ed.Undo()
	ed.Undo()

	assert.Equal(t, 2, ed.HistoryLen())
	assert.Equal(t, 0, ed.HistoryIndex())
	assert.Empty(t, ed.Elements())
}

func TestEditor_DuplicateElement(t *testing.T) {
	ed := newEmptyEditor()
	orig := models.SceneElement{ID: "e1", Type: models.TypeRect, X: 10, Y: 10, Width: 50, Height: 40, Name: "Box", Fill: "#ff0000", ZIndex: 3}
	_, err := ed.AddElement(orig)
	require.NoError(t, err)

	dup, err := ed.DuplicateElement("e1")
	require.NoError(t, err)

	assert.NotEqual(t, "e1", dup.ID)
	assert.True(t, strings.HasPrefix(dup.ID, "element_"))
	assert.Equal(t, 30.0, dup.X)
	assert.Equal(t, 30.0, dup.Y)
	assert.Equal(t, "Box Copy", dup.Name)

	dup.ID, dup.X, dup.Y, dup.Name = orig.ID, orig.X, orig.Y, orig.Name
	assert.Equal(t, orig, dup)
	assert.Len(t, ed.Elements(), 2)
}

func TestEditor_UpdateMergesPartial(t *testing.T) {
	ed := newEmptyEditor()
	_, _ = ed.AddElement(models.SceneElement{ID: "t1", Type: models.TypeText, Text: "Hi", FontSize: 12})

	el, err := ed.UpdateElement("t1", map[string]any{"fontSize": 20.0})
	require.NoError(t, err)

	assert.Equal(t, "Hi", el.Text)
	assert.Equal(t, 20.0, el.FontSize)

	ed.Undo()
	assert.Equal(t, 12.0, ed.Elements()[0].FontSize)
}

func TestEditor_MissingElement(t *testing.T) {
	ed := newEmptyEditor()

	_, err := ed.UpdateElement("nope", map[string]any{"x": 1.0})
	assert.True(t, errors.Is(err, ErrElementNotFound))
	assert.True(t, errors.Is(ed.DeleteElement("nope"), ErrElementNotFound))
	_, err = ed.DuplicateElement("nope")
	assert.True(t, errors.Is(err, ErrElementNotFound))
}

func TestEditor_DeleteAndFlags(t *testing.T) {
	ed := newEmptyEditor()
	_, _ = ed.AddElement(models.SceneElement{ID: "a", Type: models.TypeRect})
	_, _ = ed.AddElement(models.SceneElement{ID: "b", Type: models.TypeCircle, ZIndex: 4})

	_, err := ed.SetVisible("a", false)
	require.NoError(t, err)
	_, err = ed.SetLocked("a", true)
	require.NoError(t, err)
	_, err = ed.Rename("a", "Frame")
	require.NoError(t, err)

	front, err := ed.BringToFront("a")
	require.NoError(t, err)
	assert.Equal(t, 5, front.ZIndex)

	back, err := ed.SendToBack("b")
	require.NoError(t, err)
	assert.Equal(t, 3, back.ZIndex)

	require.NoError(t, ed.DeleteElement("b"))
	els := ed.Elements()
	require.Len(t, els, 1)
	assert.False(t, els[0].IsVisible())
	assert.True(t, els[0].Locked)
	assert.Equal(t, "Frame", els[0].Name)
}

func TestEditor_DuplicateIDRejected(t *testing.T) {
	ed := newEmptyEditor()
	_, _ = ed.AddElement(models.SceneElement{ID: "a", Type: models.TypeRect})

	_, err := ed.AddElement(models.SceneElement{ID: "a", Type: models.TypeRect})
	assert.True(t, errors.Is(err, ErrDuplicateID))
}

func TestEditor_GroupNotSupported(t *testing.T) {
	ed := newEmptyEditor()

	assert.True(t, errors.Is(ed.Group("a", "b"), ErrNotSupported))
	assert.True(t, errors.Is(ed.Ungroup("g"), ErrNotSupported))
}

func TestEditor_DocumentSnapshot(t *testing.T) {
	ed := newEmptyEditor()
	_, _ = ed.AddElement(models.SceneElement{ID: "a", Type: models.TypeRect})
	require.NoError(t, ed.SetCanvasSize(400, 300))
	ed.SetBackground(models.Background{Color: "#eeeeee"})

	doc := ed.Document()
	doc.Elements[0].X = 99

	assert.Equal(t, 0.0, ed.Elements()[0].X)
	assert.Equal(t, models.OrientationLandscape, doc.Metadata.Orientation)
	assert.Equal(t, "#eeeeee", doc.Background.Color)
	assert.Error(t, ed.SetCanvasSize(0, 10))
}

func TestEditor_UndoLeavesBackgroundAndCanvas(t *testing.T) {
	ed := newEmptyEditor()
	_, err := ed.AddElement(models.SceneElement{ID: "A", Type: models.TypeRect})
	require.NoError(t, err)

	ed.SetBackground(models.Background{Color: "#003366"})
	require.NoError(t, ed.SetCanvasSize(400, 300))
	assert.False(t, ed.CanRedo())

	require.True(t, ed.Undo())
	assert.Empty(t, ed.Elements())
	doc := ed.Document()
	assert.Equal(t, "#003366", doc.Background.Color)
	assert.Equal(t, models.Canvas{Width: 400, Height: 300}, doc.Canvas)
}
