package scene

import (
	"errors"
	"fmt"
	"math"
	"time"

	"idcard-studio/internal/studio/models"

	"github.com/google/uuid"
)

// ============================================================
// Editor
// ============================================================

var (
	ErrElementNotFound = errors.New("element not found")
	ErrNotSupported    = errors.New("not yet supported")
	ErrDuplicateID     = errors.New("duplicate element id")
)

// Editor owns the live element list of one document and its linear
// undo/redo history. It has a single writer and is not safe for concurrent use.
type Editor struct {
	doc      *models.SceneDocument
	elements []models.SceneElement
	history  [][]models.SceneElement
	index    int
	newID    func() string
}

func NewEditor(doc *models.SceneDocument) *Editor {
	if doc == nil {
		doc = models.NewDocument(uuid.NewString(), "Untitled", 300, 400)
	}
	doc = doc.Clone()
	doc.Normalize()

	elements := models.CloneElements(doc.Elements)
	return &Editor{
		doc:      doc,
		elements: elements,
		history:  [][]models.SceneElement{models.CloneElements(elements)},
		index:    0,
		newID:    NewElementID,
	}
}

// NewElementID returns a time-based id with a random suffix.
func NewElementID() string {
	return fmt.Sprintf("element_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Elements returns a copy of the live element list.
func (e *Editor) Elements() []models.SceneElement {
	return models.CloneElements(e.elements)
}

// Document returns a snapshot of the document with the live elements.
func (e *Editor) Document() *models.SceneDocument {
	doc := e.doc.Clone()
	doc.Elements = models.CloneElements(e.elements)
	doc.Normalize()
	return doc
}

func (e *Editor) HistoryIndex() int { return e.index }
func (e *Editor) HistoryLen() int   { return len(e.history) }
func (e *Editor) CanUndo() bool     { return e.index > 0 }
func (e *Editor) CanRedo() bool     { return e.index < len(e.history)-1 }

// commit pushes next at index+1, discarding forward history, and makes it live.
func (e *Editor) commit(next []models.SceneElement) {
	e.history = append(e.history[:e.index+1], models.CloneElements(next))
	e.index = len(e.history) - 1
	e.elements = next
}

// Undo restores the previous element list. Background and canvas size
// changes are not part of the history and are not reverted.
func (e *Editor) Undo() bool {
	if !e.CanUndo() {
		return false
	}
	e.index--
	e.elements = models.CloneElements(e.history[e.index])
	return true
}

func (e *Editor) Redo() bool {
	if !e.CanRedo() {
		return false
	}
	e.index++
	e.elements = models.CloneElements(e.history[e.index])
	return true
}

// ============================================================
// Element operations
// ============================================================

// AddElement appends el. An empty id gets a fresh one; an empty name
// defaults to the element type.
func (e *Editor) AddElement(el models.SceneElement) (models.SceneElement, error) {
	if el.ID == "" {
		el.ID = e.newID()
	}
	if e.indexOf(el.ID) >= 0 {
		return models.SceneElement{}, fmt.Errorf("%w: %s", ErrDuplicateID, el.ID)
	}
	if el.Name == "" {
		el.Name = el.Type
	}

	next := append(models.CloneElements(e.elements), el.Clone())
	e.commit(next)
	return el.Clone(), nil
}

func (e *Editor) UpdateElement(id string, patch map[string]any) (models.SceneElement, error) {
	i := e.indexOf(id)
	if i < 0 {
		return models.SceneElement{}, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}

	merged, err := e.elements[i].Merge(patch)
	if err != nil {
		return models.SceneElement{}, fmt.Errorf("update %s: %w", id, err)
	}

	next := models.CloneElements(e.elements)
	next[i] = merged
	e.commit(next)
	return merged.Clone(), nil
}

// Apply applies an update event emitted by an authoring surface.
func (e *Editor) Apply(update models.ElementUpdate) (models.SceneElement, error) {
	return e.UpdateElement(update.ID, update.Patch)
}

func (e *Editor) DeleteElement(id string) error {
	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}

	next := make([]models.SceneElement, 0, len(e.elements)-1)
	next = append(next, models.CloneElements(e.elements[:i])...)
	next = append(next, models.CloneElements(e.elements[i+1:])...)
	e.commit(next)
	return nil
}

// DuplicateElement copies an element with a fresh id, offset by +20,+20
// and a " Copy" name suffix.
func (e *Editor) DuplicateElement(id string) (models.SceneElement, error) {
	i := e.indexOf(id)
	if i < 0 {
		return models.SceneElement{}, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}

	dup := e.elements[i].Clone()
	dup.ID = e.newID()
	dup.X += 20
	dup.Y += 20
	dup.Name += " Copy"

	next := append(models.CloneElements(e.elements), dup)
	e.commit(next)
	return dup.Clone(), nil
}

func (e *Editor) SetZIndex(id string, z int) (models.SceneElement, error) {
	return e.UpdateElement(id, map[string]any{"zIndex": z})
}

func (e *Editor) BringToFront(id string) (models.SceneElement, error) {
	return e.SetZIndex(id, models.MaxZIndex(e.elements)+1)
}

func (e *Editor) SendToBack(id string) (models.SceneElement, error) {
	return e.SetZIndex(id, models.MinZIndex(e.elements)-1)
}

func (e *Editor) SetVisible(id string, visible bool) (models.SceneElement, error) {
	return e.UpdateElement(id, map[string]any{"visible": visible})
}

func (e *Editor) SetLocked(id string, locked bool) (models.SceneElement, error) {
	return e.UpdateElement(id, map[string]any{"locked": locked})
}

func (e *Editor) Rename(id, name string) (models.SceneElement, error) {
	return e.UpdateElement(id, map[string]any{"name": name})
}

// Group is recognised but grouping semantics are not implemented.
func (e *Editor) Group(ids ...string) error {
	return fmt.Errorf("group: %w", ErrNotSupported)
}

func (e *Editor) Ungroup(id string) error {
	return fmt.Errorf("ungroup: %w", ErrNotSupported)
}

// ============================================================
// Document operations
// ============================================================

// SetBackground and SetCanvasSize change document state outside the element
// history.
func (e *Editor) SetBackground(bg models.Background) {
	e.doc.Background = bg
}

func (e *Editor) SetCanvasSize(width, height float64) error {
	if width <= 0 || height <= 0 || math.IsNaN(width) || math.IsNaN(height) {
		return fmt.Errorf("invalid canvas size %vx%v", width, height)
	}
	e.doc.Canvas = models.Canvas{Width: width, Height: height}
	e.doc.Normalize()
	return nil
}

func (e *Editor) SetMetadata(name, description string, tags []string) {
	if e.doc.Metadata == nil {
		e.doc.Metadata = &models.Metadata{}
	}
	if name != "" {
		e.doc.Metadata.Name = name
	}
	e.doc.Metadata.Description = description
	if tags != nil {
		e.doc.Metadata.Tags = append([]string(nil), tags...)
	}
}

func (e *Editor) indexOf(id string) int {
	for i, el := range e.elements {
		if el.ID == id {
			return i
		}
	}
	return -1
}
