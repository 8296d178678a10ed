// Package surface holds the authoring-surface adapters. Both adapters are
// disposable views rebuilt from a SceneDocument through Sync; user
// interactions never touch the document directly and are reported as
// models.ElementUpdate events for the editor to apply.
package surface

import (
	"errors"
	"fmt"
	"math"

	"idcard-studio/internal/studio/models"
)

var (
	ErrUnknownElement = errors.New("unknown element")
	ErrLocked         = errors.New("element is locked")
	ErrHidden         = errors.New("element is hidden")
)

const (
	defaultFontSize = 16.0
	defaultFill     = "#000000"
)

// Listener receives update events emitted by a surface.
type Listener func(models.ElementUpdate)

type emitter struct {
	listener Listener
}

func (e emitter) emit(id string, patch map[string]any) {
	if e.listener != nil {
		e.listener(models.ElementUpdate{ID: id, Patch: patch})
	}
}

// clampSize enforces the minimum interactive element size.
func clampSize(v float64) float64 {
	if math.IsNaN(v) || v < models.MinElementSize {
		return models.MinElementSize
	}
	return v
}

func checkEditable(id string, locked, visible bool) error {
	if locked {
		return fmt.Errorf("%w: %s", ErrLocked, id)
	}
	if !visible {
		return fmt.Errorf("%w: %s", ErrHidden, id)
	}
	return nil
}

func fontSizeOrDefault(v float64) float64 {
	if v <= 0 {
		return defaultFontSize
	}
	return v
}

func fillOrDefault(v string) string {
	if v == "" {
		return defaultFill
	}
	return v
}

// orderedElements returns the document elements in paint order.
func orderedElements(elements []models.SceneElement) []models.SceneElement {
	out := make([]models.SceneElement, 0, len(elements))
	for _, i := range models.PaintOrder(elements) {
		out = append(out, elements[i])
	}
	return out
}
