package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/scene"
	"idcard-studio/internal/studio/service"
	"idcard-studio/internal/studio/surface"
)

const (
	adapterObject = "object"
	adapterNode   = "node"
)

// ============================================================
// Editing sessions
// ============================================================

type sessionState struct {
	Token      string                `json:"token"`
	TemplateID string                `json:"templateId"`
	Document   *models.SceneDocument `json:"document"`
	CanUndo    bool                  `json:"canUndo"`
	CanRedo    bool                  `json:"canRedo"`
	Changed    *bool                 `json:"changed,omitempty"`
}

func stateOf(s *service.Session, ed *scene.Editor) sessionState {
	return sessionState{
		Token:      s.Token,
		TemplateID: s.TemplateID,
		Document:   ed.Document(),
		CanUndo:    ed.CanUndo(),
		CanRedo:    ed.CanRedo(),
	}
}

// OpenSession starts an editor on the latest version of a template.
func (h *Studio) OpenSession(c fiber.Ctx) error {
	doc, err := h.repo.GetTemplate(h.ctx(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	token := h.sessions.Issue(doc.Metadata.ID, doc)

	var state sessionState
	err = h.sessions.With(token, func(s *service.Session, ed *scene.Editor) error {
		state = stateOf(s, ed)
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Debug("Session opened", "template", doc.Metadata.ID)
	return c.Status(http.StatusCreated).JSON(state)
}

func (h *Studio) GetSession(c fiber.Ctx) error {
	var state sessionState
	err := h.sessions.With(c.Params("token"), func(s *service.Session, ed *scene.Editor) error {
		state = stateOf(s, ed)
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(state)
}

func (h *Studio) CloseSession(c fiber.Ctx) error {
	if !h.sessions.Close(c.Params("token")) {
		return h.fail(c, service.ErrSessionNotFound)
	}
	return c.SendStatus(http.StatusNoContent)
}

// SaveSession stores the editor's document as the template's next version.
func (h *Studio) SaveSession(c fiber.Ctx) error {
	var doc *models.SceneDocument
	var templateID string
	err := h.sessions.With(c.Params("token"), func(s *service.Session, ed *scene.Editor) error {
		doc = ed.Document()
		templateID = s.TemplateID
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	if doc.Metadata == nil {
		doc.Metadata = &models.Metadata{}
	}
	doc.Metadata.ID = templateID

	saved, err := h.repo.SaveTemplate(h.ctx(c), doc)
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("Session saved", "template", templateID, "version", saved.Metadata.Version)
	return c.JSON(saved)
}

// ============================================================
// Element edits
// ============================================================

func (h *Studio) AddElement(c fiber.Ctx) error {
	var el models.SceneElement
	if err := decodeBody(c, &el); err != nil {
		return h.fail(c, err)
	}
	if el.Type == "" {
		return h.fail(c, badRequest("element type required"))
	}

	var added models.SceneElement
	err := h.sessions.With(c.Params("token"), func(_ *service.Session, ed *scene.Editor) error {
		var err error
		added, err = ed.AddElement(el)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(added)
}

// UpdateElement merges a JSON patch into one element.
func (h *Studio) UpdateElement(c fiber.Ctx) error {
	var patch map[string]any
	if err := decodeBody(c, &patch); err != nil {
		return h.fail(c, err)
	}

	var updated models.SceneElement
	err := h.sessions.With(c.Params("token"), func(_ *service.Session, ed *scene.Editor) error {
		var err error
		updated, err = ed.UpdateElement(c.Params("eid"), patch)
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(updated)
}

func (h *Studio) DeleteElement(c fiber.Ctx) error {
	err := h.sessions.With(c.Params("token"), func(_ *service.Session, ed *scene.Editor) error {
		return ed.DeleteElement(c.Params("eid"))
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Studio) DuplicateElement(c fiber.Ctx) error {
	var dup models.SceneElement
	err := h.sessions.With(c.Params("token"), func(_ *service.Session, ed *scene.Editor) error {
		var err error
		dup, err = ed.DuplicateElement(c.Params("eid"))
		return err
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(dup)
}

func (h *Studio) Undo(c fiber.Ctx) error {
	return h.step(c, (*scene.Editor).Undo)
}

func (h *Studio) Redo(c fiber.Ctx) error {
	return h.step(c, (*scene.Editor).Redo)
}

func (h *Studio) step(c fiber.Ctx, move func(*scene.Editor) bool) error {
	var state sessionState
	err := h.sessions.With(c.Params("token"), func(s *service.Session, ed *scene.Editor) error {
		changed := move(ed)
		state = stateOf(s, ed)
		state.Changed = &changed
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(state)
}

// ============================================================
// Surfaces
// ============================================================

type surfaceView struct {
	Adapter    string            `json:"adapter"`
	Width      float64           `json:"width"`
	Height     float64           `json:"height"`
	Background models.Background `json:"background"`
	Objects    []surface.Object  `json:"objects,omitempty"`
	Nodes      []surface.Node    `json:"nodes,omitempty"`
}

// SurfaceView projects the session document through one of the adapters.
func (h *Studio) SurfaceView(c fiber.Ctx) error {
	adapter := c.Query("adapter", adapterObject)
	if adapter != adapterObject && adapter != adapterNode {
		return h.fail(c, badRequest("adapter must be object or node"))
	}

	var view surfaceView
	err := h.sessions.With(c.Params("token"), func(_ *service.Session, ed *scene.Editor) error {
		doc := ed.Document()
		view = surfaceView{Adapter: adapter, Background: doc.Background}
		if adapter == adapterNode {
			canvas := surface.NewNodeCanvas(nil)
			canvas.Sync(doc)
			view.Width, view.Height = canvas.Size()
			view.Nodes = canvas.Nodes()
			return nil
		}
		canvas := surface.NewObjectCanvas(nil)
		canvas.Sync(doc)
		view.Width, view.Height = canvas.Size()
		view.Objects = canvas.Objects()
		return nil
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

type surfaceEvent struct {
	Adapter  string  `json:"adapter"`
	Op       string  `json:"op"`
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Angle    float64 `json:"angle"`
	Rotation float64 `json:"rotation"`
	Locked   bool    `json:"locked"`
	Visible  bool    `json:"visible"`
}

var errUnknownOp = errors.New("unknown surface operation")

// SurfaceEvent replays one gesture from an authoring surface. The adapter
// turns it into element updates which the editor applies as history steps.
func (h *Studio) SurfaceEvent(c fiber.Ctx) error {
	var ev surfaceEvent
	if err := decodeBody(c, &ev); err != nil {
		return h.fail(c, err)
	}
	if ev.Adapter == "" {
		ev.Adapter = adapterObject
	}
	if ev.ID == "" {
		return h.fail(c, badRequest("id required"))
	}

	var state sessionState
	err := h.sessions.With(c.Params("token"), func(s *service.Session, ed *scene.Editor) error {
		var applyErr error
		listener := func(u models.ElementUpdate) {
			if applyErr != nil {
				return
			}
			_, applyErr = ed.Apply(u)
		}

		var err error
		switch ev.Adapter {
		case adapterObject:
			err = objectGesture(surface.NewObjectCanvas(listener), ed.Document(), ev)
		case adapterNode:
			err = nodeGesture(surface.NewNodeCanvas(listener), ed.Document(), ev)
		default:
			return badRequest("adapter must be object or node")
		}
		if err != nil {
			return err
		}
		if applyErr != nil {
			return applyErr
		}
		state = stateOf(s, ed)
		return nil
	})
	if err != nil {
		if errors.Is(err, errUnknownOp) {
			return h.fail(c, badRequest(err.Error()+": "+ev.Op))
		}
		return h.fail(c, err)
	}
	return c.JSON(state)
}

func objectGesture(canvas *surface.ObjectCanvas, doc *models.SceneDocument, ev surfaceEvent) error {
	canvas.Sync(doc)
	switch ev.Op {
	case "move":
		return canvas.Move(ev.ID, ev.X, ev.Y)
	case "scale":
		return canvas.Scale(ev.ID, orOne(ev.ScaleX), orOne(ev.ScaleY))
	case "rotate":
		return canvas.Rotate(ev.ID, ev.Angle)
	case "bringForward":
		return canvas.BringForward(ev.ID)
	case "sendBackwards":
		return canvas.SendBackwards(ev.ID)
	case "lock":
		return canvas.SetLocked(ev.ID, ev.Locked)
	case "visible":
		return canvas.SetVisible(ev.ID, ev.Visible)
	}
	return errUnknownOp
}

func nodeGesture(canvas *surface.NodeCanvas, doc *models.SceneDocument, ev surfaceEvent) error {
	canvas.Sync(doc)
	switch ev.Op {
	case "dragEnd":
		return canvas.DragEnd(ev.ID, ev.X, ev.Y)
	case "transformEnd":
		return canvas.TransformEnd(ev.ID, surface.Transform{
			X: ev.X, Y: ev.Y, Rotation: ev.Rotation, ScaleX: ev.ScaleX, ScaleY: ev.ScaleY,
		})
	case "moveUp":
		return canvas.MoveUp(ev.ID)
	case "moveDown":
		return canvas.MoveDown(ev.ID)
	case "lock":
		return canvas.SetLocked(ev.ID, ev.Locked)
	case "visible":
		return canvas.SetVisible(ev.ID, ev.Visible)
	}
	return errUnknownOp
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
