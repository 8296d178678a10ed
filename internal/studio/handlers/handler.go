package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"idcard-studio/internal/common/validation"
	"idcard-studio/internal/studio/export"
	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/importer"
	"idcard-studio/internal/studio/render"
	"idcard-studio/internal/studio/repository"
	"idcard-studio/internal/studio/scene"
	"idcard-studio/internal/studio/service"
	"idcard-studio/internal/studio/surface"
)

// ============================================================
// Studio Handler
// ============================================================

type Deps struct {
	Repo      *repository.Repository
	Registry  *fields.Registry
	Importer  *importer.Dispatcher
	Renderer  *render.Renderer
	Exporter  *export.Exporter
	Sessions  *service.SessionManager
	Storage   *service.FileStorage
	Validator *validation.Validator
	Logger    *slog.Logger

	// Settings are the render defaults a request may override.
	Settings render.Settings
	Workers  int
}

type Studio struct {
	repo      *repository.Repository
	registry  *fields.Registry
	importer  *importer.Dispatcher
	renderer  *render.Renderer
	exporter  *export.Exporter
	sessions  *service.SessionManager
	storage   *service.FileStorage
	validator *validation.Validator
	logger    *slog.Logger
	settings  render.Settings
	workers   int
}

func New(d Deps) *Studio {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.Settings.DPI == 0 {
		d.Settings = render.DefaultSettings()
	}
	if d.Workers < 1 {
		d.Workers = 1
	}
	return &Studio{
		repo:      d.Repo,
		registry:  d.Registry,
		importer:  d.Importer,
		renderer:  d.Renderer,
		exporter:  d.Exporter,
		sessions:  d.Sessions,
		storage:   d.Storage,
		validator: d.Validator,
		logger:    d.Logger,
		settings:  d.Settings,
		workers:   d.Workers,
	}
}

// Register mounts every studio route on router.
func (h *Studio) Register(router fiber.Router) {
	health := NewHealth(h.repo.Ping)
	router.Get("/health/live", health.Liveness)
	router.Get("/health/ready", health.Readiness)

	router.Get("/fields", h.ListFields)
	router.Post("/fields", h.CreateField)

	router.Post("/import", h.Import)

	router.Get("/templates", h.ListTemplates)
	router.Post("/templates", h.CreateTemplate)
	router.Get("/templates/:id", h.GetTemplate)
	router.Delete("/templates/:id", h.DeleteTemplate)
	router.Post("/templates/:id/render", h.RenderCard)
	router.Post("/templates/:id/cards", h.GenerateCards)
	router.Post("/templates/:id/export", h.ExportTemplate)
	router.Post("/templates/:id/sessions", h.OpenSession)

	router.Get("/sessions/:token", h.GetSession)
	router.Delete("/sessions/:token", h.CloseSession)
	router.Post("/sessions/:token/elements", h.AddElement)
	router.Patch("/sessions/:token/elements/:eid", h.UpdateElement)
	router.Delete("/sessions/:token/elements/:eid", h.DeleteElement)
	router.Post("/sessions/:token/elements/:eid/duplicate", h.DuplicateElement)
	router.Post("/sessions/:token/undo", h.Undo)
	router.Post("/sessions/:token/redo", h.Redo)
	router.Post("/sessions/:token/save", h.SaveSession)
	router.Get("/sessions/:token/surface", h.SurfaceView)
	router.Post("/sessions/:token/surface", h.SurfaceEvent)
}

// ============================================================
// Helpers
// ============================================================

func (h *Studio) ctx(c fiber.Ctx) context.Context {
	return c.Context()
}

func badRequest(msg string) error {
	return fiber.NewError(http.StatusBadRequest, msg)
}

func decodeBody(c fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return badRequest("empty body")
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return badRequest("invalid json: " + err.Error())
	}
	return nil
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var (
		fe        *fiber.Error
		verrs     validator.ValidationErrors
		exportErr *export.ExportError
	)
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, scene.ErrElementNotFound),
		errors.Is(err, surface.ErrUnknownElement):
		return http.StatusNotFound
	case errors.Is(err, scene.ErrDuplicateID),
		errors.Is(err, fields.ErrFieldExists),
		errors.Is(err, surface.ErrLocked),
		errors.Is(err, surface.ErrHidden):
		return http.StatusConflict
	case errors.Is(err, fields.ErrInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, scene.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.As(err, &exportErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}, adding per-field messages for
// validation errors.
func (h *Studio) fail(c fiber.Ctx, err error) error {
	status := statusOf(err)
	body := fiber.Map{"error": h.validator.Message(err)}
	if fieldErrs := h.validator.Fields(err); fieldErrs != nil {
		body["fields"] = fieldErrs
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	} else {
		h.logger.Debug("Request rejected", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(body)
}

func sendArtifact(c fiber.Ctx, art *export.Artifact) error {
	c.Attachment(art.Filename)
	c.Set(fiber.HeaderContentType, art.ContentType)
	return c.Send(art.Data)
}

func setInt(c fiber.Ctx, key string, v int) {
	c.Set(key, strconv.Itoa(v))
}
