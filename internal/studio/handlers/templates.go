package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"idcard-studio/internal/studio/importer"
	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/surface"
)

// ============================================================
// Templates
// ============================================================

func (h *Studio) ListTemplates(c fiber.Ctx) error {
	list, err := h.repo.ListTemplates(h.ctx(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"templates": list})
}

// CreateTemplate stores a posted document as a new template version.
func (h *Studio) CreateTemplate(c fiber.Ctx) error {
	var doc models.SceneDocument
	if err := decodeBody(c, &doc); err != nil {
		return h.fail(c, err)
	}
	if doc.Canvas.Width <= 0 || doc.Canvas.Height <= 0 {
		return h.fail(c, badRequest("canvas width and height must be positive"))
	}

	saved, err := h.repo.SaveTemplate(h.ctx(c), &doc)
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("Template saved", "template", saved.Metadata.ID, "version", saved.Metadata.Version)
	return c.Status(http.StatusCreated).JSON(saved)
}

// GetTemplate returns the latest version, or ?version=n.
func (h *Studio) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if v := c.Query("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return h.fail(c, badRequest("version must be a positive integer"))
		}
		doc, err := h.repo.GetTemplateVersion(h.ctx(c), id, n)
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(doc)
	}

	doc, err := h.repo.GetTemplate(h.ctx(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(doc)
}

func (h *Studio) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if err := h.repo.DeleteTemplate(h.ctx(c), id); err != nil {
		return h.fail(c, err)
	}
	if err := h.storage.RemoveTemplate(id); err != nil {
		h.logger.Warn("Template files not removed", "template", id, "error", err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ============================================================
// Import
// ============================================================

type importResponse struct {
	Result   importer.ImportResult `json:"result"`
	Document *models.SceneDocument `json:"document,omitempty"`
	Objects  []surface.Object      `json:"objects,omitempty"`
	Nodes    []surface.Node        `json:"nodes,omitempty"`
	Template *models.SceneDocument `json:"template,omitempty"`
}

// Import converts an uploaded file. Form fields: file, name, adapter
// (object|node) for a surface view, save=true to store it as a template.
func (h *Studio) Import(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, badRequest("file required in multipart/form-data"))
	}
	adapter := c.FormValue("adapter")
	if adapter != "" && adapter != adapterObject && adapter != adapterNode {
		return h.fail(c, badRequest("adapter must be object or node"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.fail(c, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return h.fail(c, err)
	}

	res := h.importer.ImportFile(h.ctx(c), fileHeader.Filename, data)
	if !res.Success {
		status := http.StatusUnprocessableEntity
		var unsupported *importer.UnsupportedFormatError
		if errors.As(res.Err, &unsupported) {
			status = http.StatusUnsupportedMediaType
		}
		return c.Status(status).JSON(importResponse{Result: res})
	}

	name := c.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	}
	doc := res.Document(uuid.NewString(), name)
	if res.Background != nil && res.Background.Color != "" {
		doc.Background.Color = res.Background.Color
	}

	out := importResponse{Result: res, Document: doc}
	switch adapter {
	case adapterObject:
		for _, el := range res.Elements {
			out.Objects = append(out.Objects, surface.ObjectFromImported(el))
		}
	case adapterNode:
		for _, el := range res.Elements {
			out.Nodes = append(out.Nodes, surface.NodeFromImported(el))
		}
	}

	if c.FormValue("save") != "true" {
		return c.JSON(out)
	}

	saved, err := h.repo.SaveTemplate(h.ctx(c), doc)
	if err != nil {
		return h.fail(c, err)
	}
	if _, err := h.storage.SaveUpload(saved.Metadata.ID, fileHeader.Filename, data); err != nil {
		h.logger.Warn("Upload not kept", "template", saved.Metadata.ID, "error", err)
	}
	out.Template = saved
	return c.Status(http.StatusCreated).JSON(out)
}
