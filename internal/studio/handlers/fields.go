package handlers

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"idcard-studio/internal/studio/fields"
)

// ListFields returns the catalog in registration order and grouped by category.
func (h *Studio) ListFields(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"fields":     h.registry.All(),
		"byCategory": h.registry.ByCategory(),
	})
}

// CreateField registers and persists a custom field.
func (h *Studio) CreateField(c fiber.Ctx) error {
	var f fields.DynamicField
	if err := decodeBody(c, &f); err != nil {
		return h.fail(c, err)
	}
	if f.Category == "" {
		f.Category = fields.CategoryCustom
	}
	if f.DataType == "" {
		f.DataType = fields.DataText
	}
	if f.Placeholder == "" {
		f.Placeholder = fields.Token(f.ID)
	}
	if err := h.validator.Struct(f); err != nil {
		return h.fail(c, err)
	}
	if _, exists := h.registry.Lookup(f.ID); exists {
		return h.fail(c, fmt.Errorf("%w: %s", fields.ErrFieldExists, f.ID))
	}

	if err := h.repo.SaveCustomField(h.ctx(c), f); err != nil {
		return h.fail(c, err)
	}
	if err := h.registry.Register(f); err != nil {
		return h.fail(c, err)
	}

	h.logger.Info("Custom field created", "field", f.ID)
	return c.Status(http.StatusCreated).JSON(f)
}
