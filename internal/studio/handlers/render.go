package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/render"
)

// settingsOrDefault overlays a partial settings object on the server defaults.
func (h *Studio) settingsOrDefault(raw json.RawMessage) (render.Settings, error) {
	s := h.settings
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s); err != nil {
			return s, badRequest("invalid settings: " + err.Error())
		}
	}
	if err := h.validator.Struct(s); err != nil {
		return s, err
	}
	return s, nil
}

// ============================================================
// Single card
// ============================================================

type renderRequest struct {
	Record   fields.Record   `json:"record"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// RenderCard renders the template for one record and returns the image.
// X-Element-Failures counts elements that were skipped.
func (h *Studio) RenderCard(c fiber.Ctx) error {
	var req renderRequest
	if len(c.Body()) > 0 {
		if err := decodeBody(c, &req); err != nil {
			return h.fail(c, err)
		}
	}
	s, err := h.settingsOrDefault(req.Settings)
	if err != nil {
		return h.fail(c, err)
	}

	doc, err := h.repo.GetTemplate(h.ctx(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	card, err := h.renderer.Render(h.ctx(c), doc, req.Record, s)
	if err != nil {
		return h.fail(c, err)
	}

	var buf bytes.Buffer
	if err := render.Encode(&buf, card.Image, s); err != nil {
		return h.fail(c, err)
	}
	setInt(c, "X-Element-Failures", len(card.Failures))
	c.Set(fiber.HeaderContentType, "image/"+imageSubtype(s.Format))
	return c.Send(buf.Bytes())
}

func imageSubtype(format string) string {
	if format == render.FormatJPEG || format == "jpg" {
		return "jpeg"
	}
	return "png"
}

// ============================================================
// Batch cards
// ============================================================

type cardsRequest struct {
	Students []fields.Student      `json:"students"`
	Format   string                `json:"format"`
	Settings json.RawMessage       `json:"settings,omitempty"`
	Options  *models.ExportOptions `json:"options,omitempty"`
}

// GenerateCards renders the roster and packages the cards as a zip or a
// PDF of print sheets. Per-student failures do not fail the request; the
// X-Cards-* headers report the tally.
func (h *Studio) GenerateCards(c fiber.Ctx) error {
	var req cardsRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	if len(req.Students) == 0 {
		return h.fail(c, badRequest("students required"))
	}
	if req.Format == "" {
		req.Format = models.FormatZIP
	}
	if req.Format != models.FormatZIP && req.Format != models.FormatPDF {
		return h.fail(c, badRequest("format must be zip or pdf"))
	}
	s, err := h.settingsOrDefault(req.Settings)
	if err != nil {
		return h.fail(c, err)
	}
	opts := models.DefaultExportOptions(models.FormatPDF)
	if req.Options != nil {
		opts = *req.Options
	}

	doc, err := h.repo.GetTemplate(h.ctx(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	res, err := h.renderer.GenerateAll(h.ctx(c), doc, req.Students, s, h.workers)
	if err != nil {
		return h.fail(c, err)
	}
	setInt(c, "X-Cards-Requested", res.Requested)
	setInt(c, "X-Cards-Succeeded", res.Succeeded)
	setInt(c, "X-Cards-Failed", len(res.Failures))

	if res.Succeeded == 0 {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":    "no cards could be generated",
			"failures": res.Failures,
		})
	}

	art, err := h.exporter.ExportCards(h.ctx(c), res.Cards, req.Format, doc.Orientation(), opts, nil)
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("Cards generated", "template", doc.Metadata.ID, "format", req.Format, "succeeded", res.Succeeded, "failed", len(res.Failures))
	return sendArtifact(c, art)
}

// ============================================================
// Document export
// ============================================================

// ExportTemplate exports the template document and keeps a copy under
// the storage root. Unset options fall back to the defaults for the format.
func (h *Studio) ExportTemplate(c fiber.Ctx) error {
	var probe struct {
		Format string `json:"format"`
	}
	if err := decodeBody(c, &probe); err != nil {
		return h.fail(c, err)
	}
	opts := models.DefaultExportOptions(probe.Format)
	if err := json.Unmarshal(c.Body(), &opts); err != nil {
		return h.fail(c, badRequest("invalid json: "+err.Error()))
	}

	doc, err := h.repo.GetTemplate(h.ctx(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	art, err := h.exporter.ExportDocument(h.ctx(c), doc, opts, nil)
	if err != nil {
		return h.fail(c, err)
	}
	if _, err := h.storage.SaveExport(doc.Metadata.ID, art.Filename, art.Data); err != nil {
		h.logger.Warn("Export not stored", "template", doc.Metadata.ID, "error", err)
	}
	return sendArtifact(c, art)
}
