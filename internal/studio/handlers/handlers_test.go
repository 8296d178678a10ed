package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idcard-studio/internal/studio/export"
	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/importer"
	"idcard-studio/internal/studio/models"
	"idcard-studio/internal/studio/parser"
	"idcard-studio/internal/studio/render"
	"idcard-studio/internal/studio/repository"
	"idcard-studio/internal/studio/service"
)

type testEnv struct {
	app     *fiber.App
	repo    *repository.Repository
	storage *service.FileStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.OpenSQLite(filepath.Join(dir, "db", "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := repository.New(db)
	require.NoError(t, repo.Init(context.Background()))

	reg := fields.NewRegistry()
	renderer := render.NewRenderer(reg, render.NewAssetLoader(time.Second, dir), nil)
	storage := service.NewFileStorage(filepath.Join(dir, "storage"))

	studio := New(Deps{
		Repo:     repo,
		Registry: reg,
		Importer: importer.NewDispatcher(parser.PSDParser{}, 10<<20),
		Renderer: renderer,
		Exporter: export.NewExporter(renderer, nil, nil),
		Sessions: service.NewSessionManager(),
		Storage:  storage,
		Settings: render.Settings{DPI: 72, Quality: 1, Format: render.FormatPNG},
		Workers:  2,
	})

	app := fiber.New()
	studio.Register(app)
	return &testEnv{app: app, repo: repo, storage: storage}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func seedTemplate(t *testing.T, e *testEnv) *models.SceneDocument {
	t.Helper()
	doc := models.NewDocument("tpl-1", "Front Side", 300, 400)
	doc.Elements = []models.SceneElement{
		{ID: "band", Type: models.TypeRect, Width: 300, Height: 60, Fill: "#cc0000"},
		{ID: "name", Type: models.TypeDynamicField, X: 20, Y: 100, Width: 260, Height: 30, Text: "{{student_name}}", FontSize: 18, ZIndex: 1},
	}
	saved, err := e.repo.SaveTemplate(context.Background(), doc)
	require.NoError(t, err)
	return saved
}

// ============================================================
// Health and fields
// ============================================================

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", decode[map[string]string](t, resp)["status"])
}

func TestFields_CreateAndList(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/fields", map[string]any{"id": "house", "name": "House"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[fields.DynamicField](t, resp)
	assert.Equal(t, fields.CategoryCustom, created.Category)
	assert.Equal(t, "{{house}}", created.Placeholder)

	resp = e.do(t, http.MethodPost, "/fields", map[string]any{"id": "house", "name": "House"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/fields", map[string]any{"id": "bad id!", "name": "Bad"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	stored, err := e.repo.CustomFields(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)

	resp = e.do(t, http.MethodGet, "/fields", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Fields []fields.DynamicField `json:"fields"`
	}](t, resp)
	ids := make([]string, 0, len(body.Fields))
	for _, f := range body.Fields {
		ids = append(ids, f.ID)
	}
	assert.Contains(t, ids, fields.StudentName)
	assert.Contains(t, ids, "house")
}

// ============================================================
// Templates
// ============================================================

func TestTemplates_CRUD(t *testing.T) {
	e := newTestEnv(t)

	doc := models.NewDocument("", "Back Side", 400, 300)
	resp := e.do(t, http.MethodPost, "/templates", doc)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	saved := decode[models.SceneDocument](t, resp)
	require.NotEmpty(t, saved.Metadata.ID)
	assert.Equal(t, models.OrientationLandscape, saved.Metadata.Orientation)

	resp = e.do(t, http.MethodPost, "/templates", models.NewDocument("", "Empty", 0, 0))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/templates", nil)
	list := decode[map[string][]repository.TemplateSummary](t, resp)["templates"]
	require.Len(t, list, 1)
	assert.Equal(t, "Back Side", list[0].Name)

	resp = e.do(t, http.MethodGet, "/templates/"+saved.Metadata.ID+"?version=1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/templates/"+saved.Metadata.ID+"?version=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/templates/"+saved.Metadata.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/templates/"+saved.Metadata.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImport(t *testing.T) {
	e := newTestEnv(t)

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var pngData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, img))

	upload := func(filename string, data []byte, form map[string]string) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
		for k, v := range form {
			require.NoError(t, mw.WriteField(k, v))
		}
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/import", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := e.app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
		require.NoError(t, err)
		return resp
	}

	resp := upload("logo.png", pngData.Bytes(), map[string]string{"adapter": "node"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[struct {
		Result struct {
			Success bool `json:"success"`
		} `json:"result"`
		Document *models.SceneDocument `json:"document"`
		Nodes    []json.RawMessage     `json:"nodes"`
	}](t, resp)
	assert.True(t, out.Result.Success)
	require.NotNil(t, out.Document)
	assert.Equal(t, "logo", out.Document.Metadata.Name)
	assert.Len(t, out.Nodes, 1)

	resp = upload("logo.png", pngData.Bytes(), map[string]string{"save": "true", "name": "Crest"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	list, err := e.repo.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Crest", list[0].Name)
	assert.FileExists(t, e.storage.UploadPath(list[0].ID, "logo.png"))

	resp = upload("notes.txt", []byte("hello"), nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = upload("logo.png", pngData.Bytes(), map[string]string{"adapter": "canvas"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ============================================================
// Rendering and export
// ============================================================

func TestRenderCard(t *testing.T) {
	e := newTestEnv(t)
	tpl := seedTemplate(t, e)

	resp := e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/render", map[string]any{
		"record": map[string]string{fields.StudentName: "Jo Ann"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0", resp.Header.Get("X-Element-Failures"))

	defer resp.Body.Close()
	cfg, err := png.DecodeConfig(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 400, cfg.Height)

	resp = e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/render", map[string]any{
		"settings": map[string]any{"dpi": 5000},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/templates/missing/render", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerateCards(t *testing.T) {
	e := newTestEnv(t)
	tpl := seedTemplate(t, e)

	students := []fields.Student{{ID: "1", Name: "Jo Ann"}, {ID: "2", Name: "Bob"}}
	resp := e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/cards", map[string]any{
		"students": students,
		"format":   "zip",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "ID_Cards.zip")
	assert.Equal(t, "2", resp.Header.Get("X-Cards-Requested"))
	assert.Equal(t, "2", resp.Header.Get("X-Cards-Succeeded"))
	assert.Equal(t, "0", resp.Header.Get("X-Cards-Failed"))

	resp = e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/cards", map[string]any{
		"students": students,
		"format":   "pdf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	resp = e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/cards", map[string]any{
		"students": students,
		"format":   "tar",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/cards", map[string]any{
		"students": []fields.Student{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportTemplate(t *testing.T) {
	e := newTestEnv(t)
	tpl := seedTemplate(t, e)

	resp := e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/export", map[string]any{"format": "json"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Front_Side.json")
	doc := decode[models.SceneDocument](t, resp)
	assert.Len(t, doc.Elements, 2)
	assert.FileExists(t, e.storage.ExportPath(tpl.Metadata.ID, "Front_Side.json"))

	resp = e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/export", map[string]any{"format": "svg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))

	resp = e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/export", map[string]any{"format": "docx"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// ============================================================
// Sessions
// ============================================================

func TestSession_EditUndoSave(t *testing.T) {
	e := newTestEnv(t)
	tpl := seedTemplate(t, e)

	resp := e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	state := decode[sessionState](t, resp)
	require.NotEmpty(t, state.Token)
	assert.False(t, state.CanUndo)
	base := "/sessions/" + state.Token

	resp = e.do(t, http.MethodPost, base+"/elements", models.SceneElement{ID: "logo", Type: models.TypeRect, Width: 40, Height: 40})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPost, base+"/elements", models.SceneElement{ID: "logo", Type: models.TypeRect})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPatch, base+"/elements/logo", map[string]any{"x": 15})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 15.0, decode[models.SceneElement](t, resp).X)

	resp = e.do(t, http.MethodPatch, base+"/elements/ghost", map[string]any{"x": 15})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodPost, base+"/undo", nil)
	state = decode[sessionState](t, resp)
	require.NotNil(t, state.Changed)
	assert.True(t, *state.Changed)
	assert.True(t, state.CanRedo)

	resp = e.do(t, http.MethodPost, base+"/redo", nil)
	state = decode[sessionState](t, resp)
	assert.False(t, state.CanRedo)

	resp = e.do(t, http.MethodPost, base+"/elements/logo/duplicate", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, base+"/elements/band", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[models.SceneDocument](t, resp)
	assert.Equal(t, tpl.Metadata.ID, saved.Metadata.ID)
	assert.Equal(t, 2, saved.Metadata.Version)
	assert.Len(t, saved.Elements, 3)

	resp = e.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSession_SurfaceEvents(t *testing.T) {
	e := newTestEnv(t)
	tpl := seedTemplate(t, e)

	resp := e.do(t, http.MethodPost, "/templates/"+tpl.Metadata.ID+"/sessions", nil)
	base := "/sessions/" + decode[sessionState](t, resp).Token

	resp = e.do(t, http.MethodGet, base+"/surface?adapter=node", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[surfaceView](t, resp)
	assert.Equal(t, 300.0, view.Width)
	assert.Len(t, view.Nodes, 2)
	assert.Empty(t, view.Objects)

	resp = e.do(t, http.MethodPost, base+"/surface", map[string]any{"op": "move", "id": "band", "x": 12, "y": 8})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[sessionState](t, resp)
	assert.True(t, state.CanUndo)
	for _, el := range state.Document.Elements {
		if el.ID == "band" {
			assert.Equal(t, 12.0, el.X)
			assert.Equal(t, 8.0, el.Y)
		}
	}

	resp = e.do(t, http.MethodPost, base+"/surface", map[string]any{"adapter": "node", "op": "lock", "id": "band", "locked": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, base+"/surface", map[string]any{"adapter": "node", "op": "dragEnd", "id": "band", "x": 1, "y": 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, base+"/surface", map[string]any{"op": "spin", "id": "band"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, base+"/surface", map[string]any{"op": "move", "id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
