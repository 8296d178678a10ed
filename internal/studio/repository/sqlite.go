package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"idcard-studio/internal/studio/fields"
	"idcard-studio/internal/studio/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrNotFound = errors.New("not found")

// ============================================================
// SQLite Repository
// ============================================================

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Init applies the embedded migrations in name order.
func (r *Repository) Init(ctx context.Context) error {
	if err := r.runMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// TemplateSummary is a template row without its document body.
type TemplateSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Orientation string    `json:"orientation"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ============================================================
// Templates
// ============================================================

// SaveTemplate stores doc as the next version of its template. A missing
// id is generated. The stored document is returned with its metadata
// version, timestamps and history updated.
func (r *Repository) SaveTemplate(ctx context.Context, doc *models.SceneDocument) (*models.SceneDocument, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	saved := doc.Clone()
	if saved.Metadata == nil {
		saved.Metadata = &models.Metadata{}
	}
	meta := saved.Metadata
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Name == "" {
		meta.Name = "Untitled template"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := r.now()
	var (
		current   int
		createdAt string
	)
	err = tx.QueryRowContext(ctx, `SELECT version, created_at FROM templates WHERE id = ?`, meta.ID).Scan(&current, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		meta.Version = 1
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = now
		}
	case err != nil:
		return nil, err
	default:
		meta.Version = current + 1
		meta.CreatedAt = parseTime(createdAt)
	}
	meta.UpdatedAt = now
	saved.Normalize()
	saved.VersionHistory = append(saved.VersionHistory, models.VersionEntry{
		Version:      meta.Version,
		SavedAt:      now,
		ElementCount: len(saved.Elements),
	})

	body, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO templates (id, name, orientation, version, document, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            orientation = excluded.orientation,
            version = excluded.version,
            document = excluded.document,
            updated_at = excluded.updated_at
    `, meta.ID, meta.Name, meta.Orientation, meta.Version, string(body), formatTime(meta.CreatedAt), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO template_versions (template_id, version, document, saved_at)
        VALUES (?, ?, ?, ?)
    `, meta.ID, meta.Version, string(body), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (*models.SceneDocument, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM templates WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("template %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return decodeDocument(body)
}

// GetTemplateVersion loads a historical snapshot.
func (r *Repository) GetTemplateVersion(ctx context.Context, id string, version int) (*models.SceneDocument, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `
        SELECT document FROM template_versions
        WHERE template_id = ? AND version = ?
    `, id, version).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("template %q version %d: %w", id, version, ErrNotFound)
		}
		return nil, err
	}
	return decodeDocument(body)
}

// ListTemplates returns summaries, most recently updated first.
func (r *Repository) ListTemplates(ctx context.Context) ([]TemplateSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, name, orientation, version, created_at, updated_at
        FROM templates
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TemplateSummary{}
	for rows.Next() {
		var (
			s                    TemplateSummary
			createdAt, updatedAt string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Orientation, &s.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTime(updatedAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *Repository) DeleteTemplate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("template %q: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_versions WHERE template_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ============================================================
// Custom fields
// ============================================================

func (r *Repository) SaveCustomField(ctx context.Context, f fields.DynamicField) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode field: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO custom_fields (id, definition, created_at)
        VALUES (?, ?, ?)
    `, f.ID, string(body), formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("save field %q: %w", f.ID, err)
	}
	return nil
}

// CustomFields returns stored definitions in creation order.
func (r *Repository) CustomFields(ctx context.Context) ([]fields.DynamicField, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT definition FROM custom_fields ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fields.DynamicField
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var f fields.DynamicField
		if err := json.Unmarshal([]byte(body), &f); err != nil {
			return nil, fmt.Errorf("decode field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LoadCustomFields registers every stored definition into reg. Ids that
// collide with fields already in reg are skipped.
func (r *Repository) LoadCustomFields(ctx context.Context, reg *fields.Registry) (int, error) {
	list, err := r.CustomFields(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range list {
		if err := reg.Register(f); err != nil {
			continue
		}
		n++
	}
	return n, nil
}

// ============================================================
// Migrations & helpers
// ============================================================

func (r *Repository) runMigrations(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, entry := range entries {
		data, err := migrations.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func decodeDocument(body string) (*models.SceneDocument, error) {
	var doc models.SceneDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.Normalize()
	return &doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// OpenSQLite opens (and creates) the database at dbPath.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
