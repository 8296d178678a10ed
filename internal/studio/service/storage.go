package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ============================================================
// File Storage
// ============================================================

type FileStorage struct {
	root string
}

func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

func (s *FileStorage) Root() string { return s.root }

func (s *FileStorage) TemplateDir(templateID string) string {
	return filepath.Join(s.root, cleanName(templateID))
}

func (s *FileStorage) UploadsDir(templateID string) string {
	return filepath.Join(s.TemplateDir(templateID), "uploads")
}

func (s *FileStorage) UploadPath(templateID, filename string) string {
	return filepath.Join(s.UploadsDir(templateID), cleanName(filename))
}

func (s *FileStorage) ExportsDir(templateID string) string {
	return filepath.Join(s.TemplateDir(templateID), "exports")
}

func (s *FileStorage) ExportPath(templateID, filename string) string {
	return filepath.Join(s.ExportsDir(templateID), cleanName(filename))
}

// SaveUpload keeps the original bytes of an imported file.
func (s *FileStorage) SaveUpload(templateID, filename string, data []byte) (string, error) {
	if err := ensureDir(s.UploadsDir(templateID), "uploads"); err != nil {
		return "", err
	}
	target := s.UploadPath(templateID, filename)
	return target, os.WriteFile(target, data, 0o644)
}

func (s *FileStorage) SaveExport(templateID, filename string, data []byte) (string, error) {
	if err := ensureDir(s.ExportsDir(templateID), "exports"); err != nil {
		return "", err
	}
	target := s.ExportPath(templateID, filename)
	return target, os.WriteFile(target, data, 0o644)
}

// RemoveTemplate deletes everything stored for a template.
func (s *FileStorage) RemoveTemplate(templateID string) error {
	return os.RemoveAll(s.TemplateDir(templateID))
}

func ensureDir(path, what string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s dir: %w", what, err)
	}
	return nil
}

// cleanName keeps only the final path element so callers cannot escape
// the storage root.
func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "_"
	}
	return name
}
