// Package documents хранит загруженные пользователями документы заявок.
package documents

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

// Storage сохраняет файлы в каталоге <dir>/<applicationID>/<prefix>-<filename>.
// Префикс уникален, поэтому повторная загрузка файла с тем же именем не затирает предыдущую.
type Storage struct {
	fs        afero.Fs
	dir       string
	newPrefix func() string
}

// NewLocalStorage создаёт хранилище на локальном диске и при необходимости создаёт каталог.
func NewLocalStorage(dir string) (*Storage, error) {
	return NewStorage(afero.NewOsFs(), dir)
}

// NewStorage создаёт хранилище поверх произвольной файловой системы.
func NewStorage(fs afero.Fs, dir string) (*Storage, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Storage{fs: fs, dir: dir, newPrefix: uuid.NewString}, nil
}

// Save записывает содержимое r и возвращает ссылку на документ вида <applicationID>/<prefix>-<filename>.
func (s *Storage) Save(ctx context.Context, applicationID, filename string, r io.Reader) (string, error) {
	name, err := cleanName(filename)
	if err != nil {
		return "", err
	}
	if id, err := cleanName(applicationID); err != nil || id != applicationID {
		return "", fmt.Errorf("%w: application id %q", model.ErrValidation, applicationID)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.dir, applicationID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create application dir: %w", err)
	}

	name = s.newPrefix() + "-" + name
	full := filepath.Join(dir, name)

	f, err := s.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.fs.Remove(full)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(full)
		return "", fmt.Errorf("close file: %w", err)
	}

	return path.Join(applicationID, name), nil
}

// Remove удаляет документ по ссылке, полученной от Save.
func (s *Storage) Remove(ref string) error {
	parts := strings.Split(ref, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: document reference %q", model.ErrValidation, ref)
	}
	return s.fs.Remove(filepath.Join(s.dir, parts[0], parts[1]))
}

func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("%w: file name %q", model.ErrValidation, name)
	}
	return base, nil
}
