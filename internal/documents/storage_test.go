package documents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

// newTestStorage создаёт хранилище в памяти с предсказуемыми префиксами f1, f2, ...
func newTestStorage(t *testing.T, fs afero.Fs) *Storage {
	t.Helper()
	s, err := NewStorage(fs, "uploads")
	require.NoError(t, err)
	n := 0
	s.newPrefix = func() string {
		n++
		return fmt.Sprintf("f%d", n)
	}
	return s
}

func TestSave_WritesUnderApplicationDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newTestStorage(t, fs)

	ref, err := s.Save(context.Background(), "app-1", "aadhaar.pdf", strings.NewReader("scan"))
	require.NoError(t, err)
	assert.Equal(t, "app-1/f1-aadhaar.pdf", ref)

	data, err := afero.ReadFile(fs, filepath.Join("uploads", "app-1", "f1-aadhaar.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "scan", string(data))
}

func TestSave_SameNameKeepsBothFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewStorage(fs, "uploads")
	require.NoError(t, err)

	first, err := s.Save(context.Background(), "app-1", "aadhaar.pdf", strings.NewReader("FIRST"))
	require.NoError(t, err)
	second, err := s.Save(context.Background(), "app-1", "aadhaar.pdf", strings.NewReader("SECOND"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(first, "-aadhaar.pdf"))

	data, err := afero.ReadFile(fs, filepath.Join("uploads", first))
	require.NoError(t, err)
	assert.Equal(t, "FIRST", string(data))

	data, err = afero.ReadFile(fs, filepath.Join("uploads", second))
	require.NoError(t, err)
	assert.Equal(t, "SECOND", string(data))
}

func TestSave_NeverOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newTestStorage(t, fs)
	s.newPrefix = func() string { return "same" }

	_, err := s.Save(context.Background(), "app-1", "a.pdf", strings.NewReader("FIRST"))
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "app-1", "a.pdf", strings.NewReader("SECOND"))
	require.Error(t, err)

	data, err := afero.ReadFile(fs, filepath.Join("uploads", "app-1", "same-a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "FIRST", string(data))
}

func TestSave_StripsDirectories(t *testing.T) {
	s := newTestStorage(t, afero.NewMemMapFs())

	ref, err := s.Save(context.Background(), "app-1", "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "app-1/f1-passwd", ref)

	ref, err = s.Save(context.Background(), "app-1", `C:\docs\income.pdf`, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "app-1/f2-income.pdf", ref)
}

func TestSave_RejectsEmptyName(t *testing.T) {
	s, err := NewStorage(afero.NewMemMapFs(), "uploads")
	require.NoError(t, err)

	for _, name := range []string{"", "  ", "..", "."} {
		_, err := s.Save(context.Background(), "app-1", name, strings.NewReader("x"))
		assert.ErrorIs(t, err, model.ErrValidation, "name %q", name)
	}
}

func TestSave_RejectsApplicationPath(t *testing.T) {
	s, err := NewStorage(afero.NewMemMapFs(), "uploads")
	require.NoError(t, err)

	for _, id := range []string{"../other", "a/b", ""} {
		_, err := s.Save(context.Background(), id, "a.pdf", strings.NewReader("x"))
		assert.ErrorIs(t, err, model.ErrValidation, "id %q", id)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSave_RemovesPartialFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newTestStorage(t, fs)

	_, err := s.Save(context.Background(), "app-1", "a.pdf", failingReader{})
	require.Error(t, err)

	exists, err := afero.Exists(fs, filepath.Join("uploads", "app-1", "f1-a.pdf"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newTestStorage(t, fs)

	ref, err := s.Save(context.Background(), "app-1", "a.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ref))

	exists, err := afero.Exists(fs, filepath.Join("uploads", "app-1", "f1-a.pdf"))
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, s.Remove("bad"), model.ErrValidation)
}
