package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/feedback"
)

// FileRepository keeps all feedback in one indented JSON file.
type FileRepository struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewFileRepository(fsys afero.Fs, path string) *FileRepository {
	return &FileRepository{fs: fsys, path: path}
}

func (r *FileRepository) read() ([]domain.Entry, error) {
	raw, err := afero.ReadFile(r.fs, r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []domain.Entry{}, nil
	}
	var out []domain.Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FileRepository) Append(_ context.Context, e domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.read()
	if err != nil {
		return err
	}
	list = append(list, e)
	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	// tulis ke file sementara dulu, lalu rename
	tmp := r.path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, raw, 0o644); err != nil {
		return err
	}
	return r.fs.Rename(tmp, r.path)
}

func (r *FileRepository) List(_ context.Context) ([]domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}
