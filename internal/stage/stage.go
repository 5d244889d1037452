// Package stage writes generated files to ephemeral storage before publishing.
package stage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/ShayCichocki/appforge/pkg/models"
)

// Stager owns a filesystem used for per-run scratch directories.
type Stager struct {
	fs afero.Fs
}

// New creates a Stager on the given filesystem.
func New(fs afero.Fs) *Stager {
	return &Stager{fs: fs}
}

// NewOS creates a Stager on the host temp directory.
func NewOS() *Stager {
	return New(afero.NewOsFs())
}

// Area is one run's staging directory.
type Area struct {
	fs    afero.Fs
	dir   string
	paths []string
}

// Stage writes the files into a fresh temporary directory and returns the area.
// The caller must call Cleanup when done.
func (s *Stager) Stage(prefix string, files []models.File) (*Area, error) {
	dir, err := afero.TempDir(s.fs, "", prefix)
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	area := &Area{fs: s.fs, dir: dir}
	for _, f := range files {
		if filepath.IsAbs(f.Path) || f.Path != filepath.Clean(f.Path) ||
			f.Path == ".." || strings.HasPrefix(f.Path, "../") {
			area.Cleanup()
			return nil, fmt.Errorf("refusing to stage unsafe path %q", f.Path)
		}
		full := filepath.Join(dir, f.Path)
		if err := s.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
			area.Cleanup()
			return nil, fmt.Errorf("create dir for %s: %w", f.Path, err)
		}
		if err := afero.WriteFile(s.fs, full, []byte(f.Content), 0644); err != nil {
			area.Cleanup()
			return nil, fmt.Errorf("write %s: %w", f.Path, err)
		}
		area.paths = append(area.paths, f.Path)
	}
	return area, nil
}

// Dir returns the staging directory.
func (a *Area) Dir() string {
	return a.dir
}

// Files reads the staged files back in the order they were written.
func (a *Area) Files() ([]models.File, error) {
	files := make([]models.File, 0, len(a.paths))
	for _, p := range a.paths {
		data, err := afero.ReadFile(a.fs, filepath.Join(a.dir, p))
		if err != nil {
			return nil, fmt.Errorf("read staged %s: %w", p, err)
		}
		files = append(files, models.File{Path: p, Content: string(data)})
	}
	return files, nil
}

// Cleanup removes the staging directory.
func (a *Area) Cleanup() error {
	return a.fs.RemoveAll(a.dir)
}
