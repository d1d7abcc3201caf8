package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Repository loads review plans produced by completed sessions
type Repository interface {
	// Load returns the plan for repo, or (nil, false, nil) when the
	// session produced none
	Load(repo string) (*Plan, bool, error)
}

// FileRepository reads plans from <dir>/<owner>--<name>.json. Backed by
// afero so tests run on an in-memory filesystem.
type FileRepository struct {
	fs  afero.Fs
	dir string
}

// NewFileRepository creates a plan repository over the OS filesystem
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{fs: afero.NewOsFs(), dir: dir}
}

// NewFileRepositoryWithFs creates a plan repository over a custom filesystem
func NewFileRepositoryWithFs(fsys afero.Fs, dir string) *FileRepository {
	return &FileRepository{fs: fsys, dir: dir}
}

// Load reads and validates the plan document for repo
func (r *FileRepository) Load(repo string) (*Plan, bool, error) {
	path := filepath.Join(r.dir, PlanFileName(repo))
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read plan %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("plan %s: %w", path, err)
	}
	if p.Repo != repo {
		return nil, false, fmt.Errorf("plan %s names repo %q, expected %q", path, p.Repo, repo)
	}
	return p, true, nil
}

// PlanFileName maps "owner/name" onto a flat file name
func PlanFileName(repo string) string {
	return strings.ReplaceAll(repo, "/", "--") + ".json"
}

var _ Repository = (*FileRepository)(nil)
