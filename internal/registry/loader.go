package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gpuserve/internal/artifacts"
	"gpuserve/internal/common/fsutil"
	"gpuserve/pkg/types"
)

// LoadDir scans an artifact cache directory for models--org--name folders
// and returns one entry per recorded ref. ID is the repo id, Path the
// absolute snapshot directory. A missing cache dir yields an empty list.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Model{}, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	models := []types.Model{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		repo, ok := artifacts.RepoFromFolder(e.Name())
		if !ok {
			continue
		}
		refs, err := os.ReadDir(filepath.Join(abs, e.Name(), "refs"))
		if err != nil {
			continue
		}
		for _, r := range refs {
			if r.IsDir() {
				continue
			}
			commit, err := artifacts.ReadRef(abs, repo, r.Name())
			if err != nil {
				continue
			}
			p, err := artifacts.LocalSnapshot(abs, repo, r.Name())
			if err != nil {
				continue
			}
			models = append(models, types.Model{ID: repo, Revision: r.Name(), Commit: commit, Path: p})
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].ID != models[j].ID {
			return models[i].ID < models[j].ID
		}
		return models[i].Revision < models[j].Revision
	})
	return models, nil
}
