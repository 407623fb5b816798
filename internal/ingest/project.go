package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/yocore/yocore/internal/config"
	"github.com/yocore/yocore/internal/storage"
)

// resolveProject walks up from filePath to the watch root it belongs to
// and treats the first directory directly beneath that root as the
// project boundary (spec.md §4.4 step 1: "first ancestor directory that
// matches any watch root's naming convention"). A file sitting directly
// in the root, with no intervening directory, belongs to a project whose
// folder is the root itself.
func resolveProject(ctx context.Context, backend storage.Backend, roots []config.WatchRoot, filePath string) (storage.Project, error) {
	matched := matchingRootConfig(roots, filePath)
	root := ""
	if matched != nil {
		root = matched.Path
	}
	projectPath := projectBoundary(root, filePath)
	return backend.UpsertProject(ctx, projectPath, filepath.Base(projectPath))
}

func projectBoundary(root, filePath string) string {
	if root == "" {
		return filepath.Dir(filePath)
	}
	rel, err := filepath.Rel(root, filePath)
	if err != nil {
		return filepath.Dir(filePath)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) <= 1 {
		return root
	}
	return filepath.Join(root, parts[0])
}
