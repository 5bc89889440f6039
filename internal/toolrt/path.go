// Package toolrt is the sandboxed tool runtime (spec.md §4.4): a registry
// of named tools, each confined to a workspace root, with pagination for
// oversized output and JSON-schema validation of arguments before
// dispatch.
package toolrt

import (
	"path/filepath"
	"strings"

	"github.com/fleetforge/conductor/pkg/model"
)

// Resolver confines relative paths to a workspace root, rejecting any path
// that would escape it via "..". This is the exact path-containment
// invariant spec.md §8 requires.
type Resolver struct {
	Root string
}

// Resolve cleans path, joins it under Root if relative, and rejects the
// result if it would land outside Root.
func (r Resolver) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	path = filepath.Clean(path)

	root, err := filepath.Abs(r.Root)
	if err != nil {
		return "", &model.FilesystemError{Path: path, Err: err}
	}

	var abs string
	if filepath.IsAbs(path) {
		abs = path
	} else {
		abs = filepath.Join(root, path)
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", &model.FilesystemError{Path: path, Err: err}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &model.FilesystemError{Path: path, Err: errEscapesWorkspace}
	}
	return abs, nil
}

var errEscapesWorkspace = pathError("path escapes workspace")

type pathError string

func (e pathError) Error() string { return string(e) }
