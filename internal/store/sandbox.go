package store

import (
	"path/filepath"
	"strings"

	"github.com/gravwell/x32mgr/internal/errs"
)

// sanitizeFilename enforces the sandbox rule: strip nothing
// silently — reject outright. A filename containing a path separator,
// a `..` component, or that resolves (relative to root) outside root's
// canonical form fails with PATH_ESCAPE or INVALID_FILENAME.
func sanitizeFilename(root, name string) (string, error) {
	if name == "" {
		return "", errs.New("store.sanitizeFilename", errs.InvalidFilename, nil)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", errs.New("store.sanitizeFilename", errs.InvalidFilename, nil)
	}
	for _, r := range name {
		if r < 0x20 {
			return "", errs.New("store.sanitizeFilename", errs.InvalidFilename, nil)
		}
	}
	if filepath.IsAbs(name) {
		return "", errs.New("store.sanitizeFilename", errs.PathEscape, nil)
	}
	if strings.Contains(name, "..") {
		return "", errs.New("store.sanitizeFilename", errs.PathEscape, nil)
	}

	canonicalRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errs.New("store.sanitizeFilename", errs.PathEscape, err)
	}
	full := filepath.Join(canonicalRoot, name)
	rel, err := filepath.Rel(canonicalRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.New("store.sanitizeFilename", errs.PathEscape, nil)
	}
	return full, nil
}
