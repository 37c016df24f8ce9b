// Package fileid maps files of a local document tree to stable drive IDs and back.
package fileid

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// LocalPrefix marks IDs of files served from a local directory tree.
const LocalPrefix = "local:"

// ErrInvalidID is returned for IDs that are not local IDs or escape the root.
var ErrInvalidID = errors.New("invalid local file id")

// LocalID returns the ID of the file at rel, a path relative to the drive root.
// The same file always yields the same ID regardless of OS separators.
func LocalID(rel string) string {
	clean := path.Clean(filepath.ToSlash(rel))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." {
		clean = ""
	}
	return LocalPrefix + clean
}

// IsLocal reports whether id was produced by LocalID.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// ToPath resolves a local ID to an OS path under root. IDs pointing outside root are rejected.
func ToPath(root, id string) (string, error) {
	if !IsLocal(id) {
		return "", ErrInvalidID
	}
	rel := strings.TrimPrefix(id, LocalPrefix)
	if rel == "" {
		return filepath.Clean(root), nil
	}
	clean := path.Clean("/" + rel)
	if clean != "/"+rel || strings.Contains(rel, "\\") {
		return "", ErrInvalidID
	}
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
