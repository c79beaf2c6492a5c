// Package security holds filesystem guards for the files webrecon writes:
// the scan archive and exported bundles.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape indicates the resolved path would escape the trusted root directory.
var ErrPathEscape = errors.New("path escapes base directory")

// DefaultArchiveName is the archive file created inside the data directory.
const DefaultArchiveName = "webrecon.db"

// ResolveWithin joins elems under base and rejects results that leave base.
// The returned path is absolute and cleaned.
func ResolveWithin(base string, elems ...string) (string, error) {
	if base == "" {
		return "", errors.New("base directory is required")
	}
	root, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}

	target := filepath.Join(append([]string{root}, elems...)...)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("relativize path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, target)
	}
	return target, nil
}

// ArchivePath resolves the archive file name inside the data directory. The
// name must be a plain file name.
func ArchivePath(dataDir, name string) (string, error) {
	if name == "" {
		name = DefaultArchiveName
	}
	switch {
	case name == "." || name == "..":
		return "", fmt.Errorf("archive name %q is reserved", name)
	case strings.ContainsAny(name, `/\`):
		return "", fmt.Errorf("archive name %q must not contain path separators", name)
	}
	return ResolveWithin(dataDir, name)
}
