// Package pathguard derives and validates the per-user working directory
// handed to each Agent Client subprocess, rejecting any input that would
// let a session escape its user's slice of base_dir.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentbroker/broker/internal/apierr"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Resolve derives the absolute cwd for a session: base_dir/user_id,
// optionally joined with subdir. The result is guaranteed to lie within
// base_dir/user_id, or an apierr.Error is returned.
//
// When autoCreateDir is true, the resolved directory (and its parents)
// is created if missing; a pre-existing directory is not an error.
func Resolve(baseDir, userID, subdir string, autoCreateDir bool) (string, error) {
	if !userIDPattern.MatchString(userID) {
		return "", apierr.New(apierr.KindInvalidInput, fmt.Sprintf("invalid user_id %q", userID))
	}

	userRoot := filepath.Join(baseDir, userID)

	cwd := userRoot
	if subdir != "" {
		if filepath.IsAbs(subdir) || containsDotDot(subdir) {
			return "", apierr.New(apierr.KindInvalidInput, fmt.Sprintf("invalid subdir %q", subdir))
		}
		cwd = filepath.Join(userRoot, subdir)
	}
	cwd = filepath.Clean(cwd)

	if !withinRoot(cwd, userRoot) {
		return "", apierr.New(apierr.KindPathEscape, fmt.Sprintf("path %q escapes %q", cwd, userRoot))
	}

	if autoCreateDir {
		if err := os.MkdirAll(cwd, 0755); err != nil {
			return "", fmt.Errorf("pathguard: creating %s: %w", cwd, err)
		}
	}

	return cwd, nil
}

// ResolveAddDir validates one entry of add_dirs against an already
// resolved session cwd: it must be relative and remain under cwd once
// joined.
func ResolveAddDir(cwd, dir string) (string, error) {
	if filepath.IsAbs(dir) || containsDotDot(dir) {
		return "", apierr.New(apierr.KindInvalidInput, fmt.Sprintf("invalid add_dirs entry %q", dir))
	}
	joined := filepath.Clean(filepath.Join(cwd, dir))
	if !withinRoot(joined, cwd) {
		return "", apierr.New(apierr.KindPathEscape, fmt.Sprintf("add_dirs entry %q escapes %q", dir, cwd))
	}
	return joined, nil
}

// withinRoot reports whether path equals root or lies lexically under
// it, after both have been filepath.Clean-ed by the caller.
func withinRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// containsDotDot reports whether any lexical segment of path is "..".
// Checked before joining so a traversal attempt is rejected as
// InvalidInput rather than silently absorbed by filepath.Clean.
func containsDotDot(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
