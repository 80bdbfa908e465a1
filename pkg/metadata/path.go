package metadata

import "strings"

// ============================================================================
// Path Helpers
// ============================================================================
//
// Paths in synkerd are always a derived view over parent links, never stored
// truth. These helpers define the one canonical path syntax used across the
// stores and the delta-sync engine:
//
//   - Absolute, "/"-separated, rooted at the per-user root "/"
//   - No empty segments, no "." or ".." segments
//   - No trailing slash except for the root itself

// CleanPath normalizes a client-supplied path to canonical form.
//
// Returns the canonical path, or ErrInvalidArgument if the path contains
// empty, "." or ".." segments.
func CleanPath(path string) (string, error) {
	if path == "" || path == "/" {
		return "/", nil
	}

	segments, err := SplitPath(path)
	if err != nil {
		return "", err
	}

	return "/" + strings.Join(segments, "/"), nil
}

// SplitPath splits a canonical or client-supplied path into name segments.
// The root path yields an empty slice.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}

	segments := strings.Split(trimmed, "/")
	for _, segment := range segments {
		if err := ValidateName(segment); err != nil {
			return nil, err
		}
	}

	return segments, nil
}

// JoinPath joins a canonical directory path and a child name.
func JoinPath(dir, name string) string {
	if dir == "/" || dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}

// ParentPath returns the directory portion of a canonical path.
// The parent of "/" is "/".
func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// BaseName returns the final segment of a canonical path, or "" for the root.
func BaseName(path string) string {
	if path == "/" || path == "" {
		return ""
	}
	return path[strings.LastIndex(path, "/")+1:]
}

// ValidateName checks that a single node name is legal.
func ValidateName(name string) error {
	switch {
	case name == "":
		return NewError(ErrInvalidArgument, "empty name", "")
	case name == "." || name == "..":
		return NewError(ErrInvalidArgument, "reserved name", name)
	case strings.ContainsAny(name, "/\x00"):
		return NewError(ErrInvalidArgument, "name contains illegal character", name)
	}
	return nil
}

// PathWithin reports whether path lies within folder (or equals it).
// Folder must be canonical; an empty or root folder matches everything.
func PathWithin(path, folder string) bool {
	if folder == "" || folder == "/" {
		return true
	}
	return path == folder || strings.HasPrefix(path, folder+"/")
}
