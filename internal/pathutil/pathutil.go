// Package pathutil implements canonicalization of native filesystem paths
// and the archive path grammar they map to.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ArchiveScheme is the reserved marker archive paths are rooted at.
const ArchiveScheme = "ar:/"

// SanitizedLocalPath is an absolute, canonicalized native path. Two
// SanitizedLocalPath values are equal iff they are byte-equal.
type SanitizedLocalPath struct {
	s string
}

// String returns the canonical path string.
func (p SanitizedLocalPath) String() string { return p.s }

// IsZero reports whether p is the zero value.
func (p SanitizedLocalPath) IsZero() bool { return p.s == "" }

// Base returns the final path segment.
func (p SanitizedLocalPath) Base() string { return filepath.Base(p.s) }

// Join returns a new SanitizedLocalPath with name appended as a child.
// name must not contain a path separator.
func (p SanitizedLocalPath) Join(name string) (SanitizedLocalPath, error) {
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return SanitizedLocalPath{}, fmt.Errorf("pathutil: invalid child name %q", name)
	}

	return SanitizedLocalPath{s: filepath.Join(p.s, name)}, nil
}

// Sanitize resolves raw to an absolute, symlink-resolved, NFC-normalized
// path. Symlinks in the leading (parent) portion are followed; the final
// component is left alone so callers can distinguish a symlink leaf from its
// target (see rammingen's symlink-as-file-content policy in the sync
// engine).
func Sanitize(raw string) (SanitizedLocalPath, error) {
	if raw == "" {
		return SanitizedLocalPath{}, fmt.Errorf("pathutil: empty path")
	}

	if strings.ContainsRune(raw, 0) {
		return SanitizedLocalPath{}, fmt.Errorf("pathutil: path %q contains NUL", raw)
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return SanitizedLocalPath{}, fmt.Errorf("pathutil: resolving %q: %w", raw, err)
	}

	dir, base := filepath.Split(abs)

	resolvedDir, err := filepath.EvalSymlinks(strings.TrimSuffix(dir, string(filepath.Separator)))
	if err != nil {
		// Parent does not exist yet (e.g. a path about to be created);
		// fall back to the unresolved, cleaned form.
		resolvedDir = filepath.Clean(dir)
	}

	clean := filepath.Clean(filepath.Join(resolvedDir, base))
	clean = norm.NFC.String(clean)

	if clean == "" || clean == "." {
		return SanitizedLocalPath{}, fmt.Errorf("pathutil: path %q sanitizes to empty", raw)
	}

	return SanitizedLocalPath{s: clean}, nil
}

// RelativeTo returns the ordered native segments of p relative to root.
// It fails if p is not a descendant of root (or is root itself — the
// caller is expected to handle the zero-length "is the mount root" case
// separately when that is meaningful).
func (p SanitizedLocalPath) RelativeTo(root SanitizedLocalPath) ([]string, error) {
	rel, err := filepath.Rel(root.s, p.s)
	if err != nil {
		return nil, fmt.Errorf("pathutil: %q is not relative to %q: %w", p.s, root.s, err)
	}

	if rel == "." {
		return nil, nil
	}

	if strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("pathutil: %q is not a descendant of %q", p.s, root.s)
	}

	return strings.Split(rel, string(filepath.Separator)), nil
}

// NativeToArchiveRelative translates native path segments into a relative
// archive path (no leading "ar:/"), rejecting any segment containing "/"
// or equal to "." or "..".
func NativeToArchiveRelative(segments []string) (string, error) {
	for _, seg := range segments {
		if seg == "" {
			return "", fmt.Errorf("pathutil: empty archive segment")
		}

		if strings.ContainsRune(seg, '/') {
			return "", fmt.Errorf("pathutil: archive segment %q contains '/'", seg)
		}

		if seg == "." || seg == ".." {
			return "", fmt.Errorf("pathutil: archive segment %q is reserved", seg)
		}
	}

	return strings.Join(segments, "/"), nil
}

// ArchivePath is a hierarchical name in the archive namespace, rooted at
// ArchiveScheme. Forward-slash separated, case-sensitive.
type ArchivePath struct {
	segments []string
}

// RootArchivePath returns the archive root "ar:/".
func RootArchivePath() ArchivePath { return ArchivePath{} }

// ParseArchivePath parses a string of the form "ar:/seg(/seg)*" (or bare
// "ar:/" for the root).
func ParseArchivePath(s string) (ArchivePath, error) {
	if !strings.HasPrefix(s, ArchiveScheme) {
		return ArchivePath{}, fmt.Errorf("pathutil: archive path %q missing %q prefix", s, ArchiveScheme)
	}

	rest := strings.TrimPrefix(s, ArchiveScheme)
	if rest == "" {
		return ArchivePath{}, nil
	}

	parts := strings.Split(rest, "/")
	for _, seg := range parts {
		if err := validateSegment(seg); err != nil {
			return ArchivePath{}, fmt.Errorf("pathutil: archive path %q: %w", s, err)
		}
	}

	return ArchivePath{segments: parts}, nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("empty segment")
	}

	if seg == "." || seg == ".." {
		return fmt.Errorf("segment %q is reserved", seg)
	}

	if strings.ContainsRune(seg, 0) {
		return fmt.Errorf("segment %q contains NUL", seg)
	}

	return nil
}

// Segments returns the path's segments (empty for the root).
func (p ArchivePath) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)

	return out
}

// String renders the canonical "ar:/a/b/c" form.
func (p ArchivePath) String() string {
	if len(p.segments) == 0 {
		return ArchiveScheme
	}

	return ArchiveScheme + strings.Join(p.segments, "/")
}

// Join appends segments to p.
func (p ArchivePath) Join(segments ...string) (ArchivePath, error) {
	out := make([]string, 0, len(p.segments)+len(segments))
	out = append(out, p.segments...)

	for _, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return ArchivePath{}, fmt.Errorf("pathutil: %w", err)
		}

		out = append(out, seg)
	}

	return ArchivePath{segments: out}, nil
}

// Parent returns the parent archive path. Returns (root, false) if p is
// already the root.
func (p ArchivePath) Parent() (ArchivePath, bool) {
	if len(p.segments) == 0 {
		return p, false
	}

	return ArchivePath{segments: p.segments[:len(p.segments)-1]}, true
}

// Base returns the final segment, or "" at the root.
func (p ArchivePath) Base() string {
	if len(p.segments) == 0 {
		return ""
	}

	return p.segments[len(p.segments)-1]
}

// StartsWith reports whether p is prefix (inclusive) or a descendant of
// prefix.
func (p ArchivePath) StartsWith(prefix ArchivePath) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}

	for i, seg := range prefix.segments {
		if p.segments[i] != seg {
			return false
		}
	}

	return true
}

// RelativeTo returns p's segments past the given ancestor prefix. Fails if
// p does not start with prefix.
func (p ArchivePath) RelativeTo(prefix ArchivePath) ([]string, error) {
	if !p.StartsWith(prefix) {
		return nil, fmt.Errorf("pathutil: %q is not a descendant of %q", p.String(), prefix.String())
	}

	return append([]string(nil), p.segments[len(prefix.segments):]...), nil
}

// Depth returns the number of segments (0 at the root).
func (p ArchivePath) Depth() int { return len(p.segments) }

// Equal reports whether p and other denote the same archive path.
func (p ArchivePath) Equal(other ArchivePath) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}

	for i, seg := range p.segments {
		if seg != other.segments[i] {
			return false
		}
	}

	return true
}
