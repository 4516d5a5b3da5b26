package smbcore

import "strings"

// PathRef is a canonicalized, share-relative path: a list of non-empty
// segments with no "." or "..", no leading or trailing slash. The zero value
// is the root.
type PathRef struct {
	segments []string
}

// rootPath is the empty PathRef, named for readability at call sites.
var rootPath = PathRef{}

// NewPathRef builds a PathRef from already-validated segments, joining each
// through Join so the usual invariants are enforced.
func NewPathRef(segments ...string) (PathRef, error) {
	p := rootPath
	for _, seg := range segments {
		var err error
		p, err = p.Join(seg)
		if err != nil {
			return PathRef{}, err
		}
	}
	return p, nil
}

// Join validates name (§4.E) and returns the PathRef for p/name. name must
// not contain '/', '\\', a NUL byte, and must not be "." or "..".
func (p PathRef) Join(name string) (PathRef, error) {
	if err := validateName(name); err != nil {
		return PathRef{}, err
	}
	next := make([]string, len(p.segments)+1)
	copy(next, p.segments)
	next[len(p.segments)] = name
	return PathRef{segments: next}, nil
}

// validateName rejects names that cannot be a single path segment.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return invalidNameError("join", name)
	}
	if strings.ContainsAny(name, "/\\") || strings.IndexByte(name, 0) >= 0 {
		return invalidNameError("join", name)
	}
	return nil
}

// IsRoot reports whether p names the share root.
func (p PathRef) IsRoot() bool { return len(p.segments) == 0 }

// Base returns the last segment, or "" at the root.
func (p PathRef) Base() string {
	if p.IsRoot() {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Parent returns the PathRef one level up and true, or the zero value and
// false if p is already the root.
func (p PathRef) Parent() (PathRef, bool) {
	if p.IsRoot() {
		return PathRef{}, false
	}
	return PathRef{segments: append([]string{}, p.segments[:len(p.segments)-1]...)}, true
}

// Segments returns a defensive copy of the path's segments.
func (p PathRef) Segments() []string {
	return append([]string{}, p.segments...)
}

// String renders the forward-slash-joined, share-relative form ("" at root).
func (p PathRef) String() string {
	return strings.Join(p.segments, "/")
}

// Equal reports byte-identical equality after normalization; PathRef carries
// no case-folding of its own (a server that is case-insensitive will resolve
// differently-cased PathRefs to the same entry server-side regardless).
func (p PathRef) Equal(other PathRef) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// smbPath renders the backslash-joined SMB wire form go-smb2 expects, with
// no leading separator.
func (p PathRef) smbPath() string {
	return strings.Join(p.segments, "\\")
}

// isDescendant implements §4.E: returns the relative segment list from
// anchor to cand when cand has anchor as a path prefix, else (nil, false).
// Callers are responsible for first checking that the endpoints match.
func isDescendant(anchor, cand PathRef) ([]string, bool) {
	if len(cand.segments) < len(anchor.segments) {
		return nil, false
	}
	for i, seg := range anchor.segments {
		if cand.segments[i] != seg {
			return nil, false
		}
	}
	rel := cand.segments[len(anchor.segments):]
	return append([]string{}, rel...), true
}
