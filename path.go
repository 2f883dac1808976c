package mom

import (
	"fmt"
	"strings"
)

// PathSeparator separates LUIDs in a GUID
const PathSeparator = "."

// SegmentPolicy decides what happens to empty segments such as the middle
// one in "a..b", or a leading or trailing separator.
type SegmentPolicy int

const (
	// RejectEmptySegments fails paths containing empty segments with ErrInvalidPath
	RejectEmptySegments SegmentPolicy = iota
	// SkipEmptySegments drops empty segments, so "a..b" addresses "a.b"
	SkipEmptySegments
	// LiteralEmptySegments treats an empty segment as a LUID equal to ""
	LiteralEmptySegments
)

func (p SegmentPolicy) String() string {
	switch p {
	case RejectEmptySegments:
		return "reject"
	case SkipEmptySegments:
		return "skip"
	case LiteralEmptySegments:
		return "literal"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseSegmentPolicy converts a policy name as returned by String
func ParseSegmentPolicy(s string) (SegmentPolicy, error) {
	switch strings.ToLower(s) {
	case "", "reject":
		return RejectEmptySegments, nil
	case "skip":
		return SkipEmptySegments, nil
	case "literal":
		return LiteralEmptySegments, nil
	default:
		return 0, fmt.Errorf("unknown segment policy %q", s)
	}
}

// Split breaks a GUID into LUIDs under the given policy. The empty path
// yields no segments and addresses the root.
func Split(path string, policy SegmentPolicy) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, PathSeparator)
	switch policy {
	case LiteralEmptySegments:
		return parts, nil
	case SkipEmptySegments:
		out := parts[:0]
		for _, p := range parts {
			if p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		for _, p := range parts {
			if p == "" {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
			}
		}
		return parts, nil
	}
}

// Join builds a GUID from LUIDs
func Join(luids ...string) string {
	return strings.Join(luids, PathSeparator)
}

// joinGUID derives a child's GUID. Children of the root are addressed by
// their LUID alone.
func joinGUID[T any](parent *Signal[T], luid string) string {
	if parent.parent == noRoot {
		return luid
	}
	return parent.guid + PathSeparator + luid
}
