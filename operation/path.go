package operation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSelectionPath = errors.New("invalid selection path")
	ErrNotPrefix            = errors.New("base path is not a prefix")
)

type SegmentKind int

const (
	FieldSegment SegmentKind = iota
	InlineFragmentSegment
)

// Segment is one step of a SelectionPath.
type Segment struct {
	Name string
	Kind SegmentKind
}

// SelectionPath locates a point inside the selection tree of an operation.
// The zero value is the root path. Paths are immutable; every modifying
// method returns a new path.
type SelectionPath struct {
	segments []Segment
}

// Root is the path without segments.
var Root = SelectionPath{}

func (p SelectionPath) append(s Segment) SelectionPath {
	segments := make([]Segment, len(p.segments)+1)
	copy(segments, p.segments)
	segments[len(p.segments)] = s
	return SelectionPath{segments: segments}
}

func (p SelectionPath) AppendField(name string) SelectionPath {
	return p.append(Segment{Name: name, Kind: FieldSegment})
}

func (p SelectionPath) AppendFragment(typeName string) SelectionPath {
	return p.append(Segment{Name: typeName, Kind: InlineFragmentSegment})
}

// Parent returns the path without the last segment; false for the root.
func (p SelectionPath) Parent() (SelectionPath, bool) {
	if p.IsRoot() {
		return Root, false
	}
	return SelectionPath{segments: p.segments[:len(p.segments)-1]}, true
}

func (p SelectionPath) IsRoot() bool {
	return len(p.segments) == 0
}

func (p SelectionPath) Len() int {
	return len(p.segments)
}

// Segments returns a copy of the path segments.
func (p SelectionPath) Segments() []Segment {
	res := make([]Segment, len(p.segments))
	copy(res, p.segments)
	return res
}

func (p SelectionPath) Last() (Segment, bool) {
	if p.IsRoot() {
		return Segment{}, false
	}
	return p.segments[len(p.segments)-1], true
}

func (p SelectionPath) Equal(other SelectionPath) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if other.segments[i] != s {
			return false
		}
	}
	return true
}

// IsParentOfOrSame reports whether p is a prefix of other.
func (p SelectionPath) IsParentOfOrSame(other SelectionPath) bool {
	if len(p.segments) > len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if other.segments[i] != s {
			return false
		}
	}
	return true
}

// RelativeTo strips base from the beginning of p.
func (p SelectionPath) RelativeTo(base SelectionPath) (SelectionPath, error) {
	if !base.IsParentOfOrSame(p) {
		return Root, fmt.Errorf("%w: %s is not a prefix of %s", ErrNotPrefix, base, p)
	}
	if len(base.segments) == len(p.segments) {
		return Root, nil
	}
	return SelectionPath{segments: p.Segments()[len(base.segments):]}, nil
}

// String renders the path as $.field<TypeCondition>.field2
func (p SelectionPath) String() string {
	var sb strings.Builder
	sb.WriteByte('$')
	for _, s := range p.segments {
		switch s.Kind {
		case FieldSegment:
			sb.WriteByte('.')
			sb.WriteString(s.Name)
		case InlineFragmentSegment:
			sb.WriteByte('<')
			sb.WriteString(s.Name)
			sb.WriteByte('>')
		}
	}
	return sb.String()
}

func (p SelectionPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *SelectionPath) UnmarshalText(text []byte) error {
	parsed, err := ParseSelectionPath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseSelectionPath is the inverse of SelectionPath.String.
func ParseSelectionPath(s string) (SelectionPath, error) {
	if len(s) == 0 || s[0] != '$' {
		return Root, fmt.Errorf("%w %q: must start with $", ErrInvalidSelectionPath, s)
	}

	var segments []Segment
	pos := 1
	for pos < len(s) {
		switch s[pos] {
		case '.':
			name, next := readName(s, pos+1)
			if name == "" {
				return Root, fmt.Errorf("%w %q: expected field name at %d", ErrInvalidSelectionPath, s, pos+1)
			}
			segments = append(segments, Segment{Name: name, Kind: FieldSegment})
			pos = next
		case '<':
			name, next := readName(s, pos+1)
			if name == "" {
				return Root, fmt.Errorf("%w %q: expected type name at %d", ErrInvalidSelectionPath, s, pos+1)
			}
			if next >= len(s) || s[next] != '>' {
				return Root, fmt.Errorf("%w %q: unterminated fragment at %d", ErrInvalidSelectionPath, s, pos)
			}
			segments = append(segments, Segment{Name: name, Kind: InlineFragmentSegment})
			pos = next + 1
		default:
			return Root, fmt.Errorf("%w %q: unexpected character %q at %d", ErrInvalidSelectionPath, s, s[pos], pos)
		}
	}

	return SelectionPath{segments: segments}, nil
}

func readName(s string, start int) (string, int) {
	end := start
	for end < len(s) && isNameChar(s[end], end == start) {
		end++
	}
	return s[start:end], end
}

func isNameChar(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
