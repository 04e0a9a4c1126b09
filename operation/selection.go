package operation

import (
	"errors"
	"fmt"

	"github.com/buildbuildio/fusion/common"
	"github.com/vektah/gqlparser/v2/ast"
)

var (
	ErrAlreadySealed = errors.New("already sealed")
	errNotSealed     = errors.New("read before seal")
)

// FieldSyntax is one occurrence of a field in the document together with
// the include mask accumulated on the way to it.
type FieldSyntax struct {
	Node *ast.Field
	Mask uint64
}

// Selection is one response name of a SelectionSet. Several document
// occurrences of the same response name are merged into one Selection.
type Selection struct {
	id           int
	responseName string
	field        *ast.FieldDefinition
	syntaxNodes  []FieldSyntax
	includeMasks []uint64
	internal     bool
	leaf         bool

	declaringSelectionSet *SelectionSet
}

func (s *Selection) ID() int {
	return s.id
}

func (s *Selection) ResponseName() string {
	return s.responseName
}

func (s *Selection) Field() *ast.FieldDefinition {
	return s.field
}

func (s *Selection) FieldName() string {
	return s.field.Name
}

func (s *Selection) Type() *ast.Type {
	return s.field.Type
}

func (s *Selection) NamedType() string {
	return s.field.Type.Name()
}

// SyntaxNodes returns every document occurrence of the selection. Callers must not modify it.
func (s *Selection) SyntaxNodes() []FieldSyntax {
	return s.syntaxNodes
}

// Arguments of the first occurrence; merged occurrences carry identical arguments.
func (s *Selection) Arguments() ast.ArgumentList {
	return s.syntaxNodes[0].Node.Arguments
}

// IncludeMasks are OR-combined: the selection is included when any mask is a subset of the flags.
func (s *Selection) IncludeMasks() []uint64 {
	return s.includeMasks
}

func (s *Selection) IsConditional() bool {
	return len(s.includeMasks) > 0
}

func (s *Selection) IsIncluded(flags uint64) bool {
	return isIncludedByMasks(s.includeMasks, flags)
}

// IsInternal reports whether the selection was injected for planning and is hidden from the client.
func (s *Selection) IsInternal() bool {
	return s.internal
}

func (s *Selection) IsLeaf() bool {
	return s.leaf
}

func (s *Selection) IsTypename() bool {
	return s.field.Name == common.TypenameFieldName
}

func (s *Selection) DeclaringSelectionSet() *SelectionSet {
	if s.declaringSelectionSet == nil {
		panic(fmt.Errorf("selection %q: %w", s.responseName, errNotSealed))
	}
	return s.declaringSelectionSet
}

func (s *Selection) seal(ss *SelectionSet) error {
	if s.declaringSelectionSet != nil {
		return fmt.Errorf("selection %q: %w", s.responseName, ErrAlreadySealed)
	}
	s.declaringSelectionSet = ss
	return nil
}

// SelectionSet is the immutable list of selections for one concrete object type.
type SelectionSet struct {
	id          int
	typ         *ast.Definition
	selections  []*Selection
	byName      map[string]*Selection
	conditional bool

	operation *Operation
}

func (ss *SelectionSet) ID() int {
	return ss.id
}

func (ss *SelectionSet) Type() *ast.Definition {
	return ss.typ
}

// Selections in document order. Callers must not modify the slice.
func (ss *SelectionSet) Selections() []*Selection {
	return ss.selections
}

func (ss *SelectionSet) Get(responseName string) (*Selection, bool) {
	s, ok := ss.byName[responseName]
	return s, ok
}

// IsConditional reports whether any selection carries include masks.
func (ss *SelectionSet) IsConditional() bool {
	return ss.conditional
}

func (ss *SelectionSet) DeclaringOperation() *Operation {
	if ss.operation == nil {
		panic(fmt.Errorf("selection set %d of %s: %w", ss.id, ss.typ.Name, errNotSealed))
	}
	return ss.operation
}

func (ss *SelectionSet) seal(op *Operation) error {
	if ss.operation != nil {
		return fmt.Errorf("selection set %d of %s: %w", ss.id, ss.typ.Name, ErrAlreadySealed)
	}
	ss.operation = op
	return nil
}
