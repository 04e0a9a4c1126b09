package operation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
)

// Element is either a *Selection or a *SelectionSet.
type Element interface {
	ID() int
}

type selectionSetKey struct {
	selectionID int
	typeName    string
}

// Operation is a compiled operation. It is immutable apart from the lazily
// filled cache of nested selection sets and can be shared between requests.
type Operation struct {
	id         string
	hash       string
	definition *ast.OperationDefinition
	rootType   *ast.Definition
	schema     *ast.Schema
	root       *SelectionSet

	includeConditions *IncludeConditionCollection
	compiler          *Compiler

	// mu serializes nested selection set compilation and id allocation.
	mu            sync.Mutex
	lastID        int
	selectionSets sync.Map

	elementsMu sync.RWMutex
	elements   []Element
}

func (op *Operation) ID() string {
	return op.id
}

func (op *Operation) Hash() string {
	return op.hash
}

func (op *Operation) Name() string {
	return op.definition.Name
}

func (op *Operation) Type() ast.Operation {
	return op.definition.Operation
}

// Definition returns the rewritten document the operation was compiled from.
func (op *Operation) Definition() *ast.OperationDefinition {
	return op.definition
}

func (op *Operation) RootType() *ast.Definition {
	return op.rootType
}

func (op *Operation) Schema() *ast.Schema {
	return op.schema
}

func (op *Operation) RootSelectionSet() *SelectionSet {
	return op.root
}

func (op *Operation) IncludeConditions() *IncludeConditionCollection {
	return op.includeConditions
}

// CreateIncludeFlags computes the runtime include mask for the given variables.
func (op *Operation) CreateIncludeFlags(variables map[string]interface{}) (uint64, error) {
	return op.includeConditions.CreateIncludeFlags(variables)
}

// GetSelectionSet returns the selection set of sel for the concrete object type,
// compiling it on first access.
func (op *Operation) GetSelectionSet(sel *Selection, typeName string) (*SelectionSet, error) {
	key := selectionSetKey{selectionID: sel.id, typeName: typeName}
	if v, ok := op.selectionSets.Load(key); ok {
		return v.(*SelectionSet), nil
	}

	op.mu.Lock()
	defer op.mu.Unlock()

	if v, ok := op.selectionSets.Load(key); ok {
		return v.(*SelectionSet), nil
	}

	typ, err := op.concreteType(sel, typeName)
	if err != nil {
		return nil, err
	}

	seeds := make([]seed, 0, len(sel.syntaxNodes))
	for _, n := range sel.syntaxNodes {
		if len(n.Node.SelectionSet) > 0 {
			seeds = append(seeds, seed{selectionSet: n.Node.SelectionSet, mask: n.Mask})
		}
	}

	ss, err := op.compiler.compileSelectionSet(op, typ, seeds)
	if err != nil {
		return nil, err
	}
	if err := ss.seal(op); err != nil {
		return nil, err
	}

	op.selectionSets.Store(key, ss)
	return ss, nil
}

func (op *Operation) concreteType(sel *Selection, typeName string) (*ast.Definition, error) {
	if sel.leaf {
		return nil, fmt.Errorf("selection %q of type %s has no sub selections", sel.responseName, sel.NamedType())
	}
	typ := op.schema.Types[typeName]
	if typ == nil || typ.Kind != ast.Object {
		return nil, fmt.Errorf("%w: %s is not an object type", ErrUnknownType, typeName)
	}
	for _, pt := range op.PossibleTypes(sel) {
		if pt.Name == typeName {
			return typ, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a possible type of %s", ErrUnknownType, typeName, sel.NamedType())
}

// PossibleTypes returns the concrete object types sel can resolve to, ordered by name.
func (op *Operation) PossibleTypes(sel *Selection) []*ast.Definition {
	named := op.schema.Types[sel.NamedType()]
	if named == nil {
		return nil
	}
	switch {
	case named.Kind == ast.Object:
		return []*ast.Definition{named}
	case named.IsAbstractType():
		types := append([]*ast.Definition(nil), op.schema.GetPossibleTypes(named)...)
		sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
		return types
	}
	return nil
}

// IsAbstract reports whether the named type of sel is an interface or union.
func (op *Operation) IsAbstract(sel *Selection) bool {
	named := op.schema.Types[sel.NamedType()]
	return named != nil && named.IsAbstractType()
}

// ElementByID returns the selection or selection set with the given id.
func (op *Operation) ElementByID(id int) (Element, bool) {
	op.elementsMu.RLock()
	defer op.elementsMu.RUnlock()
	if id < 0 || id >= len(op.elements) || op.elements[id] == nil {
		return nil, false
	}
	return op.elements[id], true
}

// nextID must be called with op.mu held or before the operation is published.
func (op *Operation) nextID() int {
	id := op.lastID
	op.lastID++
	return id
}

func (op *Operation) register(e Element) {
	op.elementsMu.Lock()
	defer op.elementsMu.Unlock()

	id := e.ID()
	if id >= len(op.elements) {
		size := len(op.elements)
		if size == 0 {
			size = 16
		}
		for size <= id {
			size *= 2
		}
		grown := make([]Element, size)
		copy(grown, op.elements)
		op.elements = grown
	}
	op.elements[id] = e
}
