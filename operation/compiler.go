package operation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/buildbuildio/fusion/common"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
)

var (
	ErrFieldMergeConflict   = errors.New("fields cannot be merged")
	ErrUnknownField         = errors.New("unknown field")
	ErrUnknownType          = errors.New("unknown type")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

var typenameField = &ast.FieldDefinition{
	Name: common.TypenameFieldName,
	Type: ast.NonNullNamedType("String", nil),
}

// DocumentRewriter statically simplifies an operation before compilation.
type DocumentRewriter interface {
	RewriteOperation(*ast.OperationDefinition) (*ast.OperationDefinition, error)
}

type CompilerOption func(*Compiler)

func WithDocumentRewriter(r DocumentRewriter) CompilerOption {
	return func(c *Compiler) {
		c.rewriter = r
	}
}

// Compiler turns operation documents into Operations for one schema.
type Compiler struct {
	schema   *ast.Schema
	rewriter DocumentRewriter

	fieldMaps sync.Pool
}

func NewCompiler(schema *ast.Schema, options ...CompilerOption) *Compiler {
	c := &Compiler{
		schema: schema,
		fieldMaps: sync.Pool{
			New: func() interface{} {
				return &fieldMap{buckets: make(map[string][]FieldSyntax)}
			},
		},
	}
	for _, optionFunc := range options {
		optionFunc(c)
	}
	return c
}

type seed struct {
	selectionSet ast.SelectionSet
	mask         uint64
}

// fieldMap groups field occurrences by response name in first-seen order.
type fieldMap struct {
	order   []string
	buckets map[string][]FieldSyntax
}

func (m *fieldMap) add(responseName string, s FieldSyntax) {
	if _, ok := m.buckets[responseName]; !ok {
		m.order = append(m.order, responseName)
	}
	m.buckets[responseName] = append(m.buckets[responseName], s)
}

func (c *Compiler) acquireFieldMap() *fieldMap {
	return c.fieldMaps.Get().(*fieldMap)
}

func (c *Compiler) releaseFieldMap(m *fieldMap) {
	m.order = m.order[:0]
	clear(m.buckets)
	c.fieldMaps.Put(m)
}

// Compile builds the Operation for def. Nested selection sets are compiled on demand.
func (c *Compiler) Compile(id, hash string, def *ast.OperationDefinition) (*Operation, error) {
	if c.rewriter != nil {
		rewritten, err := c.rewriter.RewriteOperation(def)
		if err != nil {
			return nil, err
		}
		def = rewritten
	}

	var rootType *ast.Definition
	switch def.Operation {
	case ast.Query, "":
		rootType = c.schema.Query
	case ast.Mutation:
		rootType = c.schema.Mutation
	case ast.Subscription:
		rootType = c.schema.Subscription
	}
	if rootType == nil {
		return nil, fmt.Errorf("%w: schema does not support %s", ErrUnsupportedOperation, def.Operation)
	}

	op := &Operation{
		id:                id,
		hash:              hash,
		definition:        def,
		rootType:          rootType,
		schema:            c.schema,
		includeConditions: NewIncludeConditionCollection(),
		compiler:          c,
	}

	if err := collectIncludeConditions(def.SelectionSet, op.includeConditions, map[string]struct{}{}); err != nil {
		return nil, err
	}

	root, err := c.compileSelectionSet(op, rootType, []seed{{selectionSet: def.SelectionSet}})
	if err != nil {
		return nil, err
	}
	if err := root.seal(op); err != nil {
		return nil, err
	}
	op.root = root

	return op, nil
}

func collectIncludeConditions(set ast.SelectionSet, conditions *IncludeConditionCollection, visited map[string]struct{}) error {
	add := func(directives ast.DirectiveList) error {
		if cond, ok := TryCreateIncludeCondition(directives); ok {
			if _, err := conditions.Add(cond); err != nil {
				return err
			}
		}
		return nil
	}

	for _, s := range set {
		switch n := s.(type) {
		case *ast.Field:
			if err := add(n.Directives); err != nil {
				return err
			}
			if err := collectIncludeConditions(n.SelectionSet, conditions, visited); err != nil {
				return err
			}
		case *ast.InlineFragment:
			if err := add(n.Directives); err != nil {
				return err
			}
			if err := collectIncludeConditions(n.SelectionSet, conditions, visited); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if err := add(n.Directives); err != nil {
				return err
			}
			if _, ok := visited[n.Name]; ok || n.Definition == nil {
				continue
			}
			visited[n.Name] = struct{}{}
			if err := collectIncludeConditions(n.Definition.SelectionSet, conditions, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// compileSelectionSet must be called with op.mu held or before op is published.
func (c *Compiler) compileSelectionSet(op *Operation, typ *ast.Definition, seeds []seed) (*SelectionSet, error) {
	fields := c.acquireFieldMap()
	defer c.releaseFieldMap(fields)

	for _, s := range seeds {
		if err := c.collectFields(op, typ, s.selectionSet, s.mask, fields); err != nil {
			return nil, err
		}
	}

	ss := &SelectionSet{
		id:         op.nextID(),
		typ:        typ,
		selections: make([]*Selection, 0, len(fields.order)),
		byName:     make(map[string]*Selection, len(fields.order)),
	}
	op.register(ss)

	for _, responseName := range fields.order {
		sel, err := c.buildSelection(op, typ, responseName, fields.buckets[responseName])
		if err != nil {
			return nil, err
		}
		if err := sel.seal(ss); err != nil {
			return nil, err
		}
		ss.selections = append(ss.selections, sel)
		ss.byName[responseName] = sel
		if sel.IsConditional() {
			ss.conditional = true
		}
	}

	return ss, nil
}

func (c *Compiler) collectFields(op *Operation, typ *ast.Definition, set ast.SelectionSet, mask uint64, fields *fieldMap) error {
	for _, s := range set {
		switch n := s.(type) {
		case *ast.Field:
			m, err := withCondition(op, mask, n.Directives)
			if err != nil {
				return err
			}
			fields.add(responseNameOf(n), FieldSyntax{Node: n, Mask: m})
		case *ast.InlineFragment:
			if !c.doesTypeApply(n.TypeCondition, typ) {
				continue
			}
			m, err := withCondition(op, mask, n.Directives)
			if err != nil {
				return err
			}
			if err := c.collectFields(op, typ, n.SelectionSet, m, fields); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if n.Definition == nil {
				return fmt.Errorf("fragment %s is not defined", n.Name)
			}
			if !c.doesTypeApply(n.Definition.TypeCondition, typ) {
				continue
			}
			m, err := withCondition(op, mask, n.Directives)
			if err != nil {
				return err
			}
			if err := c.collectFields(op, typ, n.Definition.SelectionSet, m, fields); err != nil {
				return err
			}
		}
	}
	return nil
}

func withCondition(op *Operation, mask uint64, directives ast.DirectiveList) (uint64, error) {
	cond, ok := TryCreateIncludeCondition(directives)
	if !ok {
		return mask, nil
	}
	i, ok := op.includeConditions.IndexOf(cond)
	if !ok {
		return 0, fmt.Errorf("include condition %+v was not registered", cond)
	}
	return mask | 1<<uint(i), nil
}

func responseNameOf(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func (c *Compiler) doesTypeApply(typeCondition string, typ *ast.Definition) bool {
	if typeCondition == "" || typeCondition == typ.Name {
		return true
	}
	def := c.schema.Types[typeCondition]
	if def == nil || !def.IsAbstractType() {
		return false
	}
	return lo.ContainsBy(c.schema.GetPossibleTypes(def), func(pt *ast.Definition) bool {
		return pt.Name == typ.Name
	})
}

func (c *Compiler) buildSelection(op *Operation, typ *ast.Definition, responseName string, nodes []FieldSyntax) (*Selection, error) {
	first := nodes[0].Node
	for _, n := range nodes[1:] {
		if n.Node.Name != first.Name {
			return nil, fmt.Errorf(
				"%w: %q selects both %s and %s on %s",
				ErrFieldMergeConflict, responseName, first.Name, n.Node.Name, typ.Name,
			)
		}
	}

	var field *ast.FieldDefinition
	if first.Name == common.TypenameFieldName {
		field = typenameField
	} else {
		field = typ.Fields.ForName(first.Name)
	}
	if field == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, typ.Name, first.Name)
	}

	isRequirement := func(n FieldSyntax) bool {
		return n.Node.Directives.ForName(common.RequirementDirectiveName) != nil
	}
	internal := lo.EveryBy(nodes, isRequirement)

	// visibility follows the client occurrences only
	var masks []uint64
	for _, n := range nodes {
		if internal || !isRequirement(n) {
			masks = append(masks, n.Mask)
		}
	}

	named := c.schema.Types[field.Type.Name()]

	sel := &Selection{
		id:           op.nextID(),
		responseName: responseName,
		field:        field,
		syntaxNodes:  nodes,
		includeMasks: collapseIncludeMasks(masks),
		internal:     internal,
		leaf:         named != nil && named.IsLeafType(),
	}
	op.register(sel)

	return sel, nil
}
