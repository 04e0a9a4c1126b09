package rewriter

import (
	"errors"
	"fmt"

	"github.com/buildbuildio/fusion/common"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
)

var (
	ErrUndefinedFragment = errors.New("undefined fragment")
	ErrFragmentCycle     = errors.New("fragment cycle")
)

// Rewriter normalizes operation documents before compilation. Fragment spreads
// are inlined, statically decided @skip/@include are applied and abstract fields
// get an internal __typename selection.
type Rewriter struct {
	schema *ast.Schema
}

func New(schema *ast.Schema) *Rewriter {
	return &Rewriter{schema: schema}
}

// RewriteOperation returns a rewritten copy, def itself is never modified.
func (r *Rewriter) RewriteOperation(def *ast.OperationDefinition) (*ast.OperationDefinition, error) {
	var root *ast.Definition
	switch def.Operation {
	case ast.Mutation:
		root = r.schema.Mutation
	case ast.Subscription:
		root = r.schema.Subscription
	default:
		root = r.schema.Query
	}

	set, err := r.rewriteSelectionSet(def.SelectionSet, root, nil)
	if err != nil {
		return nil, err
	}

	res := *def
	res.SelectionSet = set
	return &res, nil
}

func (r *Rewriter) rewriteSelectionSet(set ast.SelectionSet, parent *ast.Definition, fragments []string) (ast.SelectionSet, error) {
	res := make(ast.SelectionSet, 0, len(set))
	for _, s := range set {
		switch s := s.(type) {
		case *ast.Field:
			directives, ok := applyStaticConditions(s.Directives)
			if !ok {
				continue
			}
			field := *s
			field.Directives = directives
			if len(s.SelectionSet) > 0 {
				named := r.fieldType(parent, s)
				children, err := r.rewriteSelectionSet(s.SelectionSet, named, fragments)
				if err != nil {
					return nil, err
				}
				if named != nil && named.IsAbstractType() && !hasTypename(children) {
					children = append(children, requirementTypename())
				}
				field.SelectionSet = children
			}
			res = append(res, &field)
		case *ast.InlineFragment:
			directives, ok := applyStaticConditions(s.Directives)
			if !ok {
				continue
			}
			typ := parent
			if s.TypeCondition != "" {
				typ = r.schema.Types[s.TypeCondition]
			}
			children, err := r.rewriteSelectionSet(s.SelectionSet, typ, fragments)
			if err != nil {
				return nil, err
			}
			fragment := *s
			fragment.Directives = directives
			fragment.SelectionSet = children
			res = append(res, &fragment)
		case *ast.FragmentSpread:
			directives, ok := applyStaticConditions(s.Directives)
			if !ok {
				continue
			}
			if s.Definition == nil {
				return nil, fmt.Errorf("%w: %s", ErrUndefinedFragment, s.Name)
			}
			if lo.Contains(fragments, s.Name) {
				return nil, fmt.Errorf("%w: %s", ErrFragmentCycle, s.Name)
			}
			typ := r.schema.Types[s.Definition.TypeCondition]
			children, err := r.rewriteSelectionSet(s.Definition.SelectionSet, typ, append(fragments, s.Name))
			if err != nil {
				return nil, err
			}
			res = append(res, &ast.InlineFragment{
				TypeCondition:    s.Definition.TypeCondition,
				Directives:       directives,
				SelectionSet:     children,
				ObjectDefinition: typ,
				Position:         s.Position,
			})
		}
	}
	return res, nil
}

func (r *Rewriter) fieldType(parent *ast.Definition, f *ast.Field) *ast.Definition {
	if f.Definition != nil {
		return r.schema.Types[f.Definition.Type.Name()]
	}
	if parent == nil {
		return nil
	}
	fd := parent.Fields.ForName(f.Name)
	if fd == nil {
		return nil
	}
	return r.schema.Types[fd.Type.Name()]
}

// applyStaticConditions drops @skip/@include with literal arguments. The second
// result is false when the literal excludes the selection.
func applyStaticConditions(directives ast.DirectiveList) (ast.DirectiveList, bool) {
	var res ast.DirectiveList
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			res = append(res, d)
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil || arg.Value == nil || arg.Value.Kind != ast.BooleanValue {
			res = append(res, d)
			continue
		}
		literal := arg.Value.Raw == "true"
		if (d.Name == "skip") == literal {
			return nil, false
		}
	}
	return res, true
}

func hasTypename(set ast.SelectionSet) bool {
	return lo.ContainsBy(set, func(s ast.Selection) bool {
		f, ok := s.(*ast.Field)
		if !ok || f.Name != common.TypenameFieldName || responseName(f) != common.TypenameFieldName {
			return false
		}
		return !isConditional(f.Directives)
	})
}

func isConditional(directives ast.DirectiveList) bool {
	return lo.ContainsBy(directives, func(d *ast.Directive) bool {
		return d.Name == "skip" || d.Name == "include"
	})
}

func responseName(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func requirementTypename() *ast.Field {
	return &ast.Field{
		Alias:      common.TypenameFieldName,
		Name:       common.TypenameFieldName,
		Directives: ast.DirectiveList{{Name: common.RequirementDirectiveName}},
	}
}
