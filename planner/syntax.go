package planner

import (
	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/operation"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
)

func typenameField() *ast.Field {
	return &ast.Field{
		Alias: common.TypenameFieldName,
		Name:  common.TypenameFieldName,
	}
}

func hasTypename(set ast.SelectionSet) bool {
	return lo.ContainsBy(set, func(s ast.Selection) bool {
		f, ok := s.(*ast.Field)
		return ok && f.Name == common.TypenameFieldName && f.Alias == common.TypenameFieldName
	})
}

// fieldSyntax builds the field of sel without its selection set. Directives are
// forwarded only when the selection has a single occurrence, merged occurrences
// are fetched unconditionally and filtered on completion.
func fieldSyntax(sel *operation.Selection) *ast.Field {
	f := &ast.Field{
		Alias:      sel.ResponseName(),
		Name:       sel.FieldName(),
		Arguments:  sel.Arguments(),
		Definition: sel.Field(),
	}
	if nodes := sel.SyntaxNodes(); len(nodes) == 1 {
		f.Directives = lo.Filter(nodes[0].Node.Directives, func(d *ast.Directive, _ int) bool {
			return d.Name != common.RequirementDirectiveName
		})
	}
	return f
}

// fetcherField wraps set into the root field of fetcher.
func fetcherField(schema *ast.Schema, fetcher *metadata.ObjectFetcher, set ast.SelectionSet) *ast.Field {
	rootField := schema.Query.Fields.ForName(fetcher.FieldName)
	if rootField.Type.Name() != fetcher.TypeName {
		set = ast.SelectionSet{&ast.InlineFragment{
			TypeCondition:    fetcher.TypeName,
			SelectionSet:     set,
			ObjectDefinition: schema.Types[fetcher.TypeName],
		}}
	}

	args := make(ast.ArgumentList, 0, len(fetcher.Arguments))
	for _, b := range fetcher.Arguments {
		args = append(args, &ast.Argument{
			Name:  b.Name,
			Value: &ast.Value{Kind: ast.Variable, Raw: b.VariableName()},
		})
	}

	return &ast.Field{
		Alias:        fetcher.FieldName,
		Name:         fetcher.FieldName,
		Arguments:    args,
		SelectionSet: set,
		Definition:   rootField,
	}
}

func exportVariables(fetcher *metadata.ObjectFetcher) ast.VariableDefinitionList {
	var res ast.VariableDefinitionList
	for _, b := range fetcher.Arguments {
		res = append(res, &ast.VariableDefinition{
			Variable: b.VariableName(),
			Type:     b.Type,
		})
	}
	return res
}

// usedVariables collects the variables referenced by set in document order.
func usedVariables(set ast.SelectionSet) []string {
	var res []string
	var walkValue func(v *ast.Value)
	walkValue = func(v *ast.Value) {
		if v == nil {
			return
		}
		if v.Kind == ast.Variable {
			res = append(res, v.Raw)
			return
		}
		for _, c := range v.Children {
			walkValue(c.Value)
		}
	}
	walkDirectives := func(directives ast.DirectiveList) {
		for _, d := range directives {
			for _, a := range d.Arguments {
				walkValue(a.Value)
			}
		}
	}

	var walk func(set ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, s := range set {
			switch s := s.(type) {
			case *ast.Field:
				for _, a := range s.Arguments {
					walkValue(a.Value)
				}
				walkDirectives(s.Directives)
				walk(s.SelectionSet)
			case *ast.InlineFragment:
				walkDirectives(s.Directives)
				walk(s.SelectionSet)
			}
		}
	}
	walk(set)

	return lo.Uniq(res)
}

// document builds a sub operation. Client variables keep their declaration
// order, export variables follow.
func document(op *operation.Operation, kind ast.Operation, set ast.SelectionSet, exports ast.VariableDefinitionList) *ast.OperationDefinition {
	used := usedVariables(set)

	var variables ast.VariableDefinitionList
	for _, v := range op.Definition().VariableDefinitions {
		if lo.Contains(used, v.Variable) {
			variables = append(variables, v)
		}
	}
	variables = append(variables, exports...)

	return &ast.OperationDefinition{
		Operation:           kind,
		VariableDefinitions: variables,
		SelectionSet:        set,
	}
}
