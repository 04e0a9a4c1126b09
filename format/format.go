// Package format prints the sub operations sent to sources.
package format

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// CompactOperation prints op on a single line. Sub operations are sent to sources in this form.
func CompactOperation(op *ast.OperationDefinition) string {
	var p printer
	p.operation(op)
	return p.String()
}

// CompactSelectionSet prints s on a single line.
func CompactSelectionSet(s ast.SelectionSet) string {
	var p printer
	p.selectionSet(s)
	return p.String()
}

type printer struct {
	strings.Builder
}

func (p *printer) operation(op *ast.OperationDefinition) {
	kind := op.Operation
	if kind == "" {
		kind = ast.Query
	}

	// anonymous queries print as a bare selection set
	if kind != ast.Query || op.Name != "" || len(op.VariableDefinitions) != 0 || len(op.Directives) != 0 {
		p.WriteString(string(kind))
		if op.Name != "" {
			p.WriteString(" " + op.Name)
		}
		p.variableDefinitions(op.Name == "", op.VariableDefinitions)
		p.directives(op.Directives)
		p.WriteByte(' ')
	}

	p.selectionSet(op.SelectionSet)
}

func (p *printer) variableDefinitions(anonymous bool, defs ast.VariableDefinitionList) {
	if len(defs) == 0 {
		return
	}
	if anonymous {
		p.WriteByte(' ')
	}

	p.WriteByte('(')
	for i, def := range defs {
		if i > 0 {
			p.WriteString(", ")
		}
		p.WriteString("$" + def.Variable + ": " + def.Type.String())
		if def.DefaultValue != nil {
			p.WriteString(" = " + def.DefaultValue.String())
		}
	}
	p.WriteByte(')')
}

func (p *printer) directives(list ast.DirectiveList) {
	for _, d := range list {
		p.WriteString(" @" + d.Name)
		p.arguments(d.Arguments)
	}
}

func (p *printer) arguments(list ast.ArgumentList) {
	if len(list) == 0 {
		return
	}

	p.WriteByte('(')
	for i, arg := range list {
		if i > 0 {
			p.WriteString(", ")
		}
		p.WriteString(arg.Name + ": " + arg.Value.String())
	}
	p.WriteByte(')')
}

func (p *printer) selectionSet(set ast.SelectionSet) {
	if len(set) == 0 {
		return
	}

	p.WriteString("{ ")
	for _, sel := range set {
		p.selection(sel)
		p.WriteByte(' ')
	}
	p.WriteByte('}')
}

func (p *printer) nestedSelectionSet(set ast.SelectionSet) {
	if len(set) != 0 {
		p.WriteByte(' ')
		p.selectionSet(set)
	}
}

func (p *printer) selection(sel ast.Selection) {
	switch v := sel.(type) {
	case *ast.Field:
		if v.Alias != "" && v.Alias != v.Name {
			p.WriteString(v.Alias + ": ")
		}
		p.WriteString(v.Name)
		p.arguments(v.Arguments)
		p.directives(v.Directives)
		p.nestedSelectionSet(v.SelectionSet)

	case *ast.FragmentSpread:
		p.WriteString("..." + v.Name)
		p.directives(v.Directives)

	case *ast.InlineFragment:
		p.WriteString("...")
		if v.TypeCondition != "" {
			p.WriteString(" on " + v.TypeCondition)
		}
		p.directives(v.Directives)
		p.nestedSelectionSet(v.SelectionSet)

	default:
		panic(fmt.Errorf("unknown selection type: %T", sel))
	}
}
