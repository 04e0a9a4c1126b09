package introspection

import (
	"fmt"
	"sort"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/operation"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
)

const (
	schemaField = "__schema"
	typeField   = "__type"
)

type (
	schemaObject    struct{ schema *ast.Schema }
	typeObject      struct{ typ *ast.Type }
	fieldObject     struct{ field *ast.FieldDefinition }
	inputObject     struct{ arg *ast.ArgumentDefinition }
	enumValueObject struct{ value *ast.EnumValueDefinition }
	directiveObject struct{ directive *ast.DirectiveDefinition }
)

// Resolver answers __schema and __type selections from the composed schema
// without calling any source.
type Resolver struct {
	schema *ast.Schema
	hidden map[string]struct{}
}

// NewResolver returns a resolver hiding the given directives from __schema.directives.
func NewResolver(schema *ast.Schema, hiddenDirectives ...string) *Resolver {
	return &Resolver{
		schema: schema,
		hidden: lo.SliceToMap(hiddenDirectives, func(name string) (string, struct{}) {
			return name, struct{}{}
		}),
	}
}

type frame struct {
	set    *operation.SelectionSet
	source interface{}
	target map[string]interface{}
}

// Resolve materializes the given root selections. The walk is depth first and
// only descends into values that are objects or lists of objects.
func (r *Resolver) Resolve(op *operation.Operation, selections []*operation.Selection, flags uint64, variables map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{})
	var stack []frame
	var err error

	for _, sel := range selections {
		if !sel.IsIncluded(flags) {
			continue
		}

		var v interface{}
		switch sel.FieldName() {
		case schemaField:
			v = schemaObject{schema: r.schema}
		case typeField:
			name, err := stringArgument(sel, "name", variables)
			if err != nil {
				return nil, err
			}
			if def := r.schema.Types[name]; def != nil {
				v = typeObject{typ: ast.NamedType(name, nil)}
			}
		default:
			return nil, fmt.Errorf("%s is not an introspection field", sel.FieldName())
		}

		if stack, err = r.materialize(op, sel, v, result, stack); err != nil {
			return nil, err
		}
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, sel := range f.set.Selections() {
			if !sel.IsIncluded(flags) || sel.IsInternal() {
				continue
			}
			if sel.IsTypename() {
				f.target[sel.ResponseName()] = f.set.Type().Name
				continue
			}

			v, err := r.resolveValue(f.source, sel, variables)
			if err != nil {
				return nil, err
			}
			if stack, err = r.materialize(op, sel, v, f.target, stack); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

// materialize stores v under the response name of sel and queues the objects it holds.
func (r *Resolver) materialize(op *operation.Operation, sel *operation.Selection, v interface{}, target map[string]interface{}, stack []frame) ([]frame, error) {
	name := sel.ResponseName()
	if v == nil || sel.IsLeaf() {
		target[name] = v
		return stack, nil
	}

	set, err := op.GetSelectionSet(sel, sel.NamedType())
	if err != nil {
		return nil, err
	}

	items, isList := v.([]interface{})
	if !isList {
		obj := make(map[string]interface{}, len(set.Selections()))
		target[name] = obj
		return append(stack, frame{set: set, source: v, target: obj}), nil
	}

	list := make([]interface{}, len(items))
	// pushed in reverse so list items are materialized in order
	for i := len(items) - 1; i >= 0; i-- {
		if items[i] == nil {
			continue
		}
		obj := make(map[string]interface{}, len(set.Selections()))
		list[i] = obj
		stack = append(stack, frame{set: set, source: items[i], target: obj})
	}
	target[name] = list

	return stack, nil
}

func (r *Resolver) resolveValue(source interface{}, sel *operation.Selection, variables map[string]interface{}) (interface{}, error) {
	switch s := source.(type) {
	case schemaObject:
		return r.resolveSchema(sel)
	case typeObject:
		return r.resolveType(s.typ, sel, variables)
	case fieldObject:
		return r.resolveField(s.field, sel), nil
	case inputObject:
		return resolveInputValue(s.arg, sel), nil
	case enumValueObject:
		return resolveEnumValue(s.value, sel), nil
	case directiveObject:
		return resolveDirective(s.directive, sel), nil
	}
	return nil, fmt.Errorf("unexpected introspection object %T", source)
}

func (r *Resolver) resolveSchema(sel *operation.Selection) (interface{}, error) {
	switch sel.FieldName() {
	case "description":
		return nullableString(r.schema.Description), nil
	case "types":
		names := lo.Keys(r.schema.Types)
		sort.Strings(names)
		return lo.Map(names, func(name string, _ int) interface{} {
			return typeObject{typ: ast.NamedType(name, nil)}
		}), nil
	case "queryType":
		return rootType(r.schema.Query), nil
	case "mutationType":
		return rootType(r.schema.Mutation), nil
	case "subscriptionType":
		return rootType(r.schema.Subscription), nil
	case "directives":
		names := lo.Filter(lo.Keys(r.schema.Directives), func(name string, _ int) bool {
			_, hidden := r.hidden[name]
			return !hidden
		})
		sort.Strings(names)
		return lo.Map(names, func(name string, _ int) interface{} {
			return directiveObject{directive: r.schema.Directives[name]}
		}), nil
	}
	return nil, nil
}

func rootType(def *ast.Definition) interface{} {
	if def == nil {
		return nil
	}
	return typeObject{typ: ast.NamedType(def.Name, nil)}
}

func (r *Resolver) resolveType(typ *ast.Type, sel *operation.Selection, variables map[string]interface{}) (interface{}, error) {
	// If the type is NON_NULL or LIST then use that first (in that order), then
	// the wrapped type is returned from ofType
	if typ.NonNull {
		switch sel.FieldName() {
		case "kind":
			return "NON_NULL", nil
		case "ofType":
			return typeObject{typ: &ast.Type{NamedType: typ.NamedType, Elem: typ.Elem}}, nil
		}
		return nil, nil
	}

	if typ.Elem != nil {
		switch sel.FieldName() {
		case "kind":
			return "LIST", nil
		case "ofType":
			return typeObject{typ: typ.Elem}, nil
		}
		return nil, nil
	}

	def := r.schema.Types[typ.NamedType]
	if def == nil {
		return nil, nil
	}

	switch sel.FieldName() {
	case "kind":
		return string(def.Kind), nil
	case "name":
		return def.Name, nil
	case "description":
		return nullableString(def.Description), nil
	case "specifiedByURL":
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				return arg.Value.Raw, nil
			}
		}
		return nil, nil
	case "fields":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil, nil
		}
		includeDeprecated, err := boolArgument(sel, "includeDeprecated", variables)
		if err != nil {
			return nil, err
		}
		var fields []interface{}
		for _, fi := range def.Fields {
			if common.IsBuiltinName(fi.Name) {
				continue
			}
			if deprecated, _ := hasDeprecatedDirective(fi.Directives); deprecated && !includeDeprecated {
				continue
			}
			fields = append(fields, fieldObject{field: fi})
		}
		return emptyList(fields), nil
	case "interfaces":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil, nil
		}
		return lo.Map(def.Interfaces, func(name string, _ int) interface{} {
			return typeObject{typ: ast.NamedType(name, nil)}
		}), nil
	case "possibleTypes":
		if !def.IsAbstractType() {
			return nil, nil
		}
		names := lo.Map(r.schema.GetPossibleTypes(def), func(d *ast.Definition, _ int) string { return d.Name })
		sort.Strings(names)
		return lo.Map(names, func(name string, _ int) interface{} {
			return typeObject{typ: ast.NamedType(name, nil)}
		}), nil
	case "enumValues":
		if def.Kind != ast.Enum {
			return nil, nil
		}
		includeDeprecated, err := boolArgument(sel, "includeDeprecated", variables)
		if err != nil {
			return nil, err
		}
		var values []interface{}
		for _, e := range def.EnumValues {
			if deprecated, _ := hasDeprecatedDirective(e.Directives); deprecated && !includeDeprecated {
				continue
			}
			values = append(values, enumValueObject{value: e})
		}
		return emptyList(values), nil
	case "inputFields":
		if def.Kind != ast.InputObject {
			return nil, nil
		}
		return lo.Map(def.Fields, func(fi *ast.FieldDefinition, _ int) interface{} {
			// input fields share the shape of arguments
			return inputObject{arg: &ast.ArgumentDefinition{
				Name:         fi.Name,
				Description:  fi.Description,
				Type:         fi.Type,
				DefaultValue: fi.DefaultValue,
				Directives:   fi.Directives,
			}}
		}), nil
	}

	return nil, nil
}

func (r *Resolver) resolveField(field *ast.FieldDefinition, sel *operation.Selection) interface{} {
	deprecated, deprecatedReason := hasDeprecatedDirective(field.Directives)

	switch sel.FieldName() {
	case "name":
		return field.Name
	case "description":
		return nullableString(field.Description)
	case "args":
		return lo.Map(field.Arguments, func(arg *ast.ArgumentDefinition, _ int) interface{} {
			return inputObject{arg: arg}
		})
	case "type":
		return typeObject{typ: field.Type}
	case "isDeprecated":
		return deprecated
	case "deprecationReason":
		return deprecatedReason
	}
	return nil
}

func resolveDirective(directive *ast.DirectiveDefinition, sel *operation.Selection) interface{} {
	switch sel.FieldName() {
	case "name":
		return directive.Name
	case "description":
		return nullableString(directive.Description)
	case "isRepeatable":
		return directive.IsRepeatable
	case "locations":
		return lo.Map(directive.Locations, func(l ast.DirectiveLocation, _ int) interface{} {
			return string(l)
		})
	case "args":
		return lo.Map(directive.Arguments, func(arg *ast.ArgumentDefinition, _ int) interface{} {
			return inputObject{arg: arg}
		})
	}
	return nil
}

func resolveInputValue(arg *ast.ArgumentDefinition, sel *operation.Selection) interface{} {
	deprecated, deprecatedReason := hasDeprecatedDirective(arg.Directives)

	switch sel.FieldName() {
	case "name":
		return arg.Name
	case "description":
		return nullableString(arg.Description)
	case "type":
		return typeObject{typ: arg.Type}
	case "defaultValue":
		if arg.DefaultValue != nil {
			return arg.DefaultValue.String()
		}
	case "isDeprecated":
		return deprecated
	case "deprecationReason":
		return deprecatedReason
	}
	return nil
}

func resolveEnumValue(enum *ast.EnumValueDefinition, sel *operation.Selection) interface{} {
	deprecated, deprecatedReason := hasDeprecatedDirective(enum.Directives)

	switch sel.FieldName() {
	case "name":
		return enum.Name
	case "description":
		return nullableString(enum.Description)
	case "isDeprecated":
		return deprecated
	case "deprecationReason":
		return deprecatedReason
	}
	return nil
}

func hasDeprecatedDirective(directives ast.DirectiveList) (bool, interface{}) {
	d := directives.ForName("deprecated")
	if d == nil {
		return false, nil
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		reason = arg.Value.Raw
	}
	return true, reason
}

func stringArgument(sel *operation.Selection, name string, variables map[string]interface{}) (string, error) {
	arg := sel.Arguments().ForName(name)
	if arg == nil || arg.Value == nil {
		return "", nil
	}
	v, err := arg.Value.Value(variables)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func boolArgument(sel *operation.Selection, name string, variables map[string]interface{}) (bool, error) {
	arg := sel.Arguments().ForName(name)
	if arg == nil || arg.Value == nil {
		return false, nil
	}
	v, err := arg.Value.Value(variables)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// emptyList keeps an empty result a list rather than null.
func emptyList(items []interface{}) []interface{} {
	if items == nil {
		return []interface{}{}
	}
	return items
}
