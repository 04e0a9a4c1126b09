package executor

import (
	"fmt"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/gqlerrors"
	"github.com/buildbuildio/fusion/operation"
	"github.com/vektah/gqlparser/v2/ast"
)

const errNonNull = "Cannot return null for non-nullable field"

// completer projects the merged result through the compiled operation.
// Fields excluded by the include flags and internal fields are dropped and
// nulls in non-null positions are propagated to the closest nullable parent.
type completer struct {
	op     *operation.Operation
	flags  uint64
	errors gqlerrors.ErrorList
}

func (c *completer) completeRoot(data map[string]interface{}) map[string]interface{} {
	root := c.op.RootSelectionSet()
	res := make(map[string]interface{}, len(root.Selections()))

	for _, sel := range root.Selections() {
		if sel.IsInternal() || !sel.IsIncluded(c.flags) {
			continue
		}
		name := sel.ResponseName()
		switch {
		case sel.IsTypename():
			res[name] = c.op.RootType().Name
		case common.IsIntrospectionFieldName(sel.FieldName()):
			// already shaped by the introspection resolver
			res[name] = data[name]
		default:
			v, ok := c.completeValue(sel, sel.Type(), data[name], []interface{}{name})
			if !ok {
				return nil
			}
			res[name] = v
		}
	}
	return res
}

func (c *completer) completeSelectionSet(ss *operation.SelectionSet, typeName string, src map[string]interface{}, path []interface{}) (map[string]interface{}, bool) {
	res := make(map[string]interface{}, len(ss.Selections()))
	for _, sel := range ss.Selections() {
		if sel.IsInternal() || !sel.IsIncluded(c.flags) {
			continue
		}
		name := sel.ResponseName()
		if sel.IsTypename() {
			res[name] = typeName
			continue
		}
		v, ok := c.completeValue(sel, sel.Type(), src[name], appendPath(path, name))
		if !ok {
			return nil, false
		}
		res[name] = v
	}
	return res, true
}

// completeValue returns false when the null has to propagate to the parent.
func (c *completer) completeValue(sel *operation.Selection, typ *ast.Type, v interface{}, path []interface{}) (interface{}, bool) {
	if typ.NonNull {
		nullable := *typ
		nullable.NonNull = false

		res, ok := c.completeValue(sel, &nullable, v, path)
		if !ok || res == nil {
			c.violation(path)
			return nil, false
		}
		return res, true
	}

	if v == nil {
		return nil, true
	}

	if typ.Elem != nil {
		list, ok := v.([]interface{})
		if !ok {
			c.fail(path, fmt.Errorf("expected a list, got %T", v))
			return nil, true
		}
		res := make([]interface{}, len(list))
		for i, item := range list {
			r, ok := c.completeValue(sel, typ.Elem, item, appendPath(path, i))
			if !ok {
				return nil, true
			}
			res[i] = r
		}
		return res, true
	}

	if sel.IsLeaf() {
		return v, true
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		c.fail(path, fmt.Errorf("expected an object, got %T", v))
		return nil, true
	}

	typeName := sel.NamedType()
	if c.op.IsAbstract(sel) {
		typeName, _ = obj[common.TypenameFieldName].(string)
		if typeName == "" {
			c.fail(path, fmt.Errorf("cannot resolve the concrete type of %s", sel.NamedType()))
			return nil, true
		}
	}

	ss, err := c.op.GetSelectionSet(sel, typeName)
	if err != nil {
		c.fail(path, err)
		return nil, true
	}

	res, ok := c.completeSelectionSet(ss, typeName, obj, path)
	if !ok {
		return nil, true
	}
	return res, true
}

func (c *completer) violation(path []interface{}) {
	if c.hasErrorNear(path) {
		return
	}
	c.errors = append(c.errors, &gqlerrors.Error{
		Message:    errNonNull,
		Path:       path,
		Extensions: map[string]interface{}{"code": gqlerrors.NonNullViolationError},
	})
}

func (c *completer) fail(path []interface{}, err error) {
	if c.hasErrorNear(path) {
		return
	}
	c.errors = append(c.errors, gqlerrors.NewPathError(gqlerrors.ExecutionFailedError, err, path))
}

// hasErrorNear reports whether an error was raised at path, below it or at one of its parents.
func (c *completer) hasErrorNear(path []interface{}) bool {
	for _, e := range c.errors {
		if len(e.Path) == 0 {
			continue
		}
		if hasPrefix(e.Path, path) || hasPrefix(path, e.Path) {
			return true
		}
	}
	return false
}
