package planner

import (
	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/operation"
	"github.com/vektah/gqlparser/v2/ast"
)

// scope is one object type at one path inside the document of a node.
type scope struct {
	parent *scope
	node   *QueryNode
	source string
	path   operation.SelectionPath
	typ    *ast.Definition

	// exports are fields of typ other nodes need as variables
	exports   []string
	providers map[string]*QueryNode
	resolving map[string]struct{}
}

func newScope(parent *scope, node *QueryNode, source string, path operation.SelectionPath, typ *ast.Definition) *scope {
	return &scope{
		parent:    parent,
		node:      node,
		source:    source,
		path:      path,
		typ:       typ,
		providers: make(map[string]*QueryNode),
		resolving: make(map[string]struct{}),
	}
}

// find returns the nearest scope of typeName, starting with s itself.
func (s *scope) find(typeName string) *scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.typ.Name == typeName {
			return cur
		}
	}
	return nil
}

// typesInPath lists the types of the ancestors of s.
func (s *scope) typesInPath() []string {
	var res []string
	for cur := s.parent; cur != nil; cur = cur.parent {
		res = append(res, cur.typ.Name)
	}
	return res
}

func (s *scope) addExport(fieldName string) {
	s.exports = append(s.exports, fieldName)
	s.providers[fieldName] = s.node
}

func (s *scope) exportFields() ast.SelectionSet {
	res := make(ast.SelectionSet, 0, len(s.exports))
	for _, f := range s.exports {
		res = append(res, &ast.Field{
			Alias: common.ExportName(s.typ.Name, f),
			Name:  f,
		})
	}
	return res
}
