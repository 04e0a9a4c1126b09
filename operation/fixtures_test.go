package operation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

var testSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "fixture", Input: `
	interface Node {
		id: ID!
	}

	type User implements Node {
		id: ID!
		name: String
		friends: [User!]
	}

	type Product implements Node {
		id: ID!
		name: String
		price: Int
	}

	union SearchResult = User | Product

	type Query {
		me: User
		other: User
		node(id: ID!): Node
		search(term: String): [SearchResult!]!
	}

	type Mutation {
		rename(name: String!): User
	}
`})

// mustLoadOperation parses and validates the query.
func mustLoadOperation(t *testing.T, query string) *ast.OperationDefinition {
	t.Helper()
	doc, errs := gqlparser.LoadQuery(testSchema, query)
	require.Empty(t, errs)
	require.Len(t, doc.Operations, 1)
	return doc.Operations[0]
}

// mustParseOperation parses the query without validation.
func mustParseOperation(t *testing.T, query string) *ast.OperationDefinition {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	require.NoError(t, err)
	require.Len(t, doc.Operations, 1)
	return doc.Operations[0]
}

func mustCompile(t *testing.T, def *ast.OperationDefinition) *Operation {
	t.Helper()
	op, err := NewCompiler(testSchema).Compile("op", "hash", def)
	require.NoError(t, err)
	return op
}

func responseNames(ss *SelectionSet) []string {
	var res []string
	for _, s := range ss.Selections() {
		res = append(res, s.ResponseName())
	}
	return res
}
