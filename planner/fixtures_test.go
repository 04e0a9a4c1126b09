package planner

import (
	"encoding/json"
	"testing"

	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/operation"
	"github.com/buildbuildio/fusion/rewriter"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
)

var testSources = []string{"products", "inventory", "reviews", "accounts"}

var testSDL = `
	interface Node {
		id: ID!
	}

	union SearchResult = Product | Review

	type Query {
		topProducts(first: Int): [Product!]! @source(name: "products")
		product(id: ID!): Product @source(name: "products")
		productById(id: ID!): Product @source(name: "inventory")
		reviewsProduct(id: ID!): Product @source(name: "reviews")
		reviews: [Review!]! @source(name: "reviews")
		review(id: ID!): Review @source(name: "reviews")
		user(id: ID!): User @source(name: "accounts")
		me: User @source(name: "accounts")
		search(term: String!): [SearchResult!]! @source(name: "products")
		node(id: ID!): Node @source(name: "accounts")
	}

	type Mutation {
		addReview(body: String!): Review @source(name: "reviews")
		renameProduct(id: ID!, name: String!): Product @source(name: "products")
		deleteReview(id: ID!): Boolean @source(name: "reviews")
	}

	type Subscription {
		reviewAdded: Review @source(name: "reviews")
		productChanged: Product @source(name: "products")
	}

	type Product implements Node
		@source(name: "products")
		@fetcher(source: "products", field: "product", arguments: ["id: Product.id"])
		@fetcher(source: "inventory", field: "productById", arguments: ["id: Product.id"])
		@fetcher(source: "reviews", field: "reviewsProduct", arguments: ["id: Product.id"]) {
		id: ID! @source(name: "products") @source(name: "inventory") @source(name: "reviews")
		name: String
		price: Int
		inStock: Boolean @source(name: "inventory")
		warehouse: Warehouse @source(name: "inventory")
		reviews: [Review!]! @source(name: "reviews")
	}

	type Warehouse @source(name: "inventory") {
		id: ID!
		city: String
		manager: String @source(name: "accounts")
	}

	type Review @source(name: "reviews")
		@fetcher(source: "reviews", field: "review", arguments: ["id: Review.id"]) {
		id: ID!
		body: String
		author: User
		product: Product
	}

	type User implements Node
		@source(name: "accounts")
		@fetcher(source: "accounts", field: "user", arguments: ["id: User.id"]) {
		id: ID! @source(name: "accounts") @source(name: "reviews")
		name: String
	}
`

func mustLoadDB(t *testing.T) *metadata.DB {
	t.Helper()

	schema, err := metadata.LoadSchema(testSDL)
	require.NoError(t, err)

	db, err := metadata.New(schema, testSources...)
	require.NoError(t, err)

	return db
}

func compileOperation(t *testing.T, db *metadata.DB, query string) *operation.Operation {
	t.Helper()

	doc, errs := gqlparser.LoadQuery(db.Schema(), query)
	require.Empty(t, errs)
	require.Len(t, doc.Operations, 1, "bad test: query must be a single operation")

	compiler := operation.NewCompiler(db.Schema(), operation.WithDocumentRewriter(rewriter.New(db.Schema())))
	op, err := compiler.Compile("op", query, doc.Operations[0])
	require.NoError(t, err)

	return op
}

func runPlanner(t *testing.T, p Planner, query string) (*QueryPlan, error) {
	t.Helper()

	db := mustLoadDB(t)
	return p.Plan(&PlanningContext{
		Operation: compileOperation(t, db, query),
		Metadata:  db,
	})
}

func mustRunPlanner(t *testing.T, p Planner, query string) *QueryPlan {
	t.Helper()

	plan, err := runPlanner(t, p, query)
	require.NoError(t, err)
	require.NotNil(t, plan)

	return plan
}

func planJSON(t *testing.T, plan *QueryPlan) []byte {
	t.Helper()

	v, err := json.MarshalIndent(plan, "", "  ")
	require.NoError(t, err)

	return append(v, '\n')
}

// queries lists the printed documents in naming order.
func queries(plan *QueryPlan) []string {
	var res []string
	var visit func(n *QueryNode)
	visit = func(n *QueryNode) {
		if n == nil {
			return
		}
		if n.Query != "" {
			res = append(res, n.Query)
		}
		for _, c := range n.Children {
			visit(c)
		}
		for _, t := range n.BranchTypes() {
			visit(n.Branches[t])
		}
		visit(n.Fallback)
	}
	visit(plan.Root)
	return res
}
