package planner

import (
	"testing"

	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/operation"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operationPlanner OperationPlanner

func TestSimplePlan(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query Top { topProducts { id name } }`)

	assert.Equal(t, RootNode, plan.Root.Kind)
	require.Len(t, plan.Root.Children, 1)

	n := plan.Root.Children[0]
	assert.Equal(t, OperationNode, n.Kind)
	assert.Equal(t, "products", n.Source)
	assert.True(t, n.Path.IsRoot())
	assert.Empty(t, n.DependsOn)
	assert.Empty(t, n.Children)
	assert.Equal(t, "query Top_1 { topProducts { id name } }", n.Query)

	assert.Len(t, plan.Nodes, 2)
	for i, n := range plan.Nodes {
		assert.Equal(t, i, n.ID)
	}
}

func TestPlanAnonymousOperationNames(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `{ topProducts { id } }`)

	// hex of the operation id
	assert.Equal(t, []string{"query Operation_6f70_1 { topProducts { id } }"}, queries(plan))
}

func TestPlanEntityFetch(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query Q { topProducts { name inStock } }`)

	assert.Equal(t, []string{
		"query Q_1 { topProducts { name _export_Product_id: id } }",
		"query Q_2($_export_Product_id: ID!) { productById(id: $_export_Product_id) { inStock } }",
	}, queries(plan))

	root := plan.Root.Children[0]
	require.Len(t, root.Children, 1)

	entity := root.Children[0]
	assert.Equal(t, "inventory", entity.Source)
	assert.Equal(t, "$.topProducts", entity.Path.String())
	assert.Equal(t, "Product", entity.TypeName)
	assert.Equal(t, "productById", entity.Fetcher.FieldName)
	assert.Equal(t, []int{root.ID}, entity.DependsOn)
	assert.Equal(t, []Requirement{{
		Variable: "_export_Product_id",
		Path:     operation.Root.AppendField("topProducts"),
	}}, entity.Requirements)
}

func TestPlanThreeSources(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query R {
		reviews {
			body
			author { name }
			product { name inStock }
		}
	}`)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "three_sources", planJSON(t, plan))
}

func TestPlanVariables(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query V($id: ID!, $first: Int) { product(id: $id) { name inStock } }`)

	assert.Equal(t, []string{
		"query V_1($id: ID!) { product(id: $id) { name _export_Product_id: id } }",
		"query V_2($_export_Product_id: ID!) { productById(id: $_export_Product_id) { inStock } }",
	}, queries(plan))
}

func TestPlanMultipleRootSources(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query M { me { name } topProducts { name } reviews { body } }`)

	require.Len(t, plan.Root.Children, 3)
	for i, source := range []string{"products", "reviews", "accounts"} {
		assert.Equal(t, source, plan.Root.Children[i].Source)
		assert.Empty(t, plan.Root.Children[i].DependsOn)
	}

	assert.Equal(t, []string{
		"query M_1 { topProducts { name } }",
		"query M_2 { reviews { body } }",
		"query M_3 { me { name } }",
	}, queries(plan))
}

func TestPlanMutationRunsSerially(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `mutation Change {
		a: addReview(body: "x") { id }
		b: renameProduct(id: "1", name: "n") { id }
		c: deleteReview(id: "2")
	}`)

	require.Len(t, plan.Root.Children, 3)
	a, b, c := plan.Root.Children[0], plan.Root.Children[1], plan.Root.Children[2]

	assert.Equal(t, "reviews", a.Source)
	assert.Empty(t, a.DependsOn)
	assert.Equal(t, "products", b.Source)
	assert.Equal(t, []int{a.ID}, b.DependsOn)
	assert.Equal(t, "reviews", c.Source)
	assert.Equal(t, []int{b.ID}, c.DependsOn)

	assert.Equal(t, []string{
		`mutation Change_1 { a: addReview(body: "x") { id } }`,
		`mutation Change_2 { b: renameProduct(id: "1", name: "n") { id } }`,
		`mutation Change_3 { c: deleteReview(id: "2") }`,
	}, queries(plan))
}

func TestPlanMutationMergesConsecutiveFields(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `mutation Change {
		a: addReview(body: "x") { id }
		c: deleteReview(id: "2")
	}`)

	assert.Equal(t, []string{
		`mutation Change_1 { a: addReview(body: "x") { id } c: deleteReview(id: "2") }`,
	}, queries(plan))
}

func TestPlanConditions(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query C($withMe: Boolean!, $noProducts: Boolean!) {
		topProducts @skip(if: $noProducts) { name }
		me @include(if: $withMe) { name }
	}`)

	require.Len(t, plan.Root.Children, 2)
	assert.Equal(t, []Condition{{Variable: "noProducts", PassingValue: false}}, plan.Root.Children[0].Conditions)
	assert.Equal(t, []Condition{{Variable: "withMe", PassingValue: true}}, plan.Root.Children[1].Conditions)

	assert.Equal(t, []string{
		"query C_1($noProducts: Boolean!) { topProducts @skip(if: $noProducts) { name } }",
		"query C_2($withMe: Boolean!) { me @include(if: $withMe) { name } }",
	}, queries(plan))
}

func TestPlanMixedConditionsAreUnconditional(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query C($a: Boolean!) {
		topProducts @include(if: $a) { name }
		product(id: "1") { name }
	}`)

	require.Len(t, plan.Root.Children, 1)
	assert.Empty(t, plan.Root.Children[0].Conditions)
}

func TestPlanUnion(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query S {
		search(term: "a") {
			... on Product { name }
		}
	}`)

	assert.Equal(t, []string{
		`query S_1 { search(term: "a") { __typename ... on Product { name __typename } } }`,
	}, queries(plan))
}

func TestPlanUnionTypenameOnlyMember(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query S {
		search(term: "a") {
			__typename
			... on Product { name }
		}
	}`)

	q := queries(plan)
	require.Len(t, q, 1)
	assert.Contains(t, q[0], `search(term: "a") { __typename ... on Product {`)
	assert.NotContains(t, q[0], "Review")
}

func TestPlanUnionMemberOutsideSource(t *testing.T) {
	// products resolves search but knows nothing about reviews
	_, err := runPlanner(t, operationPlanner, `{
		search(term: "x") {
			... on Review { body }
			... on Product { name }
		}
	}`)

	require.ErrorIs(t, err, metadata.ErrInconsistentSchema)
	assert.Contains(t, err.Error(), "Review")
}

func TestPlanEntityFetchInsideFragment(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query S { search(term: "a") { ... on Product { inStock } } }`)

	assert.Equal(t, []string{
		`query S_1 { search(term: "a") { __typename ... on Product { __typename _export_Product_id: id } } }`,
		"query S_2($_export_Product_id: ID!) { productById(id: $_export_Product_id) { inStock } }",
	}, queries(plan))

	entity := plan.Root.Children[0].Children[0]
	assert.Equal(t, "$.search<Product>", entity.Path.String())
	assert.Equal(t, "$.search<Product>", entity.Requirements[0].Path.String())
}

func TestPlanNodeField(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query N($id: ID!) {
		node(id: $id) {
			id
			... on Product { name }
			... on User { name }
		}
	}`)

	require.Len(t, plan.Root.Children, 1)
	n := plan.Root.Children[0]
	assert.Equal(t, NodeFieldNode, n.Kind)
	assert.Equal(t, "node", n.ResponseName)
	assert.Equal(t, "$.node", n.Path.String())
	assert.Equal(t, "$id", n.IDValue.String())
	assert.Equal(t, []string{"Product", "User"}, n.BranchTypes())

	product := n.Branches["Product"]
	assert.Equal(t, "products", product.Source)
	assert.Equal(t, "Product", product.TypeName)
	assert.Equal(t, "node", product.ResponseName)
	assert.Equal(t, []Requirement{{
		Variable:   "_export_Product_id",
		Path:       operation.Root.AppendField("node"),
		FromNodeID: true,
	}}, product.Requirements)

	require.NotNil(t, n.Fallback)
	assert.Equal(t, "accounts", n.Fallback.Source)

	assert.Equal(t, []string{
		"query N_1($_export_Product_id: ID!) { product(id: $_export_Product_id) { id name __typename } }",
		"query N_2($_export_User_id: ID!) { user(id: $_export_User_id) { id name __typename } }",
		"query N_3($id: ID!) { node(id: $id) { __typename ... on User { id name __typename } } }",
	}, queries(plan))
}

func TestPlanIntrospection(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query I { __typename __schema { queryType { name } } topProducts { id } }`)

	require.Len(t, plan.Root.Children, 2)

	introspection := plan.Root.Children[0]
	assert.Equal(t, IntrospectionNode, introspection.Kind)
	require.Len(t, introspection.Selections, 1)
	assert.Equal(t, "__schema", introspection.Selections[0].ResponseName())
	assert.Empty(t, introspection.Query)

	assert.Equal(t, []string{"query I_1 { topProducts { id } }"}, queries(plan))
}

func TestPlanSubscription(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `subscription Sub { reviewAdded { body author { name } } }`)

	assert.Equal(t, []string{
		"subscription Sub_1 { reviewAdded { body author { _export_User_id: id } } }",
		"query Sub_2($_export_User_id: ID!) { user(id: $_export_User_id) { name } }",
	}, queries(plan))

	_, err := runPlanner(t, operationPlanner, `subscription { reviewAdded { body } productChanged { name } }`)
	assert.ErrorIs(t, err, ErrUnsupportedSubscription)
}

func TestPlanNoFetcher(t *testing.T) {
	_, err := runPlanner(t, operationPlanner, `{ product(id: "1") { warehouse { manager } } }`)
	assert.ErrorIs(t, err, metadata.ErrNoFetcher)
}

func TestPlanSharesExports(t *testing.T) {
	plan := mustRunPlanner(t, operationPlanner, `query P { product(id: "1") { inStock reviews { body } } }`)

	root := plan.Root.Children[0]
	require.Len(t, root.Children, 2)
	for _, c := range root.Children {
		assert.Equal(t, []int{root.ID}, c.DependsOn)
	}

	assert.Equal(t, []string{
		`query P_1 { product(id: "1") { _export_Product_id: id } }`,
		"query P_2($_export_Product_id: ID!) { productById(id: $_export_Product_id) { inStock } }",
		"query P_3($_export_Product_id: ID!) { reviewsProduct(id: $_export_Product_id) { reviews { body } } }",
	}, queries(plan))
}
