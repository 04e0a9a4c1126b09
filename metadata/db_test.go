package metadata

import (
	"testing"

	"github.com/buildbuildio/fusion/operation"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

const testSDL = `
	type Query {
		topProducts: [Product!]! @source(name: "products")
		product(id: ID!): Product @source(name: "products")
		productById(id: ID!): Product @source(name: "inventory")
		reviews: [Review!]! @source(name: "reviews")
	}

	type Product
		@source(name: "products")
		@fetcher(source: "products", field: "product", arguments: ["id: Product.id"])
		@fetcher(source: "inventory", field: "productById", arguments: ["id: Review.productId"])
		@fetcher(source: "inventory", field: "productById", arguments: ["id: Product.id"]) {
		id: ID! @source(name: "products") @source(name: "inventory") @source(name: "reviews")
		name: String
		price: Int
		inStock: Boolean @source(name: "inventory")
	}

	type Review @source(name: "reviews") {
		id: ID!
		body: String
		productId: ID!
		product: Product
	}
`

func mustLoadDB(t *testing.T, sources ...string) *DB {
	t.Helper()
	schema, err := LoadSchema(testSDL)
	require.NoError(t, err)
	db, err := New(schema, sources...)
	require.NoError(t, err)
	return db
}

func ref(typeName, fieldName string) FieldRef {
	return FieldRef{TypeName: typeName, FieldName: fieldName}
}

func TestNewRegistrationOrder(t *testing.T) {
	tests := []struct {
		configured []string
		want       []string
	}{
		{nil, []string{"inventory", "products", "reviews"}},
		{[]string{"reviews"}, []string{"reviews", "inventory", "products"}},
		{[]string{"products", "extra", "products"}, []string{"products", "extra", "inventory", "reviews"}},
	}

	for _, tt := range tests {
		got := mustLoadDB(t, tt.configured...).Sources()
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Sources() for %v mismatch (-want +got):\n%s", tt.configured, diff)
		}
	}
}

func TestIsFieldPartOfSource(t *testing.T) {
	db := mustLoadDB(t, "products", "inventory", "reviews")

	for _, tc := range []struct {
		source   string
		ref      FieldRef
		expected bool
	}{
		{"products", ref("Product", "name"), true},
		{"products", ref("Product", "inStock"), false},
		{"inventory", ref("Product", "inStock"), true},
		{"inventory", ref("Product", "id"), true},
		{"reviews", ref("Product", "id"), true},
		{"reviews", ref("Product", "name"), false},
		{"reviews", ref("Review", "product"), true},
		{"products", ref("Query", "topProducts"), true},
		{"products", ref("Query", "reviews"), false},
		{"products", ref("Query", "__schema"), false},
		{"inventory", ref("Review", "__typename"), true},
		{"unknown", ref("Review", "__typename"), false},
	} {
		assert.Equal(t, tc.expected, db.IsFieldPartOfSource(tc.source, tc.ref), "%s %s", tc.source, tc.ref)
	}
}

func TestIsTypePartOfSource(t *testing.T) {
	db := mustLoadDB(t)

	assert.True(t, db.IsTypePartOfSource("reviews", "Product"))
	assert.True(t, db.IsTypePartOfSource("reviews", "Review"))
	assert.False(t, db.IsTypePartOfSource("products", "Review"))
	assert.False(t, db.IsTypePartOfSource("unknown", "Review"))
}

func TestGetSourcePrefersFullCoverage(t *testing.T) {
	db := mustLoadDB(t, "inventory", "reviews", "products")

	refs := []FieldRef{ref("Product", "id"), ref("Product", "name")}
	for i := 0; i < 10; i++ {
		source, err := db.GetSourceForFields(refs)
		require.NoError(t, err)
		assert.Equal(t, "products", source)
	}

	// no full coverage: the first highest partial score wins
	source, err := db.GetSourceForFields([]FieldRef{ref("Product", "id"), ref("Product", "inStock"), ref("Product", "name"), ref("Product", "price")})
	require.NoError(t, err)
	assert.Equal(t, "products", source)

	source, err = db.GetSourceForFields([]FieldRef{ref("Product", "id"), ref("Product", "inStock"), ref("Product", "name")})
	require.NoError(t, err)
	assert.Equal(t, "inventory", source)

	_, err = db.GetSourceForFields([]FieldRef{ref("Query", "__schema")})
	assert.ErrorIs(t, err, ErrInconsistentSchema)
}

func TestRankSources(t *testing.T) {
	db := mustLoadDB(t, "inventory", "reviews", "products")

	assert.Equal(t,
		[]string{"products", "inventory", "reviews"},
		db.RankSources([]FieldRef{ref("Product", "id"), ref("Product", "name")}),
	)
	assert.Empty(t, db.RankSources([]FieldRef{ref("Query", "missing")}))
}

func TestGetSourceForSelections(t *testing.T) {
	db := mustLoadDB(t, "products", "inventory", "reviews")

	doc, errs := gqlparser.LoadQuery(db.Schema(), `{ topProducts { id name inStock } }`)
	require.Empty(t, errs)
	op, err := operation.NewCompiler(db.Schema()).Compile("1", "1", doc.Operations[0])
	require.NoError(t, err)

	root := op.RootSelectionSet()
	source, err := db.GetSource(root.Selections())
	require.NoError(t, err)
	assert.Equal(t, "products", source)

	topProducts, _ := root.Get("topProducts")
	product, err := op.GetSelectionSet(topProducts, "Product")
	require.NoError(t, err)

	inStock, _ := product.Get("inStock")
	assert.False(t, db.IsPartOfSource("products", inStock))
	assert.True(t, db.IsPartOfSource("inventory", inStock))

	source, err = db.GetSource(product.Selections())
	require.NoError(t, err)
	assert.Equal(t, "products", source)
}

func TestGetObjectFetcher(t *testing.T) {
	db := mustLoadDB(t, "products", "inventory", "reviews")

	f, err := db.GetObjectFetcher("products", "Product", nil)
	require.NoError(t, err)
	assert.Equal(t, "product", f.FieldName)
	require.Len(t, f.Arguments, 1)
	assert.Equal(t, "id", f.Arguments[0].Name)
	assert.Equal(t, "ID!", f.Arguments[0].Type.String())
	assert.Equal(t, "_export_Product_id", f.Arguments[0].VariableName())

	// the first inventory fetcher needs a Review ancestor
	f, err = db.GetObjectFetcher("inventory", "Product", nil)
	require.NoError(t, err)
	assert.Equal(t, "Product", f.Arguments[0].TypeName)

	f, err = db.GetObjectFetcher("inventory", "Product", []string{"Query", "Review"})
	require.NoError(t, err)
	assert.Equal(t, "Review", f.Arguments[0].TypeName)
	assert.Equal(t, "_export_Review_productId", f.Arguments[0].VariableName())

	_, err = db.GetObjectFetcher("reviews", "Product", nil)
	assert.ErrorIs(t, err, ErrNoFetcher)

	assert.True(t, db.HasFetcher("Product"))
	assert.False(t, db.HasFetcher("Review"))
}

func TestNewInvalidFetcher(t *testing.T) {
	for _, sdl := range []string{
		`type Query { a: A @source(name: "s") } type A @fetcher(source: "s", field: "missing") { id: ID! }`,
		`type Query { a(id: ID!): A @source(name: "s") } type A @fetcher(source: "s", field: "a", arguments: ["id A.id"]) { id: ID! }`,
		`type Query { a(id: ID!): A @source(name: "s") } type A @fetcher(source: "s", field: "a", arguments: ["key: A.id"]) { id: ID! }`,
		`type Query { a(id: ID!): A @source(name: "s") } type A @fetcher(source: "s", field: "a", arguments: ["id: A.missing"]) { id: ID! }`,
	} {
		schema, err := LoadSchema(sdl)
		require.NoError(t, err, sdl)
		_, err = New(schema)
		assert.ErrorIs(t, err, ErrInvalidFetcher, sdl)
	}
}

func TestLoadSchemaRejectsUnknownDirectiveArguments(t *testing.T) {
	_, err := LoadSchema(`type Query { a: String @source(id: "x") }`)
	assert.Error(t, err)

	_, err = gqlparser.LoadSchema(&ast.Source{Input: `type Query { a: String @source(name: "x") }`})
	assert.Error(t, err, "the directives are declared by LoadSchema")
}
