package operation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRootSelections(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `
		query Me {
			me { id name }
			other: me { id }
			__typename
		}
	`))

	assert.Equal(t, "Me", op.Name())
	assert.Equal(t, "Query", op.RootType().Name)

	root := op.RootSelectionSet()
	assert.Equal(t, []string{"me", "other", "__typename"}, responseNames(root))

	typename, ok := root.Get("__typename")
	require.True(t, ok)
	assert.True(t, typename.IsTypename())
	assert.True(t, typename.IsLeaf())
	assert.Equal(t, "String!", typename.Type().String())

	me, ok := root.Get("me")
	require.True(t, ok)
	assert.False(t, me.IsLeaf())
	assert.False(t, me.IsConditional())
	assert.Same(t, root, me.DeclaringSelectionSet())
	assert.Same(t, op, root.DeclaringOperation())
}

func TestCompileMergesFieldOccurrences(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `
		query Q($x: Boolean!) {
			me @include(if: $x) { id }
			me { name }
			... on Query { me { friends { id } } }
		}
	`))

	root := op.RootSelectionSet()
	assert.Equal(t, []string{"me"}, responseNames(root))

	me, _ := root.Get("me")
	assert.Len(t, me.SyntaxNodes(), 3)
	assert.False(t, me.IsConditional(), "an unconditional occurrence wins")

	user, err := op.GetSelectionSet(me, "User")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "friends"}, responseNames(user))

	id, _ := user.Get("id")
	assert.Equal(t, []uint64{0b1}, id.IncludeMasks())
	assert.True(t, id.IsIncluded(0b1))
	assert.False(t, id.IsIncluded(0))

	name, _ := user.Get("name")
	assert.False(t, name.IsConditional())
	assert.True(t, user.IsConditional())
}

func TestCompileFragmentSpreads(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `
		query {
			search(term: "x") {
				__typename
				...user
				... on Product { id price }
			}
		}
		fragment user on User { id name }
	`))

	search, _ := op.RootSelectionSet().Get("search")
	assert.True(t, op.IsAbstract(search))

	possible := op.PossibleTypes(search)
	require.Len(t, possible, 2)
	assert.Equal(t, "Product", possible[0].Name)
	assert.Equal(t, "User", possible[1].Name)

	product, err := op.GetSelectionSet(search, "Product")
	require.NoError(t, err)
	assert.Equal(t, []string{"__typename", "id", "price"}, responseNames(product))

	user, err := op.GetSelectionSet(search, "User")
	require.NoError(t, err)
	assert.Equal(t, []string{"__typename", "id", "name"}, responseNames(user))

	_, err = op.GetSelectionSet(search, "Query")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCompileInterfaceFragments(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `
		query {
			node(id: "1") {
				id
				... on Node { __typename }
				... on User { name }
			}
		}
	`))

	node, _ := op.RootSelectionSet().Get("node")

	user, err := op.GetSelectionSet(node, "User")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "__typename", "name"}, responseNames(user))

	product, err := op.GetSelectionSet(node, "Product")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "__typename"}, responseNames(product))
}

func TestCompileAliasConflict(t *testing.T) {
	_, err := NewCompiler(testSchema).Compile("op", "hash", mustParseOperation(t, `{ a: me { id } a: other { id } }`))
	assert.ErrorIs(t, err, ErrFieldMergeConflict)
}

func TestCompileUnknownField(t *testing.T) {
	_, err := NewCompiler(testSchema).Compile("op", "hash", mustParseOperation(t, `{ missing }`))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestCompileUnsupportedOperation(t *testing.T) {
	_, err := NewCompiler(testSchema).Compile("op", "hash", mustParseOperation(t, `subscription { me { id } }`))
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestCompileMutation(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `mutation { rename(name: "x") { id } }`))
	assert.Equal(t, "Mutation", op.RootType().Name)
}

func TestCompileInternalSelections(t *testing.T) {
	op := mustCompile(t, mustParseOperation(t, `{
		search {
			... on User { __typename @fusion__requirement id }
			... on Product { __typename @fusion__requirement __typename id }
		}
	}`))

	search, _ := op.RootSelectionSet().Get("search")

	user, err := op.GetSelectionSet(search, "User")
	require.NoError(t, err)
	typename, _ := user.Get("__typename")
	assert.True(t, typename.IsInternal())

	product, err := op.GetSelectionSet(search, "Product")
	require.NoError(t, err)
	typename, _ = product.Get("__typename")
	assert.False(t, typename.IsInternal(), "the client also selected it")
}

func TestCreateIncludeFlags(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `
		query Q($s: Boolean!, $i: Boolean!) {
			a: me @skip(if: $s) { id }
			b: me @include(if: $i) { id }
			c: me @skip(if: $s) @include(if: $i) { id }
		}
	`))

	require.Equal(t, 3, op.IncludeConditions().Len())

	flags, err := op.CreateIncludeFlags(map[string]interface{}{"s": false, "i": false})
	require.NoError(t, err)

	a, _ := op.RootSelectionSet().Get("a")
	b, _ := op.RootSelectionSet().Get("b")
	c, _ := op.RootSelectionSet().Get("c")
	assert.True(t, a.IsIncluded(flags))
	assert.False(t, b.IsIncluded(flags))
	assert.False(t, c.IsIncluded(flags))

	flags, err = op.CreateIncludeFlags(map[string]interface{}{"s": false, "i": true})
	require.NoError(t, err)
	assert.True(t, c.IsIncluded(flags))

	_, err = op.CreateIncludeFlags(map[string]interface{}{"s": 1})
	assert.ErrorIs(t, err, ErrInvalidConditionValue)
}

func TestGetSelectionSetIsCached(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `{ me { id friends { name } } }`))
	me, _ := op.RootSelectionSet().Get("me")

	var wg sync.WaitGroup
	results := make([]*SelectionSet, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ss, err := op.GetSelectionSet(me, "User")
			assert.NoError(t, err)
			results[i] = ss
		}(i)
	}
	wg.Wait()

	for _, ss := range results {
		assert.Same(t, results[0], ss)
	}
	assert.Same(t, op, results[0].DeclaringOperation())

	friends, _ := results[0].Get("friends")
	nested, err := op.GetSelectionSet(friends, "User")
	require.NoError(t, err)
	assert.NotSame(t, results[0], nested)
	assert.Equal(t, []string{"name"}, responseNames(nested))

	_, err = op.GetSelectionSet(friends, "Product")
	assert.ErrorIs(t, err, ErrUnknownType)

	id, _ := results[0].Get("id")
	_, err = op.GetSelectionSet(id, "User")
	assert.Error(t, err)
}

func TestElementByID(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `{ me { id } other { id } }`))
	root := op.RootSelectionSet()

	e, ok := op.ElementByID(root.ID())
	require.True(t, ok)
	assert.Same(t, root, e)

	other, _ := root.Get("other")
	e, ok = op.ElementByID(other.ID())
	require.True(t, ok)
	assert.Same(t, other, e)

	ss, err := op.GetSelectionSet(other, "User")
	require.NoError(t, err)
	id, _ := ss.Get("id")
	e, ok = op.ElementByID(id.ID())
	require.True(t, ok)
	assert.Same(t, id, e)

	_, ok = op.ElementByID(-1)
	assert.False(t, ok)
	_, ok = op.ElementByID(10000)
	assert.False(t, ok)
}

func TestSealing(t *testing.T) {
	op := mustCompile(t, mustLoadOperation(t, `{ me { id } }`))
	root := op.RootSelectionSet()
	me, _ := root.Get("me")

	assert.ErrorIs(t, root.seal(op), ErrAlreadySealed)
	assert.ErrorIs(t, me.seal(root), ErrAlreadySealed)

	unsealed := &Selection{responseName: "x"}
	assert.Panics(t, func() { unsealed.DeclaringSelectionSet() })

	unsealedSet := &SelectionSet{typ: root.Type()}
	assert.Panics(t, func() { unsealedSet.DeclaringOperation() })
	require.NoError(t, unsealedSet.seal(op))
	assert.NotPanics(t, func() { unsealedSet.DeclaringOperation() })
}
