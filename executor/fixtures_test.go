package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/operation"
	"github.com/buildbuildio/fusion/planner"
	"github.com/buildbuildio/fusion/queryer"
	"github.com/buildbuildio/fusion/requests"
	"github.com/buildbuildio/fusion/rewriter"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
)

var testSources = []string{"products", "inventory", "accounts", "alpha", "beta"}

var testSDL = `
	interface Node {
		id: ID!
	}

	type Query {
		topProducts: [Product!]! @source(name: "products")
		product(id: ID!): Product @source(name: "products")
		productById(id: ID!): Product @source(name: "inventory")
		user(id: ID!): User @source(name: "accounts")
		node(id: ID!): Node @source(name: "accounts")
		fieldA: String @source(name: "alpha")
		fieldB: String @source(name: "beta")
		requiredB: String! @source(name: "beta")
		scalars: [String] @source(name: "alpha")
		objs: [Obj] @source(name: "alpha")
	}

	type Subscription {
		productChanged: Product @source(name: "products")
	}

	type Obj @source(name: "alpha") {
		id: ID!
		name: String!
	}

	type Product implements Node
		@source(name: "products")
		@fetcher(source: "products", field: "product", arguments: ["id: Product.id"])
		@fetcher(source: "inventory", field: "productById", arguments: ["id: Product.id"]) {
		id: ID! @source(name: "products") @source(name: "inventory")
		name: String
		inStock: Boolean @source(name: "inventory")
	}

	type User implements Node
		@source(name: "accounts")
		@fetcher(source: "accounts", field: "user", arguments: ["id: User.id"]) {
		id: ID!
		name: String
	}
`

var errBackend = errors.New("backend is down")

type (
	m = map[string]interface{}
	l = []interface{}
)

// mockQueryer answers every request with handle and records what it was sent.
type mockQueryer struct {
	name   string
	handle func(req *requests.Request) *requests.Response
	err    error
	events []*requests.Response

	mu    sync.Mutex
	calls [][]*requests.Request
}

var _ queryer.Queryer = &mockQueryer{}

func (q *mockQueryer) Name() string {
	return q.name
}

func (q *mockQueryer) Query(_ context.Context, reqs []*requests.Request) ([]*requests.Response, error) {
	q.mu.Lock()
	q.calls = append(q.calls, reqs)
	q.mu.Unlock()

	if q.err != nil {
		return nil, q.err
	}

	res := make([]*requests.Response, len(reqs))
	for i, req := range reqs {
		res[i] = q.handle(req)
	}
	return res, nil
}

func (q *mockQueryer) Subscribe(ctx context.Context, req *requests.Request, resCh chan<- *requests.Response) error {
	q.mu.Lock()
	q.calls = append(q.calls, []*requests.Request{req})
	q.mu.Unlock()

	go func() {
		defer close(resCh)
		for _, event := range q.events {
			select {
			case resCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (q *mockQueryer) sent() []*requests.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res []*requests.Request
	for _, c := range q.calls {
		res = append(res, c...)
	}
	return res
}

func (q *mockQueryer) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

// newQueryers returns a mock per test source, every one answering with an empty result.
func newQueryers() map[string]*mockQueryer {
	res := make(map[string]*mockQueryer, len(testSources))
	for _, s := range testSources {
		res[s] = &mockQueryer{
			name: s,
			handle: func(*requests.Request) *requests.Response {
				return &requests.Response{Data: m{}}
			},
		}
	}
	return res
}

func asQueryers(mocks map[string]*mockQueryer) map[string]queryer.Queryer {
	res := make(map[string]queryer.Queryer, len(mocks))
	for k, v := range mocks {
		res[k] = v
	}
	return res
}

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

func mustPlan(t *testing.T, query string) *OperationExecutionPlan {
	t.Helper()

	db := mustLoadDB(t)
	qp, err := planner.OperationPlanner(nil).Plan(&planner.PlanningContext{
		Operation: compileOperation(t, db, query),
		Metadata:  db,
	})
	require.NoError(t, err)

	plan, err := NewOperationExecutionPlan(qp)
	require.NoError(t, err)

	return plan
}

func mustExecute(t *testing.T, e *Executor, query string, variables map[string]interface{}) *requests.Response {
	t.Helper()

	resp, err := e.Execute(context.Background(), mustPlan(t, query), variables)
	require.NoError(t, err)
	require.NotNil(t, resp)

	return resp
}
