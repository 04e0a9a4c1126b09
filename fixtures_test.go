package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/planner"
	"github.com/buildbuildio/fusion/queryer"
	"github.com/buildbuildio/fusion/requests"
	"github.com/stretchr/testify/require"
)

var testSDL = `
	scalar Upload

	type Query {
		fieldA: String @source(name: "alpha")
		fieldB: String @source(name: "beta")
		echo(value: String!, times: Int = 1): String @source(name: "alpha")
	}

	type Mutation {
		upload(file: Upload!): Boolean @source(name: "alpha")
	}

	type Subscription {
		ticks: Tick @source(name: "alpha")
	}

	type Tick @source(name: "alpha") {
		n: Int
	}
`

type MockQueryer struct {
	name   string
	handle func(req *requests.Request) *requests.Response
	events []*requests.Response

	mu       sync.Mutex
	received []*requests.Request
}

var _ queryer.Queryer = &MockQueryer{}

func (mq *MockQueryer) Name() string {
	return mq.name
}

func (mq *MockQueryer) Query(_ context.Context, reqs []*requests.Request) ([]*requests.Response, error) {
	mq.mu.Lock()
	mq.received = append(mq.received, reqs...)
	mq.mu.Unlock()

	res := make([]*requests.Response, len(reqs))
	for i, req := range reqs {
		res[i] = mq.handle(req)
	}
	return res, nil
}

func (mq *MockQueryer) Subscribe(ctx context.Context, req *requests.Request, resCh chan<- *requests.Response) error {
	mq.mu.Lock()
	mq.received = append(mq.received, req)
	mq.mu.Unlock()

	go func() {
		defer close(resCh)
		for _, event := range mq.events {
			select {
			case resCh <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (mq *MockQueryer) sent() []*requests.Request {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return append([]*requests.Request(nil), mq.received...)
}

func newMockQueryer(name string, data map[string]interface{}) *MockQueryer {
	return &MockQueryer{
		name: name,
		handle: func(*requests.Request) *requests.Response {
			return &requests.Response{Data: data}
		},
	}
}

// countingPlanner counts the plans it makes.
type countingPlanner struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPlanner) Plan(ctx *planner.PlanningContext) (*planner.QueryPlan, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return planner.OperationPlanner(nil).Plan(ctx)
}

func (p *countingPlanner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type failingPlanner struct{}

func (failingPlanner) Plan(*planner.PlanningContext) (*planner.QueryPlan, error) {
	return nil, errors.New("no plan")
}

func newTestGateway(t *testing.T, queryers []queryer.Queryer, options ...GatewayOption) *Gateway {
	t.Helper()

	schema, err := metadata.LoadSchema(testSDL)
	require.NoError(t, err)

	gw, err := NewGateway(schema, queryers, options...)
	require.NoError(t, err)

	return gw
}

func defaultQueryers() (*MockQueryer, *MockQueryer) {
	return newMockQueryer("alpha", map[string]interface{}{"fieldA": "a"}),
		newMockQueryer("beta", map[string]interface{}{"fieldB": "b"})
}

// post sends body to the gateway and decodes the JSON answer into res.
func post(t *testing.T, gw *Gateway, body string, res interface{}) int {
	t.Helper()

	r, err := http.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(body))
	require.NoError(t, err)
	r.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	http.HandlerFunc(gw.Handler)(rr, r)

	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), res))
	return rr.Code
}

func firstError(t *testing.T, res map[string]interface{}) map[string]interface{} {
	t.Helper()

	errs, ok := res["errors"].([]interface{})
	require.True(t, ok, "response has no errors: %v", res)
	require.NotEmpty(t, errs)
	return errs[0].(map[string]interface{})
}
