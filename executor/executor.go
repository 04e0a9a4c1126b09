package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildbuildio/fusion/diagnostics"
	"github.com/buildbuildio/fusion/gqlerrors"
	"github.com/buildbuildio/fusion/introspection"
	"github.com/buildbuildio/fusion/queryer"
	"github.com/buildbuildio/fusion/requests"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"
)

var (
	ErrUnknownSource   = errors.New("no queryer for source")
	ErrNotSubscription = errors.New("plan does not stream from a source")
)

// Executor runs execution plans against the configured sources.
type Executor struct {
	queryers      map[string]queryer.Queryer
	introspection *introspection.Resolver
	sink          diagnostics.Sink
	logger        *zap.Logger

	maxConcurrency int
	trace          bool
	appID          string
	environment    string
}

type Option func(*Executor)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithSink(sink diagnostics.Sink) Option {
	return func(e *Executor) {
		e.sink = sink
	}
}

func WithIntrospection(r *introspection.Resolver) Option {
	return func(e *Executor) {
		e.introspection = r
	}
}

// WithMaxConcurrency limits the number of nodes running at the same time.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		e.maxConcurrency = n
	}
}

// WithTrace adds the OperationPlanTrace to extensions.fusion.trace of every response.
func WithTrace(appID, environment string) Option {
	return func(e *Executor) {
		e.trace = true
		e.appID = appID
		e.environment = environment
	}
}

func New(queryers map[string]queryer.Queryer, options ...Option) *Executor {
	e := &Executor{
		queryers: queryers,
		sink:     diagnostics.Noop{},
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *Executor) queryer(source string) (queryer.Queryer, error) {
	q, ok := e.queryers[source]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSource, source)
	}
	return q, nil
}

// Execute runs plan once. Failures of single nodes end up in the errors of the
// response; an error is only returned when execution could not start.
func (e *Executor) Execute(ctx context.Context, plan *OperationExecutionPlan, variables map[string]interface{}) (*requests.Response, error) {
	pc, err := newOperationPlanContext(e, plan, variables)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, pc), nil
}

func (e *Executor) run(ctx context.Context, pc *OperationPlanContext) *requests.Response {
	op := pc.plan.Operation

	start := time.Now()
	ctx, scope := e.sink.StartOperation(ctx, op.Name(), string(op.Type()))

	pc.run(ctx)

	c := &completer{op: op, flags: pc.flags, errors: pc.sortedErrors()}
	data := c.completeRoot(pc.data)

	duration := time.Since(start)
	status := diagnostics.StatusSuccess
	if len(c.errors) > 0 {
		status = diagnostics.StatusFailed
	}
	scope.End(status, duration)

	resp := &requests.Response{Data: data, Errors: c.errors}
	if pc.trace != nil {
		pc.trace.TraceID = scope.TraceID()
		pc.trace.Duration = duration
		resp.Extensions = map[string]interface{}{
			"fusion": map[string]interface{}{"trace": pc.trace},
		}
	}
	return resp
}

// Subscribe streams the root node of a subscription plan from its source and
// runs the rest of the plan for every event. resCh is closed when the source
// ends the subscription or ctx is done.
func (e *Executor) Subscribe(ctx context.Context, plan *OperationExecutionPlan, variables map[string]interface{}, resCh chan<- *requests.Response) error {
	if plan.Operation.Type() != ast.Subscription || len(plan.RootNodes) != 1 {
		return ErrNotSubscription
	}
	root, ok := plan.RootNodes[0].(*OperationExecutionNode)
	if !ok || !root.isRoot() {
		return ErrNotSubscription
	}

	// validate variables before anything is sent
	if _, err := newOperationPlanContext(e, plan, variables); err != nil {
		return err
	}

	q, err := e.queryer(root.source)
	if err != nil {
		return err
	}

	events := make(chan *requests.Response)
	if err := q.Subscribe(ctx, root.request(variables, nil), events); err != nil {
		return err
	}

	go func() {
		defer close(resCh)

		for event := range events {
			resp := e.executeEvent(ctx, plan, root, variables, event)
			select {
			case resCh <- resp:
			case <-ctx.Done():
				// the source closes events once it sees ctx is done
				for range events {
				}
				return
			}
		}
	}()

	return nil
}

func (e *Executor) executeEvent(ctx context.Context, plan *OperationExecutionPlan, root *OperationExecutionNode, variables map[string]interface{}, event *requests.Response) *requests.Response {
	pc, err := newOperationPlanContext(e, plan, variables)
	if err != nil {
		return requests.NewErrorResponse(err)
	}

	pc.initialNode = root.id
	if event != nil {
		pc.mu.Lock()
		root.merge(pc, nil, event.Data, event.Errors)
		pc.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		pc.errors = append(pc.errors, gqlerrors.NewError(gqlerrors.CancelledError, err))
	}

	return e.run(ctx, pc)
}
