package fusion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/executor"
	"github.com/buildbuildio/fusion/gqlerrors"
	"github.com/buildbuildio/fusion/introspection"
	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/operation"
	"github.com/buildbuildio/fusion/planner"
	"github.com/buildbuildio/fusion/queryer"
	"github.com/buildbuildio/fusion/requests"
	"github.com/buildbuildio/fusion/rewriter"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"
)

var (
	ErrMissingQueryer     = errors.New("no queryer configured for source")
	ErrOperationNotFound  = errors.New("operation not found")
	ErrAmbiguousOperation = errors.New("many operations provided, but no operationName")
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 10 * time.Minute
)

type Gateway struct {
	db       *metadata.DB
	compiler *operation.Compiler
	planner  planner.Planner
	executor *executor.Executor
	cache    *planCache
	logger   *zap.Logger

	queryers        map[string]queryer.Queryer
	executorOptions []executor.Option
	cacheSize       int
	cacheTTL        time.Duration
}

type GatewayOption func(*Gateway)

func WithPlanner(p planner.Planner) GatewayOption {
	return func(g *Gateway) {
		g.planner = p
	}
}

func WithLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithPlanCache sets the size and TTL of the execution plan cache. A size of
// zero disables caching, a zero ttl keeps plans until they are evicted.
func WithPlanCache(size int, ttl time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.cacheSize = size
		g.cacheTTL = ttl
	}
}

// WithExecutorOptions passes options to the executor, e.g. concurrency limits or tracing.
func WithExecutorOptions(options ...executor.Option) GatewayOption {
	return func(g *Gateway) {
		g.executorOptions = append(g.executorOptions, options...)
	}
}

// NewGateway serves the composed schema. Every source named in the schema
// needs a queryer of the same name.
func NewGateway(schema *ast.Schema, queryers []queryer.Queryer, options ...GatewayOption) (*Gateway, error) {
	g := &Gateway{
		logger:    zap.NewNop(),
		cacheSize: defaultCacheSize,
		cacheTTL:  defaultCacheTTL,
		queryers:  lo.SliceToMap(queryers, func(q queryer.Queryer) (string, queryer.Queryer) { return q.Name(), q }),
	}

	for _, optionFunc := range options {
		optionFunc(g)
	}

	db, err := metadata.New(schema, lo.Map(queryers, func(q queryer.Queryer, _ int) string { return q.Name() })...)
	if err != nil {
		return nil, fmt.Errorf("unable to index schema: %w", err)
	}
	for _, source := range db.Sources() {
		if _, ok := g.queryers[source]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingQueryer, source)
		}
	}
	g.db = db

	if g.planner == nil {
		g.planner = planner.OperationPlanner(nil)
	}
	g.compiler = operation.NewCompiler(schema, operation.WithDocumentRewriter(rewriter.New(schema)))
	g.cache = newPlanCache(g.cacheSize, g.cacheTTL)

	resolver := introspection.NewResolver(schema, metadata.SourceDirectiveName, metadata.FetcherDirectiveName)
	g.executor = executor.New(g.queryers, append([]executor.Option{
		executor.WithLogger(g.logger),
		executor.WithIntrospection(resolver),
	}, g.executorOptions...)...)

	return g, nil
}

// Schema returns the composed schema.
func (g *Gateway) Schema() *ast.Schema {
	return g.db.Schema()
}

// Plan validates, compiles and plans the operation of req. Plans are cached
// by query text and operation name.
func (g *Gateway) Plan(req *requests.Request) (*executor.OperationExecutionPlan, error) {
	key := planKey(req.Query, req.Name())
	if plan, ok := g.cache.get(key); ok {
		return plan, nil
	}

	doc, errs := gqlparser.LoadQuery(g.db.Schema(), req.Query)
	if errs != nil {
		return nil, withCode(gqlerrors.FormatError(errs), gqlerrors.ValidationFailedError)
	}

	var def *ast.OperationDefinition
	switch {
	case req.OperationName != nil && *req.OperationName != "":
		def = doc.Operations.ForName(*req.OperationName)
		if def == nil {
			return nil, gqlerrors.NewError(gqlerrors.ValidationFailedError,
				fmt.Errorf("%w: %s", ErrOperationNotFound, *req.OperationName))
		}
	case len(doc.Operations) == 1:
		def = doc.Operations[0]
	default:
		return nil, gqlerrors.NewError(gqlerrors.ValidationFailedError, ErrAmbiguousOperation)
	}

	id := strconv.FormatUint(key, 16)
	op, err := g.compiler.Compile(id, id, def)
	if err != nil {
		return nil, gqlerrors.NewError(gqlerrors.ValidationFailedError, err)
	}

	qp, err := g.planner.Plan(&planner.PlanningContext{Operation: op, Metadata: g.db})
	if err != nil {
		g.logger.Info("planning failed", zap.String("operation", op.Name()), zap.Error(err))
		return nil, gqlerrors.NewError(gqlerrors.PlanningFailedError, err)
	}

	plan, err := executor.NewOperationExecutionPlan(qp)
	if err != nil {
		g.logger.Info("planning failed", zap.String("operation", op.Name()), zap.Error(err))
		return nil, gqlerrors.NewError(gqlerrors.PlanningFailedError, err)
	}

	g.cache.add(key, plan)
	return plan, nil
}

// prepare returns the plan of req and its coerced variables.
func (g *Gateway) prepare(req *requests.Request) (*executor.OperationExecutionPlan, map[string]interface{}, error) {
	plan, err := g.Plan(req)
	if err != nil {
		return nil, nil, err
	}

	variables, verr := validator.VariableValues(g.db.Schema(), plan.Definition(), req.Variables)
	if verr != nil {
		return nil, nil, withCode(gqlerrors.FormatError(verr), gqlerrors.ValidationFailedError)
	}

	// coercion copies values, uploads must reach the queryer untouched
	for name, v := range req.Variables {
		if containsUpload(v) {
			variables[name] = v
		}
	}
	return plan, variables, nil
}

func containsUpload(v interface{}) bool {
	switch v := v.(type) {
	case *requests.Upload:
		return true
	case []interface{}:
		return lo.SomeBy(v, containsUpload)
	case map[string]interface{}:
		return lo.SomeBy(lo.Values(v), containsUpload)
	}
	return false
}

// Execute runs one query or mutation.
func (g *Gateway) Execute(ctx context.Context, req *requests.Request) *requests.Response {
	logger := g.logger.With(zap.String("request_id", req.ID))

	plan, variables, err := g.prepare(req)
	if err != nil {
		logger.Debug("request rejected", zap.Error(err))
		return requests.NewErrorResponse(err)
	}
	if plan.Operation.Type() == ast.Subscription {
		return requests.NewErrorResponse(gqlerrors.NewError(gqlerrors.ValidationFailedError,
			errors.New("subscriptions are only served over websocket")))
	}

	resp, err := g.executor.Execute(ctx, plan, variables)
	if err != nil {
		logger.Debug("execution rejected", zap.Error(err))
		return requests.NewErrorResponse(gqlerrors.NewError(gqlerrors.ExecutionFailedError, err))
	}
	return resp
}

// queryHandler answers POST requests carrying a single operation or a batch.
func (g *Gateway) queryHandler(w http.ResponseWriter, r *http.Request) {
	batch, err := requests.Parse(r)
	if err != nil {
		emitError(w, http.StatusUnprocessableEntity, err)
		return
	}

	for _, req := range batch.Requests {
		req.ID = uuid.NewString()
	}

	results, _ := common.ParallelMap(r.Context(), batch.Requests, 0, func(ctx context.Context, req *requests.Request) (*requests.Response, error) {
		return g.Execute(ctx, req), nil
	})

	emit(w, http.StatusOK, results, batch.IsBatchMode)
}

func emit(w http.ResponseWriter, code int, results requests.Responses, isBatch bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	e := json.NewEncoder(w)
	if isBatch {
		_ = e.Encode(results)
	} else {
		_ = e.Encode(results[0])
	}
}

func emitError(w http.ResponseWriter, code int, err error) {
	emit(w, code, requests.Responses{requests.NewErrorResponse(err)}, false)
}

// Handler serves queries and mutations over POST and subscriptions over websocket.
func (g *Gateway) Handler(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		g.subscriptionHandler(w, r)
		return
	}
	g.queryHandler(w, r)
}

// withCode sets code on errors that carry none or the generic one.
func withCode(errs gqlerrors.ErrorList, code string) gqlerrors.ErrorList {
	for _, e := range errs {
		if c := e.Code(); c == "" || c == gqlerrors.UndefinedError {
			if e.Extensions == nil {
				e.Extensions = make(map[string]interface{}, 1)
			}
			e.Extensions["code"] = code
		}
	}
	return errs
}
