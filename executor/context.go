package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/buildbuildio/fusion/diagnostics"
	"github.com/buildbuildio/fusion/gqlerrors"
	"github.com/buildbuildio/fusion/operation"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type nodeState struct {
	status    atomic.Int32
	remaining atomic.Int64
}

type branchSelection struct {
	key string
	id  string
	ok  bool
}

// OperationPlanContext is the mutable state of one execution of a plan.
type OperationPlanContext struct {
	executor  *Executor
	plan      *OperationExecutionPlan
	variables map[string]interface{}
	flags     uint64
	states    []nodeState
	trace     *diagnostics.OperationPlanTrace

	// initialNode is already resolved by the initial result, -1 otherwise.
	initialNode int

	mu       sync.Mutex
	data     map[string]interface{}
	errors   gqlerrors.ErrorList
	branches map[int]branchSelection
}

func newOperationPlanContext(e *Executor, plan *OperationExecutionPlan, variables map[string]interface{}) (*OperationPlanContext, error) {
	flags, err := plan.Operation.CreateIncludeFlags(variables)
	if err != nil {
		return nil, err
	}

	for _, n := range plan.AllNodes {
		if n == nil {
			continue
		}
		if _, err := n.base().conditionsMet(variables); err != nil {
			return nil, err
		}
	}

	pc := &OperationPlanContext{
		executor:    e,
		plan:        plan,
		variables:   variables,
		flags:       flags,
		states:      make([]nodeState, len(plan.AllNodes)),
		initialNode: -1,
		data:        make(map[string]interface{}),
		branches:    make(map[int]branchSelection),
	}
	if e.trace {
		pc.trace = diagnostics.NewOperationPlanTrace(e.appID, e.environment)
	}
	return pc, nil
}

// Status returns the current status of node id.
func (pc *OperationPlanContext) Status(id int) Status {
	if id < 0 || id >= len(pc.states) {
		return NotStarted
	}
	return Status(pc.states[id].status.Load())
}

// run executes the DAG. Nodes start once all their dependencies completed,
// whatever their outcome.
func (pc *OperationPlanContext) run(ctx context.Context) {
	var g errgroup.Group
	if pc.executor.maxConcurrency > 0 {
		g.SetLimit(pc.executor.maxConcurrency)
	}

	total := 0
	for _, n := range pc.plan.AllNodes {
		if n == nil {
			continue
		}
		total++
		pc.states[n.ID()].remaining.Store(int64(len(n.Dependencies())))
	}

	completed := make(chan int, total)
	queue := append([]ExecutionNode(nil), pc.plan.RootNodes...)
	inflight := 0

	for len(queue) > 0 || inflight > 0 {
		for _, n := range queue {
			n := n
			inflight++
			g.Go(func() error {
				pc.runNode(ctx, n)
				completed <- n.ID()
				return nil
			})
		}
		queue = queue[:0]

		id := <-completed
		inflight--
		for _, dep := range pc.plan.AllNodes[id].Dependents() {
			if pc.states[dep].remaining.Dec() == 0 {
				queue = append(queue, pc.plan.AllNodes[dep])
			}
		}
	}

	_ = g.Wait()
}

func (pc *OperationPlanContext) runNode(ctx context.Context, n ExecutionNode) {
	b := n.base()
	info := b.info()

	start := time.Now()
	nodeCtx, scope := pc.executor.sink.StartNode(ctx, info)

	status, res, err := pc.executeNode(nodeCtx, n)
	duration := time.Since(start)
	pc.states[b.id].status.Store(int32(status))

	if err != nil {
		pc.executor.sink.NodeError(nodeCtx, info, err)
		pc.addErrors(pc.nodeError(n, err))
	}
	pc.executor.logger.Debug("execution node completed",
		zap.Int("node", b.id),
		zap.String("source", b.source),
		zap.Stringer("status", status),
		zap.Duration("duration", duration),
	)

	scope.End(status.diagnostic(), duration)

	if pc.trace != nil {
		nt := &diagnostics.NodeTrace{
			SpanID:   scope.SpanID(),
			Duration: duration,
			Status:   status.diagnostic(),
		}
		if res != nil {
			nt.VariableSets = res.variableSets
		}
		pc.trace.AddNode(b.id, nt)
	}
}

func (pc *OperationPlanContext) executeNode(ctx context.Context, n ExecutionNode) (status Status, res *nodeResult, err error) {
	b := n.base()

	if b.id == pc.initialNode {
		return Success, nil, nil
	}
	if b.gate != nil && !pc.branchSelected(b.gate) {
		return Skipped, nil, nil
	}

	met, err := b.conditionsMet(pc.variables)
	if err != nil {
		return Failed, nil, err
	}
	if !met {
		return Skipped, nil, nil
	}

	if err := ctx.Err(); err != nil {
		return Failed, nil, err
	}

	pc.states[b.id].status.Store(int32(Running))

	defer func() {
		if r := recover(); r != nil {
			status, res, err = Failed, nil, fmt.Errorf("execution node %d panicked: %v", b.id, r)
		}
	}()

	res, err = n.execute(ctx, pc)
	if err != nil {
		return Failed, nil, err
	}
	return Success, res, nil
}

type errorPather interface {
	errorPaths() [][]interface{}
}

// nodeError attributes a node failure to the response paths of the node, one
// error per path.
func (pc *OperationPlanContext) nodeError(n ExecutionNode, err error) gqlerrors.ErrorList {
	var gqlErr *gqlerrors.Error
	if errors.As(err, &gqlErr) {
		return gqlerrors.ErrorList{gqlErr}
	}

	code := gqlerrors.ExecutionFailedError
	var srcErr *sourceError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = gqlerrors.CancelledError
	case errors.As(err, &srcErr):
		pc.executor.logger.Error("source request failed", zap.String("source", srcErr.source), zap.Error(srcErr.err))
		code = gqlerrors.SourceError
	}

	var paths [][]interface{}
	if p, ok := n.(errorPather); ok {
		paths = p.errorPaths()
	}
	if len(paths) == 0 {
		return gqlerrors.ErrorList{gqlerrors.NewPathError(code, err, nil)}
	}

	res := make(gqlerrors.ErrorList, len(paths))
	for i, path := range paths {
		res[i] = gqlerrors.NewPathError(code, err, path)
	}
	return res
}

func (pc *OperationPlanContext) addErrors(errs gqlerrors.ErrorList) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.errors = append(pc.errors, errs...)
}

// addSourceErrors records errors returned by a source. With relative set the
// first path element, the fetcher field, is replaced by prefix.
// It must be called with pc.mu held.
func (pc *OperationPlanContext) addSourceErrors(errs gqlerrors.ErrorList, prefix []interface{}, relative bool) {
	for _, e := range errs {
		if e == nil {
			continue
		}
		path := normalizePath(e.Path)
		switch {
		case relative && len(path) > 0:
			path = appendPath(prefix, path[1:]...)
		case relative:
			path = appendPath(prefix)
		}

		extensions := make(map[string]interface{}, len(e.Extensions)+1)
		for k, v := range e.Extensions {
			extensions[k] = v
		}
		if _, ok := extensions["code"]; !ok {
			extensions["code"] = gqlerrors.SourceError
		}

		pc.errors = append(pc.errors, &gqlerrors.Error{
			Message:    e.Message,
			Locations:  e.Locations,
			Path:       path,
			Extensions: extensions,
		})
	}
}

func (pc *OperationPlanContext) setData(responseName string, v interface{}) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.data[responseName] = v
}

func (pc *OperationPlanContext) selectBranch(nodeID int, key, id string, ok bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.branches[nodeID] = branchSelection{key: key, id: id, ok: ok}
}

func (pc *OperationPlanContext) branchSelected(g *gate) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	sel, ok := pc.branches[g.node]
	return ok && sel.ok && sel.key == g.key
}

// nodeID returns the global id the node field of g was called with.
func (pc *OperationPlanContext) nodeID(g *gate) (string, bool) {
	if g == nil {
		return "", false
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	sel, ok := pc.branches[g.node]
	return sel.id, ok && sel.ok
}

// sortedErrors orders errors by path so concurrent completion stays deterministic.
func (pc *OperationPlanContext) sortedErrors() gqlerrors.ErrorList {
	res := append(gqlerrors.ErrorList(nil), pc.errors...)
	sort.SliceStable(res, func(i, j int) bool {
		return lessPath(res[i].Path, res[j].Path)
	})
	return res
}

func lessPath(a, b []interface{}) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if pathElemEqual(a[i], b[i]) {
			continue
		}
		ai, aIdx := toIndex(a[i])
		bi, bIdx := toIndex(b[i])
		if aIdx && bIdx {
			return ai < bi
		}
		return fmt.Sprint(a[i]) < fmt.Sprint(b[i])
	}
	return len(a) < len(b)
}

func normalizePath(path []interface{}) []interface{} {
	if len(path) == 0 {
		return nil
	}
	res := make([]interface{}, len(path))
	for i, el := range path {
		if idx, ok := toIndex(el); ok {
			res[i] = idx
			continue
		}
		res[i] = el
	}
	return res
}

// fieldPath drops the fragment segments of path.
func fieldPath(path operation.SelectionPath) []interface{} {
	var res []interface{}
	for _, s := range path.Segments() {
		if s.Kind == operation.FieldSegment {
			res = append(res, s.Name)
		}
	}
	return res
}
