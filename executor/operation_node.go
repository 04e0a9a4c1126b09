package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/gqlerrors"
	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/planner"
	"github.com/buildbuildio/fusion/requests"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
)

// sourceError marks failures of the round-trip to a source.
type sourceError struct {
	source string
	err    error
}

func (e *sourceError) Error() string {
	return fmt.Sprintf("request to %s failed: %s", e.source, e.err)
}

func (e *sourceError) Unwrap() error {
	return e.err
}

// OperationExecutionNode sends one document to a source. Root nodes merge the
// response at the root of the result, entity nodes send one request per
// object found at their path and merge each answer into its object.
type OperationExecutionNode struct {
	node

	document      *ast.OperationDefinition
	query         string
	operationName string
	typeName      string
	fetcher       *metadata.ObjectFetcher
	requirements  []planner.Requirement
	// responseName is set for node field branches.
	responseName string
	rootFields   []string
	variables    []string
}

var _ ExecutionNode = &OperationExecutionNode{}

func newOperationExecutionNode(qn *planner.QueryNode) *OperationExecutionNode {
	n := &OperationExecutionNode{
		node:         newNode(qn.ID, OperationNodeType, qn),
		document:     qn.Document,
		query:        qn.Query,
		typeName:     qn.TypeName,
		fetcher:      qn.Fetcher,
		requirements: qn.Requirements,
		responseName: qn.ResponseName,
	}
	if qn.Document != nil {
		n.operationName = qn.Document.Name
		for _, vd := range qn.Document.VariableDefinitions {
			n.variables = append(n.variables, vd.Variable)
		}
		for _, s := range qn.Document.SelectionSet {
			if f, ok := s.(*ast.Field); ok && f.Name != common.TypenameFieldName {
				n.rootFields = append(n.rootFields, f.Alias)
			}
		}
	}
	return n
}

func (n *OperationExecutionNode) Query() string {
	return n.query
}

func (n *OperationExecutionNode) isRoot() bool {
	return n.typeName == "" && n.responseName == ""
}

func (n *OperationExecutionNode) isBranch() bool {
	return n.responseName != ""
}

// request builds the request for one set of requirement values. Only the
// variables declared by the document are sent.
func (n *OperationExecutionNode) request(clientVariables, exported map[string]interface{}) *requests.Request {
	var variables map[string]interface{}
	for _, name := range n.variables {
		v, ok := exported[name]
		if !ok {
			v, ok = clientVariables[name]
		}
		if !ok {
			continue
		}
		if variables == nil {
			variables = make(map[string]interface{}, len(n.variables))
		}
		variables[name] = v
	}

	operationName := n.operationName
	return &requests.Request{
		Query:         n.query,
		OperationName: &operationName,
		Variables:     variables,
	}
}

func (n *OperationExecutionNode) execute(ctx context.Context, pc *OperationPlanContext) (*nodeResult, error) {
	targets, reqs, index, err := n.prepare(pc)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return &nodeResult{}, nil
	}

	q, err := pc.executor.queryer(n.source)
	if err != nil {
		return nil, err
	}

	resps, err := q.Query(ctx, reqs)
	if err != nil {
		return nil, &sourceError{source: n.source, err: err}
	}
	if len(resps) != len(reqs) {
		return nil, &sourceError{source: n.source, err: fmt.Errorf("expected %d responses, got %d", len(reqs), len(resps))}
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	used := make([]bool, len(resps))
	for i, t := range targets {
		resp := resps[index[i]]
		if resp == nil {
			continue
		}
		// answers shared by several objects are copied for every further object
		data := resp.Data
		if used[index[i]] {
			data, _ = deepCopy(resp.Data).(map[string]interface{})
		}
		used[index[i]] = true
		n.merge(pc, t, data, resp.Errors)
	}

	res := &nodeResult{variableSets: make([]map[string]interface{}, len(reqs))}
	for i, r := range reqs {
		res.variableSets[i] = r.Variables
	}
	return res, nil
}

// prepare collects the objects the node fetches and one request per distinct
// set of variables. index maps every target to its request.
func (n *OperationExecutionNode) prepare(pc *OperationPlanContext) ([]*target, []*requests.Request, []int, error) {
	switch {
	case n.isRoot():
		return []*target{nil}, []*requests.Request{n.request(pc.variables, nil)}, []int{0}, nil
	case n.isBranch():
		id, ok := pc.nodeID(n.gate)
		if !ok {
			return nil, nil, nil, nil
		}
		exported := make(map[string]interface{}, len(n.requirements))
		for _, r := range n.requirements {
			if r.FromNodeID {
				exported[r.Variable] = id
			}
		}
		return []*target{nil}, []*requests.Request{n.request(pc.variables, exported)}, []int{0}, nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	var (
		targets []*target
		reqs    []*requests.Request
		index   []int
	)
	seen := make(map[string]int)

	for _, t := range collectTargets(pc.data, n.path) {
		exported, ok := n.exportedValues(t)
		if !ok {
			continue
		}

		key, err := json.Marshal(exported)
		if err != nil {
			return nil, nil, nil, err
		}
		i, ok := seen[string(key)]
		if !ok {
			i = len(reqs)
			seen[string(key)] = i
			reqs = append(reqs, n.request(pc.variables, exported))
		}
		targets = append(targets, t)
		index = append(index, i)
	}

	return targets, reqs, index, nil
}

// exportedValues reads the requirements of t. Objects missing a value are not fetched.
func (n *OperationExecutionNode) exportedValues(t *target) (map[string]interface{}, bool) {
	exported := make(map[string]interface{}, len(n.requirements))
	for _, r := range n.requirements {
		depth := r.Path.Len()
		if depth >= len(t.ancestors) || t.ancestors[depth] == nil {
			return nil, false
		}
		v, ok := t.ancestors[depth][r.Variable]
		if !ok || v == nil {
			return nil, false
		}
		exported[r.Variable] = v
	}
	return exported, true
}

// merge must be called with pc.mu held.
func (n *OperationExecutionNode) merge(pc *OperationPlanContext, t *target, data map[string]interface{}, errs gqlerrors.ErrorList) {
	switch {
	case n.isRoot():
		if data != nil {
			mergeMaps(pc.data, data)
		}
		pc.addSourceErrors(errs, nil, false)

	case n.isBranch():
		obj, ok := data[n.fetcher.FieldName].(map[string]interface{})
		if ok {
			obj[common.TypenameFieldName] = n.typeName
			if existing, ok := pc.data[n.responseName].(map[string]interface{}); ok {
				obj = mergeMaps(existing, obj)
			}
			pc.data[n.responseName] = obj
		} else {
			pc.data[n.responseName] = nil
		}
		pc.addSourceErrors(errs, []interface{}{n.responseName}, true)

	default:
		if obj, ok := data[n.fetcher.FieldName].(map[string]interface{}); ok {
			mergeMaps(t.object, obj)
		}
		pc.addSourceErrors(errs, t.path, true)
	}
}

// errorPaths are the response paths a failure of the node is reported at.
func (n *OperationExecutionNode) errorPaths() [][]interface{} {
	switch {
	case n.isBranch():
		return [][]interface{}{{n.responseName}}
	case n.isRoot():
		return lo.Map(n.rootFields, func(name string, _ int) []interface{} {
			return []interface{}{name}
		})
	}
	return [][]interface{}{fieldPath(n.path)}
}
