package executor

import (
	"context"
	"errors"

	"github.com/buildbuildio/fusion/operation"
	"github.com/buildbuildio/fusion/planner"
	"github.com/samber/lo"
)

var errNoIntrospection = errors.New("introspection is not available")

// IntrospectionExecutionNode answers __schema and __type from the local schema.
type IntrospectionExecutionNode struct {
	node

	selections []*operation.Selection
}

var _ ExecutionNode = &IntrospectionExecutionNode{}

func newIntrospectionExecutionNode(qn *planner.QueryNode) *IntrospectionExecutionNode {
	return &IntrospectionExecutionNode{
		node:       newNode(qn.ID, IntrospectionNodeType, qn),
		selections: qn.Selections,
	}
}

func (n *IntrospectionExecutionNode) execute(_ context.Context, pc *OperationPlanContext) (*nodeResult, error) {
	if pc.executor.introspection == nil {
		return nil, errNoIntrospection
	}

	res, err := pc.executor.introspection.Resolve(pc.plan.Operation, n.selections, pc.flags, pc.variables)
	if err != nil {
		return nil, err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	mergeMaps(pc.data, res)

	return &nodeResult{}, nil
}

func (n *IntrospectionExecutionNode) errorPaths() [][]interface{} {
	return lo.Map(n.selections, func(sel *operation.Selection, _ int) []interface{} {
		return []interface{}{sel.ResponseName()}
	})
}
