package executor

import (
	"context"
	"fmt"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/gqlerrors"
	"github.com/buildbuildio/fusion/planner"
	"github.com/vektah/gqlparser/v2/ast"
)

// NodeExecutionNode resolves node(id:). The type name is decoded from the
// global id and exactly one branch, or the fallback, is allowed to run.
type NodeExecutionNode struct {
	node

	responseName string
	idValue      *ast.Value
	branches     map[string]struct{}
	hasFallback  bool
}

var _ ExecutionNode = &NodeExecutionNode{}

func newNodeExecutionNode(qn *planner.QueryNode) *NodeExecutionNode {
	n := &NodeExecutionNode{
		node:         newNode(qn.ID, NodeFieldNodeType, qn),
		responseName: qn.ResponseName,
		idValue:      qn.IDValue,
		branches:     make(map[string]struct{}, len(qn.Branches)),
	}
	for t := range qn.Branches {
		n.branches[t] = struct{}{}
	}
	return n
}

func (n *NodeExecutionNode) execute(_ context.Context, pc *OperationPlanContext) (*nodeResult, error) {
	id, typeName, err := n.decode(pc.variables)
	if err != nil {
		pc.selectBranch(n.id, "", "", false)
		pc.setData(n.responseName, nil)
		return nil, gqlerrors.NewPathError(gqlerrors.InvalidNodeIDError, err, []interface{}{n.responseName})
	}

	switch _, ok := n.branches[typeName]; {
	case ok:
		pc.selectBranch(n.id, typeName, id, true)
	case n.hasFallback:
		pc.selectBranch(n.id, fallbackKey, id, true)
	default:
		// unknown type without a fallback resolves to null
		pc.selectBranch(n.id, "", id, false)
		pc.setData(n.responseName, nil)
	}

	return &nodeResult{variableSets: []map[string]interface{}{{common.IDFieldName: id}}}, nil
}

func (n *NodeExecutionNode) decode(variables map[string]interface{}) (string, string, error) {
	raw, err := n.idValue.Value(variables)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", common.ErrInvalidNodeID, err)
	}
	id, ok := raw.(string)
	if !ok {
		return "", "", fmt.Errorf("%w: expected a string, got %T", common.ErrInvalidNodeID, raw)
	}
	typeName, _, err := common.DecodeNodeID(id)
	if err != nil {
		return "", "", err
	}
	return id, typeName, nil
}

func (n *NodeExecutionNode) errorPaths() [][]interface{} {
	return [][]interface{}{{n.responseName}}
}
