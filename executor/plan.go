package executor

import (
	"fmt"

	"github.com/buildbuildio/fusion/operation"
	"github.com/buildbuildio/fusion/planner"
	"github.com/vektah/gqlparser/v2/ast"
)

// OperationExecutionPlan is the sealed execution DAG of one compiled
// operation. It is immutable and shared by every execution of the operation.
type OperationExecutionPlan struct {
	Operation *operation.Operation
	QueryPlan *planner.QueryPlan
	// RootNodes have no dependencies and start every execution.
	RootNodes []ExecutionNode
	// AllNodes is indexed by node id. The id of the planner root is nil.
	AllNodes []ExecutionNode
}

// Definition returns the operation syntax tree the plan was built for.
func (p *OperationExecutionPlan) Definition() *ast.OperationDefinition {
	return p.Operation.Definition()
}

// Node returns the node with the given id.
func (p *OperationExecutionPlan) Node(id int) (ExecutionNode, bool) {
	if id < 0 || id >= len(p.AllNodes) || p.AllNodes[id] == nil {
		return nil, false
	}
	return p.AllNodes[id], true
}

// NewOperationExecutionPlan turns a query plan into an execution DAG.
func NewOperationExecutionPlan(qp *planner.QueryPlan) (*OperationExecutionPlan, error) {
	b := &planBuilder{
		qp:  qp,
		all: make([]ExecutionNode, len(qp.Nodes)),
	}

	for _, child := range qp.Root.Children {
		if err := b.build(child, nil); err != nil {
			return nil, err
		}
	}

	for _, n := range b.all {
		if n == nil {
			continue
		}
		if err := b.link(n); err != nil {
			return nil, err
		}
	}

	plan := &OperationExecutionPlan{
		Operation: qp.Operation,
		QueryPlan: qp,
		AllNodes:  b.all,
	}
	for _, n := range b.all {
		if n == nil {
			continue
		}
		if err := n.Seal(); err != nil {
			return nil, err
		}
		if len(n.Dependencies()) == 0 {
			plan.RootNodes = append(plan.RootNodes, n)
		}
	}

	return plan, nil
}

type planBuilder struct {
	qp  *planner.QueryPlan
	all []ExecutionNode
}

func (b *planBuilder) build(qn *planner.QueryNode, g *gate) error {
	if qn.ID < 0 || qn.ID >= len(b.all) {
		return fmt.Errorf("query node %d is out of range", qn.ID)
	}

	var n ExecutionNode
	switch qn.Kind {
	case planner.OperationNode:
		n = newOperationExecutionNode(qn)
	case planner.IntrospectionNode:
		n = newIntrospectionExecutionNode(qn)
	case planner.NodeFieldNode:
		nf := newNodeExecutionNode(qn)
		n = nf
		for _, typeName := range qn.BranchTypes() {
			if err := b.build(qn.Branches[typeName], &gate{node: qn.ID, key: typeName}); err != nil {
				return err
			}
		}
		if qn.Fallback != nil {
			nf.hasFallback = true
			if err := b.build(qn.Fallback, &gate{node: qn.ID, key: fallbackKey}); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("query node %d has unexpected kind %s", qn.ID, qn.Kind)
	}
	n.base().gate = g
	b.all[qn.ID] = n

	for _, child := range qn.Children {
		if err := b.build(child, g); err != nil {
			return err
		}
	}
	return nil
}

// link wires the dependencies of n in both directions. Branches of a node
// field depend on the node field itself.
func (b *planBuilder) link(n ExecutionNode) error {
	deps := append([]int(nil), b.qp.Nodes[n.ID()].DependsOn...)
	if g := n.base().gate; g != nil && len(deps) == 0 {
		deps = append(deps, g.node)
	}

	for _, id := range deps {
		dep := b.all[id]
		if dep == nil {
			return fmt.Errorf("node %d depends on unknown node %d", n.ID(), id)
		}
		if err := n.AddDependency(id); err != nil {
			return err
		}
		if err := dep.AddDependent(n.ID()); err != nil {
			return err
		}
	}
	return nil
}
