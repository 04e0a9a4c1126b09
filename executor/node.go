package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildbuildio/fusion/diagnostics"
	"github.com/buildbuildio/fusion/operation"
	"github.com/buildbuildio/fusion/planner"
)

var (
	ErrSealed           = errors.New("execution node is sealed")
	ErrSelfDependency   = errors.New("execution node cannot depend on itself")
	ErrInvalidCondition = errors.New("condition variable is not a boolean")
)

type NodeType int

const (
	OperationNodeType NodeType = iota
	IntrospectionNodeType
	NodeFieldNodeType
)

func (t NodeType) String() string {
	switch t {
	case OperationNodeType:
		return "Operation"
	case IntrospectionNodeType:
		return "Introspection"
	case NodeFieldNodeType:
		return "Node"
	}
	return "Unknown"
}

// Status is the state of a node within one execution.
//
//	NotStarted -> Skipped
//	NotStarted -> Running -> Success | Failed
type Status int32

const (
	NotStarted Status = iota
	Running
	Skipped
	Success
	Failed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Skipped:
		return "Skipped"
	case Success:
		return "Success"
	case Failed:
		return "Failed"
	}
	return "Unknown"
}

func (s Status) diagnostic() diagnostics.Status {
	switch s {
	case Skipped:
		return diagnostics.StatusSkipped
	case Failed:
		return diagnostics.StatusFailed
	}
	return diagnostics.StatusSuccess
}

// ExecutionNode is one vertex of the execution DAG.
type ExecutionNode interface {
	ID() int
	Type() NodeType
	Source() string
	Path() operation.SelectionPath
	Conditions() []planner.Condition
	Dependencies() []int
	Dependents() []int
	AddDependency(id int) error
	AddDependent(id int) error
	Seal() error

	base() *node
	execute(ctx context.Context, pc *OperationPlanContext) (*nodeResult, error)
}

// gate ties a node to one branch of a node field. The node only runs when
// the node field picked the branch named key.
type gate struct {
	node int
	key  string
}

// fallbackKey names the fallback branch of a node field.
const fallbackKey = ""

type node struct {
	id         int
	typ        NodeType
	source     string
	path       operation.SelectionPath
	conditions []planner.Condition
	gate       *gate

	dependencies []int
	dependents   []int
	sealed       bool
}

func newNode(id int, typ NodeType, qn *planner.QueryNode) node {
	return node{
		id:         id,
		typ:        typ,
		source:     qn.Source,
		path:       qn.Path,
		conditions: qn.Conditions,
	}
}

func (n *node) base() *node {
	return n
}

func (n *node) ID() int {
	return n.id
}

func (n *node) Type() NodeType {
	return n.typ
}

func (n *node) Source() string {
	return n.source
}

func (n *node) Path() operation.SelectionPath {
	return n.path
}

func (n *node) Conditions() []planner.Condition {
	return n.conditions
}

func (n *node) Dependencies() []int {
	return n.dependencies
}

func (n *node) Dependents() []int {
	return n.dependents
}

func (n *node) AddDependency(id int) error {
	var err error
	n.dependencies, err = n.link(n.dependencies, id)
	return err
}

func (n *node) AddDependent(id int) error {
	var err error
	n.dependents, err = n.link(n.dependents, id)
	return err
}

func (n *node) link(ids []int, id int) ([]int, error) {
	if n.sealed {
		return ids, fmt.Errorf("%w: node %d", ErrSealed, n.id)
	}
	if id == n.id {
		return ids, fmt.Errorf("%w: node %d", ErrSelfDependency, n.id)
	}
	for _, existing := range ids {
		if existing == id {
			return ids, nil
		}
	}
	return append(ids, id), nil
}

// Seal freezes the dependency lists. Nodes are sealed exactly once.
func (n *node) Seal() error {
	if n.sealed {
		return fmt.Errorf("%w: node %d", ErrSealed, n.id)
	}
	n.sealed = true
	n.dependencies = n.dependencies[:len(n.dependencies):len(n.dependencies)]
	n.dependents = n.dependents[:len(n.dependents):len(n.dependents)]
	return nil
}

func (n *node) info() diagnostics.NodeInfo {
	return diagnostics.NodeInfo{
		ID:     n.id,
		Kind:   n.typ.String(),
		Source: n.source,
		Path:   n.path.String(),
	}
}

// conditionsMet evaluates the node conditions. An absent or null variable passes.
func (n *node) conditionsMet(variables map[string]interface{}) (bool, error) {
	for _, c := range n.conditions {
		v, ok := variables[c.Variable]
		if !ok || v == nil {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("%w: $%s is %T", ErrInvalidCondition, c.Variable, v)
		}
		if b != c.PassingValue {
			return false, nil
		}
	}
	return true, nil
}

// nodeResult is reported back to the context once a node finished its work.
type nodeResult struct {
	variableSets []map[string]interface{}
}
