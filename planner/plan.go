package planner

import (
	"encoding/json"
	"sort"

	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/operation"
	"github.com/vektah/gqlparser/v2/ast"
)

type Planner interface {
	Plan(*PlanningContext) (*QueryPlan, error)
}

// PlanningContext contains the necessary information used to plan an operation.
type PlanningContext struct {
	Operation *operation.Operation
	Metadata  *metadata.DB
}

type NodeKind int

const (
	RootNode NodeKind = iota
	OperationNode
	IntrospectionNode
	NodeFieldNode
)

func (k NodeKind) String() string {
	switch k {
	case RootNode:
		return "Root"
	case OperationNode:
		return "Operation"
	case IntrospectionNode:
		return "Introspection"
	case NodeFieldNode:
		return "Node"
	}
	return "Unknown"
}

func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Condition skips a node unless Variable equals PassingValue.
type Condition struct {
	Variable     string `json:"variable"`
	PassingValue bool   `json:"passingValue"`
}

// Requirement fills Variable from the object at Path. Path is the entity path
// itself or one of its ancestors and the value is read from the export alias
// named like the variable. FromNodeID requirements take the id argument of a
// node field instead.
type Requirement struct {
	Variable   string                  `json:"variable"`
	Path       operation.SelectionPath `json:"path"`
	FromNodeID bool                    `json:"fromNodeId,omitempty"`
}

// QueryNode is one unit of planned work, usually a round-trip to one source.
type QueryNode struct {
	ID   int
	Kind NodeKind

	Source   string
	Document *ast.OperationDefinition
	Query    string

	// Path locates the objects the node result is merged into. Root fetches use the root path.
	Path operation.SelectionPath
	// TypeName and Fetcher are set for nodes refetching objects of TypeName.
	TypeName string
	Fetcher  *metadata.ObjectFetcher

	Requirements []Requirement
	Conditions   []Condition
	DependsOn    []int
	Children     []*QueryNode

	// ResponseName, IDValue, Branches and Fallback describe a node field.
	ResponseName string
	IDValue      *ast.Value
	Branches     map[string]*QueryNode
	Fallback     *QueryNode

	// Selections answered locally by an introspection node.
	Selections []*operation.Selection
}

// BranchTypes returns the branch type names in a stable order.
func (n *QueryNode) BranchTypes() []string {
	types := make([]string, 0, len(n.Branches))
	for t := range n.Branches {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (n *QueryNode) addDependency(id int) {
	if id == n.ID {
		return
	}
	for _, d := range n.DependsOn {
		if d == id {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, id)
}

func (n *QueryNode) addRequirement(r Requirement) {
	for _, existing := range n.Requirements {
		if existing.Variable == r.Variable {
			return
		}
	}
	n.Requirements = append(n.Requirements, r)
}

// MarshalJSON marshals the node the JSON
func (n *QueryNode) MarshalJSON() ([]byte, error) {
	var branches map[string]*QueryNode
	if len(n.Branches) > 0 {
		branches = n.Branches
	}

	var selections []string
	for _, s := range n.Selections {
		selections = append(selections, s.ResponseName())
	}

	var path string
	if n.Kind != RootNode {
		path = n.Path.String()
	}

	var fetcher string
	if n.Fetcher != nil {
		fetcher = n.Fetcher.FieldName
	}

	return json.Marshal(struct {
		ID           int                   `json:"id"`
		Kind         NodeKind              `json:"kind"`
		Source       string                `json:"source,omitempty"`
		Path         string                `json:"path,omitempty"`
		TypeName     string                `json:"typeName,omitempty"`
		Fetcher      string                `json:"fetcher,omitempty"`
		ResponseName string                `json:"responseName,omitempty"`
		Query        string                `json:"query,omitempty"`
		Selections   []string              `json:"selections,omitempty"`
		Requirements []Requirement         `json:"requirements,omitempty"`
		Conditions   []Condition           `json:"conditions,omitempty"`
		DependsOn    []int                 `json:"dependsOn,omitempty"`
		Branches     map[string]*QueryNode `json:"branches,omitempty"`
		Fallback     *QueryNode            `json:"fallback,omitempty"`
		Children     []*QueryNode          `json:"children,omitempty"`
	}{
		ID:           n.ID,
		Kind:         n.Kind,
		Source:       n.Source,
		Path:         path,
		TypeName:     n.TypeName,
		Fetcher:      fetcher,
		ResponseName: n.ResponseName,
		Query:        n.Query,
		Selections:   selections,
		Requirements: n.Requirements,
		Conditions:   n.Conditions,
		DependsOn:    n.DependsOn,
		Branches:     branches,
		Fallback:     n.Fallback,
		Children:     n.Children,
	})
}

// QueryPlan is the tree of planned work for one compiled operation.
type QueryPlan struct {
	Operation *operation.Operation
	Root      *QueryNode
	// Nodes indexed by id.
	Nodes []*QueryNode
}

func (qp *QueryPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Operation string     `json:"operation"`
		Root      *QueryNode `json:"root"`
	}{
		Operation: string(qp.Operation.Type()),
		Root:      qp.Root,
	})
}
