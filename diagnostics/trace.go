package diagnostics

import (
	"sync"
	"time"
)

// NodeTrace is the trace entry of one execution node.
type NodeTrace struct {
	SpanID       string                   `json:"spanId,omitempty"`
	Duration     time.Duration            `json:"duration"`
	Status       Status                   `json:"status"`
	VariableSets []map[string]interface{} `json:"variableSets,omitempty"`
}

// OperationPlanTrace is returned to clients under extensions.fusion.trace.
type OperationPlanTrace struct {
	TraceID     string             `json:"traceId,omitempty"`
	AppID       string             `json:"appId,omitempty"`
	Environment string             `json:"environment,omitempty"`
	Duration    time.Duration      `json:"duration"`
	Nodes       map[int]*NodeTrace `json:"nodes"`

	mu sync.Mutex
}

func NewOperationPlanTrace(appID, environment string) *OperationPlanTrace {
	return &OperationPlanTrace{
		AppID:       appID,
		Environment: environment,
		Nodes:       make(map[int]*NodeTrace),
	}
}

// AddNode records the outcome of node id. It is safe to call concurrently.
func (t *OperationPlanTrace) AddNode(id int, node *NodeTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Nodes[id] = node
}
