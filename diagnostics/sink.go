package diagnostics

import (
	"context"
	"time"
)

// Status is the terminal state of an execution node.
type Status string

const (
	StatusSkipped Status = "Skipped"
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// NodeInfo describes an execution node to a Sink.
type NodeInfo struct {
	ID     int
	Kind   string
	Source string
	Path   string
}

// Scope is opened around one unit of work and closed with End.
type Scope interface {
	TraceID() string
	SpanID() string
	End(status Status, duration time.Duration)
}

// Sink receives execution events. Implementations must be safe for concurrent use.
type Sink interface {
	StartOperation(ctx context.Context, name, kind string) (context.Context, Scope)
	StartNode(ctx context.Context, node NodeInfo) (context.Context, Scope)
	NodeError(ctx context.Context, node NodeInfo, err error)
}

// Noop discards every event.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) StartOperation(ctx context.Context, _, _ string) (context.Context, Scope) {
	return ctx, noopScope{}
}

func (Noop) StartNode(ctx context.Context, _ NodeInfo) (context.Context, Scope) {
	return ctx, noopScope{}
}

func (Noop) NodeError(context.Context, NodeInfo, error) {}

type noopScope struct{}

func (noopScope) TraceID() string           { return "" }
func (noopScope) SpanID() string            { return "" }
func (noopScope) End(Status, time.Duration) {}
