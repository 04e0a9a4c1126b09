package fusion

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/buildbuildio/fusion/executor"
	"github.com/buildbuildio/fusion/requests"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vektah/gqlparser/v2/ast"
)

// connWriter serializes the writes of all subscriptions sharing a connection.
type connWriter struct {
	conn net.Conn
	mu   sync.Mutex
}

func (cw *connWriter) write(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	return wsutil.WriteServerText(cw.conn, b)
}

func (cw *connWriter) close(code ws.StatusCode) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return ws.WriteFrame(cw.conn, ws.NewCloseFrame(ws.NewCloseFrameBody(code, "")))
}

type subscriptionEntry struct {
	id     string
	cancel context.CancelFunc
	resCh  chan *requests.Response
	done   chan struct{}
}

func (g *Gateway) newSubscriptionEntry(ctx context.Context, id string, req *requests.Request) (*subscriptionEntry, error) {
	plan, variables, err := g.prepare(req)
	if err != nil {
		return nil, err
	}
	if plan.Operation.Type() != ast.Subscription {
		return nil, executor.ErrNotSubscription
	}

	ctx, cancel := context.WithCancel(ctx)
	subEntry := &subscriptionEntry{
		id:     id,
		cancel: cancel,
		resCh:  make(chan *requests.Response),
		done:   make(chan struct{}),
	}

	if err := g.executor.Subscribe(ctx, plan, variables, subEntry.resCh); err != nil {
		cancel()
		return nil, err
	}

	return subEntry, nil
}

// Close stops the subscription and waits until its last event was handled.
func (se *subscriptionEntry) Close() {
	se.cancel()
	<-se.done
}

// Listen forwards events until the source completes or the subscription is
// stopped. The source completing is reported to the client.
func (se *subscriptionEntry) Listen(w *connWriter) {
	defer close(se.done)

	for resp := range se.resCh {
		err := w.write(requests.ServerSubMsg{
			ID:      se.id,
			Type:    requests.SubData,
			Payload: resp,
		})
		if err != nil {
			se.cancel()
			for range se.resCh {
			}
			return
		}
	}

	_ = w.write(requests.ServerSubMsg{ID: se.id, Type: requests.SubComplete})
}
