package queryer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/buildbuildio/fusion/requests"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const subscriptionID = "1"

var ErrSubscriptionRejected = errors.New("subscription rejected by source")

// Subscribe opens a graphql-ws connection to the source and starts req.
func (q *MultiOpQueryer) Subscribe(ctx context.Context, req *requests.Request, resCh chan<- *requests.Response) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url, nil)
	if err != nil {
		return err
	}
	for _, mw := range q.mdwares {
		if err := mw(r); err != nil {
			return err
		}
	}

	dialer := ws.Dialer{
		Timeout:   time.Second,
		Protocols: []string{"graphql-ws"},
		Header:    ws.HandshakeHeaderHTTP(r.Header),
	}

	wsURL, err := websocketURL(q.url)
	if err != nil {
		return err
	}

	conn, _, _, err := dialer.Dial(ctx, wsURL)
	if err != nil {
		return err
	}

	if err := q.startSubscription(conn, req); err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if msg, err := json.Marshal(requests.ClientSubMsg{ID: subscriptionID, Type: requests.SubStop}); err == nil {
				_ = wsutil.WriteClientText(conn, msg)
			}
		case <-done:
		}
		conn.Close()
	}()

	go func() {
		defer close(resCh)
		defer close(done)

		for {
			msg, err := wsutil.ReadServerText(conn)
			if err != nil {
				if ctx.Err() == nil {
					q.logger.Debug("subscription connection closed", zap.Error(err))
				}
				return
			}

			resp, more := q.readEvent(msg)
			if resp != nil {
				select {
				case resCh <- resp:
				case <-ctx.Done():
					return
				}
			}
			if !more {
				return
			}
		}
	}()

	return nil
}

func (q *MultiOpQueryer) startSubscription(conn net.Conn, req *requests.Request) error {
	for _, msg := range []requests.ClientSubMsg{
		{Type: requests.SubConnectionInit},
		{Type: requests.SubStart, ID: subscriptionID, Payload: req},
	} {
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := wsutil.WriteClientText(conn, b); err != nil {
			return err
		}
	}
	return nil
}

// readEvent decodes one server message. more is false once the source ended the subscription.
func (q *MultiOpQueryer) readEvent(msg []byte) (resp *requests.Response, more bool) {
	var serverResp requests.ServerSubMsg
	if err := json.Unmarshal(msg, &serverResp); err != nil {
		var errorResp requests.ServerSubErrorMsg
		if innerErr := json.Unmarshal(msg, &errorResp); innerErr != nil {
			q.logger.Warn("dropping malformed subscription message", zap.Error(err))
			return nil, true
		}
		return &requests.Response{Errors: errorResp.Payload}, false
	}

	switch serverResp.Type {
	case requests.SubData:
		return serverResp.Payload, true
	case requests.SubComplete, requests.SubConnectionTerminate:
		return nil, false
	case requests.SubConnectionError, requests.SubError:
		return requests.NewErrorResponse(fmt.Errorf("%w: %s", ErrSubscriptionRejected, q.name)), false
	default:
		return nil, true
	}
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "https" || u.Scheme == "wss" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String(), nil
}
