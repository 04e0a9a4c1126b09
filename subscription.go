package fusion

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/buildbuildio/fusion/requests"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	subscriptionProtocol = "graphql-ws"
	heartbeatInterval    = 4 * time.Second
)

type subscriptionDict map[string]*subscriptionEntry

func (sd subscriptionDict) Clean(key string) {
	if subEntry, ok := sd[key]; ok {
		go subEntry.Close()
		delete(sd, key)
	}
}

func (sd subscriptionDict) CleanAll() {
	for key := range sd {
		sd.Clean(key)
	}
}

func sendHeartbeat(w *connWriter, closeCh <-chan struct{}) {
	timeTicker := time.NewTicker(heartbeatInterval)
	defer timeTicker.Stop()

	for {
		select {
		case <-timeTicker.C:
			if err := w.write(requests.ServerSubMsg{Type: requests.SubConnectionKeepAlive}); err != nil {
				return
			}
		case <-closeCh:
			return
		}
	}
}

func (g *Gateway) subscriptionHandler(w http.ResponseWriter, r *http.Request) {
	upgrader := ws.HTTPUpgrader{
		Timeout: time.Second * 60,
		Protocol: func(subprotocol string) bool {
			return subprotocol == subscriptionProtocol
		},
	}

	conn, _, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	logger := g.logger.With(zap.String("connection_id", uuid.NewString()))
	writer := &connWriter{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	subDict := make(subscriptionDict)
	closeCh := make(chan struct{})

	defer func() {
		close(closeCh)
		cancel()
		subDict.CleanAll()

		// gracefully close connection
		_ = writer.close(ws.StatusNormalClosure)
		_ = conn.Close()
	}()

	for {
		msg, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}

		var subMsg requests.ClientSubMsg
		if err := json.Unmarshal(msg, &subMsg); err != nil {
			logger.Debug("malformed subscription message", zap.Error(err))
			return
		}

		switch subMsg.Type {
		// When the GraphQL WS connection is initiated, send an ACK back
		case requests.SubConnectionInit:
			if err := writer.write(requests.ServerSubMsg{Type: requests.SubConnectionAck}); err != nil {
				return
			}
			go sendHeartbeat(writer, closeCh)

		case requests.SubStart:
			if subMsg.Payload == nil {
				_ = writer.write(requests.NewSubErrorMsg(subMsg.ID, requests.ErrMissingQuery))
				continue
			}
			request := subMsg.Payload
			request.ID = uuid.NewString()
			request.Original = r

			// a restarted id replaces the running subscription
			subDict.Clean(subMsg.ID)

			subEntry, err := g.newSubscriptionEntry(ctx, subMsg.ID, request)
			if err != nil {
				logger.Debug("subscription rejected", zap.String("id", subMsg.ID), zap.Error(err))
				_ = writer.write(requests.NewSubErrorMsg(subMsg.ID, err))
				continue
			}

			subDict[subMsg.ID] = subEntry
			go subEntry.Listen(writer)

		case requests.SubStop:
			subDict.Clean(subMsg.ID)

		// When the GraphQL WS connection is terminated by the client,
		// close the connection and close all the running operations
		case requests.SubConnectionTerminate:
			return

		default:
			logger.Warn("unknown subscription message", zap.String("type", subMsg.Type))
			_ = writer.write(requests.ServerSubMsg{Type: requests.SubConnectionError})
			return
		}
	}
}
