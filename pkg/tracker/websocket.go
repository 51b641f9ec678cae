package tracker

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/venue"
)

// wsConn is the subset of the websocket connection the strategy needs,
// narrowed for tests.
type wsConn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (int, []byte, error)
	Close() error
}

func dialVenue(ctx context.Context, endpoint string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type subscribeMessage struct {
	Subscribe string `json:"subscribe"`
}

// websocketStrategy subscribes to push updates for one order. A broken
// stream degrades to polling instead of abandoning the session.
type websocketStrategy struct {
	conn    wsConn
	tracker *Tracker
}

func (w *websocketStrategy) method() Method {
	return MethodWebsocket
}

func (w *websocketStrategy) run(ctx context.Context, s *session) (venue.OrderState, bool) {
	defer w.conn.Close()

	if err := w.conn.WriteJSON(subscribeMessage{Subscribe: s.record.OrderID}); err != nil {
		w.tracker.logger.Warn("order subscription failed, degrading to polling", zap.Error(err))
		s.setMethod(MethodPolling)
		return (&pollingStrategy{tracker: w.tracker}).run(ctx, s)
	}

	// Close the connection when the session context ends so the blocked
	// read below returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return venue.OrderState{}, false
			}
			w.tracker.logger.Warn("venue stream broke, degrading to polling", zap.Error(err))
			s.setMethod(MethodPolling)
			return (&pollingStrategy{tracker: w.tracker}).run(ctx, s)
		}
		s.touch()

		var state venue.OrderState
		if err := json.Unmarshal(payload, &state); err != nil {
			w.tracker.logger.Warn("discarding malformed venue push message", zap.Error(err))
			continue
		}
		if state.OrderID != "" && state.OrderID != s.record.OrderID {
			continue
		}
		if state.Status.Terminal() {
			return state, true
		}
		if state.Status != "" && s.onUpdate != nil {
			s.onUpdate(s.record.SwapID, state)
		}
	}
}
