// Package tracker observes the lifecycle of orders submitted to the venue
// and reports the terminal state back to the orchestrator exactly once. A
// push channel is preferred when the venue offers one; otherwise the
// tracker falls back to fixed-interval polling.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/venue"
)

// DefaultPollInterval is the polling cadence when no push channel exists.
const DefaultPollInterval = 15 * time.Second

// Method records how a session observes the venue.
type Method string

const (
	MethodWebsocket Method = "websocket"
	MethodPolling   Method = "polling"
)

// Record is the transient tracking state for one swap, discarded when the
// session ends.
type Record struct {
	SwapID      string    `json:"swapId"`
	OrderID     string    `json:"orderId"`
	Method      Method    `json:"method"`
	LastChecked time.Time `json:"lastChecked"`
}

// TerminalEvent is delivered to the callback exactly once per session.
type TerminalEvent struct {
	SwapID             string
	OrderID            string
	Status             venue.OrderStatus
	ExecutedSellAmount string
	ExecutedBuyAmount  string
}

// Callback receives the terminal outcome of a tracked order.
type Callback func(TerminalEvent)

// PartialCallback receives non-terminal fill progress.
type PartialCallback func(swapID string, state venue.OrderState)

// strategy is the observation mechanism shared by both implementations.
// run blocks until a terminal state is seen or the context ends; it returns
// the terminal state, if any.
type strategy interface {
	method() Method
	run(ctx context.Context, session *session) (venue.OrderState, bool)
}

type session struct {
	record   Record
	cancel   context.CancelFunc
	onDone   Callback
	onUpdate PartialCallback
	mu       sync.Mutex
}

func (s *session) touch() {
	s.mu.Lock()
	s.record.LastChecked = time.Now().UTC()
	s.mu.Unlock()
}

// setMethod records a mid-session strategy change, such as a broken push
// stream degrading to polling.
func (s *session) setMethod(m Method) {
	s.mu.Lock()
	s.record.Method = m
	s.mu.Unlock()
}

func (s *session) snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Tracker owns the registry of active sessions, keyed by swap id.
type Tracker struct {
	client   venue.Client
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

func New(client venue.Client, logger *zap.Logger, interval, timeout time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{
		client:   client,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
		sessions: map[string]*session{},
	}
}

// StartTracking begins observing the order, choosing websocket when the
// venue's push endpoint is dialable and polling otherwise. The callback
// fires exactly once, after which the session record is released.
func (t *Tracker) StartTracking(ctx context.Context, swapID, orderID string, onDone Callback, onUpdate PartialCallback) error {
	t.mu.Lock()
	if _, ok := t.sessions[swapID]; ok {
		t.mu.Unlock()
		return fmt.Errorf("order for swap %v is already tracked", swapID)
	}

	sessionCtx, cancel := context.WithTimeout(ctx, t.timeout)
	strat := t.selectStrategy(sessionCtx)
	s := &session{
		record: Record{
			SwapID:      swapID,
			OrderID:     orderID,
			Method:      strat.method(),
			LastChecked: time.Now().UTC(),
		},
		cancel:   cancel,
		onDone:   onDone,
		onUpdate: onUpdate,
	}
	t.sessions[swapID] = s
	t.wg.Add(1)
	t.mu.Unlock()

	logger := t.logger.With(zap.String("swap", swapID), zap.String("order", orderID), zap.String("method", string(strat.method())))
	logger.Info("tracking order")

	go func() {
		defer t.wg.Done()
		defer t.remove(swapID)
		defer cancel()

		state, terminal := strat.run(sessionCtx, s)
		if !terminal {
			logger.Info("tracking ended without a terminal order state")
			return
		}
		logger.Info("order reached terminal state", zap.String("status", string(state.Status)))
		onDone(TerminalEvent{
			SwapID:             swapID,
			OrderID:            orderID,
			Status:             state.Status,
			ExecutedSellAmount: state.ExecutedSellAmount,
			ExecutedBuyAmount:  state.ExecutedBuyAmount,
		})
	}()
	return nil
}

// selectStrategy decides the observation method once, at session start.
func (t *Tracker) selectStrategy(ctx context.Context) strategy {
	if endpoint := t.client.WSEndpoint(); endpoint != "" {
		if ws, err := dialVenue(ctx, endpoint); err == nil {
			return &websocketStrategy{conn: ws, tracker: t}
		} else {
			t.logger.Warn("venue push channel unavailable, falling back to polling", zap.Error(err))
		}
	}
	return &pollingStrategy{tracker: t}
}

// TrackingStatus returns the session record for a swap, if one is active.
func (t *Tracker) TrackingStatus(swapID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[swapID]
	if !ok {
		return Record{}, false
	}
	return s.snapshot(), true
}

// ListActive returns the records of every active session.
func (t *Tracker) ListActive() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := make([]Record, 0, len(t.sessions))
	for _, s := range t.sessions {
		records = append(records, s.snapshot())
	}
	return records
}

// StopTracking cancels the session for a swap, if any. Idempotent.
func (t *Tracker) StopTracking(swapID string) {
	t.mu.Lock()
	s, ok := t.sessions[swapID]
	t.mu.Unlock()
	if ok {
		s.cancel()
	}
}

// Stop cancels every session and waits for them to drain.
func (t *Tracker) Stop() {
	t.mu.Lock()
	for _, s := range t.sessions {
		s.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) remove(swapID string) {
	t.mu.Lock()
	delete(t.sessions, swapID)
	t.mu.Unlock()
}
