package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/venue"
)

// pollingStrategy asks the venue for the order state on a fixed interval.
type pollingStrategy struct {
	tracker *Tracker
}

func (p *pollingStrategy) method() Method {
	return MethodPolling
}

func (p *pollingStrategy) run(ctx context.Context, s *session) (venue.OrderState, bool) {
	ticker := time.NewTicker(p.tracker.interval)
	defer ticker.Stop()

	for {
		state, err := p.tracker.client.GetOrderStatus(ctx, s.record.OrderID)
		s.touch()
		switch {
		case err != nil:
			if ctx.Err() == nil {
				p.tracker.logger.Warn("order status poll failed, retrying",
					zap.String("order", s.record.OrderID), zap.Error(err))
			}
		case state.Status.Terminal():
			return state, true
		case state.Status != "" && s.onUpdate != nil:
			s.onUpdate(s.record.SwapID, state)
		}

		select {
		case <-ctx.Done():
			return venue.OrderState{}, false
		case <-ticker.C:
		}
	}
}
