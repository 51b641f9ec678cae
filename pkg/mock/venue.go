// Package mock provides hand-written fakes for the external boundaries,
// driven by per-method function fields. A nil field yields a zero value.
package mock

import (
	"context"

	"github.com/seigneur/takefi-sub000/pkg/venue"
)

type VenueClient struct {
	FuncGetQuote       func(context.Context, venue.QuoteRequest) (venue.Quote, error)
	FuncSubmitOrder    func(context.Context, venue.Order) (string, error)
	FuncGetOrderStatus func(context.Context, string) (venue.OrderState, error)
	FuncCancelOrder    func(context.Context, string) error
	FuncWSEndpoint     func() string
}

func NewVenueClient() *VenueClient {
	return &VenueClient{}
}

func (v *VenueClient) GetQuote(ctx context.Context, req venue.QuoteRequest) (venue.Quote, error) {
	if v.FuncGetQuote != nil {
		return v.FuncGetQuote(ctx, req)
	}
	return venue.Quote{}, nil
}

func (v *VenueClient) SubmitOrder(ctx context.Context, order venue.Order) (string, error) {
	if v.FuncSubmitOrder != nil {
		return v.FuncSubmitOrder(ctx, order)
	}
	return "", nil
}

func (v *VenueClient) GetOrderStatus(ctx context.Context, orderID string) (venue.OrderState, error) {
	if v.FuncGetOrderStatus != nil {
		return v.FuncGetOrderStatus(ctx, orderID)
	}
	return venue.OrderState{}, nil
}

func (v *VenueClient) CancelOrder(ctx context.Context, orderID string) error {
	if v.FuncCancelOrder != nil {
		return v.FuncCancelOrder(ctx, orderID)
	}
	return nil
}

func (v *VenueClient) WSEndpoint() string {
	if v.FuncWSEndpoint != nil {
		return v.FuncWSEndpoint()
	}
	return ""
}
