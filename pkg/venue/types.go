// Package venue is the client for the second-chain order protocol. Payloads
// crossing this boundary are typed and validated; nothing is passed through
// uninterpreted.
package venue

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

// SigningScheme identifies how an order payload is signed.
type SigningScheme string

const (
	SchemeEIP712  SigningScheme = "eip712"
	SchemeEthSign SigningScheme = "ethsign"
	SchemePreSign SigningScheme = "presign"
)

func (s SigningScheme) Validate() error {
	switch s {
	case SchemeEIP712, SchemeEthSign, SchemePreSign:
		return nil
	}
	return swap.ValidationError("unknown signing scheme %q", string(s))
}

// OrderKind is the side of the order.
type OrderKind string

const (
	KindSell OrderKind = "sell"
	KindBuy  OrderKind = "buy"
)

func (k OrderKind) Validate() error {
	switch k {
	case KindSell, KindBuy:
		return nil
	}
	return swap.ValidationError("unknown order kind %q", string(k))
}

// SellTokenSource is where the venue draws the sell token from.
type SellTokenSource string

const (
	SourceERC20    SellTokenSource = "erc20"
	SourceExternal SellTokenSource = "external"
	SourceInternal SellTokenSource = "internal"
)

func (s SellTokenSource) Validate() error {
	switch s {
	case SourceERC20, SourceExternal, SourceInternal:
		return nil
	}
	return swap.ValidationError("unknown sell token source %q", string(s))
}

// BuyTokenDestination is where the venue delivers the buy token.
type BuyTokenDestination string

const (
	DestinationERC20    BuyTokenDestination = "erc20"
	DestinationInternal BuyTokenDestination = "internal"
)

func (d BuyTokenDestination) Validate() error {
	switch d {
	case DestinationERC20, DestinationInternal:
		return nil
	}
	return swap.ValidationError("unknown buy token destination %q", string(d))
}

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partiallyFilled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderExpired         OrderStatus = "expired"
)

// Terminal reports whether the venue will never change the order again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderExpired:
		return true
	}
	return false
}

// QuoteRequest asks the venue to price a sell of sellAmount of sellToken
// for buyToken on behalf of trader.
type QuoteRequest struct {
	SellToken  common.Address `json:"sellToken"`
	BuyToken   common.Address `json:"buyToken"`
	SellAmount *big.Int       `json:"sellAmountBeforeFee"`
	Trader     common.Address `json:"from"`
}

// Quote is the venue's priced response.
type Quote struct {
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
	FeeAmount  string `json:"feeAmount"`
	ValidTo    int64  `json:"validTo"`
}

// Order is the signed sell order submitted to the venue.
type Order struct {
	SellToken           common.Address      `json:"sellToken"`
	BuyToken            common.Address      `json:"buyToken"`
	Receiver            common.Address      `json:"receiver"`
	SellAmount          string              `json:"sellAmount"`
	BuyAmount           string              `json:"buyAmount"`
	FeeAmount           string              `json:"feeAmount"`
	ValidTo             int64               `json:"validTo"`
	Kind                OrderKind           `json:"kind"`
	PartiallyFillable   bool                `json:"partiallyFillable"`
	SellTokenSource     SellTokenSource     `json:"sellTokenBalance"`
	BuyTokenDestination BuyTokenDestination `json:"buyTokenBalance"`
	SigningScheme       SigningScheme       `json:"signingScheme"`
	Signature           string              `json:"signature"`
	From                common.Address      `json:"from"`
}

// Validate checks every tagged field before the order leaves the process.
func (o Order) Validate() error {
	if err := o.Kind.Validate(); err != nil {
		return err
	}
	if err := o.SellTokenSource.Validate(); err != nil {
		return err
	}
	if err := o.BuyTokenDestination.Validate(); err != nil {
		return err
	}
	if err := o.SigningScheme.Validate(); err != nil {
		return err
	}
	if o.SellAmount == "" || o.BuyAmount == "" {
		return swap.ValidationError("order amounts must be set")
	}
	return nil
}

// OrderState is the venue's report on a submitted order.
type OrderState struct {
	OrderID            string      `json:"uid"`
	Status             OrderStatus `json:"status"`
	ExecutedSellAmount string      `json:"executedSellAmount"`
	ExecutedBuyAmount  string      `json:"executedBuyAmount"`
}
