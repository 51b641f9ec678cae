// Package orchestrator drives the swap state machine. It is the only writer
// of swap records: HTTP handlers, chain watches and order tracking sessions
// all funnel their events through it.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/alert"
	"github.com/seigneur/takefi-sub000/pkg/btc"
	"github.com/seigneur/takefi-sub000/pkg/htlc"
	"github.com/seigneur/takefi-sub000/pkg/monitor"
	"github.com/seigneur/takefi-sub000/pkg/secret"
	"github.com/seigneur/takefi-sub000/pkg/store"
	"github.com/seigneur/takefi-sub000/pkg/swap"
	"github.com/seigneur/takefi-sub000/pkg/tracker"
	"github.com/seigneur/takefi-sub000/pkg/venue"
)

// DefaultTimelock is the timelock in blocks applied when a request leaves it
// unset, roughly one day of Bitcoin blocks.
const DefaultTimelock = 144

// Config carries the deployment-specific knobs of the orchestrator.
type Config struct {
	Network *chaincfg.Params

	// SellToken is the wrapped BTC token sold on the venue chain.
	SellToken common.Address

	// Tokens maps a target token symbol to its venue-chain address.
	Tokens map[string]common.Address

	// DefaultToken is the symbol used when a request names no target token.
	DefaultToken string

	// SatScale converts satoshis into the smallest unit of SellToken. Wrapped
	// BTC with 18 decimals needs 1e10; nil means 1:1.
	SatScale *big.Int

	// OrderValidity bounds how long a submitted order stays fillable when the
	// venue quote carries no deadline of its own.
	OrderValidity time.Duration
}

func (c Config) mainnet() bool {
	return c.Network.Name == chaincfg.MainNetParams.Name
}

func (c Config) satScale() *big.Int {
	if c.SatScale == nil || c.SatScale.Sign() == 0 {
		return big.NewInt(1)
	}
	return c.SatScale
}

// CreateRequest is the input of CreateSwap, already decoded but not yet
// validated.
type CreateRequest struct {
	UserBtcAddress string
	UserEthWallet  string
	MMPubkey       string
	// UserPubkey is optional. When present the contract carries a refund
	// branch spendable by this key after the timelock.
	UserPubkey  string
	AmountSats  int64
	TargetToken string
	Timelock    int64
}

// Orchestrator wires the secret engine, contract compiler, store, chain
// watch, venue and order tracker together. All methods are safe for
// concurrent use; record mutation is serialized through the store.
type Orchestrator struct {
	cfg     Config
	secrets *secret.Engine
	db      store.Store
	chain   btc.Client
	mon     *monitor.Monitor
	trk     *tracker.Tracker
	venue   venue.Client
	signer  *ecdsa.PrivateKey
	alerts  alert.Notifier
	logger  *zap.Logger

	// ctx outlives any single request so watches and tracking sessions are
	// not tied to HTTP request lifetimes.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, db store.Store, chain btc.Client, mon *monitor.Monitor, trk *tracker.Tracker, venueClient venue.Client, signer *ecdsa.PrivateKey, alerts alert.Notifier, logger *zap.Logger) *Orchestrator {
	if alerts == nil {
		alerts = alert.NewNoop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:     cfg,
		secrets: secret.NewEngine(),
		db:      db,
		chain:   chain,
		mon:     mon,
		trk:     trk,
		venue:   venueClient,
		signer:  signer,
		alerts:  alerts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Stop shuts down background watches and tracking sessions. Swap records are
// durable; a restart resumes from the store.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.mon.Stop()
	o.trk.Stop()
}

// CreateSwap validates the request, issues a fresh secret, compiles the
// contract and starts watching its address for funding. The returned record
// includes the preimage only off mainnet.
func (o *Orchestrator) CreateSwap(ctx context.Context, req CreateRequest) (swap.Swap, error) {
	if _, err := htlc.ValidateAddress(req.UserBtcAddress, o.cfg.Network); err != nil {
		return swap.Swap{}, err
	}
	if !common.IsHexAddress(req.UserEthWallet) {
		return swap.Swap{}, swap.ValidationError("invalid wallet address %q", req.UserEthWallet)
	}
	mmKey, err := htlc.ValidatePublicKey(req.MMPubkey, o.cfg.Network)
	if err != nil {
		return swap.Swap{}, err
	}
	if !mmKey.Compressed {
		return swap.Swap{}, swap.ValidationError("market maker pubkey must be compressed")
	}
	var payerPubkey []byte
	if req.UserPubkey != "" {
		userKey, err := htlc.ValidatePublicKey(req.UserPubkey, o.cfg.Network)
		if err != nil {
			return swap.Swap{}, err
		}
		payerPubkey = userKey.Key.SerializeCompressed()
	}
	if req.AmountSats <= 0 {
		return swap.Swap{}, swap.ValidationError("btc amount must be positive, got %v", req.AmountSats)
	}
	timelock := req.Timelock
	if timelock == 0 {
		timelock = DefaultTimelock
	}
	if timelock < htlc.MinTimelock || timelock > htlc.MaxTimelock {
		return swap.Swap{}, swap.ValidationError("timelock must be in [%v, %v], got %v", htlc.MinTimelock, htlc.MaxTimelock, timelock)
	}
	token := req.TargetToken
	if token == "" {
		token = o.cfg.DefaultToken
	}
	if _, ok := o.cfg.Tokens[token]; !ok {
		return swap.Swap{}, swap.ValidationError("unsupported target token %q", token)
	}

	sec, err := o.secrets.Generate()
	if err != nil {
		return swap.Swap{}, err
	}
	script, err := htlc.Compile(sec.Hash, mmKey.Key.SerializeCompressed(), payerPubkey, timelock, o.cfg.Network)
	if err != nil {
		return swap.Swap{}, err
	}

	now := time.Now().UTC()
	record := swap.New(sec.SwapID, hex.EncodeToString(sec.Hash), req.AmountSats, timelock, now)
	record.Preimage = hex.EncodeToString(sec.Preimage)
	record.UserBtcAddress = req.UserBtcAddress
	record.UserEthWallet = req.UserEthWallet
	record.MMPubkey = req.MMPubkey
	record.TargetToken = token
	record.ScriptHex = hex.EncodeToString(script.Bytes)
	record.WitnessAddress = script.WitnessAddress.EncodeAddress()
	record.LegacyAddress = script.LegacyAddress.EncodeAddress()

	if err := o.db.Create(ctx, record); err != nil {
		return swap.Swap{}, err
	}

	watchTimeout := time.Until(record.ExpiresAt)
	if err := o.mon.Watch(o.ctx, record.ID, script.WitnessAddress, record.AmountSats, watchTimeout, o.handleFunding); err != nil {
		o.logger.Error("failed to start funding watch", zap.String("swap", record.ID), zap.Error(err))
	}

	o.logger.Info("swap created",
		zap.String("swap", record.ID),
		zap.String("address", record.WitnessAddress),
		zap.Int64("sats", record.AmountSats),
		zap.Int64("timelock", timelock))

	return record.Redacted(o.cfg.mainnet()), nil
}

// GetSwap returns the swap record, applying lazy expiry on read.
func (o *Orchestrator) GetSwap(ctx context.Context, swapID string) (swap.Swap, error) {
	record, err := o.load(ctx, swapID)
	if err != nil {
		return swap.Swap{}, err
	}
	if record.Touch(time.Now().UTC()) {
		if err := o.db.Update(ctx, record); err != nil {
			return swap.Swap{}, err
		}
		o.mon.Cancel(swapID)
	}
	return record.Redacted(o.cfg.mainnet()), nil
}

// TriggerSwap manually advances a swap that the watch has not caught up with
// yet. When the swap is still pending the funding transaction is verified
// against the chain unless force is set; a funded swap goes straight to order
// submission.
func (o *Orchestrator) TriggerSwap(ctx context.Context, swapID, btcTxHash string, force bool) (swap.Swap, error) {
	record, err := o.load(ctx, swapID)
	if err != nil {
		return swap.Swap{}, err
	}
	now := time.Now().UTC()
	if record.Touch(now) {
		if err := o.db.Update(ctx, record); err != nil {
			return swap.Swap{}, err
		}
		o.mon.Cancel(swapID)
		return swap.Swap{}, swap.ExpiredError(swapID)
	}

	switch record.Status {
	case swap.StatusPending:
		if !force {
			if err := o.verifyFunding(ctx, record, btcTxHash); err != nil {
				return swap.Swap{}, err
			}
		}
		record.Status = swap.StatusBTCReceived
		record.FundingTxID = btcTxHash
		record.FundedAt = &now
		if err := o.db.Update(ctx, record); err != nil {
			return swap.Swap{}, err
		}
		o.mon.Cancel(swapID)
	case swap.StatusBTCReceived:
		// Funding already observed, retry the venue leg below.
	default:
		return swap.Swap{}, swap.ValidationError("swap %v cannot be triggered from status %v", swapID, record.Status)
	}

	if err := o.submitOrder(ctx, record.ID); err != nil {
		return swap.Swap{}, err
	}
	return o.GetSwap(ctx, swapID)
}

// OrderTracking describes the tracking session and the order fields of the
// swap it belongs to.
type OrderTracking struct {
	SwapID      string                `json:"swapId"`
	OrderID     string                `json:"orderId,omitempty"`
	SwapStatus  swap.Status           `json:"swapStatus"`
	OrderStatus string                `json:"orderStatus,omitempty"`
	Executed    *swap.ExecutedAmounts `json:"executedAmounts,omitempty"`
	Active      bool                  `json:"active"`
	Method      tracker.Method        `json:"method,omitempty"`
	LastChecked *time.Time            `json:"lastChecked,omitempty"`
}

// GetOrderTracking reports the order progress for a swap, combining the
// persisted record with the live tracking session if one exists.
func (o *Orchestrator) GetOrderTracking(ctx context.Context, swapID string) (OrderTracking, error) {
	record, err := o.load(ctx, swapID)
	if err != nil {
		return OrderTracking{}, err
	}
	out := OrderTracking{
		SwapID:      record.ID,
		OrderID:     record.OrderID,
		SwapStatus:  record.Status,
		OrderStatus: record.OrderStatus,
		Executed:    record.Executed,
	}
	if session, ok := o.trk.TrackingStatus(swapID); ok {
		out.Active = true
		out.Method = session.Method
		last := session.LastChecked
		out.LastChecked = &last
	}
	return out, nil
}

// RevealPreimage releases the preimage of a completed swap so the market
// maker can claim the contract output. If the preimage was already revealed
// on chain it is recovered from the claim witness instead.
func (o *Orchestrator) RevealPreimage(ctx context.Context, swapID string) (string, error) {
	record, err := o.load(ctx, swapID)
	if err != nil {
		return "", err
	}
	if record.Touch(time.Now().UTC()) {
		if err := o.db.Update(ctx, record); err != nil {
			return "", err
		}
		o.mon.Cancel(swapID)
		return "", swap.ExpiredError(swapID)
	}
	if record.Status != swap.StatusCompleted {
		return "", swap.ValidationError("preimage of swap %v is sealed while status is %v", swapID, record.Status)
	}
	if record.Preimage != "" {
		return record.Preimage, nil
	}
	address, err := btcutil.DecodeAddress(record.WitnessAddress, o.cfg.Network)
	if err != nil {
		return "", swap.ValidationError("stored contract address is unreadable: %v", err)
	}
	preimage, err := o.mon.ExtractPreimage(ctx, address)
	if err != nil {
		return "", err
	}
	if preimage == "" {
		return "", swap.NotFoundError(swapID)
	}
	return preimage, nil
}

// ListSwaps returns every persisted swap, redacted for the API.
func (o *Orchestrator) ListSwaps(ctx context.Context) ([]swap.Swap, error) {
	records, err := o.db.List(ctx)
	if err != nil {
		return nil, err
	}
	mainnet := o.cfg.mainnet()
	out := make([]swap.Swap, 0, len(records))
	for _, record := range records {
		out = append(out, record.Redacted(mainnet))
	}
	return out, nil
}

// ResumeWatches restarts funding watches for swaps that were pending when the
// process last stopped.
func (o *Orchestrator) ResumeWatches(ctx context.Context) error {
	records, err := o.db.List(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, record := range records {
		if record.Status != swap.StatusPending || record.PastExpiry(now) {
			continue
		}
		address, err := btcutil.DecodeAddress(record.WitnessAddress, o.cfg.Network)
		if err != nil {
			o.logger.Error("skipping resume of swap with unreadable address", zap.String("swap", record.ID), zap.Error(err))
			continue
		}
		if err := o.mon.Watch(o.ctx, record.ID, address, record.AmountSats, time.Until(record.ExpiresAt), o.handleFunding); err != nil {
			o.logger.Error("failed to resume funding watch", zap.String("swap", record.ID), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) load(ctx context.Context, swapID string) (swap.Swap, error) {
	record, err := o.db.Get(ctx, swapID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return swap.Swap{}, swap.NotFoundError(swapID)
		}
		return swap.Swap{}, err
	}
	return record, nil
}

// verifyFunding checks that the named transaction pays the contract address
// at least the agreed amount.
func (o *Orchestrator) verifyFunding(ctx context.Context, record swap.Swap, btcTxHash string) error {
	if btcTxHash == "" {
		return swap.ValidationError("btcTxHash is required unless forceExecute is set")
	}
	tx, err := o.chain.GetTx(ctx, btcTxHash)
	if err != nil {
		if errors.Is(err, btc.ErrTxNotFound) {
			return swap.ValidationError("transaction %v not found on chain", btcTxHash)
		}
		return err
	}
	received := int64(0)
	for _, vout := range tx.VOUTs {
		if vout.ScriptPubKeyAddress == record.WitnessAddress {
			received += vout.Value
		}
	}
	if received < record.AmountSats {
		return swap.ValidationError("transaction %v pays %v sats to the contract, expected at least %v", btcTxHash, received, record.AmountSats)
	}
	return nil
}

// handleFunding consumes the single outcome of a funding watch.
func (o *Orchestrator) handleFunding(outcome monitor.Outcome) {
	ctx := o.ctx
	record, err := o.load(ctx, outcome.SwapID)
	if err != nil {
		o.logger.Error("funding outcome for unknown swap", zap.String("swap", outcome.SwapID), zap.Error(err))
		return
	}

	now := time.Now().UTC()
	if outcome.TimedOut {
		if record.Touch(now) {
			if err := o.db.Update(ctx, record); err != nil {
				o.logger.Error("failed to expire swap", zap.String("swap", record.ID), zap.Error(err))
			}
		}
		return
	}
	if !record.Status.CanTransition(swap.StatusBTCReceived) {
		// Trigger or a concurrent event advanced the swap already.
		return
	}

	record.Status = swap.StatusBTCReceived
	record.FundingTxID = outcome.TxID
	record.FundedAt = &now
	if err := o.db.Update(ctx, record); err != nil {
		o.logger.Error("failed to record funding", zap.String("swap", record.ID), zap.Error(err))
		return
	}
	o.logger.Info("swap funded",
		zap.String("swap", record.ID),
		zap.String("txid", outcome.TxID),
		zap.Int64("received", outcome.ReceivedSats))

	if err := o.submitOrder(ctx, record.ID); err != nil {
		o.logger.Error("order submission failed", zap.String("swap", record.ID), zap.Error(err))
	}
}

// submitOrder performs the venue leg: quote, sign, submit, then hand the
// order to the tracker. A venue failure is terminal for the swap; the BTC
// side stays claimable and the failure is surfaced to the operator.
func (o *Orchestrator) submitOrder(ctx context.Context, swapID string) error {
	record, err := o.load(ctx, swapID)
	if err != nil {
		return err
	}
	if record.Status != swap.StatusBTCReceived {
		return swap.ValidationError("swap %v is not ready for order submission, status %v", swapID, record.Status)
	}

	sellAmount := new(big.Int).Mul(big.NewInt(record.AmountSats), o.cfg.satScale())
	buyToken := o.cfg.Tokens[record.TargetToken]
	trader := common.HexToAddress(record.UserEthWallet)

	quote, err := o.venue.GetQuote(ctx, venue.QuoteRequest{
		SellToken:  o.cfg.SellToken,
		BuyToken:   buyToken,
		SellAmount: sellAmount,
		Trader:     trader,
	})
	if err != nil {
		return o.failVenueLeg(ctx, record, err)
	}

	validTo := quote.ValidTo
	if validTo == 0 {
		validTo = time.Now().Add(o.cfg.OrderValidity).Unix()
	}
	order := venue.Order{
		SellToken:           o.cfg.SellToken,
		BuyToken:            buyToken,
		Receiver:            trader,
		SellAmount:          quote.SellAmount,
		BuyAmount:           quote.BuyAmount,
		FeeAmount:           quote.FeeAmount,
		ValidTo:             validTo,
		Kind:                venue.KindSell,
		PartiallyFillable:   true,
		SellTokenSource:     venue.SourceERC20,
		BuyTokenDestination: venue.DestinationERC20,
	}
	order, err = venue.SignOrder(order, o.signer)
	if err != nil {
		return o.failVenueLeg(ctx, record, err)
	}
	orderID, err := o.venue.SubmitOrder(ctx, order)
	if err != nil {
		return o.failVenueLeg(ctx, record, err)
	}

	record.Status = swap.StatusOrderSubmitted
	record.OrderID = orderID
	record.Quote = &swap.Quote{
		SellAmount: quote.SellAmount,
		BuyAmount:  quote.BuyAmount,
		FeeAmount:  quote.FeeAmount,
		ValidTo:    validTo,
	}
	record.OrderStatus = string(venue.OrderOpen)
	if err := o.db.Update(ctx, record); err != nil {
		return err
	}
	o.logger.Info("order submitted",
		zap.String("swap", record.ID),
		zap.String("order", orderID),
		zap.String("sell", quote.SellAmount),
		zap.String("buy", quote.BuyAmount))

	if err := o.trk.StartTracking(o.ctx, record.ID, orderID, o.handleOrderDone, o.handleOrderProgress); err != nil {
		o.logger.Error("failed to start order tracking", zap.String("swap", record.ID), zap.Error(err))
	}
	return nil
}

// failVenueLeg marks the swap mm_failed and alerts the operator. The
// original venue error is returned for the caller.
func (o *Orchestrator) failVenueLeg(ctx context.Context, record swap.Swap, cause error) error {
	now := time.Now().UTC()
	record.Status = swap.StatusMMFailed
	record.RecordError(cause.Error(), now)
	record.ClosedAt = &now
	if err := o.db.Update(ctx, record); err != nil {
		o.logger.Error("failed to record venue failure", zap.String("swap", record.ID), zap.Error(err))
	}
	o.alerts.Notify(record.ID, string(swap.StatusMMFailed), cause.Error())
	return cause
}

// handleOrderProgress records non-terminal venue states.
func (o *Orchestrator) handleOrderProgress(swapID string, state venue.OrderState) {
	ctx := o.ctx
	record, err := o.load(ctx, swapID)
	if err != nil {
		return
	}

	var next swap.Status
	switch state.Status {
	case venue.OrderOpen:
		next = swap.StatusOrderPending
	case venue.OrderPartiallyFilled:
		next = swap.StatusOrderPartial
	default:
		return
	}
	// Repeated reports of the same state still carry fresh executed
	// amounts and must be recorded.
	if record.Status != next && !record.Status.CanTransition(next) {
		return
	}

	record.Status = next
	record.OrderStatus = string(state.Status)
	if state.ExecutedSellAmount != "" || state.ExecutedBuyAmount != "" {
		record.Executed = &swap.ExecutedAmounts{
			Sell: state.ExecutedSellAmount,
			Buy:  state.ExecutedBuyAmount,
		}
	}
	if err := o.db.Update(ctx, record); err != nil {
		o.logger.Error("failed to record order progress", zap.String("swap", swapID), zap.Error(err))
	}
}

// handleOrderDone consumes the single terminal event of a tracking session.
func (o *Orchestrator) handleOrderDone(ev tracker.TerminalEvent) {
	ctx := o.ctx
	record, err := o.load(ctx, ev.SwapID)
	if err != nil {
		o.logger.Error("terminal order event for unknown swap", zap.String("swap", ev.SwapID), zap.Error(err))
		return
	}

	now := time.Now().UTC()
	record.OrderStatus = string(ev.Status)
	record.ClosedAt = &now
	if ev.ExecutedSellAmount != "" || ev.ExecutedBuyAmount != "" {
		record.Executed = &swap.ExecutedAmounts{
			Sell: ev.ExecutedSellAmount,
			Buy:  ev.ExecutedBuyAmount,
		}
	}

	switch ev.Status {
	case venue.OrderFilled:
		if !record.Status.CanTransition(swap.StatusCompleted) {
			return
		}
		record.Status = swap.StatusCompleted
		o.logger.Info("swap completed",
			zap.String("swap", record.ID),
			zap.String("order", ev.OrderID),
			zap.String("executedBuy", ev.ExecutedBuyAmount))
	default:
		if !record.Status.CanTransition(swap.StatusOrderFailed) {
			return
		}
		record.Status = swap.StatusOrderFailed
		record.RecordError("venue closed order "+ev.OrderID+" as "+string(ev.Status), now)
		o.alerts.Notify(record.ID, string(swap.StatusOrderFailed), record.ErrorMessage)
	}

	if err := o.db.Update(ctx, record); err != nil {
		o.logger.Error("failed to record terminal order state", zap.String("swap", record.ID), zap.Error(err))
	}
}
