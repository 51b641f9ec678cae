// Package monitor watches HTLC addresses for funding. Each swap gets one
// independent watch goroutine with its own timeout; watches share nothing
// but a read-only chain client.
package monitor

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/btc"
)

// DefaultPollInterval is how often a watch re-reads the chain.
const DefaultPollInterval = 30 * time.Second

// Outcome is the single terminal result of a watch.
type Outcome struct {
	SwapID        string
	Funded        bool
	TxID          string
	Confirmations uint64
	ReceivedSats  int64
	TimedOut      bool
}

// Monitor owns the registry of active watches. The registry exists only to
// prevent duplicate watches and support cancellation; swap state lives in
// the store.
type Monitor struct {
	client   btc.Client
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	watches map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func New(client btc.Client, logger *zap.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		client:   client,
		logger:   logger,
		interval: interval,
		watches:  map[string]context.CancelFunc{},
	}
}

// Watch polls the address until the received amount reaches expectedSats or
// the timeout elapses, then delivers exactly one Outcome to onOutcome and
// removes itself from the registry. Transient chain errors never terminate
// the watch.
func (m *Monitor) Watch(ctx context.Context, swapID string, address btcutil.Address, expectedSats int64, timeout time.Duration, onOutcome func(Outcome)) error {
	m.mu.Lock()
	if _, ok := m.watches[swapID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("swap %v is already being watched", swapID)
	}
	watchCtx, cancel := context.WithTimeout(ctx, timeout)
	m.watches[swapID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	logger := m.logger.With(zap.String("swap", swapID), zap.String("address", address.EncodeAddress()))

	go func() {
		defer m.wg.Done()
		defer m.remove(swapID)
		defer cancel()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			outcome, done := m.poll(watchCtx, swapID, address, expectedSats, logger)
			if done {
				onOutcome(outcome)
				return
			}

			select {
			case <-watchCtx.Done():
				if ctx.Err() == nil && watchCtx.Err() == context.DeadlineExceeded {
					logger.Info("watch timed out")
					onOutcome(Outcome{SwapID: swapID, TimedOut: true})
				}
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// poll reads the utxo set once. It returns done=true only when the funding
// condition is met; errors are logged and absorbed.
func (m *Monitor) poll(ctx context.Context, swapID string, address btcutil.Address, expectedSats int64, logger *zap.Logger) (Outcome, bool) {
	utxos, err := m.client.GetUTXOs(ctx, address)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("chain poll failed, retrying on next interval", zap.Error(err))
		}
		return Outcome{}, false
	}

	total := int64(0)
	var newest btc.UTXO
	for _, utxo := range utxos {
		total += utxo.Amount
		if newest.TxID == "" || utxo.BlockHeight > newest.BlockHeight || !utxo.Confirmed {
			newest = utxo
		}
	}
	if total < expectedSats {
		return Outcome{}, false
	}

	logger.Info("funding detected",
		zap.Int64("received", total),
		zap.String("txid", newest.TxID),
		zap.Uint64("confirmations", newest.Confirmations))

	return Outcome{
		SwapID:        swapID,
		Funded:        true,
		TxID:          newest.TxID,
		Confirmations: newest.Confirmations,
		ReceivedSats:  total,
	}, true
}

// Cancel stops the watch for a swap. Safe to call for unknown or already
// finished swaps.
func (m *Monitor) Cancel(swapID string) {
	m.mu.Lock()
	cancel, ok := m.watches[swapID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Active returns the swap ids with a live watch.
func (m *Monitor) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.watches))
	for id := range m.watches {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every watch and waits for the goroutines to drain.
func (m *Monitor) Stop() {
	m.mu.Lock()
	for _, cancel := range m.watches {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) remove(swapID string) {
	m.mu.Lock()
	delete(m.watches, swapID)
	m.mu.Unlock()
}

// ExtractPreimage scans the address history for a spend of the HTLC and
// pulls the revealed preimage out of the claim witness. It returns an empty
// string when the HTLC has not been claimed yet.
func (m *Monitor) ExtractPreimage(ctx context.Context, address btcutil.Address) (string, error) {
	txs, err := m.client.GetAddressTxs(ctx, address)
	if err != nil {
		return "", err
	}
	encoded := address.EncodeAddress()
	for _, tx := range txs {
		for _, vin := range tx.VINs {
			if vin.Prevout == nil || vin.Prevout.ScriptPubKeyAddress != encoded {
				continue
			}
			// Claim witnesses are [sig, preimage, script] or
			// [sig, preimage, selector, script]; the refund witness
			// carries no 32-byte second element.
			if len(vin.Witness) != 3 && len(vin.Witness) != 4 {
				continue
			}
			preimage, err := hex.DecodeString(vin.Witness[1])
			if err != nil || len(preimage) != 32 {
				continue
			}
			return vin.Witness[1], nil
		}
	}
	return "", nil
}
