// Package btc talks to a block-explorer style read API (esplora /
// mempool.space compatible) and, optionally, a bitcoind JSON-RPC endpoint
// for mempool-acceptance dry runs. The package holds no private keys.
package btc

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrTxNotFound = errors.New("transaction not found")
	ErrNoNodeRPC  = errors.New("node rpc endpoint not configured")
)

// UTXO is an unspent output of the watched address. Ephemeral: re-fetched on
// every spend attempt, never persisted.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        int64  `json:"value"`
	Confirmed     bool   `json:"confirmed"`
	BlockHeight   uint64 `json:"block_height,omitempty"`
	Confirmations uint64 `json:"confirmations,omitempty"`
}

// Prevout describes the output consumed by a transaction input.
type Prevout struct {
	ScriptPubKey        string `json:"scriptpubkey"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// VIN is a transaction input as reported by the explorer.
type VIN struct {
	TxID    string   `json:"txid"`
	Vout    uint32   `json:"vout"`
	Prevout *Prevout `json:"prevout,omitempty"`
	Witness []string `json:"witness,omitempty"`
}

// VOUT is a transaction output as reported by the explorer.
type VOUT struct {
	ScriptPubKey        string `json:"scriptpubkey"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// TxStatus carries confirmation info for a transaction.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// Transaction is an address-history entry.
type Transaction struct {
	TxID   string   `json:"txid"`
	VINs   []VIN    `json:"vin"`
	VOUTs  []VOUT   `json:"vout"`
	Status TxStatus `json:"status"`
}

// FeeSuggestion is a set of fee tiers in sat/vB.
type FeeSuggestion struct {
	Minimum int
	Economy int
	Low     int
	Medium  int
	High    int
}

// Client is the read API consumed by the monitor and the transaction
// builder.
type Client interface {
	// GetBalance returns the confirmed balance of the address in sats.
	GetBalance(ctx context.Context, address btcutil.Address) (int64, error)

	// GetUTXOs returns the unspent outputs paying the address.
	GetUTXOs(ctx context.Context, address btcutil.Address) ([]UTXO, error)

	// GetAddressTxs returns the transaction history of the address, most
	// recent first.
	GetAddressTxs(ctx context.Context, address btcutil.Address) ([]Transaction, error)

	// GetTx returns a single transaction by id.
	GetTx(ctx context.Context, txid string) (Transaction, error)

	// GetTipBlockHeight returns the current chain tip height.
	GetTipBlockHeight(ctx context.Context) (uint64, error)

	// SubmitTx broadcasts the transaction and returns its txid.
	SubmitTx(ctx context.Context, tx *wire.MsgTx) (string, error)

	// TestMempoolAccept dry-runs the raw transaction against the node's
	// mempool policy without broadcasting. Requires a node rpc endpoint.
	TestMempoolAccept(ctx context.Context, rawTxHex string) (MempoolAcceptResult, error)

	// FeeSuggestion returns the current fee tiers.
	FeeSuggestion(ctx context.Context) (FeeSuggestion, error)
}

// MempoolAcceptResult is the outcome of a testmempoolaccept call.
type MempoolAcceptResult struct {
	Allowed      bool   `json:"allowed"`
	RejectReason string `json:"reject-reason,omitempty"`
}

// FeeTier picks a tier from a suggestion by name, defaulting to high.
func FeeTier(fees FeeSuggestion, tier string) int {
	switch tier {
	case "minimum":
		return fees.Minimum
	case "economy":
		return fees.Economy
	case "low":
		return fees.Low
	case "medium":
		return fees.Medium
	case "high":
		return fees.High
	default:
		return fees.High
	}
}
