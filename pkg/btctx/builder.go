// Package btctx builds and signs the transactions that spend either branch
// of a compiled HTLC. Signing failures are fatal to the call and never
// retried.
package btctx

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/btc"
	"github.com/seigneur/takefi-sub000/pkg/htlc"
	"github.com/seigneur/takefi-sub000/pkg/swap"
)

const (
	// sigEstimateSize is the worst-case DER signature size including the
	// sighash type byte.
	sigEstimateSize = 73

	// dustLimit is the minimum output value we will create, in sats.
	dustLimit = 546
)

// Spend is a fully signed transaction ready for broadcast.
type Spend struct {
	TxID     string
	RawTxHex string
	Fee      int64
	Tx       *wire.MsgTx
}

// Builder constructs claim and refund spends for HTLC outputs.
type Builder struct {
	network *chaincfg.Params
	client  btc.Client
	feeTier string
	logger  *zap.Logger
}

func NewBuilder(network *chaincfg.Params, client btc.Client, feeTier string, logger *zap.Logger) *Builder {
	return &Builder{network: network, client: client, feeTier: feeTier, logger: logger}
}

// BuildClaimSpend spends the funding UTXO through the preimage branch of the
// script and pays the remainder (minus fee) to outputAddress. The witness
// stack is [sig, preimage, selector, script] for the two-branch script and
// [sig, preimage, script] for the claim-only variant.
func (b *Builder) BuildClaimSpend(ctx context.Context, script, preimage []byte, utxo btc.UTXO, outputAddress string, key *btcec.PrivateKey) (Spend, error) {
	witnessSize := claimWitnessSize(script, len(preimage))
	tx, prevOut, err := b.unsignedSpend(utxo, script, outputAddress, witnessSize)
	if err != nil {
		return Spend{}, err
	}
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum

	sig, err := b.sign(tx, prevOut, script, key)
	if err != nil {
		return Spend{}, err
	}
	if isClaimOnly(script) {
		tx.TxIn[0].Witness = wire.TxWitness{sig, preimage, script}
	} else {
		tx.TxIn[0].Witness = wire.TxWitness{sig, preimage, []byte{0x01}, script}
	}

	return b.finalize(ctx, tx, utxo)
}

// BuildRefundSpend spends the funding UTXO through the timelock branch. The
// transaction's locktime is set to satisfy OP_CHECKLOCKTIMEVERIFY and the
// input sequence is lowered to enable it. The witness stack is
// [sig, "", script]; the empty push selects the ELSE branch.
func (b *Builder) BuildRefundSpend(ctx context.Context, script []byte, utxo btc.UTXO, outputAddress string, key *btcec.PrivateKey, timelock int64) (Spend, error) {
	if isClaimOnly(script) {
		return Spend{}, swap.ValidationError("claim-only script has no refund path")
	}

	witnessSize := refundWitnessSize(script)
	tx, prevOut, err := b.unsignedSpend(utxo, script, outputAddress, witnessSize)
	if err != nil {
		return Spend{}, err
	}
	tx.LockTime = uint32(timelock)
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum - 1

	sig, err := b.sign(tx, prevOut, script, key)
	if err != nil {
		return Spend{}, err
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig, nil, script}

	return b.finalize(ctx, tx, utxo)
}

// unsignedSpend builds a one-input one-output transaction paying the UTXO
// value minus fee to the output address.
func (b *Builder) unsignedSpend(utxo btc.UTXO, script []byte, outputAddress string, witnessSize int) (*wire.MsgTx, *wire.TxOut, error) {
	hash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, nil, swap.ValidationError("malformed funding txid %q: %v", utxo.TxID, err)
	}
	outInfo, err := htlc.ValidateAddress(outputAddress, b.network)
	if err != nil {
		return nil, nil, err
	}
	outScript, err := txscript.PayToAddrScript(outInfo.Address)
	if err != nil {
		return nil, nil, err
	}
	fundingAddr, err := htlc.P2WSHAddress(script, b.network)
	if err != nil {
		return nil, nil, err
	}
	fundingScript, err := txscript.PayToAddrScript(fundingAddr)
	if err != nil {
		return nil, nil, err
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(utxo.Amount, outScript))

	fee := b.fee(tx, witnessSize)
	if utxo.Amount-fee < dustLimit {
		return nil, nil, swap.ValidationError("utxo value %v does not cover fee %v plus dust limit", utxo.Amount, fee)
	}
	tx.TxOut[0].Value = utxo.Amount - fee

	return tx, wire.NewTxOut(utxo.Amount, fundingScript), nil
}

func (b *Builder) sign(tx *wire.MsgTx, prevOut *wire.TxOut, script []byte, key *btcec.PrivateKey) ([]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, 0, prevOut.Value, script, txscript.SigHashAll, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input: %w", err)
	}
	return sig, nil
}

// finalize serializes the transaction and dry-runs it against the node's
// mempool policy before handing it back for broadcast.
func (b *Builder) finalize(ctx context.Context, tx *wire.MsgTx, utxo btc.UTXO) (Spend, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return Spend{}, err
	}
	rawHex := hex.EncodeToString(buf.Bytes())

	result, err := b.client.TestMempoolAccept(ctx, rawHex)
	switch {
	case errors.Is(err, btc.ErrNoNodeRPC):
		b.logger.Debug("skipping mempool-accept dry run, no node rpc configured")
	case err != nil:
		return Spend{}, err
	case !result.Allowed:
		return Spend{}, swap.TxRejectedError(result.RejectReason)
	}

	return Spend{
		TxID:     tx.TxHash().String(),
		RawTxHex: rawHex,
		Fee:      utxo.Amount - tx.TxOut[0].Value,
		Tx:       tx,
	}, nil
}

// redeemScriptHashInputSize is the non-witness size of a script-hash input:
// outpoint, empty signature script length and sequence.
const redeemScriptHashInputSize = 32 + 4 + 1 + 4

// fee estimates the fee from the tier rate and the transaction's virtual
// size including the projected witness.
func (b *Builder) fee(tx *wire.MsgTx, witnessSize int) int64 {
	feeRate := btc.FeeTier(b.fees(), b.feeTier)

	// Base size per txsizes.EstimateVirtualSize: version and locktime,
	// count varints, inputs without witness data, serialized outputs.
	baseSize := 8 +
		wire.VarIntSerializeSize(uint64(len(tx.TxIn))) +
		wire.VarIntSerializeSize(uint64(len(tx.TxOut))) +
		len(tx.TxIn)*redeemScriptHashInputSize +
		txsizes.SumOutputSerializeSizes(tx.TxOut)
	// Weight counts the base bytes four times and the segwit marker/flag
	// plus witness once.
	weight := baseSize*4 + 2 + witnessSize
	vsize := (weight + 3) / 4
	return int64(vsize * feeRate)
}

func (b *Builder) fees() btc.FeeSuggestion {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fees, err := b.client.FeeSuggestion(ctx)
	if err != nil {
		b.logger.Warn("fee suggestion unavailable, using floor rate", zap.Error(err))
		return btc.FeeSuggestion{Minimum: 1, Economy: 1, Low: 2, Medium: 4, High: 8}
	}
	return fees
}

func claimWitnessSize(script []byte, preimageLen int) int {
	// count + sig + preimage + selector + script pushes
	return 1 + (1 + sigEstimateSize) + (1 + preimageLen) + 2 + pushSize(len(script))
}

func refundWitnessSize(script []byte) int {
	// count + sig + empty push + script push
	return 1 + (1 + sigEstimateSize) + 1 + pushSize(len(script))
}

func pushSize(n int) int {
	switch {
	case n < 76:
		return 1 + n
	case n < 256:
		return 2 + n
	default:
		return 3 + n
	}
}

// isClaimOnly detects the 5-element claim-only script shape, which starts
// with OP_SHA256 instead of OP_IF.
func isClaimOnly(script []byte) bool {
	return len(script) > 0 && script[0] == txscript.OP_SHA256
}
