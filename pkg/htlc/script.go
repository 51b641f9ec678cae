// Package htlc compiles the hash time-locked contract used on the Bitcoin
// leg of a swap and derives its spending addresses. Script bytes are a pure
// function of the inputs: identical inputs always produce identical scripts
// and addresses.
package htlc

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

const (
	// MinTimelock and MaxTimelock bound the accepted timelock in blocks.
	MinTimelock = 1
	MaxTimelock = 65535

	secretHashSize = sha256.Size
)

// Script is a compiled redeem script together with both address encodings.
// The witness (P2WSH) address is the one funded in this system.
type Script struct {
	Bytes          []byte
	ClaimOnly      bool
	Timelock       int64
	WitnessAddress btcutil.Address
	LegacyAddress  btcutil.Address
}

// Compile builds the two-branch redeem script:
//
//	OP_IF
//	    OP_SHA256 <hash> OP_EQUALVERIFY
//	    <claimantPubkey> OP_CHECKSIG
//	OP_ELSE
//	    <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <payerPubkey> OP_CHECKSIG
//	OP_ENDIF
//
// When payerPubkey is nil, the claim-only variant with no refund path is
// compiled instead.
func Compile(secretHash, claimantPubkey, payerPubkey []byte, timelock int64, network *chaincfg.Params) (Script, error) {
	if len(secretHash) != secretHashSize {
		return Script{}, swap.ValidationError("secret hash must be %v bytes, got %v", secretHashSize, len(secretHash))
	}
	if err := checkPubkeyBytes("claimant pubkey", claimantPubkey); err != nil {
		return Script{}, err
	}

	var script []byte
	var err error
	if payerPubkey == nil {
		script, err = compileClaimOnly(secretHash, claimantPubkey)
	} else {
		if err := checkPubkeyBytes("payer pubkey", payerPubkey); err != nil {
			return Script{}, err
		}
		if timelock < MinTimelock || timelock > MaxTimelock {
			return Script{}, swap.ValidationError("timelock must be in [%v, %v], got %v", MinTimelock, MaxTimelock, timelock)
		}
		script, err = compileTwoBranch(secretHash, claimantPubkey, payerPubkey, timelock)
	}
	if err != nil {
		return Script{}, err
	}

	witnessAddr, err := P2WSHAddress(script, network)
	if err != nil {
		return Script{}, err
	}
	legacyAddr, err := P2SHAddress(script, network)
	if err != nil {
		return Script{}, err
	}

	return Script{
		Bytes:          script,
		ClaimOnly:      payerPubkey == nil,
		Timelock:       timelock,
		WitnessAddress: witnessAddr,
		LegacyAddress:  legacyAddr,
	}, nil
}

func compileTwoBranch(secretHash, claimantPubkey, payerPubkey []byte, timelock int64) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	{
		b.AddOp(txscript.OP_SHA256)
		b.AddData(secretHash)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddData(claimantPubkey)
		b.AddOp(txscript.OP_CHECKSIG)
	}
	b.AddOp(txscript.OP_ELSE)
	{
		// AddData canonicalizes the push: single-byte values 1 through 16
		// become the OP_1..OP_16 opcodes, matching consensus minimal
		// encoding.
		b.AddData(TimelockBytes(timelock))
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		b.AddOp(txscript.OP_DROP)
		b.AddData(payerPubkey)
		b.AddOp(txscript.OP_CHECKSIG)
	}
	b.AddOp(txscript.OP_ENDIF)
	return b.Script()
}

func compileClaimOnly(secretHash, claimantPubkey []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_SHA256)
	b.AddData(secretHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(claimantPubkey)
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// P2WSHAddress returns the segwit v0 address committing to SHA-256 of the
// script.
func P2WSHAddress(script []byte, network *chaincfg.Params) (btcutil.Address, error) {
	witnessProgram := sha256.Sum256(script)
	return btcutil.NewAddressWitnessScriptHash(witnessProgram[:], network)
}

// P2SHAddress returns the legacy address committing to HASH160 of the
// script.
func P2SHAddress(script []byte, network *chaincfg.Params) (btcutil.Address, error) {
	return btcutil.NewAddressScriptHash(script, network)
}

// TimelockBytes returns the minimal script-number encoding of a timelock:
// signed little-endian, zero encodes to an empty push, and a padding byte is
// appended when the high bit of the most significant byte would otherwise
// flag the value as negative. Compile pushes this encoding into the refund
// branch; the script builder renders single-byte values 1 through 16 as the
// equivalent OP_1..OP_16 opcodes.
func TimelockBytes(v int64) []byte {
	if v == 0 {
		return []byte{}
	}
	negative := v < 0
	abs := uint64(v)
	if negative {
		abs = uint64(-v)
	}

	out := make([]byte, 0, 9)
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}
	if out[len(out)-1]&0x80 != 0 {
		pad := byte(0x00)
		if negative {
			pad = 0x80
		}
		out = append(out, pad)
	} else if negative {
		out[len(out)-1] |= 0x80
	}
	return out
}

// ParseTimelockBytes decodes a minimally encoded script number.
func ParseTimelockBytes(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var v int64
	for i, c := range b {
		if i == len(b)-1 {
			c &= 0x7f
		}
		v |= int64(c) << (8 * uint(i))
	}
	if b[len(b)-1]&0x80 != 0 {
		return -v
	}
	return v
}
