package htlc

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

// pubKeyBytesLenUncompressed is the serialized length of an uncompressed
// secp256k1 public key; btcec/v2 only exports the compressed constant.
const pubKeyBytesLenUncompressed = 65

// AddressType classifies a decoded Bitcoin address.
type AddressType string

const (
	AddressP2PKH  AddressType = "p2pkh"
	AddressP2SH   AddressType = "p2sh"
	AddressP2WPKH AddressType = "p2wpkh"
	AddressP2WSH  AddressType = "p2wsh"
	AddressP2TR   AddressType = "p2tr"
)

// AddressInfo is the result of validating an address string.
type AddressInfo struct {
	Address btcutil.Address
	Type    AddressType
}

// ValidateAddress decodes addr and checks it belongs to the given network.
// A mainnet address presented on testnet (or vice versa) is rejected.
func ValidateAddress(addr string, network *chaincfg.Params) (AddressInfo, error) {
	decoded, err := btcutil.DecodeAddress(addr, network)
	if err != nil {
		return AddressInfo{}, swap.ValidationError("invalid address %q: %v", addr, err)
	}
	if !decoded.IsForNet(network) {
		return AddressInfo{}, swap.ValidationError("address %q is not valid for network %v", addr, network.Name)
	}

	var addrType AddressType
	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		addrType = AddressP2PKH
	case *btcutil.AddressScriptHash:
		addrType = AddressP2SH
	case *btcutil.AddressWitnessPubKeyHash:
		addrType = AddressP2WPKH
	case *btcutil.AddressWitnessScriptHash:
		addrType = AddressP2WSH
	case *btcutil.AddressTaproot:
		addrType = AddressP2TR
	default:
		return AddressInfo{}, swap.ValidationError("unsupported address type for %q", addr)
	}

	return AddressInfo{Address: decoded, Type: addrType}, nil
}

// PublicKeyInfo is the result of validating a public key.
type PublicKeyInfo struct {
	Key        *btcec.PublicKey
	Compressed bool
}

// ValidatePublicKey parses a hex public key. It must be 33 bytes with a
// 0x02/0x03 prefix or 65 bytes with a 0x04 prefix, and must be a valid
// secp256k1 point; point validity is checked by deriving a standard payment
// address from it.
func ValidatePublicKey(pubkeyHex string, network *chaincfg.Params) (PublicKeyInfo, error) {
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return PublicKeyInfo{}, swap.ValidationError("public key is not valid hex: %v", err)
	}
	if err := checkPubkeyBytes("public key", raw); err != nil {
		return PublicKeyInfo{}, err
	}

	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return PublicKeyInfo{}, swap.ValidationError("public key is not on secp256k1: %v", err)
	}
	if _, err := btcutil.NewAddressPubKey(raw, network); err != nil {
		return PublicKeyInfo{}, swap.ValidationError("public key cannot derive a payment address: %v", err)
	}

	return PublicKeyInfo{Key: key, Compressed: len(raw) == btcec.PubKeyBytesLenCompressed}, nil
}

func checkPubkeyBytes(field string, raw []byte) error {
	switch len(raw) {
	case btcec.PubKeyBytesLenCompressed:
		if raw[0] != 0x02 && raw[0] != 0x03 {
			return swap.ValidationError("%v: compressed key must start with 0x02 or 0x03", field)
		}
	case pubKeyBytesLenUncompressed:
		if raw[0] != 0x04 {
			return swap.ValidationError("%v: uncompressed key must start with 0x04", field)
		}
	default:
		return swap.ValidationError("%v: must be 33 or 65 bytes, got %v", field, len(raw))
	}
	return nil
}
