package utils

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
)

// Purpose selects which leg of the swap a derived key serves.
type Purpose uint32

const (
	// PurposeBitcoin keys claim and refund contract outputs.
	PurposeBitcoin Purpose = 0
	// PurposeVenue keys sign orders on the venue chain.
	PurposeVenue Purpose = 60
)

type Key struct {
	inner *bip32.Key
}

func (key *Key) BtcKey() *btcec.PrivateKey {
	privKey, _ := btcec.PrivKeyFromBytes(key.inner.Key)
	return privKey
}

func (key *Key) ECDSA() (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(key.inner.Key)
}

func (key *Key) WitnessAddress(network *chaincfg.Params) (btcutil.Address, error) {
	keyBytesHash := btcutil.Hash160(key.BtcKey().PubKey().SerializeCompressed())
	return btcutil.NewAddressWitnessPubKeyHash(keyBytesHash, network)
}

func (key *Key) EvmAddress() (common.Address, error) {
	ecdsaKey, err := key.ECDSA()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(ecdsaKey.PublicKey), nil
}

func LoadKey(seed []byte, purpose Purpose, user, selector uint32) (*Key, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	for _, idx := range []uint32{uint32(purpose), user, selector} {
		masterKey, err = masterKey.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to create child key: %v", err)
		}
	}
	return &Key{masterKey}, nil
}

// Keys derives and caches keys from a single entropy source.
type Keys struct {
	entropy []byte
	m       map[[32]byte]*Key
}

func NewKeys(entropy []byte) Keys {
	return Keys{
		entropy: entropy,
		m:       map[[32]byte]*Key{},
	}
}

func (keys Keys) GetKey(purpose Purpose, user, selector uint32) (*Key, error) {
	digest := append(keys.entropy, []byte(fmt.Sprintf("%v_%v_%v", purpose, user, selector))...)
	mapKey := sha256.Sum256(digest)
	value, ok := keys.m[mapKey]
	if !ok {
		var err error
		value, err = LoadKey(keys.entropy, purpose, user, selector)
		if err != nil {
			return nil, err
		}
		keys.m[mapKey] = value
	}
	return value, nil
}
