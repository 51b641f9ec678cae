// Package secret generates and validates the preimages that drive atomic
// swaps. A preimage is 32 bytes from a CSPRNG and its hash is SHA-256.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

// PreimageSize is the byte length of every generated preimage.
const PreimageSize = 32

// Secret is a freshly issued preimage/hash pair, owned by the swap that
// requested it until the preimage is revealed on chain.
type Secret struct {
	SwapID    string
	Preimage  []byte
	Hash      []byte
	CreatedAt time.Time
}

// Engine issues secrets with process-lifetime hash uniqueness. The used-hash
// registry is explicit state owned by the engine, not package-level, so the
// engine is independently testable.
type Engine struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func NewEngine() *Engine {
	return &Engine{used: map[string]struct{}{}}
}

// Generate draws a preimage, hashes it and checks the hash against every
// hash issued by this engine. A collision forces regeneration; with 32
// random bytes that branch exists only as a guard.
func (e *Engine) Generate() (Secret, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		preimage := make([]byte, PreimageSize)
		if _, err := rand.Read(preimage); err != nil {
			return Secret{}, swap.CryptoError("failed to read random bytes: %v", err)
		}
		hash := sha256.Sum256(preimage)
		key := hex.EncodeToString(hash[:])
		if _, ok := e.used[key]; ok {
			continue
		}
		e.used[key] = struct{}{}

		return Secret{
			SwapID:    uuid.NewString(),
			Preimage:  preimage,
			Hash:      hash[:],
			CreatedAt: time.Now().UTC(),
		}, nil
	}
}

// Issued returns the number of hashes handed out by this engine.
func (e *Engine) Issued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.used)
}

// Validate recomputes SHA-256 over the hex preimage and compares it with the
// expected hash, case-insensitively. Pure, no side effects. Malformed hex
// yields a crypto error rather than false.
func Validate(preimageHex, expectedHashHex string) (bool, error) {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return false, swap.CryptoError("malformed preimage hex: %v", err)
	}
	if _, err := hex.DecodeString(expectedHashHex); err != nil {
		return false, swap.CryptoError("malformed hash hex: %v", err)
	}
	hash := sha256.Sum256(preimage)
	return strings.EqualFold(hex.EncodeToString(hash[:]), expectedHashHex), nil
}
