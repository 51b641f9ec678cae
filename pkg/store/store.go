// Package store persists swap records. The store is the single source of
// truth for swap state; updates are whole-record read-modify-write and the
// orchestrator is the sole writer in normal operation.
package store

import (
	"context"
	"errors"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

var (
	ErrNotFound      = errors.New("swap not found")
	ErrAlreadyExists = errors.New("swap already exists")
)

type Store interface {
	// Create inserts a new swap record. Fails if the id already exists.
	Create(ctx context.Context, s swap.Swap) error

	// Get returns the record for the given swap id.
	Get(ctx context.Context, swapID string) (swap.Swap, error)

	// Update writes the whole record back.
	Update(ctx context.Context, s swap.Swap) error

	// List returns every persisted swap record.
	List(ctx context.Context) ([]swap.Swap, error)
}
