package store

import (
	"context"
	"sync"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

// memoryStore is an in-process Store used by tests and local development.
type memoryStore struct {
	mu    sync.RWMutex
	swaps map[string]swap.Swap
}

func NewMemoryStore() Store {
	return &memoryStore{swaps: map[string]swap.Swap{}}
}

func (ms *memoryStore) Create(_ context.Context, s swap.Swap) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.swaps[s.ID]; ok {
		return ErrAlreadyExists
	}
	ms.swaps[s.ID] = s
	return nil
}

func (ms *memoryStore) Get(_ context.Context, swapID string) (swap.Swap, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	s, ok := ms.swaps[swapID]
	if !ok {
		return swap.Swap{}, ErrNotFound
	}
	return s, nil
}

func (ms *memoryStore) Update(_ context.Context, s swap.Swap) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.swaps[s.ID]; !ok {
		return ErrNotFound
	}
	ms.swaps[s.ID] = s
	return nil
}

func (ms *memoryStore) List(_ context.Context) ([]swap.Swap, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	swaps := make([]swap.Swap, 0, len(ms.swaps))
	for _, s := range ms.swaps {
		swaps = append(swaps, s)
	}
	return swaps, nil
}
