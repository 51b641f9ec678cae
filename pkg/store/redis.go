package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

const (
	keyPrefix = "swap:"
	indexKey  = "swap:index"

	opTimeout = 5 * time.Second
)

// redisStore keeps one JSON record per swap plus a set of known ids for
// listing.
type redisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (Store, error) {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	redisPassword, _ := parsedURL.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     parsedURL.Host,
		Password: redisPassword,
		DB:       0, // Use default DB.
	})
	return &redisStore{client: client}, nil
}

func (rs *redisStore) Create(ctx context.Context, s swap.Swap) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := rs.client.SetNX(ctx, keyPrefix+s.ID, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %v", ErrAlreadyExists, s.ID)
	}
	return rs.client.SAdd(ctx, indexKey, s.ID).Err()
}

func (rs *redisStore) Get(ctx context.Context, swapID string) (swap.Swap, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := rs.client.Get(ctx, keyPrefix+swapID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return swap.Swap{}, ErrNotFound
		}
		return swap.Swap{}, err
	}
	var s swap.Swap
	if err := json.Unmarshal(data, &s); err != nil {
		return swap.Swap{}, err
	}
	return s, nil
}

func (rs *redisStore) Update(ctx context.Context, s swap.Swap) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	exists, err := rs.client.Exists(ctx, keyPrefix+s.ID).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return rs.client.Set(ctx, keyPrefix+s.ID, data, 0).Err()
}

func (rs *redisStore) List(ctx context.Context) ([]swap.Swap, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ids, err := rs.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	swaps := make([]swap.Swap, 0, len(ids))
	for _, id := range ids {
		s, err := rs.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		swaps = append(swaps, s)
	}
	return swaps, nil
}
