package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/seigneur/takefi-sub000/pkg/swap"
)

// Record is the gorm row holding a swap. The full swap is kept as a JSON
// document; status and expiry are mirrored into columns for querying.
type Record struct {
	gorm.Model

	SwapID    string `gorm:"uniqueIndex"`
	Status    string `gorm:"index"`
	ExpiresAt time.Time
	Data      []byte
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore opens a sql-backed store, for single-node deployments where
// redis is not available.
func NewGormStore(dialector gorm.Dialector) (Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &gormStore{db: db}, nil
}

func (gs *gormStore) Create(ctx context.Context, s swap.Swap) error {
	var count int64
	if err := gs.db.WithContext(ctx).Model(&Record{}).Where("swap_id = ?", s.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyExists
	}
	record, err := toRecord(s)
	if err != nil {
		return err
	}
	return gs.db.WithContext(ctx).Create(&record).Error
}

func (gs *gormStore) Get(ctx context.Context, swapID string) (swap.Swap, error) {
	var record Record
	if err := gs.db.WithContext(ctx).Where("swap_id = ?", swapID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return swap.Swap{}, ErrNotFound
		}
		return swap.Swap{}, err
	}
	return fromRecord(record)
}

func (gs *gormStore) Update(ctx context.Context, s swap.Swap) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	result := gs.db.WithContext(ctx).Model(&Record{}).Where("swap_id = ?", s.ID).
		Updates(map[string]interface{}{
			"status":     string(s.Status),
			"expires_at": s.ExpiresAt,
			"data":       data,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (gs *gormStore) List(ctx context.Context) ([]swap.Swap, error) {
	var records []Record
	if err := gs.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	swaps := make([]swap.Swap, 0, len(records))
	for _, record := range records {
		s, err := fromRecord(record)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, s)
	}
	return swaps, nil
}

func toRecord(s swap.Swap) (Record, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Record{}, err
	}
	return Record{
		SwapID:    s.ID,
		Status:    string(s.Status),
		ExpiresAt: s.ExpiresAt,
		Data:      data,
	}, nil
}

func fromRecord(record Record) (swap.Swap, error) {
	var s swap.Swap
	if err := json.Unmarshal(record.Data, &s); err != nil {
		return swap.Swap{}, err
	}
	return s, nil
}
