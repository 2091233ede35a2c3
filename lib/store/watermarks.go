package store

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/postwatch/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Watermarks struct {
	db *gorm.DB
}

func NewWatermarks(db *gorm.DB) *Watermarks {
	return &Watermarks{db}
}

// Get returns the last delivered item id for account. ok is false when the
// account has never completed a cycle.
func (s *Watermarks) Get(ctx context.Context, account string) (id string, ok bool, err error) {
	var wm models.Watermark
	tx := s.db.WithContext(ctx).Where("account = ?", account).Take(&wm)
	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		return "", false, nil
	case tx.Error != nil:
		return "", false, unavailable("get watermark", tx.Error)
	}
	return wm.ItemID, true, nil
}

// Set overwrites the watermark unconditionally. Keeping it monotonic is the
// caller's job.
func (s *Watermarks) Set(ctx context.Context, account, itemID string) error {
	wm := models.Watermark{
		Account:   account,
		ItemID:    itemID,
		UpdatedAt: time.Now().UTC(),
	}
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"item_id", "updated_at"}),
		}).
		Create(&wm)
	if err := tx.Error; err != nil {
		return unavailable("set watermark", err)
	}
	return nil
}

func (s *Watermarks) All(ctx context.Context) (models.Watermarks, error) {
	var wms models.Watermarks
	tx := s.db.WithContext(ctx).Order("account").Find(&wms)
	if err := tx.Error; err != nil {
		return nil, unavailable("list watermarks", err)
	}
	return wms, nil
}
