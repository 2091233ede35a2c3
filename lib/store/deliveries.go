package store

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/postwatch/lib/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Deliveries is the append-only delivery log.
type Deliveries struct {
	db *gorm.DB
}

func NewDeliveries(db *gorm.DB) *Deliveries {
	return &Deliveries{db}
}

func (s *Deliveries) Append(ctx context.Context, rec *models.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return unavailable("append delivery record", err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *Deliveries) Recent(ctx context.Context, limit int) (models.DeliveryRecords, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs models.DeliveryRecords
	tx := s.db.WithContext(ctx).
		Order("attempted_at desc").
		Limit(limit).
		Find(&recs)
	if err := tx.Error; err != nil {
		return nil, unavailable("list delivery records", err)
	}
	return recs, nil
}

func (s *Deliveries) Find(ctx context.Context, id string) (*models.DeliveryRecord, error) {
	rec := &models.DeliveryRecord{}
	tx := s.db.WithContext(ctx).Where("id = ?", id).Take(rec)
	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case tx.Error != nil:
		return nil, unavailable("find delivery record", tx.Error)
	}
	return rec, nil
}

// Purge drops records attempted before cutoff and reports how many went.
func (s *Deliveries) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).Delete(&models.DeliveryRecord{}, "attempted_at < ?", cutoff)
	if err := tx.Error; err != nil {
		return 0, unavailable("purge delivery records", err)
	}
	return tx.RowsAffected, nil
}
