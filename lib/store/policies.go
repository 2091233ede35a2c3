package store

import (
	"context"
	"errors"

	"github.com/fiffu/postwatch/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Policies struct {
	db *gorm.DB
}

func NewPolicies(db *gorm.DB) *Policies {
	return &Policies{db}
}

func (s *Policies) Get(ctx context.Context, account string) (models.DeliveryPolicy, bool, error) {
	var p models.DeliveryPolicy
	tx := s.db.WithContext(ctx).Where("account = ?", account).Take(&p)
	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		return models.DeliveryPolicy{}, false, nil
	case tx.Error != nil:
		return models.DeliveryPolicy{}, false, unavailable("get policy", tx.Error)
	}
	return p, true, nil
}

func (s *Policies) Put(ctx context.Context, p models.DeliveryPolicy) error {
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"mode", "instructions", "channel"}),
		}).
		Create(&p)
	if err := tx.Error; err != nil {
		return unavailable("put policy", err)
	}
	return nil
}

func (s *Policies) Delete(ctx context.Context, account string) error {
	tx := s.db.WithContext(ctx).Delete(&models.DeliveryPolicy{}, "account = ?", account)
	if err := tx.Error; err != nil {
		return unavailable("delete policy", err)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Policies) All(ctx context.Context) ([]models.DeliveryPolicy, error) {
	var ps []models.DeliveryPolicy
	if err := s.db.WithContext(ctx).Order("account").Find(&ps).Error; err != nil {
		return nil, unavailable("list policies", err)
	}
	return ps, nil
}
