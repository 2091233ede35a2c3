package store

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/postwatch/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsRowID = 1

type Settings struct {
	db *gorm.DB
}

func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db}
}

// Load returns the stored settings; ok is false before the first Save.
func (s *Settings) Load(ctx context.Context) (models.MonitorSettings, bool, error) {
	var row models.MonitorSettings
	tx := s.db.WithContext(ctx).Where("id = ?", settingsRowID).Take(&row)
	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		return models.MonitorSettings{}, false, nil
	case tx.Error != nil:
		return models.MonitorSettings{}, false, unavailable("load settings", tx.Error)
	}
	return row, true, nil
}

func (s *Settings) Save(ctx context.Context, settings models.MonitorSettings) error {
	settings.ID = settingsRowID
	settings.UpdatedAt = time.Now().UTC()
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&settings)
	if err := tx.Error; err != nil {
		return unavailable("save settings", err)
	}
	return nil
}
