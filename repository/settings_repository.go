package repository

import (
	"context"
	"time"

	"CallBox/model"

	"gorm.io/gorm"
)

// settingsRowID 设置只有一行
const settingsRowID = 1

// SettingsRepository 用户设置
type SettingsRepository interface {
	Get(ctx context.Context) (model.Settings, error)
	Save(ctx context.Context, s *model.Settings) error
}

type gormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository 创建 GORM 设置仓库
func NewGormSettingsRepository(db *gorm.DB) SettingsRepository {
	return &gormSettingsRepository{db: db}
}

// Get returns the stored settings, or the defaults when none were saved.
func (r *gormSettingsRepository) Get(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := r.db.WithContext(ctx).First(&s, settingsRowID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return model.DefaultSettings(), nil
		}
		return model.Settings{}, err
	}
	s.UnpackExcluded()
	return s, nil
}

// Save 校验后整行覆盖
func (r *gormSettingsRepository) Save(ctx context.Context, s *model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.ID = settingsRowID
	s.UpdatedAt = time.Now()
	s.PackExcluded()
	return r.db.WithContext(ctx).Save(s).Error
}
