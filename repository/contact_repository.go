package repository

import (
	"context"
	"time"

	"CallBox/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepository 联系人重命名的持久化
type ContactRepository interface {
	ListContacts(ctx context.Context) ([]model.ContactRecord, error)
	UpsertContactName(ctx context.Context, normalized, phone, name string) error
}

type gormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository 创建 GORM 联系人仓库
func NewGormContactRepository(db *gorm.DB) ContactRepository {
	return &gormContactRepository{db: db}
}

// ListContacts 按号码排序返回全部联系人
func (r *gormContactRepository) ListContacts(ctx context.Context) ([]model.ContactRecord, error) {
	var rows []model.ContactRecord
	err := r.db.WithContext(ctx).Order("normalized_phone").Find(&rows).Error
	return rows, err
}

// UpsertContactName 按归一化号码插入或更新名称
func (r *gormContactRepository) UpsertContactName(ctx context.Context, normalized, phone, name string) error {
	row := model.ContactRecord{
		NormalizedPhone: normalized,
		PhoneNumber:     phone,
		Name:            name,
		UpdatedAt:       time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&row).Error
}
