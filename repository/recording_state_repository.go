package repository

import (
	"context"
	"time"

	"CallBox/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordingStateRepository 录音已读/删除状态
type RecordingStateRepository interface {
	States(ctx context.Context) (map[string]model.RecordingState, error)
	Get(ctx context.Context, filePath string) (*model.RecordingState, error)
	MarkRead(ctx context.Context, filePath string) error
	MarkDeleted(ctx context.Context, filePath string, objectKey string) error
	Archived(ctx context.Context) ([]model.RecordingState, error)
}

type gormRecordingStateRepository struct {
	db *gorm.DB
}

// NewGormRecordingStateRepository 创建 GORM 录音状态仓库
func NewGormRecordingStateRepository(db *gorm.DB) RecordingStateRepository {
	return &gormRecordingStateRepository{db: db}
}

// States returns every stored state keyed by file path.
func (r *gormRecordingStateRepository) States(ctx context.Context) (map[string]model.RecordingState, error) {
	var rows []model.RecordingState
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]model.RecordingState, len(rows))
	for _, row := range rows {
		out[row.FilePath] = row
	}
	return out, nil
}

// Get 返回 nil, nil 表示不存在
func (r *gormRecordingStateRepository) Get(ctx context.Context, filePath string) (*model.RecordingState, error) {
	var st model.RecordingState
	err := r.db.WithContext(ctx).Where("file_path = ?", filePath).First(&st).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// MarkRead 标记为已读
func (r *gormRecordingStateRepository) MarkRead(ctx context.Context, filePath string) error {
	row := model.RecordingState{FilePath: filePath, IsRead: true, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_read", "updated_at"}),
	}).Create(&row).Error
}

// MarkDeleted 记录删除时间，objectKey 非空时同时记录归档位置
func (r *gormRecordingStateRepository) MarkDeleted(ctx context.Context, filePath string, objectKey string) error {
	now := time.Now()
	row := model.RecordingState{
		FilePath:  filePath,
		DeletedAt: &now,
		Archived:  objectKey != "",
		ObjectKey: objectKey,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns([]string{"deleted_at", "archived", "object_key", "updated_at"}),
	}).Create(&row).Error
}

// Archived lists deleted recordings that were copied to object storage.
func (r *gormRecordingStateRepository) Archived(ctx context.Context) ([]model.RecordingState, error) {
	var rows []model.RecordingState
	err := r.db.WithContext(ctx).
		Where("archived = ?", true).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}
