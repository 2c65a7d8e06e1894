package model

import "time"

// RecordingState persists the per-file flags that a filesystem scan cannot recover.
type RecordingState struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	FilePath  string     `gorm:"size:767;uniqueIndex" json:"filePath"`
	IsRead    bool       `json:"isRead"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	Archived  bool       `json:"archived"`
	ObjectKey string     `gorm:"size:767" json:"objectKey,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (RecordingState) TableName() string {
	return "recording_states"
}
