package model

import (
	"fmt"
	"strings"
	"time"
)

// RecordingQuality mirrors the recording quality toggle.
type RecordingQuality string

const (
	QualityLow    RecordingQuality = "low"
	QualityMedium RecordingQuality = "medium"
	QualityHigh   RecordingQuality = "high"
)

// RetentionPeriod is the "auto delete after" choice.
type RetentionPeriod string

const (
	Retention30Days RetentionPeriod = "30days"
	Retention90Days RetentionPeriod = "90days"
	Retention1Year  RetentionPeriod = "1year"
)

// Duration converts the period to a time.Duration.
func (p RetentionPeriod) Duration() (time.Duration, error) {
	switch p {
	case Retention30Days:
		return 30 * 24 * time.Hour, nil
	case Retention90Days:
		return 90 * 24 * time.Hour, nil
	case Retention1Year:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown retention period %q", p)
	}
}

// Settings holds the user's recording, storage and appearance preferences.
type Settings struct {
	ID uint `gorm:"primaryKey" json:"-"`

	AutoRecord       bool             `json:"autoRecord"`
	ExcludedContacts string           `gorm:"type:text" json:"-"` // comma separated normalized numbers
	Excluded         []string         `gorm:"-" json:"excludedContacts"`
	Quality          RecordingQuality `gorm:"size:16" json:"quality"`

	AutoDelete      bool            `json:"autoDelete"`
	AutoDeleteAfter RetentionPeriod `gorm:"size:16" json:"autoDeleteAfter"`

	DarkTheme         bool `json:"darkTheme"`
	ShowContactImages bool `json:"showContactImages"`
	ShowTimestamps    bool `json:"showTimestamps"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Settings) TableName() string {
	return "settings"
}

// DefaultSettings matches the defaults of the settings screen.
func DefaultSettings() Settings {
	return Settings{
		Quality:           QualityMedium,
		AutoDeleteAfter:   Retention90Days,
		DarkTheme:         true,
		ShowContactImages: true,
		ShowTimestamps:    true,
		Excluded:          []string{},
	}
}

// Validate checks the enumerated fields.
func (s *Settings) Validate() error {
	switch s.Quality {
	case QualityLow, QualityMedium, QualityHigh:
	default:
		return fmt.Errorf("invalid quality %q", s.Quality)
	}
	if _, err := s.AutoDeleteAfter.Duration(); err != nil {
		return err
	}
	return nil
}

// PackExcluded copies Excluded into the stored column.
func (s *Settings) PackExcluded() {
	s.ExcludedContacts = strings.Join(s.Excluded, ",")
}

// UnpackExcluded fills Excluded from the stored column.
func (s *Settings) UnpackExcluded() {
	s.Excluded = []string{}
	for _, p := range strings.Split(s.ExcludedContacts, ",") {
		if p = strings.TrimSpace(p); p != "" {
			s.Excluded = append(s.Excluded, p)
		}
	}
}
