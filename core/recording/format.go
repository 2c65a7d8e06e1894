package recording

import (
	"fmt"
	"time"
)

// FormatDuration renders seconds as MM:SS. Minutes are not wrapped at an hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatTimestamp renders epoch millis like "Jan 31, 2024, 2:25 PM" in loc.
func FormatTimestamp(millis int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(millis).In(loc).Format("Jan 2, 2006, 3:04 PM")
}

// FormatFileSize renders bytes as B, KB or MB with one decimal.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
