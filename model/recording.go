package model

import "time"

// Direction of the recorded call as encoded in the file name.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionUnknown  Direction = "unknown"
)

// UnknownPhone is used when neither the file name nor a fallback yields a number.
const UnknownPhone = "Unknown"

// Recording represents one call-recording audio file and its derived metadata.
// ID is the file path; recordings are rebuilt from a storage scan on each refresh.
type Recording struct {
	ID          string    `json:"id"`
	ContactID   string    `json:"contactId,omitempty"`
	PhoneNumber string    `json:"phoneNumber"`
	ContactName *string   `json:"contactName"`
	Duration    int       `json:"duration"`  // seconds
	Timestamp   int64     `json:"timestamp"` // epoch millis
	FilePath    string    `json:"filepath"`
	Size        int64     `json:"size"` // bytes
	IsRead      bool      `json:"isRead"`
	Direction   Direction `json:"direction"`
	Mock        bool      `json:"mock,omitempty"`
}

// Time returns Timestamp as a time.Time.
func (r *Recording) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// DisplayName prefers the resolved contact name over the raw number.
func (r *Recording) DisplayName() string {
	if r.ContactName != nil && *r.ContactName != "" {
		return *r.ContactName
	}
	return r.PhoneNumber
}
