package model

// RecordingFolder groups recordings of one normalized phone number.
// It is derived on demand and never stored.
type RecordingFolder struct {
	ID          string       `json:"id"` // normalized phone number
	Name        string       `json:"name"`
	PhoneNumber string       `json:"phoneNumber"`
	Recordings  []*Recording `json:"recordings"`
	PhotoURI    *string      `json:"photoUri,omitempty"`
	LatestAt    int64        `json:"latestAt"` // timestamp of the newest recording
	UnreadCount int          `json:"unreadCount"`
}
