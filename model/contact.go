package model

import "time"

// Contact is an address-book entry used to name recording folders.
type Contact struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	PhoneNumber string  `json:"phoneNumber"`
	PhotoURI    *string `json:"photoUri,omitempty"`
}

// ContactRecord is the persisted form of a contact rename.
// NormalizedPhone is the digit-only grouping key.
type ContactRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	NormalizedPhone string    `gorm:"size:32;uniqueIndex" json:"normalizedPhone"`
	PhoneNumber     string    `gorm:"size:64" json:"phoneNumber"`
	Name            string    `gorm:"size:255" json:"name"`
	PhotoURI        string    `gorm:"size:767" json:"photoUri"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (ContactRecord) TableName() string {
	return "contacts"
}

// ToContact converts the stored row to the API shape.
func (c *ContactRecord) ToContact() Contact {
	out := Contact{
		ID:          c.NormalizedPhone,
		PhoneNumber: c.PhoneNumber,
	}
	if c.Name != "" {
		name := c.Name
		out.Name = &name
	}
	if c.PhotoURI != "" {
		photo := c.PhotoURI
		out.PhotoURI = &photo
	}
	return out
}
