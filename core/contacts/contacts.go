// Package contacts resolves display names for phone numbers.
package contacts

import (
	"context"
	"fmt"

	"CallBox/core/recording"
	"CallBox/model"
)

// Provider returns the contacts known to one source.
type Provider interface {
	Contacts(ctx context.Context) ([]model.Contact, error)
}

// MockProvider serves a fixed development address book.
type MockProvider struct{}

func name(s string) *string { return &s }

// Contacts implements Provider.
func (MockProvider) Contacts(context.Context) ([]model.Contact, error) {
	return []model.Contact{
		{ID: "1", Name: name("John Smith"), PhoneNumber: "+15551234567"},
		{ID: "2", Name: name("Mary Johnson"), PhoneNumber: "+15552345678"},
		{ID: "3", Name: name("David Lee"), PhoneNumber: "+15553456789"},
		{ID: "4", Name: name("Sarah Williams"), PhoneNumber: "+15554567890"},
		{ID: "5", Name: nil, PhoneNumber: "+15555678901"},
	}, nil
}

// Store is the persistence needed by StoreProvider.
type Store interface {
	ListContacts(ctx context.Context) ([]model.ContactRecord, error)
	UpsertContactName(ctx context.Context, normalized, phone, name string) error
}

// StoreProvider reads and writes contacts kept in the database.
type StoreProvider struct {
	store Store
}

// NewStoreProvider wraps store.
func NewStoreProvider(store Store) *StoreProvider {
	return &StoreProvider{store: store}
}

// Contacts implements Provider.
func (p *StoreProvider) Contacts(ctx context.Context) ([]model.Contact, error) {
	rows, err := p.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	out := make([]model.Contact, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToContact())
	}
	return out, nil
}

// SaveContactName persists a rename, keyed by the normalized number.
func (p *StoreProvider) SaveContactName(ctx context.Context, phone, name string) error {
	key := recording.NormalizePhone(phone)
	if key == "" {
		return fmt.Errorf("%w %q", recording.ErrInvalidPhone, phone)
	}
	return p.store.UpsertContactName(ctx, key, phone, name)
}

// Chain merges providers. Contacts are matched on the normalized number and
// later providers override the name and photo of earlier ones. A failing
// provider is skipped unless every provider fails.
type Chain []Provider

// Contacts implements Provider.
func (c Chain) Contacts(ctx context.Context) ([]model.Contact, error) {
	var (
		merged  []model.Contact
		index   = make(map[string]int)
		lastErr error
		okCount int
	)
	for _, p := range c {
		list, err := p.Contacts(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		okCount++
		for _, ct := range list {
			key := recording.GroupKey(ct.PhoneNumber)
			if i, ok := index[key]; ok {
				merged[i].Name = ct.Name
				if ct.PhotoURI != nil {
					merged[i].PhotoURI = ct.PhotoURI
				}
				continue
			}
			index[key] = len(merged)
			merged = append(merged, ct)
		}
	}
	if okCount == 0 && lastErr != nil {
		return nil, lastErr
	}
	return merged, nil
}

// FindByPhone returns the contact whose normalized number equals phone's.
func FindByPhone(list []model.Contact, phone string) (model.Contact, bool) {
	return recording.FindContact(list, phone)
}
