package recording

import (
	"sort"
	"strings"

	"CallBox/model"
)

// FolderOrder selects how folders are sorted for display.
type FolderOrder string

const (
	OrderRecent FolderOrder = "recent"
	OrderAZ     FolderOrder = "az"
	OrderZA     FolderOrder = "za"
)

// ParseFolderOrder maps a query value to a FolderOrder, defaulting to recent.
func ParseFolderOrder(s string) FolderOrder {
	switch FolderOrder(strings.ToLower(s)) {
	case OrderAZ:
		return OrderAZ
	case OrderZA:
		return OrderZA
	default:
		return OrderRecent
	}
}

// GroupKey returns the folder key for a recording's phone number.
// Numbers without digits share the key of the raw value.
func GroupKey(phone string) string {
	if k := NormalizePhone(phone); k != "" {
		return k
	}
	return phone
}

// GroupFolders groups recordings by digit-normalized phone number. Each
// folder lists its recordings newest first and folders are ordered by their
// newest recording, descending.
func GroupFolders(recordings []*model.Recording, contacts []model.Contact) []*model.RecordingFolder {
	byKey := make(map[string]*model.RecordingFolder)
	var order []string

	for _, r := range recordings {
		key := GroupKey(r.PhoneNumber)
		f, ok := byKey[key]
		if !ok {
			f = &model.RecordingFolder{ID: key, PhoneNumber: r.PhoneNumber}
			byKey[key] = f
			order = append(order, key)
		}
		f.Recordings = append(f.Recordings, r)
		if r.Timestamp > f.LatestAt {
			f.LatestAt = r.Timestamp
		}
		if !r.IsRead {
			f.UnreadCount++
		}
	}

	folders := make([]*model.RecordingFolder, 0, len(order))
	for _, key := range order {
		f := byKey[key]
		sortNewestFirst(f.Recordings)
		f.Name = f.PhoneNumber
		named := false
		if c, ok := FindContact(contacts, f.PhoneNumber); ok {
			if c.Name != nil && *c.Name != "" {
				f.Name = *c.Name
				named = true
			}
			f.PhotoURI = c.PhotoURI
		}
		if !named {
			for _, r := range f.Recordings {
				if r.ContactName != nil && *r.ContactName != "" {
					f.Name = *r.ContactName
					break
				}
			}
		}
		folders = append(folders, f)
	}

	SortFolders(folders, OrderRecent)
	return folders
}

// SortFolders orders folders in place.
func SortFolders(folders []*model.RecordingFolder, order FolderOrder) {
	switch order {
	case OrderAZ:
		sort.SliceStable(folders, func(i, j int) bool {
			return strings.ToLower(folders[i].Name) < strings.ToLower(folders[j].Name)
		})
	case OrderZA:
		sort.SliceStable(folders, func(i, j int) bool {
			return strings.ToLower(folders[i].Name) > strings.ToLower(folders[j].Name)
		})
	default:
		sort.SliceStable(folders, func(i, j int) bool {
			if folders[i].LatestAt != folders[j].LatestAt {
				return folders[i].LatestAt > folders[j].LatestAt
			}
			return folders[i].ID < folders[j].ID
		})
	}
}

// RecentRecordings returns up to limit recordings, newest first. A limit
// below one falls back to 3.
func RecentRecordings(recordings []*model.Recording, limit int) []*model.Recording {
	if limit < 1 {
		limit = 3
	}
	out := make([]*model.Recording, len(recordings))
	copy(out, recordings)
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FindContact looks a contact up by normalized phone number.
func FindContact(contacts []model.Contact, phone string) (model.Contact, bool) {
	key := GroupKey(phone)
	for _, c := range contacts {
		if GroupKey(c.PhoneNumber) == key {
			return c, true
		}
	}
	return model.Contact{}, false
}

func sortNewestFirst(recordings []*model.Recording) {
	sort.SliceStable(recordings, func(i, j int) bool {
		if recordings[i].Timestamp != recordings[j].Timestamp {
			return recordings[i].Timestamp > recordings[j].Timestamp
		}
		return recordings[i].ID < recordings[j].ID
	})
}
