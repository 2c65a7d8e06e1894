package recording

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"CallBox/logger"
	"CallBox/model"
)

var (
	// ErrNotFound is returned for unknown recording ids or folders.
	ErrNotFound = errors.New("recording not found")
	// ErrThrottled is returned by Refresh when called again within the minimum interval.
	ErrThrottled = errors.New("refresh throttled")
	// ErrInvalidPhone is returned when a number has no digits to group by.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// Source produces the raw recording list.
type Source interface {
	Scan(ctx context.Context) ([]*model.Recording, ScanReport, error)
}

// ContactSource resolves contacts for folder names.
type ContactSource interface {
	Contacts(ctx context.Context) ([]model.Contact, error)
}

// ContactWriter persists contact renames.
type ContactWriter interface {
	SaveContactName(ctx context.Context, phone, name string) error
}

// StateStore persists read and deleted flags keyed by file path.
type StateStore interface {
	States(ctx context.Context) (map[string]model.RecordingState, error)
	MarkRead(ctx context.Context, filePath string) error
	MarkDeleted(ctx context.Context, filePath string, objectKey string) error
}

// SnapshotCache shares the latest snapshot between processes.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, recs []*model.Recording) error
	LoadSnapshot(ctx context.Context) ([]*model.Recording, error)
	AcquireRefresh(ctx context.Context, ttl time.Duration) (bool, error)
}

// Archiver copies a recording to long-term storage before it is deleted.
type Archiver interface {
	Archive(ctx context.Context, rec *model.Recording) (string, error)
}

// EventType names a change to the recording snapshot.
type EventType string

const (
	EventRefreshed EventType = "refreshed"
	EventRead      EventType = "read"
	EventDeleted   EventType = "deleted"
	EventRenamed   EventType = "renamed"
)

// Event is delivered to listeners after the snapshot changes.
type Event struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Count     int       `json:"count"`
	Mock      bool      `json:"mock,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Listener receives events. It must not block.
type Listener func(Event)

// Options configures a Service. Zero values disable the optional parts.
type Options struct {
	Source             Source
	Contacts           ContactSource
	ContactWriter      ContactWriter
	States             StateStore
	Cache              SnapshotCache
	Archiver           Archiver
	MinRefreshInterval time.Duration
	MockFallback       bool
	Location           *time.Location
	Now                func() time.Time
	Rand               *rand.Rand
}

// Service owns the in-memory recording snapshot and the listener list.
type Service struct {
	opts Options

	refreshMu   sync.Mutex
	lastRefresh time.Time

	mu         sync.RWMutex
	recordings []*model.Recording
	byID       map[string]*model.Recording
	contacts   []model.Contact
	report     ScanReport
	mock       bool

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewService creates a Service. Source is required.
func NewService(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		opts:      opts,
		byID:      make(map[string]*model.Recording),
		listeners: make(map[int]Listener),
	}
}

// Location is the zone used to format and parse timestamps.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// Subscribe registers fn and returns a function that removes it.
func (s *Service) Subscribe(fn Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Service) notify(ev Event) {
	ev.Timestamp = s.opts.Now().UnixMilli()
	s.listenersMu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Refresh rescans storage and replaces the snapshot. Unless force is set a
// refresh within MinRefreshInterval of the previous one returns ErrThrottled.
func (s *Service) Refresh(ctx context.Context, force bool) (ScanReport, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	now := s.opts.Now()
	if !force && !s.lastRefresh.IsZero() && now.Sub(s.lastRefresh) < s.opts.MinRefreshInterval {
		return ScanReport{}, ErrThrottled
	}
	if !force && s.opts.Cache != nil && s.opts.MinRefreshInterval > 0 {
		ok, err := s.opts.Cache.AcquireRefresh(ctx, s.opts.MinRefreshInterval)
		if err != nil {
			logger.Warn("refresh lock unavailable, scanning anyway", logger.ErrorField(err))
		} else if !ok {
			// Another process scanned recently; adopt its snapshot.
			if recs, err := s.opts.Cache.LoadSnapshot(ctx); err == nil && recs != nil {
				s.lastRefresh = now
				mock := isMock(recs)
				contacts := s.loadContacts(ctx)
				// 快照可能早于本进程之后持久化的已读/删除状态
				recs = s.applyPersisted(ctx, recs, contacts, mock)
				s.install(recs, contacts, ScanReport{}, mock)
				s.notify(Event{Type: EventRefreshed, Count: len(recs), Mock: mock})
				return ScanReport{}, nil
			}
		}
	}

	recs, report, err := s.opts.Source.Scan(ctx)
	if err != nil {
		return report, fmt.Errorf("scan recordings: %w", err)
	}
	s.lastRefresh = now

	contacts := s.loadContacts(ctx)

	mock := false
	if len(report.Accessible) == 0 && len(recs) == 0 && s.opts.MockFallback {
		logger.Warn("no recording path accessible, serving mock recordings",
			logger.String("root", report.Root),
			logger.Int("tried", len(report.Tried)))
		rng := s.opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(now.UnixNano()))
		}
		recs = MockRecordings(contacts, rng, now)
		mock = true
	}

	recs = s.applyPersisted(ctx, recs, contacts, mock)
	s.install(recs, contacts, report, mock)

	if s.opts.Cache != nil {
		if err := s.opts.Cache.SaveSnapshot(ctx, recs); err != nil {
			logger.Warn("failed to cache recording snapshot", logger.ErrorField(err))
		}
	}

	logger.Info("recordings refreshed",
		logger.Int("count", len(recs)),
		logger.Int("accessible", len(report.Accessible)),
		logger.Int("unparsed", report.Unparsed),
		logger.Bool("mock", mock),
		logger.Duration("took", report.Took))

	s.notify(Event{Type: EventRefreshed, Count: len(recs), Mock: mock})
	return report, nil
}

// applyPersisted overlays stored read/deleted flags and contact names.
func (s *Service) applyPersisted(ctx context.Context, recs []*model.Recording, contacts []model.Contact, mock bool) []*model.Recording {
	if s.opts.States != nil && !mock {
		states, err := s.opts.States.States(ctx)
		if err != nil {
			logger.Warn("failed to load recording states", logger.ErrorField(err))
		} else {
			recs = applyStates(recs, states)
		}
	}
	applyContactNames(recs, contacts)
	return recs
}

func isMock(recs []*model.Recording) bool {
	return len(recs) > 0 && recs[0].Mock
}

func (s *Service) loadContacts(ctx context.Context) []model.Contact {
	if s.opts.Contacts == nil {
		return nil
	}
	contacts, err := s.opts.Contacts.Contacts(ctx)
	if err != nil {
		logger.Warn("failed to load contacts", logger.ErrorField(err))
		return nil
	}
	return contacts
}

func (s *Service) install(recs []*model.Recording, contacts []model.Contact, report ScanReport, mock bool) {
	byID := make(map[string]*model.Recording, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	s.mu.Lock()
	s.recordings = recs
	s.byID = byID
	s.contacts = contacts
	s.report = report
	s.mock = mock
	s.mu.Unlock()
}

func applyStates(recs []*model.Recording, states map[string]model.RecordingState) []*model.Recording {
	out := recs[:0]
	for _, r := range recs {
		st, ok := states[r.FilePath]
		if ok && st.DeletedAt != nil {
			continue
		}
		if ok {
			r.IsRead = st.IsRead
		}
		out = append(out, r)
	}
	return out
}

func applyContactNames(recs []*model.Recording, contacts []model.Contact) {
	for _, r := range recs {
		if c, ok := FindContact(contacts, r.PhoneNumber); ok {
			r.ContactName = c.Name
			if r.ContactID == "" || r.ContactID == GroupKey(r.PhoneNumber) {
				r.ContactID = c.ID
			}
		}
	}
}

// ensureLoaded performs the first refresh lazily.
func (s *Service) ensureLoaded(ctx context.Context) {
	s.refreshMu.Lock()
	loaded := !s.lastRefresh.IsZero()
	s.refreshMu.Unlock()
	if loaded {
		return
	}
	if _, err := s.Refresh(ctx, true); err != nil {
		logger.Error("initial refresh failed", logger.ErrorField(err))
	}
}

// Recordings returns the current snapshot, newest first.
func (s *Service) Recordings(ctx context.Context) []*model.Recording {
	s.ensureLoaded(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Recording, len(s.recordings))
	for i, r := range s.recordings {
		cp := *r
		out[i] = &cp
	}
	return out
}

// Recording returns one recording by id.
func (s *Service) Recording(ctx context.Context, id string) (*model.Recording, error) {
	s.ensureLoaded(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Contacts returns the contacts loaded with the current snapshot.
func (s *Service) Contacts(ctx context.Context) []model.Contact {
	s.ensureLoaded(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Contact, len(s.contacts))
	copy(out, s.contacts)
	return out
}

// IsMock reports whether the snapshot holds generated recordings.
func (s *Service) IsMock() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mock
}

// LastReport returns the report of the most recent scan.
func (s *Service) LastReport() ScanReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// Folders groups the snapshot and orders it.
func (s *Service) Folders(ctx context.Context, order FolderOrder) []*model.RecordingFolder {
	recs := s.Recordings(ctx)
	folders := GroupFolders(recs, s.Contacts(ctx))
	SortFolders(folders, order)
	return folders
}

// Folder returns the folder of phone, matched on the normalized number.
func (s *Service) Folder(ctx context.Context, phone string) (*model.RecordingFolder, error) {
	key := GroupKey(phone)
	for _, f := range s.Folders(ctx, OrderRecent) {
		if f.ID == key {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

// Recent returns the newest recordings.
func (s *Service) Recent(ctx context.Context, limit int) []*model.Recording {
	return RecentRecordings(s.Recordings(ctx), limit)
}

// Search filters the snapshot by name, number or date.
func (s *Service) Search(ctx context.Context, query string) []*model.Recording {
	return Search(s.Recordings(ctx), query, s.opts.Location)
}

// MarkRead sets the read flag and persists it.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	r, ok := s.byID[id]
	if ok {
		r.IsRead = true
	}
	mock := s.mock
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if s.opts.States != nil && !mock {
		if err := s.opts.States.MarkRead(ctx, r.FilePath); err != nil {
			return fmt.Errorf("persist read flag: %w", err)
		}
	}
	s.notify(Event{Type: EventRead, ID: id, Count: 1})
	return nil
}

// Delete removes a recording from the snapshot and from disk. When an
// Archiver is configured the file is archived first and a failed archive
// aborts the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.Recording(ctx, id)
	if err != nil {
		return err
	}

	var objectKey string
	if !rec.Mock {
		if s.opts.Archiver != nil {
			objectKey, err = s.opts.Archiver.Archive(ctx, rec)
			if err != nil {
				return fmt.Errorf("archive before delete: %w", err)
			}
		}
		if err := os.Remove(rec.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", rec.FilePath, err)
		}
		if s.opts.States != nil {
			if err := s.opts.States.MarkDeleted(ctx, rec.FilePath, objectKey); err != nil {
				logger.Warn("failed to persist delete", logger.String("path", rec.FilePath), logger.ErrorField(err))
			}
		}
	}

	s.mu.Lock()
	delete(s.byID, id)
	for i, r := range s.recordings {
		if r.ID == id {
			s.recordings = append(s.recordings[:i:i], s.recordings[i+1:]...)
			break
		}
	}
	remaining := len(s.recordings)
	s.mu.Unlock()

	logger.Info("recording deleted", logger.String("id", id), logger.String("archive", objectKey))
	s.notify(Event{Type: EventDeleted, ID: id, Count: remaining})
	return nil
}

// RenameContact changes the display name for every recording of phone.
// An empty name clears the contact name.
func (s *Service) RenameContact(ctx context.Context, phone, name string) (int, error) {
	s.ensureLoaded(ctx)
	key := NormalizePhone(phone)
	if key == "" {
		return 0, fmt.Errorf("%w %q", ErrInvalidPhone, phone)
	}
	if s.opts.ContactWriter != nil {
		if err := s.opts.ContactWriter.SaveContactName(ctx, phone, name); err != nil {
			return 0, fmt.Errorf("save contact: %w", err)
		}
	}

	var namePtr *string
	if name != "" {
		namePtr = &name
	}

	s.mu.Lock()
	updated := 0
	for _, r := range s.recordings {
		if GroupKey(r.PhoneNumber) == key {
			r.ContactName = namePtr
			updated++
		}
	}
	found := false
	for i, c := range s.contacts {
		if GroupKey(c.PhoneNumber) == key {
			s.contacts[i].Name = namePtr
			found = true
		}
	}
	if !found {
		s.contacts = append(s.contacts, model.Contact{ID: key, Name: namePtr, PhoneNumber: phone})
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventRenamed, Phone: key, Count: updated})
	return updated, nil
}

// OlderThan returns the recordings with a timestamp before cutoff.
func (s *Service) OlderThan(ctx context.Context, cutoff time.Time) []*model.Recording {
	var out []*model.Recording
	for _, r := range s.Recordings(ctx) {
		if r.Timestamp < cutoff.UnixMilli() {
			out = append(out, r)
		}
	}
	return out
}
