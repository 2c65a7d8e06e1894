package recording

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"CallBox/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	recs   []*model.Recording
	report ScanReport
	err    error
	calls  int
}

func (f *fakeSource) Scan(context.Context) ([]*model.Recording, ScanReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]*model.Recording, len(f.recs))
	for i, r := range f.recs {
		cp := *r
		out[i] = &cp
	}
	return out, f.report, f.err
}

type fakeContacts []model.Contact

func (f fakeContacts) Contacts(context.Context) ([]model.Contact, error) { return f, nil }

type fakeStates struct {
	states  map[string]model.RecordingState
	read    []string
	deleted map[string]string
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: map[string]model.RecordingState{}, deleted: map[string]string{}}
}

func (f *fakeStates) States(context.Context) (map[string]model.RecordingState, error) {
	return f.states, nil
}

func (f *fakeStates) MarkRead(_ context.Context, p string) error {
	f.read = append(f.read, p)
	return nil
}

func (f *fakeStates) MarkDeleted(_ context.Context, p, key string) error {
	f.deleted[p] = key
	return nil
}

type fakeArchiver struct {
	err      error
	archived []string
}

func (f *fakeArchiver) Archive(_ context.Context, r *model.Recording) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.archived = append(f.archived, r.FilePath)
	return "recordings/" + filepath.Base(r.FilePath), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(src *fakeSource, opts Options) (*Service, *clock) {
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts.Source = src
	opts.Now = c.now
	opts.Location = time.UTC
	if opts.MinRefreshInterval == 0 {
		opts.MinRefreshInterval = 10 * time.Second
	}
	return NewService(opts), c
}

func TestService_RefreshThrottle(t *testing.T) {
	src := &fakeSource{recs: []*model.Recording{rec("a", "5551234567", 1, false)}, report: ScanReport{Accessible: []string{"/x"}}}
	svc, clk := newTestService(src, Options{})
	ctx := context.Background()

	_, err := svc.Refresh(ctx, false)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, false)
	assert.ErrorIs(t, err, ErrThrottled)

	_, err = svc.Refresh(ctx, true)
	assert.NoError(t, err, "force bypasses the throttle")

	clk.advance(11 * time.Second)
	_, err = svc.Refresh(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestService_ListenersNotified(t *testing.T) {
	src := &fakeSource{recs: []*model.Recording{rec("a", "5551234567", 1, false)}, report: ScanReport{Accessible: []string{"/x"}}}
	svc, _ := newTestService(src, Options{})

	var got []Event
	unsubscribe := svc.Subscribe(func(ev Event) { got = append(got, ev) })

	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, EventRefreshed, got[0].Type)
	assert.Equal(t, 1, got[0].Count)

	unsubscribe()
	_, err = svc.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestService_MockFallback(t *testing.T) {
	contacts := fakeContacts{
		{ID: "1", Name: strPtr("John Smith"), PhoneNumber: "+15551234567"},
		{ID: "2", Name: strPtr("Mary Johnson"), PhoneNumber: "+15552345678"},
	}
	src := &fakeSource{}
	svc, _ := newTestService(src, Options{Contacts: contacts, MockFallback: true, Rand: rand.New(rand.NewSource(7))})

	recs := svc.Recordings(context.Background())
	require.NotEmpty(t, recs)
	assert.True(t, svc.IsMock())
	for _, r := range recs {
		assert.True(t, r.Mock)
		require.NotNil(t, r.ContactName)
	}

	folders := svc.Folders(context.Background(), OrderAZ)
	require.Len(t, folders, 2)
	assert.Equal(t, "John Smith", folders[0].Name)
}

func TestService_NoFallbackWhenPathAccessible(t *testing.T) {
	src := &fakeSource{report: ScanReport{Accessible: []string{"/sdcard/Recordings/Call"}}}
	svc, _ := newTestService(src, Options{Contacts: fakeContacts{{ID: "1", PhoneNumber: "5551234567"}}, MockFallback: true})

	assert.Empty(t, svc.Recordings(context.Background()))
	assert.False(t, svc.IsMock())
}

func TestService_StatesApplied(t *testing.T) {
	deletedAt := time.Now()
	states := newFakeStates()
	states.states["a"] = model.RecordingState{FilePath: "a", IsRead: true}
	states.states["b"] = model.RecordingState{FilePath: "b", DeletedAt: &deletedAt}

	src := &fakeSource{
		recs:   []*model.Recording{rec("a", "1", 3, false), rec("b", "1", 2, false), rec("c", "1", 1, false)},
		report: ScanReport{Accessible: []string{"/x"}},
	}
	svc, _ := newTestService(src, Options{States: states})

	recs := svc.Recordings(context.Background())
	require.Len(t, recs, 2)
	assert.True(t, recs[0].IsRead)
	assert.Equal(t, "c", recs[1].ID)
}

func TestService_MarkRead(t *testing.T) {
	states := newFakeStates()
	src := &fakeSource{recs: []*model.Recording{rec("a", "1", 1, false)}, report: ScanReport{Accessible: []string{"/x"}}}
	svc, _ := newTestService(src, Options{States: states})
	ctx := context.Background()

	require.NoError(t, svc.MarkRead(ctx, "a"))
	r, err := svc.Recording(ctx, "a")
	require.NoError(t, err)
	assert.True(t, r.IsRead)
	assert.Equal(t, []string{"a"}, states.read)

	assert.ErrorIs(t, svc.MarkRead(ctx, "missing"), ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Call_20240131_142501_INCOMING_15551234567.m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))

	states := newFakeStates()
	arch := &fakeArchiver{}
	src := &fakeSource{recs: []*model.Recording{rec(path, "15551234567", 1, false)}, report: ScanReport{Accessible: []string{dir}}}
	svc, _ := newTestService(src, Options{States: states, Archiver: arch})
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, path))

	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, []string{path}, arch.archived)
	assert.Equal(t, "recordings/"+filepath.Base(path), states.deleted[path])
	_, err = svc.Recording(ctx, path)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_DeleteAbortsWhenArchiveFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))

	src := &fakeSource{recs: []*model.Recording{rec(path, "1", 1, false)}, report: ScanReport{Accessible: []string{dir}}}
	svc, _ := newTestService(src, Options{Archiver: &fakeArchiver{err: errors.New("minio down")}})

	err := svc.Delete(context.Background(), path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "file kept")
	_, err = svc.Recording(context.Background(), path)
	assert.NoError(t, err)
}

type recordingWriter struct{ saved map[string]string }

func (w *recordingWriter) SaveContactName(_ context.Context, phone, name string) error {
	w.saved[phone] = name
	return nil
}

func TestService_RenameContact(t *testing.T) {
	src := &fakeSource{
		recs: []*model.Recording{
			rec("a", "+1 555 123 4567", 2, false),
			rec("b", "5551234567", 1, false),
			rec("c", "5559999999", 3, false),
		},
		report: ScanReport{Accessible: []string{"/x"}},
	}
	w := &recordingWriter{saved: map[string]string{}}
	svc, _ := newTestService(src, Options{ContactWriter: w})
	ctx := context.Background()

	n, err := svc.RenameContact(ctx, "15551234567", "Johnny")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "Johnny", w.saved["15551234567"])

	f, err := svc.Folder(ctx, "555-123-4567")
	require.NoError(t, err)
	assert.Equal(t, "Johnny", f.Name)
	assert.Len(t, f.Recordings, 2)

	_, err = svc.RenameContact(ctx, "no digits", "x")
	assert.Error(t, err)
}

func TestService_ScanErrorKeepsSnapshot(t *testing.T) {
	src := &fakeSource{recs: []*model.Recording{rec("a", "1", 1, false)}, report: ScanReport{Accessible: []string{"/x"}}}
	svc, _ := newTestService(src, Options{})
	ctx := context.Background()
	require.Len(t, svc.Recordings(ctx), 1)

	src.err = context.DeadlineExceeded
	_, err := svc.Refresh(ctx, true)
	require.Error(t, err)
	assert.Len(t, svc.Recordings(ctx), 1)
}

func TestService_OlderThan(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{
		recs: []*model.Recording{
			rec("new", "1", now.Add(-time.Hour).UnixMilli(), false),
			rec("old", "1", now.Add(-40*24*time.Hour).UnixMilli(), false),
		},
		report: ScanReport{Accessible: []string{"/x"}},
	}
	svc, _ := newTestService(src, Options{})
	old := svc.OlderThan(context.Background(), now.Add(-30*24*time.Hour))
	assert.Equal(t, []string{"old"}, ids(old))
}

type lockedCache struct {
	snapshot []*model.Recording
	saved    int
}

func (c *lockedCache) SaveSnapshot(context.Context, []*model.Recording) error {
	c.saved++
	return nil
}

func (c *lockedCache) LoadSnapshot(context.Context) ([]*model.Recording, error) {
	out := make([]*model.Recording, len(c.snapshot))
	for i, r := range c.snapshot {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

func (c *lockedCache) AcquireRefresh(context.Context, time.Duration) (bool, error) {
	return false, nil
}

func TestService_AdoptedSnapshotGetsStoredStates(t *testing.T) {
	deletedAt := time.Now()
	states := newFakeStates()
	states.states["a"] = model.RecordingState{FilePath: "a", IsRead: true}
	states.states["b"] = model.RecordingState{FilePath: "b", DeletedAt: &deletedAt}

	cache := &lockedCache{snapshot: []*model.Recording{
		rec("a", "5551234567", 2, false),
		rec("b", "5551234567", 1, false),
	}}
	contacts := fakeContacts{{ID: "1", Name: strPtr("John Smith"), PhoneNumber: "+15551234567"}}
	src := &fakeSource{}
	svc, _ := newTestService(src, Options{States: states, Cache: cache, Contacts: contacts})

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, src.calls, "snapshot adopted instead of scanning")

	recs := svc.Recordings(context.Background())
	require.Len(t, recs, 1, "deleted recording stays hidden")
	assert.Equal(t, "a", recs[0].ID)
	assert.True(t, recs[0].IsRead)
	require.NotNil(t, recs[0].ContactName)
	assert.Equal(t, "John Smith", *recs[0].ContactName)
}
