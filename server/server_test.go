package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"CallBox/core/auth"
	"CallBox/core/contacts"
	"CallBox/core/permission"
	"CallBox/core/recording"
	"CallBox/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	recs []*model.Recording
	dir  string
}

func (s *staticSource) Scan(context.Context) ([]*model.Recording, recording.ScanReport, error) {
	out := make([]*model.Recording, len(s.recs))
	for i, r := range s.recs {
		cp := *r
		out[i] = &cp
	}
	return out, recording.ScanReport{Root: s.dir, Accessible: []string{s.dir}}, nil
}

type memSettings struct {
	s *model.Settings
}

func (m *memSettings) Get(context.Context) (model.Settings, error) {
	if m.s == nil {
		return model.DefaultSettings(), nil
	}
	return *m.s, nil
}

func (m *memSettings) Save(_ context.Context, s *model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	cp := *s
	m.s = &cp
	return nil
}

type fixedChecker struct{ res permission.Result }

func (f fixedChecker) Check(context.Context) permission.Result { return f.res }

type testEnv struct {
	handler http.Handler
	svc     *recording.Service
	hub     *EventHub
	john    string
	mary    string
}

func newTestEnv(t *testing.T, authn *Authenticator) *testEnv {
	t.Helper()
	dir := t.TempDir()
	john := filepath.Join(dir, "Call_20240115_143022_INCOMING_15551234567.m4a")
	mary := filepath.Join(dir, "Call_20240201_090000_OUTGOING_15552345678.m4a")
	require.NoError(t, os.WriteFile(john, []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(mary, []byte("abcdef"), 0o644))

	src := &staticSource{dir: dir, recs: []*model.Recording{
		{ID: john, FilePath: john, PhoneNumber: "15551234567", Duration: 75, Size: 10,
			Timestamp: time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC).UnixMilli(), Direction: model.DirectionIncoming},
		{ID: mary, FilePath: mary, PhoneNumber: "15552345678", Duration: 30, Size: 6,
			Timestamp: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC).UnixMilli(), Direction: model.DirectionOutgoing},
	}}
	svc := recording.NewService(recording.Options{
		Source:             src,
		Contacts:           contacts.MockProvider{},
		MinRefreshInterval: time.Hour,
		Location:           time.UTC,
	})
	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	hub := NewEventHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	unsubscribe := svc.Subscribe(hub.Publish)
	t.Cleanup(unsubscribe)

	checker := fixedChecker{res: permission.Result{Status: permission.Granted, Root: dir}}
	h := NewAPIHandler(svc, &memSettings{}, checker, authn)
	return &testEnv{handler: NewRouter(h, authn, hub), svc: svc, hub: hub, john: john, mary: mary}
}

func (e *testEnv) do(t *testing.T, method, target string, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func recordingPath(id string, suffix string) string {
	return "/api/recordings/" + url.PathEscape(id) + suffix
}

type listBody struct {
	Recordings []struct {
		ID           string `json:"id"`
		DisplayName  string `json:"displayName"`
		DurationText string `json:"durationText"`
		TimeText     string `json:"timeText"`
		SizeText     string `json:"sizeText"`
		IsRead       bool   `json:"isRead"`
	} `json:"recordings"`
	Count int  `json:"count"`
	Mock  bool `json:"mock"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestListRecordings(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/recordings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body listBody
	decode(t, rec, &body)
	require.Equal(t, 2, body.Count)
	assert.False(t, body.Mock)
	assert.Equal(t, env.mary, body.Recordings[0].ID)
	assert.Equal(t, "Mary Johnson", body.Recordings[0].DisplayName)
	assert.Equal(t, "00:30", body.Recordings[0].DurationText)
	assert.Equal(t, "Feb 1, 2024, 9:00 AM", body.Recordings[0].TimeText)
	assert.Equal(t, "6 B", body.Recordings[0].SizeText)
	assert.Equal(t, "01:15", body.Recordings[1].DurationText)
}

func TestRecentAndSearch(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/recordings/recent?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body listBody
	decode(t, rec, &body)
	require.Len(t, body.Recordings, 1)
	assert.Equal(t, env.mary, body.Recordings[0].ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/recordings/recent?limit=x", "", nil).Code)

	rec = env.do(t, http.MethodGet, "/api/search?q=smith", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = listBody{}
	decode(t, rec, &body)
	require.Len(t, body.Recordings, 1)
	assert.Equal(t, env.john, body.Recordings[0].ID)
}

func TestGetRecording(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, recordingPath(env.john, ""), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"displayName":"John Smith"`)

	rec = env.do(t, http.MethodGet, recordingPath("/nope.m4a", ""), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamRecording_Range(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, recordingPath(env.john, "/stream"), "", http.Header{"Range": {"bytes=2-5"}})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "audio/mp4", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, recordingPath(env.john, "/stream"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
}

func TestStreamRecording_MissingFile(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.Remove(env.john))

	rec := env.do(t, http.MethodGet, recordingPath(env.john, "/stream"), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkReadAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, recordingPath(env.john, "/read"), "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	r, err := env.svc.Recording(ctx, env.john)
	require.NoError(t, err)
	assert.True(t, r.IsRead)

	rec = env.do(t, http.MethodDelete, recordingPath(env.mary, ""), "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err = os.Stat(env.mary)
	assert.True(t, os.IsNotExist(err))
	assert.Len(t, env.svc.Recordings(ctx), 1)

	rec = env.do(t, http.MethodDelete, recordingPath(env.mary, ""), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFolders(t *testing.T) {
	env := newTestEnv(t, nil)

	var body struct {
		Folders []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Recordings []struct {
				DurationText string `json:"durationText"`
			} `json:"recordings"`
		} `json:"folders"`
	}
	rec := env.do(t, http.MethodGet, "/api/folders?sort=za", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	require.Len(t, body.Folders, 2)
	assert.Equal(t, "Mary Johnson", body.Folders[0].Name)
	assert.Equal(t, "John Smith", body.Folders[1].Name)
	require.Len(t, body.Folders[1].Recordings, 1)
	assert.Equal(t, "01:15", body.Folders[1].Recordings[0].DurationText)

	rec = env.do(t, http.MethodGet, "/api/folders/"+url.PathEscape("+1 (555) 123-4567"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"5551234567"`)

	rec = env.do(t, http.MethodGet, "/api/folders/5550000000", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenameContact(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPut, "/api/contacts/15551234567", `{"name":" Johnny "}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1,"name":"Johnny"}`, rec.Body.String())

	r, err := env.svc.Recording(context.Background(), env.john)
	require.NoError(t, err)
	assert.Equal(t, "Johnny", r.DisplayName())

	rec = env.do(t, http.MethodPut, "/api/contacts/unknown", `{"name":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/contacts/15551234567", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/contacts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Johnny")
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var s model.Settings
	decode(t, rec, &s)
	assert.Equal(t, model.QualityMedium, s.Quality)
	assert.True(t, s.DarkTheme)

	rec = env.do(t, http.MethodPut, "/api/settings", `{"autoDelete":true,"autoDeleteAfter":"30days","excludedContacts":["5551234567"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s = model.Settings{}
	decode(t, rec, &s)
	assert.True(t, s.AutoDelete)
	assert.Equal(t, model.Retention30Days, s.AutoDeleteAfter)
	assert.True(t, s.DarkTheme, "fields not sent keep their value")
	assert.Equal(t, []string{"5551234567"}, s.Excluded)

	rec = env.do(t, http.MethodPut, "/api/settings", `{"quality":"lossless"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshThrottled(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/refresh", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/refresh?force=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
}

func TestPermissionsAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/permissions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"granted"`)

	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/archive", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"archived":[]}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodOptions, "/api/recordings", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuth(t *testing.T) {
	hash, err := auth.HashPassword("letmein")
	require.NoError(t, err)
	env := newTestEnv(t, NewAuthenticator("secret", hash, time.Hour))

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/recordings", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil).Code)

	rec := env.do(t, http.MethodPost, "/api/auth/login", `{"password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", `{"password":"letmein"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	decode(t, rec, &login)
	require.NotEmpty(t, login.Token)

	bearer := http.Header{"Authorization": {"Bearer " + login.Token}}
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/recordings", "", bearer).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/folders?token="+login.Token, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/recordings", "",
		http.Header{"Authorization": {"Bearer nope"}}).Code)
}

func TestLoginDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/auth/login", `{"password":"x"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.svc.MarkRead(context.Background(), env.john))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev recording.Event
	require.NoError(t, json.NewDecoder(bytes.NewReader(data)).Decode(&ev))
	assert.Equal(t, recording.EventRead, ev.Type)
	assert.Equal(t, env.john, ev.ID)
}

type memArchive struct {
	objects map[string][]byte
}

func (a *memArchive) Archive(_ context.Context, rec *model.Recording) (string, error) {
	data, err := os.ReadFile(rec.FilePath)
	if err != nil {
		return "", err
	}
	key := "recordings/" + filepath.Base(rec.FilePath)
	a.objects[key] = data
	return key, nil
}

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

func (a *memArchive) Open(_ context.Context, key string) (io.ReadSeekCloser, time.Time, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, time.Time{}, os.ErrNotExist
	}
	return nopSeekCloser{bytes.NewReader(data)}, time.Unix(1700000000, 0), nil
}

type memStates struct {
	rows map[string]model.RecordingState
}

func (m *memStates) States(context.Context) (map[string]model.RecordingState, error) {
	return m.rows, nil
}

func (m *memStates) MarkRead(_ context.Context, p string) error {
	st := m.rows[p]
	st.FilePath, st.IsRead = p, true
	m.rows[p] = st
	return nil
}

func (m *memStates) MarkDeleted(_ context.Context, p, key string) error {
	now := time.Now()
	st := m.rows[p]
	st.FilePath, st.DeletedAt, st.Archived, st.ObjectKey = p, &now, key != "", key
	m.rows[p] = st
	return nil
}

func (m *memStates) Get(_ context.Context, p string) (*model.RecordingState, error) {
	st, ok := m.rows[p]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memStates) Archived(context.Context) ([]model.RecordingState, error) {
	var out []model.RecordingState
	for _, st := range m.rows {
		if st.Archived {
			out = append(out, st)
		}
	}
	return out, nil
}

func TestStreamRecording_DeletedServedFromArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Call_20240115_143022_INCOMING_15551234567.m4a")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	archive := &memArchive{objects: map[string][]byte{}}
	states := &memStates{rows: map[string]model.RecordingState{}}
	svc := recording.NewService(recording.Options{
		Source: &staticSource{dir: dir, recs: []*model.Recording{
			{ID: path, FilePath: path, PhoneNumber: "15551234567", Size: 10, Timestamp: 1},
		}},
		States:             states,
		Archiver:           archive,
		MinRefreshInterval: time.Hour,
		Location:           time.UTC,
	})
	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	hub := NewEventHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	checker := fixedChecker{res: permission.Result{Status: permission.Granted, Root: dir}}
	h := NewAPIHandler(svc, &memSettings{}, checker, nil).WithArchive(states, archive)
	env := &testEnv{handler: NewRouter(h, nil, hub), svc: svc, hub: hub}

	rec := env.do(t, http.MethodDelete, recordingPath(path, ""), "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	rec = env.do(t, http.MethodGet, recordingPath(path, "/stream"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "audio/mp4", rec.Header().Get("Content-Type"))

	rec = env.do(t, http.MethodGet, recordingPath(path, "/stream"), "", http.Header{"Range": {"bytes=0-3"}})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "0123", rec.Body.String())

	rec = env.do(t, http.MethodGet, recordingPath(filepath.Join(dir, "never.m4a"), "/stream"), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
