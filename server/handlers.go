package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"CallBox/core/permission"
	"CallBox/core/recording"
	"CallBox/logger"
	"CallBox/model"
	"CallBox/repository"
	"CallBox/storage"

	"github.com/gorilla/mux"
)

// Library is the recording service as seen by the handlers.
type Library interface {
	Recordings(ctx context.Context) []*model.Recording
	Recording(ctx context.Context, id string) (*model.Recording, error)
	Recent(ctx context.Context, limit int) []*model.Recording
	Folders(ctx context.Context, order recording.FolderOrder) []*model.RecordingFolder
	Folder(ctx context.Context, phone string) (*model.RecordingFolder, error)
	Search(ctx context.Context, query string) []*model.Recording
	Contacts(ctx context.Context) []model.Contact
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	RenameContact(ctx context.Context, phone, name string) (int, error)
	Refresh(ctx context.Context, force bool) (recording.ScanReport, error)
	LastReport() recording.ScanReport
	IsMock() bool
	Location() *time.Location
}

// PermissionChecker reports storage access.
type PermissionChecker interface {
	Check(ctx context.Context) permission.Result
}

// ArchiveIndex finds archived copies of deleted recordings.
type ArchiveIndex interface {
	Get(ctx context.Context, filePath string) (*model.RecordingState, error)
	Archived(ctx context.Context) ([]model.RecordingState, error)
}

// ArchiveReader opens archived objects.
type ArchiveReader interface {
	Open(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error)
}

// APIHandler 处理所有API请求
type APIHandler struct {
	library     Library
	settings    repository.SettingsRepository
	permissions PermissionChecker
	archiveIdx  ArchiveIndex  // optional
	archive     ArchiveReader // optional
	auth        *Authenticator
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(library Library, settings repository.SettingsRepository, permissions PermissionChecker, auth *Authenticator) *APIHandler {
	return &APIHandler{
		library:     library,
		settings:    settings,
		permissions: permissions,
		auth:        auth,
	}
}

// WithArchive enables playback of archived recordings.
func (h *APIHandler) WithArchive(idx ArchiveIndex, reader ArchiveReader) *APIHandler {
	h.archiveIdx = idx
	h.archive = reader
	return h
}

// recordingView adds the display strings the UI shows next to a recording.
type recordingView struct {
	*model.Recording
	DisplayName  string `json:"displayName"`
	DurationText string `json:"durationText"`
	TimeText     string `json:"timeText"`
	SizeText     string `json:"sizeText"`
}

func (h *APIHandler) view(r *model.Recording) recordingView {
	return recordingView{
		Recording:    r,
		DisplayName:  r.DisplayName(),
		DurationText: recording.FormatDuration(r.Duration),
		TimeText:     recording.FormatTimestamp(r.Timestamp, h.library.Location()),
		SizeText:     recording.FormatFileSize(r.Size),
	}
}

func (h *APIHandler) views(recs []*model.Recording) []recordingView {
	out := make([]recordingView, 0, len(recs))
	for _, r := range recs {
		out = append(out, h.view(r))
	}
	return out
}

type folderView struct {
	*model.RecordingFolder
	Recordings []recordingView `json:"recordings"`
}

func (h *APIHandler) folderView(f *model.RecordingFolder) folderView {
	return folderView{RecordingFolder: f, Recordings: h.views(f.Recordings)}
}

type listResponse struct {
	Recordings []recordingView `json:"recordings"`
	Count      int             `json:"count"`
	Mock       bool            `json:"mock"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", logger.ErrorField(err))
	}
}

// pathVar 路由使用 UseEncodedPath，变量需要解码
func pathVar(r *http.Request, name string) (string, bool) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return "", false
	}
	v, err := url.PathUnescape(raw)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (h *APIHandler) list(w http.ResponseWriter, r *http.Request, recs []*model.Recording) {
	writeJSON(w, http.StatusOK, listResponse{
		Recordings: h.views(recs),
		Count:      len(recs),
		Mock:       h.library.IsMock(),
	})
}

// GetRecordingsHandler 全部录音，最新的在前
func (h *APIHandler) GetRecordingsHandler(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.library.Recordings(r.Context()))
}

// GetRecentHandler 最近录音，默认 3 条
func (h *APIHandler) GetRecentHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	h.list(w, r, h.library.Recent(r.Context(), limit))
}

// SearchHandler 按名称、号码或日期搜索
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.library.Search(r.Context(), r.URL.Query().Get("q")))
}

// GetRecordingHandler 单条录音
func (h *APIHandler) GetRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathVar(r, "id")
	if !ok {
		http.Error(w, "Invalid recording id", http.StatusBadRequest)
		return
	}
	rec, err := h.library.Recording(r.Context(), id)
	if err != nil {
		h.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rec))
}

func (h *APIHandler) writeLibraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recording.ErrNotFound):
		http.Error(w, "Recording not found", http.StatusNotFound)
	case errors.Is(err, recording.ErrThrottled):
		http.Error(w, "Refresh throttled, try again later", http.StatusTooManyRequests)
	default:
		logger.Error("request failed", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// StreamRecordingHandler serves the audio file with Range support. A file
// missing from disk, or a recording already deleted, is served from the
// archive when a copy exists.
func (h *APIHandler) StreamRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathVar(r, "id")
	if !ok {
		http.Error(w, "Invalid recording id", http.StatusBadRequest)
		return
	}
	rec, err := h.library.Recording(r.Context(), id)
	if err != nil {
		// 已删除的录音不在快照里，id 即文件路径
		if errors.Is(err, recording.ErrNotFound) && h.serveArchived(w, r, id) {
			return
		}
		h.writeLibraryError(w, err)
		return
	}
	if rec.Mock {
		http.Error(w, "Mock recording has no audio", http.StatusNotFound)
		return
	}

	name := filepath.Base(rec.FilePath)
	f, err := os.Open(rec.FilePath)
	if err == nil {
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			http.Error(w, "Failed to stat recording", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", storage.ContentType(name))
		http.ServeContent(w, r, name, info.ModTime(), f)
		return
	}
	if !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to open recording", logger.String("path", rec.FilePath), logger.ErrorField(err))
		http.Error(w, "Recording not readable", http.StatusForbidden)
		return
	}

	if !h.serveArchived(w, r, rec.FilePath) {
		http.Error(w, "Recording file not found", http.StatusNotFound)
	}
}

// serveArchived streams the archived copy of filePath. It reports false,
// without writing a response, when no copy is available.
func (h *APIHandler) serveArchived(w http.ResponseWriter, r *http.Request, filePath string) bool {
	if h.archive == nil || h.archiveIdx == nil {
		return false
	}
	st, err := h.archiveIdx.Get(r.Context(), filePath)
	if err != nil || st == nil || st.ObjectKey == "" {
		return false
	}
	obj, modTime, err := h.archive.Open(r.Context(), st.ObjectKey)
	if err != nil {
		logger.Warn("failed to open archived recording", logger.String("key", st.ObjectKey), logger.ErrorField(err))
		return false
	}
	defer obj.Close()

	name := filepath.Base(filePath)
	w.Header().Set("Content-Type", storage.ContentType(name))
	http.ServeContent(w, r, name, modTime, obj)
	return true
}

// MarkReadHandler 标记已读
func (h *APIHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathVar(r, "id")
	if !ok {
		http.Error(w, "Invalid recording id", http.StatusBadRequest)
		return
	}
	if err := h.library.MarkRead(r.Context(), id); err != nil {
		h.writeLibraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRecordingHandler 删除录音
func (h *APIHandler) DeleteRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathVar(r, "id")
	if !ok {
		http.Error(w, "Invalid recording id", http.StatusBadRequest)
		return
	}
	if err := h.library.Delete(r.Context(), id); err != nil {
		h.writeLibraryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFoldersHandler 按联系人分组，sort=recent|az|za
func (h *APIHandler) GetFoldersHandler(w http.ResponseWriter, r *http.Request) {
	folders := h.library.Folders(r.Context(), recording.ParseFolderOrder(r.URL.Query().Get("sort")))
	out := make([]folderView, 0, len(folders))
	for _, f := range folders {
		out = append(out, h.folderView(f))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"folders": out,
		"mock":    h.library.IsMock(),
	})
}

// GetFolderHandler 单个联系人文件夹
func (h *APIHandler) GetFolderHandler(w http.ResponseWriter, r *http.Request) {
	phone, ok := pathVar(r, "phone")
	if !ok {
		http.Error(w, "Invalid phone number", http.StatusBadRequest)
		return
	}
	f, err := h.library.Folder(r.Context(), phone)
	if err != nil {
		if errors.Is(err, recording.ErrNotFound) {
			http.Error(w, "Folder not found", http.StatusNotFound)
			return
		}
		h.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.folderView(f))
}

// RefreshHandler 重新扫描，force=1 跳过节流
func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	report, err := h.library.Refresh(r.Context(), force)
	if err != nil {
		h.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report": report,
		"count":  len(h.library.Recordings(r.Context())),
		"mock":   h.library.IsMock(),
	})
}

// PermissionsHandler 存储访问状态和最近一次扫描报告
func (h *APIHandler) PermissionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"storage":    h.permissions.Check(r.Context()),
		"lastReport": h.library.LastReport(),
		"mock":       h.library.IsMock(),
	})
}

// ArchiveHandler 已归档的删除记录
func (h *APIHandler) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	if h.archiveIdx == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"archived": []model.RecordingState{}})
		return
	}
	rows, err := h.archiveIdx.Archived(r.Context())
	if err != nil {
		logger.Error("failed to list archived recordings", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []model.RecordingState{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"archived": rows})
}

// HealthHandler liveness
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
