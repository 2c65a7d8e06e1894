package server

import (
	"encoding/json"
	"net/http"

	"CallBox/logger"
)

// GetSettingsHandler 读取设置
func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		logger.Error("[Settings] 读取失败", logger.ErrorField(err))
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettingsHandler 部分更新：未提交的字段保持原值
func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		logger.Error("[Settings] 读取失败", logger.ErrorField(err))
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.Excluded == nil {
		s.Excluded = []string{}
	}
	if err := s.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.settings.Save(r.Context(), &s); err != nil {
		logger.Error("[Settings] 保存失败", logger.ErrorField(err))
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}
	logger.Info("[Settings] 已更新",
		logger.Bool("autoDelete", s.AutoDelete),
		logger.String("period", string(s.AutoDeleteAfter)),
		logger.String("quality", string(s.Quality)))
	writeJSON(w, http.StatusOK, s)
}
