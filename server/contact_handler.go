package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"CallBox/core/recording"
	"CallBox/logger"
)

type renameRequest struct {
	Name string `json:"name"`
}

// GetContactsHandler 联系人列表
func (h *APIHandler) GetContactsHandler(w http.ResponseWriter, r *http.Request) {
	contacts := h.library.Contacts(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}

// RenameContactHandler sets the display name for every recording of a number.
// An empty name clears it.
func (h *APIHandler) RenameContactHandler(w http.ResponseWriter, r *http.Request) {
	phone, ok := pathVar(r, "phone")
	if !ok {
		http.Error(w, "Invalid phone number", http.StatusBadRequest)
		return
	}
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if len(name) > 255 {
		http.Error(w, "Name too long", http.StatusBadRequest)
		return
	}

	updated, err := h.library.RenameContact(r.Context(), phone, name)
	if err != nil {
		if errors.Is(err, recording.ErrInvalidPhone) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error("[Contacts] 重命名失败", logger.String("phone", phone), logger.ErrorField(err))
		http.Error(w, "Failed to rename contact", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": updated, "name": name})
}
