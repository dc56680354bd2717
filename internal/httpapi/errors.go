package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err to spec.md §6's problem-details JSON body, using the
// *AppError category if present or a generic 500 otherwise.
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.As(err)
	if ae == nil {
		writeJSON(w, http.StatusInternalServerError, problemDetails{
			Type:   "about:blank",
			Status: http.StatusInternalServerError,
			Detail: err.Error(),
		})
		return
	}

	status := ae.Category.HTTPStatus()
	writeJSON(w, status, problemDetails{
		Type:   string(ae.Category),
		Status: status,
		Detail: ae.Message,
	})
}
