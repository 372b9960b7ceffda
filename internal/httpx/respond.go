package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/nabilpatel4012/smaapi/pkg/apperr"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps an error kind to its HTTP status. Error kinds are
// the whole contract between services and this layer.
func writeServiceError(w http.ResponseWriter, err error) {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalid:
		writeError(w, http.StatusBadRequest, err.Error())
	case apperr.CodeNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case apperr.CodeConflict:
		writeError(w, http.StatusConflict, err.Error())
	case apperr.CodeUnsupportedShape:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case apperr.CodeProvisioningFailed, apperr.CodeDocSyncFailed:
		writeError(w, http.StatusBadGateway, err.Error())
	case apperr.CodeDecryptFailed:
		writeError(w, http.StatusInternalServerError, "credential decryption failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
