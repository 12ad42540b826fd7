package api

import (
	"encoding/json"
	"errors"
	"net/http"

	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeUnsupportedTable  = "UnsupportedTable"
	codeForbidden         = "Forbidden"
	codeUnauthenticated   = "Unauthenticated"
	codeInvalidToken      = "InvalidToken"
	codeInvalidCheckpoint = "InvalidCheckpoint"
	codeMalformedRequest  = "MalformedRequest"
	codeRequestTooLarge   = "RequestTooLarge"
	codeInternal          = "InternalError"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// writeSyncError maps engine errors to HTTP responses. Anything unclassified
// is a 500 and is logged with the table it concerned.
func (s *Server) writeSyncError(w http.ResponseWriter, r *http.Request, table string, err error) {
	switch {
	case errors.Is(err, lexisync.ErrUnsupportedTable):
		writeError(w, http.StatusBadRequest, codeUnsupportedTable, err.Error())
	case errors.Is(err, lexisync.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, lexisync.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, err.Error())
	default:
		s.logger.Printf("ERROR: %s %s failed for table %s: %v", r.Method, r.URL.Path, table, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
