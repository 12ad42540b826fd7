package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lexiflow/lexisync/internal/auth"
	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// TimestampResponse is the body of GET /sync/timestamp.
type TimestampResponse struct {
	Timestamp time.Time `json:"Timestamp"`
}

// TableInfo is one element of GET /sync/tables.
type TableInfo struct {
	Name         string `json:"Name"`
	RequiredRole string `json:"RequiredRole"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleTimestamp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TimestampResponse{Timestamp: s.engine.Checkpoint()})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables := s.engine.Registry().Tables()
	infos := make([]TableInfo, len(tables))
	for i, t := range tables {
		infos[i] = TableInfo{Name: t.Name, RequiredRole: t.RequiredRole}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	p, _ := auth.FromContext(r.Context())
	if _, err := s.engine.Authorize(table, p); err != nil {
		s.writeSyncError(w, r, table, err)
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("lastSyncTime"); raw != "" {
		t, err := ParseCheckpoint(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidCheckpoint, err.Error())
			return
		}
		since = &t
	}

	envs, err := s.engine.Pull(r.Context(), table, since, p)
	if err != nil {
		s.writeSyncError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, envs)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	p, _ := auth.FromContext(r.Context())
	if _, err := s.engine.Authorize(table, p); err != nil {
		s.writeSyncError(w, r, table, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeRequestTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, codeMalformedRequest, "failed to read request body")
		return
	}

	batch, bad, err := lexisync.DecodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeMalformedRequest, err.Error())
		return
	}

	result, err := s.engine.PushDecoded(r.Context(), table, batch, bad, p)
	if err != nil {
		s.writeSyncError(w, r, table, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// checkpointLayouts are tried in order. Zone-less values are taken as UTC.
var checkpointLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02",
}

// ParseCheckpoint parses the lastSyncTime query value as ISO-8601.
func ParseCheckpoint(raw string) (time.Time, error) {
	// An unescaped "+" in a query string decodes to a space.
	value := strings.TrimSpace(raw)
	if i := strings.LastIndex(value, " "); i > 10 {
		value = value[:i] + "+" + value[i+1:]
	}

	for _, layout := range checkpointLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid lastSyncTime %q: expected ISO-8601", raw)
}
