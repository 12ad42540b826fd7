package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiflow/lexisync/internal/auth"
	"github.com/lexiflow/lexisync/internal/catalog"
	"github.com/lexiflow/lexisync/internal/db"
	"github.com/lexiflow/lexisync/internal/monitor"
	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

type testServer struct {
	handler      http.Handler
	db           *db.DB
	adminToken   string
	learnerToken string
}

func setupServer(t *testing.T, withMonitor bool) *testServer {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	authority := lexisync.NewAuthority()
	database.SetClock(authority)

	registry := lexisync.NewRegistry()
	require.NoError(t, catalog.Register(registry, database, lexisync.TableOptions{Logger: quiet}))

	resolver, err := auth.NewJWTResolver([]byte("test-secret"), "lexiflow")
	require.NoError(t, err)

	cfg := Config{
		Resolver:     resolver,
		Version:      "v1.2.3",
		MaxBodyBytes: 64 << 10,
		Logger:       quiet,
	}
	engineCfg := lexisync.Config{Registry: registry, Authority: authority, Logger: quiet}
	if withMonitor {
		hub := monitor.NewHub(&monitor.Config{Tables: registry.Names, Logger: quiet})
		t.Cleanup(func() { _ = hub.Close() })
		cfg.Monitor = hub
		engineCfg.Observer = monitor.NewHandler(hub, quiet)
	}
	cfg.Engine = lexisync.New(engineCfg)

	adminToken, err := resolver.Sign(auth.Principal{ID: "admin-1", Roles: []string{auth.RoleAdmin}}, time.Hour)
	require.NoError(t, err)
	learnerToken, err := resolver.Sign(auth.Principal{ID: "learner-1", Roles: []string{"Learner"}}, time.Hour)
	require.NoError(t, err)

	return &testServer{
		handler:      NewServer(cfg).Handler(),
		db:           database,
		adminToken:   adminToken,
		learnerToken: learnerToken,
	}
}

func (s *testServer) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := setupServer(t, false)

	w := s.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Version: "v1.2.3"}, decode[HealthResponse](t, w))
}

func TestAuthentication(t *testing.T) {
	s := setupServer(t, false)

	t.Run("MissingToken", func(t *testing.T) {
		w := s.do(t, "GET", "/sync/Categories", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, codeUnauthenticated, decode[ErrorResponse](t, w).Code)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		w := s.do(t, "GET", "/sync/timestamp", "not-a-jwt", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, codeInvalidToken, decode[ErrorResponse](t, w).Code)
	})
}

func TestTimestamp_NonDecreasing(t *testing.T) {
	s := setupServer(t, false)

	first := decode[TimestampResponse](t, s.do(t, "GET", "/sync/timestamp", s.learnerToken, ""))
	second := decode[TimestampResponse](t, s.do(t, "GET", "/sync/timestamp", s.learnerToken, ""))

	assert.False(t, first.Timestamp.IsZero())
	assert.False(t, second.Timestamp.Before(first.Timestamp))
}

func TestPush_UpdateCreatesMissingCategory(t *testing.T) {
	s := setupServer(t, false)

	body := `[{"Id":"5","SyncAction":"Update","Data":"{\"Name\":\"Travel\"}","RowVersion":"v1"}]`
	w := s.do(t, "POST", "/sync/categories", s.learnerToken, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode[lexisync.ApplyResult](t, w)
	assert.Equal(t, 1, result.CreatedCount)
	assert.Equal(t, 0, result.ErrorCount)
}

func TestPushThenPull_RoundTrip(t *testing.T) {
	s := setupServer(t, false)

	t0 := decode[TimestampResponse](t, s.do(t, "GET", "/sync/timestamp", s.learnerToken, "")).Timestamp

	body := `[{"Id":"v-1","TableName":"VocabularyItems","SyncAction":"Create","Data":"{\"Term\":\"電車\",\"Reading\":\"でんしゃ\"}"}]`
	w := s.do(t, "POST", "/sync/VocabularyItems", s.learnerToken, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, decode[lexisync.ApplyResult](t, w).CreatedCount)

	target := "/sync/vocabularyitems?lastSyncTime=" + url.QueryEscape(t0.Format(time.RFC3339Nano))
	w = s.do(t, "GET", target, s.learnerToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	envs := decode[[]lexisync.ChangeEnvelope](t, w)
	require.Len(t, envs, 1)
	assert.Equal(t, "v-1", envs[0].EntityID)
	assert.Equal(t, lexisync.ActionCreate, envs[0].Action)
	assert.False(t, envs[0].Timestamp.Before(t0))
	require.NotNil(t, envs[0].Payload)
	assert.Contains(t, *envs[0].Payload, "電車")
}

func TestPush_PartialFailure(t *testing.T) {
	s := setupServer(t, false)

	body := `[
		{"Id":"1","SyncAction":"Create","Data":"{\"Title\":\"N5\"}"},
		{"Id":"2","SyncAction":"Create","Timestamp":"not-a-time","Data":"{\"Title\":\"N4\"}"},
		{"Id":"3","SyncAction":"Create","Data":"{\"Title\":\"N3\"}"}
	]`
	w := s.do(t, "POST", "/sync/Courses", s.learnerToken, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode[lexisync.ApplyResult](t, w)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, 2, result.CreatedCount)
	require.Len(t, result.PerItemErrors, 1)
	assert.Equal(t, "2", result.PerItemErrors[0].EntityID)

	stats, err := s.db.Stats("courses")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Live)
}

func TestPrivilegedTables(t *testing.T) {
	s := setupServer(t, false)
	body := `[{"Id":"u1","SyncAction":"Create","Data":"{\"Username\":\"mallory\",\"Roles\":[\"Admin\"]}"}]`

	for _, table := range []string{"Users", "roles"} {
		t.Run(table, func(t *testing.T) {
			w := s.do(t, "GET", "/sync/"+table, s.learnerToken, "")
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, codeForbidden, decode[ErrorResponse](t, w).Code)

			w = s.do(t, "POST", "/sync/"+table, s.learnerToken, body)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}

	for _, table := range []string{"users", "roles"} {
		stats, err := s.db.Stats(table)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Live+stats.Deleted, table)
	}

	w := s.do(t, "POST", "/sync/Users", s.adminToken, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[lexisync.ApplyResult](t, w).CreatedCount)
}

func TestRequestErrors(t *testing.T) {
	s := setupServer(t, false)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown table pull", "GET", "/sync/Invoices", "", http.StatusBadRequest, codeUnsupportedTable},
		{"unknown table push", "POST", "/sync/Invoices", "[]", http.StatusBadRequest, codeUnsupportedTable},
		{"bad checkpoint", "GET", "/sync/Categories?lastSyncTime=yesterday", "", http.StatusBadRequest, codeInvalidCheckpoint},
		{"body not an array", "POST", "/sync/Categories", `{"Id":"1"}`, http.StatusBadRequest, codeMalformedRequest},
		{"body not json", "POST", "/sync/Categories", `[{`, http.StatusBadRequest, codeMalformedRequest},
		{"body too large", "POST", "/sync/Categories", "[" + strings.Repeat(" ", 70<<10) + "]", http.StatusRequestEntityTooLarge, codeRequestTooLarge},

		// The table and role gate are checked before any input is parsed.
		{"unknown table bad body", "POST", "/sync/Invoices", `[{`, http.StatusBadRequest, codeUnsupportedTable},
		{"unknown table bad checkpoint", "GET", "/sync/Invoices?lastSyncTime=yesterday", "", http.StatusBadRequest, codeUnsupportedTable},
		{"forbidden bad body", "POST", "/sync/Users", `[{`, http.StatusForbidden, codeForbidden},
		{"forbidden bad checkpoint", "GET", "/sync/Users?lastSyncTime=yesterday", "", http.StatusForbidden, codeForbidden},
		{"forbidden body too large", "POST", "/sync/Roles", "[" + strings.Repeat(" ", 70<<10) + "]", http.StatusForbidden, codeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.target, s.learnerToken, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestTables(t *testing.T) {
	s := setupServer(t, false)

	w := s.do(t, "GET", "/sync/tables", s.learnerToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	tables := decode[[]TableInfo](t, w)
	require.Len(t, tables, 7)
	assert.Equal(t, TableInfo{Name: "Users", RequiredRole: auth.RoleAdmin}, tables[0])
}

func TestParseCheckpoint(t *testing.T) {
	want := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []string{
		"2026-10-01T00:00:00Z",
		"2026-10-01T09:00:00+09:00",
		"2026-10-01T09:00:00 09:00", // "+" decoded as space
		"2026-10-01T00:00:00",
		"2026-10-01T00:00:00.000",
		"2026-10-01",
	}
	for _, raw := range tests {
		got, err := ParseCheckpoint(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(want), "%s -> %v", raw, got)
	}

	_, err := ParseCheckpoint("last tuesday")
	assert.Error(t, err)
}

func TestMonitorWebSocket(t *testing.T) {
	s := setupServer(t, true)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/monitor/ws?access_token=" + s.adminToken
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var welcome monitor.Message
	require.NoError(t, json.Unmarshal(data, &welcome))
	assert.Equal(t, monitor.MessageTypeWelcome, welcome.Type)

	req, err := http.NewRequest("POST", srv.URL+"/sync/Categories",
		bytes.NewReader([]byte(`[
			{"Id":"1","SyncAction":"Create","Data":"{\"Name\":\"A\"}"},
			{"Id":"2","SyncAction":"Create","Timestamp":"not-a-time","Data":"{\"Name\":\"B\"}"}
		]`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.learnerToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	var msg monitor.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, monitor.MessageTypePush, msg.Type)
	var push monitor.PushData
	require.NoError(t, json.Unmarshal(msg.Data, &push))
	assert.Equal(t, 2, push.BatchSize)
	assert.Equal(t, 1, push.Created)
	assert.Equal(t, 1, push.Errors)

	// Learners may not watch.
	learnerURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/monitor/ws?access_token=" + s.learnerToken
	_, resp, err = websocket.Dial(ctx, learnerURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
