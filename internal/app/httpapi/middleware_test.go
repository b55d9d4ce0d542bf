package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/coopenergy/platform/pkg/logger"
)

func TestRecovererWritesEnvelope(t *testing.T) {
	h := &handler{log: logger.NewDefault("test"), now: time.Now}
	panicky := h.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	resp := httptest.NewRecorder()
	panicky.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	body := gjson.ParseBytes(resp.Body.Bytes())
	assert.False(t, body.Get("success").Bool())
	assert.Equal(t, "INTERNAL", body.Get("error.code").String())
	assert.Equal(t, "internal server error", body.Get("error.message").String())
}

func TestRecovererLeavesStartedResponse(t *testing.T) {
	h := &handler{log: logger.NewDefault("test"), now: time.Now}
	partial := h.recoverer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
		panic("late failure")
	}))

	resp := httptest.NewRecorder()
	partial.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `{"success":true}`, resp.Body.String())
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, 5, nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("10.0.0.1")
	now = now.Add(20 * time.Minute)
	rl.getLimiter("10.0.0.2")

	assert.Equal(t, 1, rl.Cleanup(10*time.Minute))
	assert.Equal(t, 1, rl.Len())
}

func TestClientKeyStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:52311"
	assert.Equal(t, "203.0.113.9", clientKey(req))
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientKey(req))
}

func TestAuditTrimAndLimit(t *testing.T) {
	log := NewAuditLog(3, nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		log.add(AuditEntry{Time: base.Add(time.Duration(i) * time.Hour), Method: http.MethodPost})
	}
	require.Len(t, log.list(), 3)
	assert.Len(t, log.listLimit(2), 2)

	removed := log.Trim(base.Add(5*time.Hour), 150*time.Minute)
	assert.Equal(t, 1, removed)
	entries := log.list()
	require.Len(t, entries, 2)
	assert.Equal(t, base.Add(3*time.Hour), entries[0].Time)
}

func TestFileAuditSinkAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileAuditSink(path)
	require.NoError(t, err)

	log := NewAuditLog(10, sink)
	log.add(AuditEntry{Method: http.MethodPost, Path: "/vendors", Status: 201})
	log.add(AuditEntry{Method: http.MethodDelete, Path: "/vendors/1", Status: 200})
	require.NoError(t, sink.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "/vendors/1", gjson.Get(lines[1], "path").String())

	none, err := NewFileAuditSink("")
	require.NoError(t, err)
	assert.Nil(t, none)
}
