package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	app "github.com/coopenergy/platform/internal/app"
	"github.com/coopenergy/platform/internal/app/domain/vendor"
	"github.com/coopenergy/platform/internal/app/storage/memory"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func newClient(t *testing.T, stores app.Stores, opts Options) *apiClient {
	t.Helper()
	application, err := app.New(stores, nil)
	require.NoError(t, err)
	return &apiClient{t: t, handler: NewHandler(application, opts)}
}

func (c *apiClient) do(method, path string, body interface{}) (int, gjson.Result) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	c.handler.ServeHTTP(resp, req)
	return resp.Code, gjson.ParseBytes(resp.Body.Bytes())
}

// seed creates a cooperative with n plants and returns their ids.
func (c *apiClient) seed(code string, n int) (string, []string) {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/cooperatives", map[string]any{"name": "Coop " + code, "code": code})
	require.Equal(c.t, http.StatusCreated, status, body.Raw)
	coopID := body.Get("data.id").String()

	plants := make([]string, 0, n)
	for i := 0; i < n; i++ {
		status, body = c.do(http.MethodPost, "/cooperatives/"+coopID+"/plants", map[string]any{"name": "plant", "capacity_kw": 120.5})
		require.Equal(c.t, http.StatusCreated, status, body.Raw)
		plants = append(plants, body.Get("data.id").String())
	}
	return coopID, plants
}

func TestPlantConfigDefaultFlow(t *testing.T) {
	c := newClient(t, app.Stores{}, Options{})
	coopID, plants := c.seed("SUN", 2)

	status, body := c.do(http.MethodPost, "/plant-configs", map[string]any{
		"cooperative_id": coopID,
		"plant_id":       plants[0],
		"name":           "summer",
		"settings":       map[string]any{"export_limit_kw": 40},
		"default":        true,
	})
	require.Equal(t, http.StatusCreated, status, body.Raw)
	assert.True(t, body.Get("success").Bool())
	assert.True(t, body.Get("data.is_default").Bool())
	assert.True(t, body.Get("data.is_active").Bool())
	first := body.Get("data.id").String()

	status, body = c.do(http.MethodPost, "/plant-configs", map[string]any{
		"cooperative_id": coopID,
		"plant_id":       plants[1],
		"name":           "winter",
	})
	require.Equal(t, http.StatusCreated, status, body.Raw)
	second := body.Get("data.id").String()
	assert.False(t, body.Get("data.is_default").Bool())

	status, body = c.do(http.MethodPost, "/plant-configs/"+second+"/set-as-default", nil)
	require.Equal(t, http.StatusOK, status, body.Raw)
	assert.True(t, body.Get("data.is_default").Bool())
	assert.Equal(t, "plant config set as default", body.Get("message").String())

	_, body = c.do(http.MethodGet, "/plant-configs/"+first, nil)
	assert.False(t, body.Get("data.is_default").Bool())

	status, body = c.do(http.MethodGet, "/plant-configs/get-default/"+coopID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, second, body.Get("data.id").String())

	status, body = c.do(http.MethodPost, "/plant-configs/"+second+"/toggle-active", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Get("success").Bool())
	assert.Equal(t, "PROTECTED_STATE", body.Get("error.code").String())

	status, _ = c.do(http.MethodPost, "/plant-configs/"+second+"/remove-default", nil)
	require.Equal(t, http.StatusOK, status)
	status, body = c.do(http.MethodGet, "/plant-configs/get-default/"+coopID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body.Get("error.code").String())

	status, body = c.do(http.MethodGet, "/plant-configs/statistics?cooperative_id="+coopID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body.Get("data.total").Int())
	assert.False(t, body.Get("data.has_default").Bool())

	status, body = c.do(http.MethodGet, "/plant-configs?cooperative_id="+coopID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body.Get("data").Array(), 2)
}

func TestCreateErrorsMapToStatus(t *testing.T) {
	c := newClient(t, app.Stores{}, Options{})
	coopID, plants := c.seed("ERR", 1)
	valid := map[string]any{"cooperative_id": coopID, "plant_id": plants[0], "name": "base"}

	status, _ := c.do(http.MethodPost, "/plant-configs", valid)
	require.Equal(t, http.StatusCreated, status)

	status, body := c.do(http.MethodPost, "/plant-configs", valid)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body.Get("error.code").String())

	status, body = c.do(http.MethodPost, "/plant-configs", map[string]any{"cooperative_id": coopID, "plant_id": plants[0]})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_ERROR", body.Get("error.code").String())
	assert.True(t, body.Get("error.details.fields").IsArray())

	status, body = c.do(http.MethodPost, "/plant-configs", map[string]any{"cooperative_id": "missing", "plant_id": plants[0], "name": "x"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body.Get("error.code").String())

	status, body = c.do(http.MethodPost, "/plant-configs", map[string]any{"cooperative_id": coopID, "surprise": true})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", body.Get("error.code").String())

	status, body = c.do(http.MethodGet, "/plant-configs/statistics", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status, body.Raw)

	status, _ = c.do(http.MethodPost, "/plant-configs/nope/set-as-default", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPlantGroupRoutes(t *testing.T) {
	c := newClient(t, app.Stores{}, Options{})
	coopID, _ := c.seed("GRP", 0)

	status, body := c.do(http.MethodPost, "/plant-groups", map[string]any{"cooperative_id": coopID, "name": "North", "is_default": true})
	require.Equal(t, http.StatusCreated, status, body.Raw)
	north := body.Get("data.id").String()

	status, body = c.do(http.MethodPut, "/plant-groups/"+north, map[string]any{"description": "hillside"})
	require.Equal(t, http.StatusOK, status, body.Raw)
	assert.Equal(t, "North", body.Get("data.name").String())
	assert.True(t, body.Get("data.is_default").Bool())

	status, _ = c.do(http.MethodDelete, "/plant-groups/"+north, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/plant-groups/get-default/"+coopID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = c.do(http.MethodPost, "/plant-groups", map[string]any{"cooperative_id": coopID, "name": "north"})
	assert.Equal(t, http.StatusCreated, status, "a deleted group frees its name")
}

func TestVendorPreferredRules(t *testing.T) {
	c := newClient(t, app.Stores{}, Options{})

	status, body := c.do(http.MethodPost, "/vendors", map[string]any{
		"category": "inverters", "registration_number": "R-1", "name": "Volt", "preferred": true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body.Get("error.message").String(), "is_verified")

	status, body = c.do(http.MethodPost, "/vendors", map[string]any{
		"category": "inverters", "registration_number": "R-1", "name": "Volt",
	})
	require.Equal(t, http.StatusCreated, status, body.Raw)
	id := body.Get("data.id").String()

	status, body = c.do(http.MethodPost, "/vendors/"+id+"/set-as-preferred", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "PROTECTED_STATE", body.Get("error.code").String())

	status, _ = c.do(http.MethodPost, "/vendors/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, status)
	status, body = c.do(http.MethodPost, "/vendors/"+id+"/set-as-default", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Get("data.is_preferred").Bool())

	status, body = c.do(http.MethodPost, "/vendors/"+id+"/unverify", nil)
	assert.Equal(t, http.StatusBadRequest, status, body.Raw)

	status, body = c.do(http.MethodGet, "/vendors/get-default/inverters", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body.Get("data.id").String())

	status, body = c.do(http.MethodPost, "/vendors/"+id+"/remove-preferred", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, body.Get("data.is_preferred").Bool())
}

type brokenVendors struct {
	*memory.Store
}

func (brokenVendors) ListVendors(context.Context, string) ([]vendor.Vendor, error) {
	return nil, stderrors.New("connection reset by peer")
}

func TestInternalErrorsHiddenUnlessDebug(t *testing.T) {
	stores := app.Stores{Vendors: brokenVendors{memory.New()}}

	c := newClient(t, stores, Options{})
	status, body := c.do(http.MethodGet, "/vendors?category=inverters", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", body.Get("error.code").String())
	assert.NotContains(t, body.Get("error.message").String(), "connection reset")

	c = newClient(t, stores, Options{Debug: true})
	_, body = c.do(http.MethodGet, "/vendors?category=inverters", nil)
	assert.Contains(t, body.Get("error.message").String(), "connection reset")
}

func TestAuditRecordsWrites(t *testing.T) {
	audit := NewAuditLog(10, nil)
	c := newClient(t, app.Stores{}, Options{Audit: audit})
	coopID, _ := c.seed("AUD", 1)

	c.do(http.MethodGet, "/cooperatives/"+coopID, nil)
	status, body := c.do(http.MethodGet, "/audit?limit=5", nil)
	require.Equal(t, http.StatusOK, status)

	entries := body.Get("data").Array()
	require.Len(t, entries, 2)
	assert.Equal(t, http.MethodPost, entries[0].Get("method").String())
	assert.Equal(t, "/cooperatives", entries[0].Get("path").String())
	assert.Equal(t, "/cooperatives/{id}/plants", entries[1].Get("route").String())
	assert.Equal(t, coopID, entries[1].Get("resource_id").String())
	assert.EqualValues(t, http.StatusCreated, entries[1].Get("status").Int())
	assert.NotEmpty(t, entries[1].Get("request_id").String())
}

func TestRateLimiterRejects(t *testing.T) {
	limiter := NewRateLimiter(1, 1, nil)
	c := newClient(t, app.Stores{}, Options{Limiter: limiter})

	status, _ := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, status)
	status, body := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Get("error.code").String())
	assert.Equal(t, 1, limiter.Len())
}

func TestHealthReportsStoreFailure(t *testing.T) {
	c := newClient(t, app.Stores{}, Options{Ready: func(context.Context) error { return stderrors.New("db down") }})
	status, body := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "UNAVAILABLE", body.Get("error.code").String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	c := newClient(t, app.Stores{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp := httptest.NewRecorder()
	c.handler.ServeHTTP(resp, req)
	assert.Equal(t, "abc-123", resp.Header().Get(requestIDHeader))

	resp = httptest.NewRecorder()
	c.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Len(t, resp.Header().Get(requestIDHeader), 36)
}
