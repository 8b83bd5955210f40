package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaloney/wheelhouse/internal/storage"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "sweep.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SaveResults([]storage.ResultRow{
		{RunID: "r1", Period: "2023", DeltaBand: "moderate", RSIThreshold: 30, TotalReturn: 0.12},
		{RunID: "r1", Period: "2023", DeltaBand: "aggressive", RSIThreshold: 30, TotalReturn: 0.20},
		{RunID: "r1", Period: "2022", DeltaBand: "moderate", RSIThreshold: 40, TotalReturn: -0.05},
	}))

	return NewServer(cfg, store, quietLogger())
}

func get(s *Server, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t, Config{Port: 8080})

	rec := get(s, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGetResults(t *testing.T) {
	s := testServer(t, Config{Port: 8080})

	rec := get(s, "/api/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []ResultView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 3)
}

func TestGetTopResults(t *testing.T) {
	s := testServer(t, Config{Port: 8080})

	rec := get(s, "/api/results/top?n=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []ResultView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "aggressive", views[0].DeltaBand)
	assert.Equal(t, 0.20, views[0].TotalReturn)
}

func TestGetTopResultsRejectsBadN(t *testing.T) {
	s := testServer(t, Config{Port: 8080})

	for _, n := range []string{"abc", "0", "-3"} {
		rec := get(s, "/api/results/top?n="+n, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "n=%s", n)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := testServer(t, Config{Port: 8080, AuthToken: "sekrit"})

	rec := get(s, "/api/results", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(s, "/api/results", map[string]string{"X-Auth-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(s, "/api/results", map[string]string{"X-Auth-Token": "sekrit"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(s, "/api/results?token=sekrit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays reachable for probes with no token.
	rec = get(s, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNoAuthWhenTokenUnset(t *testing.T) {
	s := testServer(t, Config{Port: 8080})
	rec := get(s, "/api/results", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
