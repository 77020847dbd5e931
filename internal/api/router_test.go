package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsentry/backend/internal/api/handlers"
	"github.com/docsentry/backend/internal/ops"
	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage/factory"
	"github.com/docsentry/backend/pkg/config"
)

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	storageMgr, err := factory.NewManager(context.Background(),
		settings.StorageSettings{Backend: settings.BackendSQLite}, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { storageMgr.Close() })

	cfg := &config.Config{
		Storage:   config.StorageConfig{Backend: settings.BackendSQLite},
		Threading: config.ThreadingConfig{Enabled: false, MaxWorkers: 1, BatchSize: 10},
	}
	storageSettings := settings.NewStorageStore(cfg)
	similarity := settings.NewSimilarityStore(config.SimilarityConfig{})
	ignore := settings.NewIgnoreStore(nil)

	opsMgr := ops.NewManager(storageMgr, ops.NewProgressStore(), similarity, storageSettings, ignore)
	h := handlers.New(opsMgr, storageMgr, similarity, storageSettings, ignore)
	return &testApp{app: NewApp(h, config.ServerConfig{BodyLimit: 1 << 20})}
}

type testApp struct {
	app *fiber.App
}

func (f *testApp) request(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestRootEndpoint(t *testing.T) {
	app := newTestApp(t)
	resp, body := app.request(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "docsentry", body["service"])
}

func TestStatsEmpty(t *testing.T) {
	app := newTestApp(t)
	resp, body := app.request(t, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["indexed_files"])
	assert.Equal(t, "sqlite", body["storage_backend"])
}

func TestIndexRejectsBadRequests(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.request(t, http.MethodPost, "/index", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := app.request(t, http.MethodPost, "/index", `{"directory_path": "/definitely/not/here"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "path not found")
}

func TestIndexAccepted(t *testing.T) {
	app := newTestApp(t)
	dir := t.TempDir()

	resp, body := app.request(t, http.MethodPost, "/index", `{"directory_path": "`+dir+`"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["task_id"])

	taskID, _ := body["task_id"].(string)
	resp, _ = app.request(t, http.MethodGet, "/index/"+taskID+"/progress", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProgressUnknownOperation(t *testing.T) {
	app := newTestApp(t)
	resp, _ := app.request(t, http.MethodGet, "/index/no-such-id/progress", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSimilarityConfigRoundTrip(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.request(t, http.MethodGet, "/config/similarity", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "medium", body["sensitivity_level"])

	resp, body = app.request(t, http.MethodPut, "/config/similarity", `{"similarity_threshold": 0.7}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "custom", body["sensitivity_level"])
	assert.Equal(t, 0.7, body["similarity_threshold"])

	// Invalid ordering is rejected and leaves the active config untouched.
	resp, _ = app.request(t, http.MethodPut, "/config/similarity", `{"similarity_threshold": 0.99}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = app.request(t, http.MethodGet, "/config/similarity", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.7, body["similarity_threshold"])

	resp, body = app.request(t, http.MethodPost, "/config/similarity/preset/high", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "high", body["sensitivity_level"])

	resp, _ = app.request(t, http.MethodPost, "/config/similarity/preset/bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = app.request(t, http.MethodPost, "/config/similarity/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "medium", body["sensitivity_level"])
}

func TestThreadingConfig(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.request(t, http.MethodPut, "/config/threading", `{"enabled": true, "max_workers": 8, "batch_size": 25}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(8), body["max_workers"])

	resp, _ = app.request(t, http.MethodPut, "/config/threading", `{"enabled": true, "max_workers": 0, "batch_size": 25}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIgnoredFilesEndpoints(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.request(t, http.MethodPost, "/config/ignored-files/add", `{"pattern": "*.tmp"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := app.request(t, http.MethodGet, "/config/ignored-files", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{"*.tmp"}, body["patterns"])

	resp, _ = app.request(t, http.MethodPost, "/config/ignored-files/add", `{"pattern": "[bad"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = app.request(t, http.MethodDelete, "/config/ignored-files/remove", `{"pattern": "*.tmp"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["removed"])

	resp, body = app.request(t, http.MethodPost, "/config/ignored-files/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["patterns"])
}

func TestStorageConfigHidesPassword(t *testing.T) {
	app := newTestApp(t)
	resp, body := app.request(t, http.MethodGet, "/config/storage", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sqlite", body["backend"])

	redisCfg, ok := body["redis_config"].(map[string]interface{})
	require.True(t, ok)
	_, hasPassword := redisCfg["password"]
	assert.False(t, hasPassword)
}

func TestStorageHealth(t *testing.T) {
	app := newTestApp(t)
	resp, body := app.request(t, http.MethodGet, "/config/storage/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["healthy"])
}

func TestIndexedFilesEmpty(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.request(t, http.MethodGet, "/indexed-files", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["count"])

	resp, body = app.request(t, http.MethodDelete, "/indexed-files", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["deleted"])
}
