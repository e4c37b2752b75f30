package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/constants"
	"github.com/teakspice/shopdb/internal/models"
	"github.com/teakspice/shopdb/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "release"},
		Database: config.DatabaseConfig{
			Driver:  models.DriverSQLite,
			DSN:     filepath.Join(t.TempDir(), "router.db"),
			Migrate: true,
			Pool:    models.DBPoolConfig{MaxOpenConns: 1},
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	c, err := provider.NewContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return SetupRouter(cfg, c)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) envelope {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestRouterDispatch(t *testing.T) {
	r := newTestEngine(t)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/users/create",
		`{"data":{"userName":"ines","userEmail":"ines@example.com"}}`)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/users/findMany",
		`{"where":{"userEmail":{"endsWith":"@example.com"}},"select":{"userName":true}}`)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.JSONEq(t, `[{"userName":"ines"}]`, string(resp.Data))

	resp = doJSON(t, r, http.MethodPost, "/api/v1/users/count", ``)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.Equal(t, "1", string(resp.Data))
}

func TestRouterDispatchErrors(t *testing.T) {
	r := newTestEngine(t)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/users/findMany", `{"limit":3}`)
	assert.Equal(t, 400, resp.StatusCode)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/wishlist/findMany", `{}`)
	assert.Equal(t, 400, resp.StatusCode)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/users/findUniqueOrThrow", `{"where":{"userId":99}}`)
	assert.Equal(t, 404, resp.StatusCode)

	body := `{"data":{"userName":"ines","userEmail":"dup@example.com"}}`
	resp = doJSON(t, r, http.MethodPost, "/api/v1/users/create", body)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	resp = doJSON(t, r, http.MethodPost, "/api/v1/users/create", body)
	assert.Equal(t, 409, resp.StatusCode)
	var data struct {
		Code      string                 `json:"code"`
		Model     string                 `json:"model"`
		Meta      map[string]interface{} `json:"meta"`
		RequestID string                 `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "P2002", data.Code)
	assert.Equal(t, []interface{}{"userEmail"}, data.Meta["target"])
	assert.NotEmpty(t, data.RequestID)
}

func TestRouterBodyTooLarge(t *testing.T) {
	r := newTestEngine(t)
	big := `{"where":{"userName":"` + strings.Repeat("x", constants.MaxProxyBodyBytes) + `"}}`
	resp := doJSON(t, r, http.MethodPost, "/api/v1/users/findMany", big)
	assert.Equal(t, 413, resp.StatusCode)
}

func TestRouterBatch(t *testing.T) {
	r := newTestEngine(t)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/$transaction", `{"operations":[
		{"model":"category","action":"create","args":{"data":{"categoryName":"Tools"}}},
		{"model":"category","action":"count"}
	]}`)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var results []json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	require.Len(t, results, 2)
	assert.Equal(t, "1", string(results[1]))

	resp = doJSON(t, r, http.MethodPost, "/api/v1/$transaction", `{"operations":[]}`)
	assert.Equal(t, 400, resp.StatusCode)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/$transaction", `{"ops":[]}`)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestRouterModelsAndHealth(t *testing.T) {
	r := newTestEngine(t)

	resp := doJSON(t, r, http.MethodGet, "/api/v1/models", ``)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	var summaries []struct {
		Name      string   `json:"name"`
		Relations []string `json:"relations"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &summaries))
	assert.Len(t, summaries, len(models.All()))

	resp = doJSON(t, r, http.MethodGet, "/healthz", ``)
	require.Equal(t, 0, resp.StatusCode, resp.Msg)
	assert.JSONEq(t, `{"status":"ok","driver":"sqlite"}`, string(resp.Data))

	resp = doJSON(t, r, http.MethodGet, "/nope", ``)
	assert.Equal(t, 404, resp.StatusCode)
}
