package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/mikrotik/mikrotiktest"
	"github.com/ispanel/backend/internal/middleware"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/services"
	"github.com/ispanel/backend/internal/store"
)

type testEnv struct {
	app    *fiber.App
	store  *store.MemoryStore
	router *mikrotiktest.Router
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	st := store.NewMemoryStore()
	router := mikrotiktest.New()
	ctx := context.Background()

	auth := services.NewAuthService(st, log)
	_, err := auth.SeedAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	tokens := middleware.NewTokenIssuer("handler-test-secret", 1)

	usage := services.NewUsageTracker(st, router, log)
	subs := services.NewSubscriberService(st, router, usage, services.RenewPolicy{
		Period:       30 * 24 * time.Hour,
		PollAttempts: 2,
		PollDelay:    time.Millisecond,
	}, log)

	h := &Handlers{
		Auth:        NewAuthHandler(auth, tokens, log),
		Subscribers: NewSubscriberHandler(subs, st, log),
		Reconcile: NewReconcileHandler(
			services.NewSubscriberSync(st, router, log),
			services.NewQuotaEnforcer(st, router, time.Minute, log),
			log),
		PPPoE:     NewPPPoEHandler(services.NewPPPoEService(router), log),
		Dashboard: NewDashboardHandler(services.NewDashboardService(st, router, log), services.NewRouterStatusService(router, nil, 0, log), log),
		Packages:  NewPackageHandler(services.NewPackageService(st, router, log), log),
		Settings:  NewSettingsHandler(services.NewSettingsService(st, nil, log), log),
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	Register(app, h, middleware.AuthRequired(tokens, st), log)

	admin, err := st.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	token, _, err := tokens.GenerateToken(admin)
	require.NoError(t, err)

	return &testEnv{app: app, store: st, router: router, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, Response) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	status, resp := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.False(t, resp.Success)

	status, resp = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, fiber.StatusOK, status)
	data := resp.Data.(map[string]interface{})
	env.token = data["token"].(string)

	status, resp = env.do(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "admin", resp.Data.(map[string]interface{})["username"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""
	status, _ := env.do(t, http.MethodGet, "/api/users", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestSubscriberLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.do(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "alice", "password": "pw", "package": "10M", "data_limit_gb": 1,
	})
	require.Equal(t, fiber.StatusCreated, status, resp.Message)
	assert.Empty(t, resp.Warning)
	id := uint(resp.Data.(map[string]interface{})["id"].(float64))
	path := fmt.Sprintf("/api/users/%d", id)
	_, ok := env.router.Secret("alice")
	assert.True(t, ok)

	status, _ = env.do(t, http.MethodPost, "/api/users", map[string]interface{}{"username": "alice", "password": "pw"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, resp = env.do(t, http.MethodPost, path+"/disable", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["disabled"])

	env.router.SetDown(true)
	status, resp = env.do(t, http.MethodPost, path+"/enable", nil)
	assert.Equal(t, fiber.StatusOK, status, "store change commits even when the router is down")
	assert.Contains(t, resp.Warning, "router out of sync")
	env.router.SetDown(false)

	status, _ = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, fiber.StatusOK, status)
	_, err := env.store.Get(context.Background(), id)
	assert.True(t, store.IsNotFound(err))

	status, _ = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestSubscriberValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.do(t, http.MethodPost, "/api/users", map[string]interface{}{"password": "pw"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, resp.Message, "username")

	status, _ = env.do(t, http.MethodPost, "/api/users/abc/renew", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestSyncAndQuotaCheck(t *testing.T) {
	env := newTestEnv(t)
	env.router.PutSecret(mikrotik.Secret{Name: "bob", Profile: "20M"})

	status, resp := env.do(t, http.MethodGet, "/api/sync", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["created"])

	bob, err := env.store.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	limit, used := uint64(10), uint64(10)
	_, err = env.store.Update(context.Background(), bob.ID, &models.SubscriberPatch{DataLimitBytes: &limit, UsedBytesTotal: &used})
	require.NoError(t, err)

	status, resp = env.do(t, http.MethodPost, "/api/quotas/check", nil)
	require.Equal(t, fiber.StatusOK, status)
	disabled := resp.Data.(map[string]interface{})["disabled"].([]interface{})
	assert.Len(t, disabled, 1)
	assert.Empty(t, resp.Warning, "router disable succeeded")

	env.router.PutSecret(mikrotik.Secret{Name: "carol", Profile: "10M"})
	carol := models.Subscriber{Username: "carol", DataLimitBytes: 5, UsedBytesTotal: 5}
	require.NoError(t, env.store.Create(context.Background(), &carol))
	env.router.FailOn("SetSecret", nil)

	status, resp = env.do(t, http.MethodPost, "/api/quotas/check", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, resp.Warning, "carol: ")
	assert.True(t, resp.Success)

	env.router.NotConfigured = true
	status, resp = env.do(t, http.MethodGet, "/api/sync", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "Router is not configured", resp.Message)
}

func TestRouterOnlyEndpointsMapUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.router.SetDown(true)

	status, _ := env.do(t, http.MethodGet, "/api/pppoe/active", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	status, resp := env.do(t, http.MethodGet, "/api/network/router-status", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["online"])

	status, resp = env.do(t, http.MethodGet, "/api/dashboard/user-stats", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, resp.Warning)
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodPut, "/api/settings", map[string]interface{}{
		"mikrotik_host": "10.0.0.1", "mikrotik_user": "api", "mikrotik_password": "secret",
	})
	require.Equal(t, fiber.StatusOK, status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["has_router_password"])
	_, leaked := data["mikrotik_password"]
	assert.False(t, leaked)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ispanel_router_connect_errors_total")
}
