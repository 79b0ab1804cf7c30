package flags_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/flagkit/modules/flags"
	"github.com/dmitrymomot/flagkit/pkg/apikey"
	"github.com/dmitrymomot/flagkit/pkg/evalcache"
)

type testApp struct {
	store  *flags.MemoryStorage
	envs   *flags.EnvironmentService
	server *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store := flags.NewMemoryStorage()
	keys := apikey.NewService(store, apikey.WithBcryptCost(bcrypt.MinCost))
	cache := evalcache.NewMemory(evalcache.WithSweepInterval(0))
	t.Cleanup(func() { _ = cache.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := flags.NewService(store, store, cache, flags.WithLogger(log))
	envs := flags.NewEnvironmentService(store, keys)
	handlers := flags.NewHandlers(svc, envs, store, log)

	router := flags.NewRouter(flags.RouterConfig{
		Handlers: handlers,
		Keys:     keys,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{store: store, envs: envs, server: server}
}

func (a *testApp) provision(t *testing.T, flagKeys ...string) (*apikey.Environment, string) {
	t.Helper()

	projectID := uuid.New()
	env, plaintext, err := a.envs.CreateEnvironment(context.Background(), projectID, "Production", "prod")
	require.NoError(t, err)

	for _, key := range flagKeys {
		createTestFlag(t, a.store, projectID, key)
	}
	return env, plaintext
}

func (a *testApp) postJSON(t *testing.T, path, apiKey string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(flags.APIKeyHeader, apiKey)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireDecision struct {
	FlagKey  string `json:"flagKey"`
	UserID   string `json:"userId"`
	Enabled  bool   `json:"enabled"`
	Reason   string `json:"reason"`
	Metadata *struct {
		Percentage int `json:"percentage"`
		Bucket     int `json:"bucket"`
	} `json:"metadata"`
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	_, key := app.provision(t, "dark_mode")

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		resp := app.postJSON(t, "/evaluate", "", map[string]string{"flagKey": "dark_mode", "userId": "u1"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		body := decodeBody[wireError](t, resp)
		assert.Equal(t, "unauthorized", body.Error.Code)
	})

	t.Run("tampered key", func(t *testing.T) {
		t.Parallel()

		resp := app.postJSON(t, "/evaluate", key+"x", map[string]string{"flagKey": "dark_mode", "userId": "u1"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid key", func(t *testing.T) {
		t.Parallel()

		resp := app.postJSON(t, "/evaluate", key, map[string]string{"flagKey": "dark_mode", "userId": "u1"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestEvaluateEndpoint(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	env, key := app.provision(t, "dark_mode")

	t.Run("known flag with default rule", func(t *testing.T) {
		resp := app.postJSON(t, "/evaluate", key, map[string]string{"flagKey": "dark_mode", "userId": "u1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[wireDecision](t, resp)
		assert.Equal(t, "dark_mode", body.FlagKey)
		assert.Equal(t, "u1", body.UserID)
		assert.False(t, body.Enabled)
		assert.Equal(t, "flag_disabled", body.Reason)
		assert.Nil(t, body.Metadata)
	})

	t.Run("unknown flag", func(t *testing.T) {
		resp := app.postJSON(t, "/evaluate", key, map[string]string{"flagKey": "ghost", "userId": "u1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[wireDecision](t, resp)
		assert.False(t, body.Enabled)
		assert.Equal(t, "flag_not_found", body.Reason)
	})

	t.Run("percentage rollout exposes metadata", func(t *testing.T) {
		flag, err := app.store.GetFlagByKey(context.Background(), env.ProjectID, "dark_mode")
		require.NoError(t, err)

		enabled := true
		pct := 100
		_, err = app.store.UpdateRule(context.Background(), flag.ID, env.ID, flags.RuleUpdate{
			Enabled:    &enabled,
			Percentage: &pct,
		})
		require.NoError(t, err)

		// Fresh user so the direct store mutation is not masked by a
		// previously cached decision.
		resp := app.postJSON(t, "/evaluate", key, map[string]string{"flagKey": "dark_mode", "userId": "u-fresh"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[wireDecision](t, resp)
		assert.True(t, body.Enabled)
		assert.Equal(t, "percentage_rollout", body.Reason)
		require.NotNil(t, body.Metadata)
		assert.Equal(t, 100, body.Metadata.Percentage)
		assert.GreaterOrEqual(t, body.Metadata.Bucket, 0)
		assert.Less(t, body.Metadata.Bucket, 100)
	})

	t.Run("missing fields", func(t *testing.T) {
		resp := app.postJSON(t, "/evaluate", key, map[string]string{"flagKey": "dark_mode"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown body field", func(t *testing.T) {
		resp := app.postJSON(t, "/evaluate", key, map[string]string{"flagKey": "dark_mode", "userId": "u1", "extra": "nope"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestEvaluateBatchEndpoint(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	_, key := app.provision(t, "dark_mode", "new_checkout")

	t.Run("mixed results", func(t *testing.T) {
		t.Parallel()

		resp := app.postJSON(t, "/evaluate/batch", key, map[string]any{
			"flagKeys": []string{"dark_mode", "new_checkout", "ghost"},
			"userId":   "u1",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[struct {
			UserID string                  `json:"userId"`
			Flags  map[string]wireDecision `json:"flags"`
		}](t, resp)
		assert.Equal(t, "u1", body.UserID)
		require.Len(t, body.Flags, 3)
		assert.Equal(t, "flag_disabled", body.Flags["dark_mode"].Reason)
		assert.Equal(t, "flag_not_found", body.Flags["ghost"].Reason)
	})

	t.Run("oversized batch", func(t *testing.T) {
		t.Parallel()

		keys := make([]string, flags.MaxBatchSize+1)
		for i := range keys {
			keys[i] = fmt.Sprintf("flag_%d", i)
		}
		resp := app.postJSON(t, "/evaluate/batch", key, map[string]any{"flagKeys": keys, "userId": "u1"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeBody[wireError](t, resp)
		assert.Equal(t, "invalid_request", body.Error.Code)
	})
}

func TestManagementEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("create environment returns plaintext key once", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		resp := app.postJSON(t, "/environments", "", map[string]any{
			"projectId": uuid.New(),
			"name":      "Staging",
			"key":       "staging",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody[struct {
			Environment struct {
				ID  uuid.UUID `json:"id"`
				Key string    `json:"key"`
			} `json:"environment"`
			APIKey string `json:"apiKey"`
		}](t, resp)
		assert.Equal(t, "staging", body.Environment.Key)
		assert.Regexp(t, `^ffk_staging_[0-9a-f]{32}$`, body.APIKey)

		// The stored record never exposes the plaintext or its hash.
		stored, err := app.store.GetEnvironmentByID(context.Background(), body.Environment.ID)
		require.NoError(t, err)
		raw, err := json.Marshal(stored)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), body.APIKey)
		assert.NotContains(t, string(raw), "keyHash")
	})

	t.Run("rejects invalid environment key", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		resp := app.postJSON(t, "/environments", "", map[string]any{
			"projectId": uuid.New(),
			"name":      "Bad",
			"key":       "Not Valid!",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rotate key invalidates the old one", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		env, oldKey := app.provision(t, "dark_mode")

		resp := app.postJSON(t, "/environments/"+env.ID.String()+"/rotate-key", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[struct {
			APIKey string `json:"apiKey"`
		}](t, resp)
		require.NotEmpty(t, body.APIKey)
		assert.NotEqual(t, oldKey, body.APIKey)

		evalReq := map[string]string{"flagKey": "dark_mode", "userId": "u1"}
		assert.Equal(t, http.StatusUnauthorized, app.postJSON(t, "/evaluate", oldKey, evalReq).StatusCode)
		assert.Equal(t, http.StatusOK, app.postJSON(t, "/evaluate", body.APIKey, evalReq).StatusCode)
	})

	t.Run("rotate key for unknown environment", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		resp := app.postJSON(t, "/environments/"+uuid.NewString()+"/rotate-key", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("update rule through the api invalidates cached decisions", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		env, key := app.provision(t, "dark_mode")

		evalReq := map[string]string{"flagKey": "dark_mode", "userId": "u1"}
		before := decodeBody[wireDecision](t, app.postJSON(t, "/evaluate", key, evalReq))
		assert.False(t, before.Enabled)

		flag, err := app.store.GetFlagByKey(context.Background(), env.ProjectID, "dark_mode")
		require.NoError(t, err)

		rulePath := fmt.Sprintf("/flags/%s/environments/%s/rule", flag.ID, env.ID)
		payload, err := json.Marshal(map[string]any{"enabled": true, "percentage": 100})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPut, app.server.URL+rulePath, bytes.NewReader(payload))
		require.NoError(t, err)
		resp, err := app.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		after := decodeBody[wireDecision](t, app.postJSON(t, "/evaluate", key, evalReq))
		assert.True(t, after.Enabled)
	})

	t.Run("update rule rejects bad percentage", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		env, _ := app.provision(t, "dark_mode")
		flag, err := app.store.GetFlagByKey(context.Background(), env.ProjectID, "dark_mode")
		require.NoError(t, err)

		rulePath := fmt.Sprintf("/flags/%s/environments/%s/rule", flag.ID, env.ID)
		payload := []byte(`{"percentage": 150}`)
		req, err := http.NewRequest(http.MethodPut, app.server.URL+rulePath, bytes.NewReader(payload))
		require.NoError(t, err)
		resp, err := app.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("create flag validates key format", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		resp := app.postJSON(t, "/flags", "", map[string]any{
			"projectId": uuid.New(),
			"key":       "Not A Key",
			"name":      "Bad",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("delete environment", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		env, key := app.provision(t, "dark_mode")

		req, err := http.NewRequest(http.MethodDelete, app.server.URL+"/environments/"+env.ID.String(), nil)
		require.NoError(t, err)
		resp, err := app.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		evalReq := map[string]string{"flagKey": "dark_mode", "userId": "u1"}
		assert.Equal(t, http.StatusUnauthorized, app.postJSON(t, "/evaluate", key, evalReq).StatusCode)
	})
}
