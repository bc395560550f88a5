package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"live_learning_backend/internal/auth"
	"live_learning_backend/internal/config"
	"live_learning_backend/internal/content"
	"live_learning_backend/internal/docstore"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/profile"
	"live_learning_backend/internal/session"
	"live_learning_backend/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, identity.Migrate(db))
	require.NoError(t, docstore.Migrate(db))

	log := zap.NewNop()
	cfg := &config.Config{
		GinMode:              gin.TestMode,
		ServerHost:           "127.0.0.1",
		ServerPort:           "0",
		JWTSecretKey:         "test-secret",
		JWTAccessTokenExpiry: time.Hour,
		SessionGuardWait:     time.Second,
		PublicEntryPoint:     "/login",
	}

	docs := docstore.NewGORMStore(db)
	provider := identity.NewLocalProvider(db, identity.NewNotifier(), nil, bcrypt.MinCost, log)
	profiles := profile.NewStore(docs)
	registry := session.NewRegistry(func() *session.Manager {
		return session.NewManager(provider, profiles, log, session.Options{CallTimeout: 5 * time.Second})
	}, time.Minute, log)
	t.Cleanup(registry.Close)

	tokens := auth.NewJWTService(cfg, log)
	blocklist := auth.NewInMemoryBlocklist(auth.InMemoryBlocklistConfig{DefaultExpiration: time.Hour, CleanupInterval: time.Minute})

	srv, err := NewServer(
		cfg, log, registry, tokens, blocklist,
		auth.NewHandler(registry, tokens, blocklist, nil, log),
		user.NewHandler(log),
		content.NewHandler(content.NewService(docs, nil, log), nil, log),
		nil, nil, nil,
	)
	require.NoError(t, err)
	return srv
}

func serve(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	w := serve(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, float64(0), body["sessions"])
	assert.Equal(t, false, body["sharedEvents"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_GuardedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/v1/users/me", "/api/v1/live-sessions", "/api/v1/access/capabilities"} {
		w := serve(t, srv, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestServer_RegisteredViewerFlow(t *testing.T) {
	srv := newTestServer(t)

	w := serve(t, srv, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":            "ada@example.com",
		"password":         "secret1",
		"fullName":         "Ada",
		"subscriptionPlan": "VIEW",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var env struct {
		Data auth.AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Data.Token)
	token := env.Data.Token.AccessToken

	assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, "/api/v1/users/me", token, nil).Code)
	assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, "/api/v1/live-sessions", token, nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, srv, http.MethodPost, "/api/v1/live-sessions", token, gin.H{
		"title":       "Python Masterclass",
		"subject":     "Web Development",
		"description": "Hands-on",
		"date":        "2026-03-12",
		"time":        "17:00",
		"duration":    "1.5 hours",
	}).Code)

	health := serve(t, srv, http.MethodGet, "/health", "", nil)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(health.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["sessions"])
}

func TestServer_ShutdownWithoutJobs(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
