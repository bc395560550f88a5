package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/auth"
	"live_learning_backend/internal/config"
	"live_learning_backend/internal/docstore"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/middleware"
	"live_learning_backend/internal/profile"
	"live_learning_backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubVerifier map[string]*identity.FederatedClaims

func (s stubVerifier) Verify(ctx context.Context, raw string) (*identity.FederatedClaims, error) {
	c, ok := s[raw]
	if !ok {
		return nil, identity.ErrInvalidCredential
	}
	return c, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
	Data    json.RawMessage `json:"data"`
}

type AuthHandlerTestSuite struct {
	suite.Suite
	router    *gin.Engine
	registry  *session.Registry
	profiles  *profile.Store
	provider  *identity.LocalProvider
	blocklist *auth.InMemoryBlocklist
}

func (s *AuthHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	s.Require().NoError(err)
	s.Require().NoError(identity.Migrate(db))
	s.Require().NoError(docstore.Migrate(db))

	log := zap.NewNop()
	verifier := stubVerifier{
		"google-ok": {Subject: "g-1", Email: "g@example.com", EmailVerified: true, Name: "Gee"},
	}
	s.provider = identity.NewLocalProvider(db, identity.NewNotifier(), verifier, bcrypt.MinCost, log)
	s.profiles = profile.NewStore(docstore.NewGORMStore(db))
	s.registry = session.NewRegistry(func() *session.Manager {
		return session.NewManager(s.provider, s.profiles, log, session.Options{CallTimeout: 5 * time.Second})
	}, time.Minute, log)
	s.T().Cleanup(s.registry.Close)

	tokens := auth.NewJWTService(&config.Config{JWTSecretKey: "test-secret", JWTAccessTokenExpiry: time.Hour}, log)
	s.blocklist = auth.NewInMemoryBlocklist(auth.InMemoryBlocklistConfig{DefaultExpiration: time.Hour, CleanupInterval: time.Minute})

	s.router = gin.New()
	api := s.router.Group("/api/v1")
	handler := auth.NewHandler(s.registry, tokens, s.blocklist, nil, log)
	handler.RegisterRoutes(api, middleware.TokenMiddleware(tokens, s.blocklist, log))
}

func TestAuthHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerTestSuite))
}

func (s *AuthHandlerTestSuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (s *AuthHandlerTestSuite) authData(env envelope) auth.AuthResponse {
	var out auth.AuthResponse
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	return out
}

func (s *AuthHandlerTestSuite) register(email, plan string) auth.AuthResponse {
	w, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":            email,
		"password":         "secret1",
		"fullName":         "Ada",
		"subscriptionPlan": plan,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return s.authData(env)
}

func (s *AuthHandlerTestSuite) TestRegister_CreatesReadySession() {
	resp := s.register("ada@example.com", "TALK")

	s.Equal(access.RoleTalk, resp.Profile.Role)
	s.Equal(access.RoleTalk, resp.Profile.SubscriptionPlan)
	s.Equal("Ada", resp.Profile.FullName)
	s.Equal(session.StateReady, resp.Session.State)
	s.True(resp.Session.Capabilities[access.CapTalk])
	s.False(resp.Session.Capabilities[access.CapCreateContent])
	s.NotEmpty(resp.Token.AccessToken)

	stored, err := s.profiles.Get(context.Background(), resp.Profile.ID)
	s.Require().NoError(err)
	s.Equal("ada@example.com", stored.Email)
	s.Equal(1, s.registry.Len())
}

func (s *AuthHandlerTestSuite) TestRegister_RejectsShortPassword() {
	w, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":            "ada@example.com",
		"password":         "123",
		"subscriptionPlan": "VIEW",
	})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("VALIDATION_ERROR", env.Code)
	s.Equal(0, s.registry.Len())
}

func (s *AuthHandlerTestSuite) TestRegister_RejectsUnknownPlan() {
	w, _ := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":            "ada@example.com",
		"password":         "secret1",
		"subscriptionPlan": "ADMIN",
	})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (s *AuthHandlerTestSuite) TestRegister_DuplicateEmail() {
	s.register("ada@example.com", "VIEW")
	w, env := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":            "ada@example.com",
		"password":         "secret1",
		"subscriptionPlan": "VIEW",
	})
	s.Equal(http.StatusBadGateway, w.Code)
	s.Equal("REGISTRATION_ERROR", env.Code)
}

func (s *AuthHandlerTestSuite) TestLogin_Reasons() {
	s.register("ada@example.com", "VIEW")

	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "nobody@example.com", "password": "secret1"})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.JSONEq(`{"reason":"no_such_account"}`, string(env.Details))

	w, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong-pass"})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.JSONEq(`{"reason":"wrong_credential"}`, string(env.Details))
}

func (s *AuthHandlerTestSuite) TestLogin_Succeeds() {
	s.register("ada@example.com", "CREATE")

	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ada@example.com", "password": "secret1"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	resp := s.authData(env)
	s.Equal(access.RoleCreate, resp.Profile.Role)
	s.True(resp.Session.Capabilities[access.CapCreateContent])
}

func (s *AuthHandlerTestSuite) TestLogin_ProfileMissing() {
	_, err := s.provider.CreateAccount(context.Background(), "orphan@example.com", "secret1")
	s.Require().NoError(err)

	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "orphan@example.com", "password": "secret1"})
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("PROFILE_MISSING", env.Code)
	s.Equal(0, s.registry.Len())
}

func (s *AuthHandlerTestSuite) TestGoogleLogin_CreatesViewProfile() {
	w, env := s.do(http.MethodPost, "/api/v1/auth/google", "", gin.H{"credential": "google-ok"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	resp := s.authData(env)
	s.Equal(access.RoleView, resp.Profile.Role)
	s.Equal("Gee", resp.Profile.FullName)
	s.Equal("g@example.com", resp.Profile.Email)

	w, env = s.do(http.MethodPost, "/api/v1/auth/google", "", gin.H{"credential": "google-ok"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(resp.Profile.ID, s.authData(env).Profile.ID)
}

func (s *AuthHandlerTestSuite) TestGoogleLogin_RejectedCredential() {
	w, _ := s.do(http.MethodPost, "/api/v1/auth/google", "", gin.H{"credential": "forged"})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *AuthHandlerTestSuite) TestGoogleRedirectFlowDisabled() {
	w, _ := s.do(http.MethodGet, "/api/v1/auth/google/login", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *AuthHandlerTestSuite) TestSession_RequiresToken() {
	w, _ := s.do(http.MethodGet, "/api/v1/auth/session", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/auth/session", "not-a-jwt", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *AuthHandlerTestSuite) TestSession_ReturnsSnapshot() {
	resp := s.register("ada@example.com", "TALK")

	w, env := s.do(http.MethodGet, "/api/v1/auth/session", resp.Token.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var snap auth.SessionResponse
	s.Require().NoError(json.Unmarshal(env.Data, &snap))
	s.Equal(resp.Session.SessionID, snap.SessionID)
	s.Equal(session.StateReady, snap.State)
	s.Equal(resp.Profile.ID, snap.Profile.ID)
}

func (s *AuthHandlerTestSuite) TestSession_RestoredAfterEviction() {
	resp := s.register("ada@example.com", "TALK")
	s.registry.Remove(resp.Session.SessionID)

	w, env := s.do(http.MethodGet, "/api/v1/auth/session", resp.Token.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var snap auth.SessionResponse
	s.Require().NoError(json.Unmarshal(env.Data, &snap))
	s.Equal(session.StateReady, snap.State)
	s.Equal(access.RoleTalk, snap.Profile.Role)
}

func (s *AuthHandlerTestSuite) TestLogout_RevokesToken() {
	resp := s.register("ada@example.com", "VIEW")
	token := resp.Token.AccessToken

	w, _ := s.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(0, s.registry.Len())

	w, env := s.do(http.MethodGet, "/api/v1/auth/session", token, nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("UNAUTHORIZED", env.Code)
}

func (s *AuthHandlerTestSuite) TestLogout_VoidsOtherDevicesAfterEviction() {
	first := s.register("ada@example.com", "VIEW")

	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ada@example.com", "password": "secret1"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	second := s.authData(env)

	time.Sleep(5 * time.Millisecond)
	w, _ = s.do(http.MethodPost, "/api/v1/auth/logout", first.Token.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	// The second device's session leaves memory while its token is still valid.
	s.registry.Remove(second.Session.SessionID)

	w, env = s.do(http.MethodGet, "/api/v1/auth/session", second.Token.AccessToken, nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("UNAUTHORIZED", env.Code)
	s.Equal(0, s.registry.Len())
}

func (s *AuthHandlerTestSuite) TestClearSessionError() {
	resp := s.register("ada@example.com", "VIEW")
	m, ok := s.registry.Get(resp.Session.SessionID)
	s.Require().True(ok)

	_, err := m.LoginWithEmail(context.Background(), "ada@example.com", "wrong-pass")
	s.Require().Error(err)
	s.NotNil(m.Snapshot().Error)

	w, env := s.do(http.MethodDelete, "/api/v1/auth/session/error", resp.Token.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var snap auth.SessionResponse
	s.Require().NoError(json.Unmarshal(env.Data, &snap))
	s.Empty(snap.Error)
	s.Equal(session.StateReady, snap.State)
}
