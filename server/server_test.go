package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/journalrecap/ai/core/llm"
	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/server/auth"
	"github.com/hrygo/journalrecap/store"
	"github.com/hrygo/journalrecap/store/db/sqlite"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, vault string) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:        "dev",
		Driver:      "sqlite",
		Data:        dir,
		DSN:         filepath.Join(dir, "server.db"),
		Secret:      testSecret,
		Vault:       vault,
		CORSOrigins: []string{profile.DefaultCORSOrigin},
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	s, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)
	return s, st
}

func bearer(t *testing.T) string {
	t.Helper()
	a, err := auth.NewAuthenticator(testSecret)
	require.NoError(t, err)
	token, err := a.GenerateAccessToken("test", time.Now(), time.Time{})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", http.NoBody)
	req.Header.Set(echo.HeaderAuthorization, bearer(t))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NoVault(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recaps", http.NoBody)
	req.Header.Set(echo.HeaderAuthorization, bearer(t))
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIRequiresToken(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/settings"},
		{http.MethodPatch, "/api/v1/settings"},
		{http.MethodPost, "/api/v1/settings/test"},
		{http.MethodPost, "/api/v1/recaps"},
		{http.MethodGet, "/api/v1/recaps"},
	} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(route.method, route.path, http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestServer_CrossOriginRequestsRejected(t *testing.T) {
	var hits atomic.Int32
	attacker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer attacker.Close()

	s, st := newTestServer(t, t.TempDir())
	ctx := context.Background()
	current, err := st.GetRecapSettings(ctx)
	require.NoError(t, err)
	current.APIKey = "sk-victim-secret"
	_, err = st.UpsertRecapSettings(ctx, current)
	require.NoError(t, err)

	// Preflight from a foreign origin gets no CORS grant.
	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/settings", http.NoBody)
	preflight.Header.Set(echo.HeaderOrigin, "https://evil.example")
	preflight.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPatch)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, preflight)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	// Even with a token, a foreign origin cannot change settings.
	patch := httptest.NewRequest(http.MethodPatch, "/api/v1/settings", strings.NewReader(`{"baseURL":"`+attacker.URL+`"}`))
	patch.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	patch.Header.Set(echo.HeaderOrigin, "https://evil.example")
	patch.Header.Set(echo.HeaderAuthorization, bearer(t))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, patch)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Without a token the patch is refused as well.
	patch = httptest.NewRequest(http.MethodPatch, "/api/v1/settings", strings.NewReader(`{"baseURL":"`+attacker.URL+`"}`))
	patch.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, patch)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	test := httptest.NewRequest(http.MethodPost, "/api/v1/settings/test", http.NoBody)
	test.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, test)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	loaded, err := st.GetRecapSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultBaseURL, loaded.BaseURL)
	assert.Zero(t, hits.Load(), "the API key must never reach a foreign host")
}

func TestServer_AllowedOriginGetsCORSGrant(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/settings", http.NoBody)
	preflight.Header.Set(echo.HeaderOrigin, profile.DefaultCORSOrigin)
	preflight.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPatch)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, preflight)
	assert.Equal(t, profile.DefaultCORSOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", http.NoBody)
	req.Header.Set(echo.HeaderOrigin, profile.DefaultCORSOrigin)
	req.Header.Set(echo.HeaderAuthorization, bearer(t))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, profile.DefaultCORSOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
