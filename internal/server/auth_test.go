package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func creds(user, pass string) Credentials {
	return func() (string, string) { return user, pass }
}

func serve(sm *SessionManager, redirect bool, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	sm.Middleware(redirect)(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})(rec, r)
	return rec
}

func TestMiddleware_Disabled(t *testing.T) {
	sm := NewSessionManager(creds("", ""))
	assert.False(t, sm.Enabled())
	rec := serve(sm, false, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddleware_BasicAuth(t *testing.T) {
	sm := NewSessionManager(creds("studio", "secret"))

	rec := serve(sm, false, httptest.NewRequest(http.MethodGet, "/meter.png", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	r := httptest.NewRequest(http.MethodGet, "/meter.png", nil)
	r.SetBasicAuth("studio", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(sm, false, r).Code)

	r.SetBasicAuth("studio", "secret")
	assert.Equal(t, http.StatusNoContent, serve(sm, false, r).Code)

	rec = serve(sm, true, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestSession_LoginLogout(t *testing.T) {
	sm := NewSessionManager(creds("studio", "secret"))
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	rec := httptest.NewRecorder()
	assert.False(t, sm.Login(rec, httptest.NewRequest(http.MethodPost, "/login", nil), "studio", "nope"))
	require.True(t, sm.Login(rec, httptest.NewRequest(http.MethodPost, "/login", nil), "studio", "secret"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, sessionCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	assert.True(t, sm.Authenticated(r))

	now = now.Add(sessionDuration + time.Second)
	assert.False(t, sm.Authenticated(r), "expired session")

	now = now.Add(-sessionDuration)
	rec = httptest.NewRecorder()
	require.True(t, sm.Login(rec, httptest.NewRequest(http.MethodPost, "/login", nil), "studio", "secret"))
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(rec.Result().Cookies()[0])
	require.True(t, sm.Authenticated(r))

	sm.Logout(httptest.NewRecorder(), r)
	assert.False(t, sm.Authenticated(r))
}

func TestSession_CSRFTokenIsSingleUse(t *testing.T) {
	sm := NewSessionManager(creds("studio", "secret"))
	token := sm.CreateCSRFToken()
	require.NotEmpty(t, token)

	assert.True(t, sm.ValidateCSRFToken(token))
	assert.False(t, sm.ValidateCSRFToken(token))
	assert.False(t, sm.ValidateCSRFToken(""))
}
