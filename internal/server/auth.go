package server

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"maps"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "meter_session"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute
	basicAuthRealm    = `Basic realm="zwfm-meter", charset="UTF-8"`
)

// Credentials returns the configured username and password.
// An empty username disables authentication.
type Credentials func() (user, password string)

// SessionManager authenticates browser sessions by cookie and scripts by
// HTTP basic auth. It is safe for concurrent use.
type SessionManager struct {
	creds Credentials
	now   func() time.Time

	mu         sync.Mutex
	sessions   map[string]time.Time // token -> expiry
	csrfTokens map[string]time.Time // token -> expiry
}

// NewSessionManager creates a session manager checking against creds.
func NewSessionManager(creds Credentials) *SessionManager {
	return &SessionManager{
		creds:      creds,
		now:        time.Now,
		sessions:   make(map[string]time.Time),
		csrfTokens: make(map[string]time.Time),
	}
}

// generateToken returns a cryptographically secure random token.
func generateToken() string {
	b := make([]byte, 32)
	if _, err := cryptorand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// Enabled reports whether credentials are configured.
func (sm *SessionManager) Enabled() bool {
	user, _ := sm.creds()
	return user != ""
}

// Check reports whether username and password match the configured credentials.
func (sm *SessionManager) Check(username, password string) bool {
	user, pass := sm.creds()
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(user)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(pass)) == 1
	return userMatch && passMatch
}

// Authenticated reports whether r carries a valid session cookie or valid
// basic auth credentials. Every request is authenticated when auth is disabled.
func (sm *SessionManager) Authenticated(r *http.Request) bool {
	if !sm.Enabled() {
		return true
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && sm.validate(cookie.Value) {
		return true
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return sm.Check(user, pass)
	}
	return false
}

// Middleware returns middleware that rejects unauthenticated requests.
// Browser pages are redirected to /login; API requests get a basic auth challenge.
func (sm *SessionManager) Middleware(redirect bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if sm.Authenticated(r) {
				next(w, r)
				return
			}
			if redirect {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			w.Header().Set("WWW-Authenticate", basicAuthRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	}
}

// Login checks the credentials and, on success, starts a session cookie.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, username, password string) bool {
	if !sm.Check(username, password) {
		return false
	}

	token := generateToken()
	if token == "" {
		return false
	}

	sm.mu.Lock()
	now := sm.now()
	maps.DeleteFunc(sm.sessions, func(_ string, exp time.Time) bool { return now.After(exp) })
	sm.sessions[token] = now.Add(sessionDuration)
	sm.mu.Unlock()

	setSessionCookie(w, r, token, int(sessionDuration.Seconds()))
	return true
}

// Logout clears the session cookie and deletes the session.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sm.mu.Lock()
		delete(sm.sessions, cookie.Value)
		sm.mu.Unlock()
	}
	setSessionCookie(w, r, "", -1)
}

func (sm *SessionManager) validate(token string) bool {
	if token == "" {
		return false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	exp, ok := sm.sessions[token]
	if !ok {
		return false
	}
	if sm.now().After(exp) {
		delete(sm.sessions, token)
		return false
	}
	return true
}

// setSessionCookie sets or clears the session cookie.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// CreateCSRFToken generates a login form token.
func (sm *SessionManager) CreateCSRFToken() string {
	token := generateToken()
	if token == "" {
		return ""
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	if rand.IntN(10) == 0 {
		maps.DeleteFunc(sm.csrfTokens, func(_ string, exp time.Time) bool { return now.After(exp) })
	}
	sm.csrfTokens[token] = now.Add(csrfTokenDuration)
	return token
}

// ValidateCSRFToken reports whether a CSRF token is valid and consumes it.
func (sm *SessionManager) ValidateCSRFToken(token string) bool {
	if token == "" {
		return false
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	exp, ok := sm.csrfTokens[token]
	if !ok {
		return false
	}
	delete(sm.csrfTokens, token)
	return sm.now().Before(exp)
}
