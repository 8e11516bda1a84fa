package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/auth"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/webtest"
)

type fakeLoginAPI struct {
	calls  atomic.Int32
	status int
	token  string
	role   string
}

func (f *fakeLoginAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 && f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Incorrect username or password"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": f.token,
		"token_type":   "bearer",
		"user": map[string]any{
			"id": 5, "username": "alice", "full_name": "Alice", "email": "alice@example.com",
			"role": f.role, "is_active": true, "created_at": "2025-01-02T03:04:05",
		},
	})
}

type loginCounter struct {
	results []string
}

func (c *loginCounter) RecordLogin(result string) {
	c.results = append(c.results, result)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 5, "exp": exp.Unix()}).SignedString([]byte("api-key"))
	require.NoError(t, err)
	return token
}

func newAuthHandler(t *testing.T, api *fakeLoginAPI) (*auth.Handler, *webtest.Env, *loginCounter) {
	t.Helper()
	env := webtest.New(t, api)
	counter := &loginCounter{}
	handler := auth.NewHandler(auth.Deps{
		Service:  auth.NewService(env.Client),
		Pages:    env.Pages,
		Sessions: env.Sessions,
		CSRF:     env.CSRF,
		Guard:    env.Guard,
		Audit:    env.Audit,
		Recorder: counter,
	})
	return handler, env, counter
}

func loginForm(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

func TestLoginPage(t *testing.T) {
	handler, env, _ := newAuthHandler(t, &fakeLoginAPI{})

	req, sess := env.Request(http.MethodGet, "/login", nil, nil)
	res := webtest.Serve(http.HandlerFunc(handler.ShowLoginForTest), req)
	require.NoError(t, env.Sessions.Commit(req.Context(), res, req, sess))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.Contains(t, res.Body.String(), `name="csrf_token"`)
}

func TestLoginPageWithSessionGoesToLandingView(t *testing.T) {
	handler, env, _ := newAuthHandler(t, &fakeLoginAPI{})

	req, _ := env.Request(http.MethodGet, "/login", nil, webtest.User(access.RoleAdmin))
	res := webtest.Serve(http.HandlerFunc(handler.ShowLoginForTest), req)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin-dashboard", res.Header().Get("Location"))
}

func TestLoginPageWithUnknownRoleRendersAtOnce(t *testing.T) {
	handler, env, _ := newAuthHandler(t, &fakeLoginAPI{})
	owner := &access.UserProfile{ID: 9, Username: "olga", Role: access.Role("owner"), IsActive: true}

	req, sess := env.Request(http.MethodGet, "/login", nil, owner)
	res := webtest.Serve(http.HandlerFunc(handler.ShowLoginForTest), req)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.False(t, sess.IsAuthenticated())
}

func TestLoginSuccessStoresIdentityAndResolves(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute)
	api := &fakeLoginAPI{token: signedToken(t, exp), role: "admin"}
	handler, env, counter := newAuthHandler(t, api)

	req, sess := env.Request(http.MethodPost, "/login", loginForm("alice", "secret"), nil)
	preLoginID := sess.ID
	res := webtest.Serve(http.HandlerFunc(handler.HandleLoginForTest), req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin-dashboard", res.Header().Get("Location"))
	assert.NotEqual(t, preLoginID, sess.ID, "login must move the session to a new id")

	id, err := sess.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, id.User.Role)
	assert.Equal(t, api.token, id.Token)
	assert.NotEmpty(t, sess.Get(shared.CSRFSessionKey))

	require.NoError(t, env.Sessions.Commit(context.Background(), httptest.NewRecorder(), req, sess))
	ttl := env.Redis.TTL("session:" + sess.ID)
	assert.LessOrEqual(t, ttl, 30*time.Minute)
	assert.Greater(t, ttl, 25*time.Minute)

	assert.Equal(t, []string{shared.AuditLogin}, env.Audit.Actions())
	assert.Equal(t, int64(5), env.Audit.Entries[0].UserID)
	assert.Equal(t, []string{"success"}, counter.results)
}

func TestLoginLandsEveryRoleOnItsOwnDashboard(t *testing.T) {
	for role, want := range map[string]string{
		"user":        "/user-dashboard",
		"admin":       "/admin-dashboard",
		"super_admin": "/super-admin-dashboard",
	} {
		t.Run(role, func(t *testing.T) {
			handler, env, _ := newAuthHandler(t, &fakeLoginAPI{token: "opaque", role: role})
			req, sess := env.Request(http.MethodPost, "/login", loginForm("alice", "secret"), nil)
			res := webtest.Serve(http.HandlerFunc(handler.HandleLoginForTest), req)
			require.Equal(t, want, res.Header().Get("Location"))

			view, err := access.DefaultView(access.Role(role))
			require.NoError(t, err)
			assert.Equal(t, guard.Render, env.Guard.Decide(sess, view).Outcome)
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler, env, counter := newAuthHandler(t, &fakeLoginAPI{status: http.StatusUnauthorized})

	req, sess := env.Request(http.MethodPost, "/login", loginForm("alice", "wrong"), nil)
	res := webtest.Serve(http.HandlerFunc(handler.HandleLoginForTest), req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Incorrect username or password")
	assert.False(t, sess.IsAuthenticated())
	assert.Empty(t, env.Audit.Entries)
	assert.Equal(t, []string{"invalid"}, counter.results)
}

func TestLoginRefusesUnknownRole(t *testing.T) {
	handler, env, _ := newAuthHandler(t, &fakeLoginAPI{token: "opaque", role: "manager"})

	req, sess := env.Request(http.MethodPost, "/login", loginForm("alice", "secret"), nil)
	res := webtest.Serve(http.HandlerFunc(handler.HandleLoginForTest), req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "no usable role")
	assert.False(t, sess.IsAuthenticated())
	assert.Empty(t, sess.Token())
}

func TestLoginValidationSkipsAPI(t *testing.T) {
	api := &fakeLoginAPI{token: "opaque", role: "user"}
	handler, env, _ := newAuthHandler(t, api)

	req, _ := env.Request(http.MethodPost, "/login", loginForm("", ""), nil)
	res := webtest.Serve(http.HandlerFunc(handler.HandleLoginForTest), req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Username is required")
	assert.Equal(t, int32(0), api.calls.Load())
}

func TestLogoutDestroysSession(t *testing.T) {
	handler, env, _ := newAuthHandler(t, &fakeLoginAPI{})

	req, sess := env.Request(http.MethodPost, "/logout", url.Values{}, webtest.User(access.RoleUser))
	res := webtest.Serve(http.HandlerFunc(handler.HandleLogoutForTest), req)
	require.NoError(t, env.Sessions.Commit(req.Context(), res, req, sess))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Header().Get("Location"))
	assert.False(t, sess.IsAuthenticated())
	assert.Equal(t, []string{shared.AuditLogout}, env.Audit.Actions())
	assert.Equal(t, "user-account", env.Audit.Entries[0].Username)

	var expired bool
	for _, c := range res.Result().Cookies() {
		if c.Name == env.Sessions.CookieName() && c.MaxAge < 0 {
			expired = true
		}
	}
	assert.True(t, expired, "session cookie must be expired")
	assert.False(t, env.Redis.Exists("session:"+sess.ID))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	assert.True(t, exp.Equal(auth.TokenExpiry(signedToken(t, exp))))
	assert.True(t, auth.TokenExpiry("opaque-token").IsZero())

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.True(t, auth.TokenExpiry(noExp).IsZero())
}

func TestLoginPageEscapesUsername(t *testing.T) {
	handler, env, _ := newAuthHandler(t, &fakeLoginAPI{status: http.StatusUnauthorized})
	req, _ := env.Request(http.MethodPost, "/login", loginForm("<b>x</b>", "pw"), nil)
	res := webtest.Serve(http.HandlerFunc(handler.HandleLoginForTest), req)
	assert.False(t, strings.Contains(res.Body.String(), "<b>x</b>"))
}
