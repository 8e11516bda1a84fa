// Package webtest assembles the session, guard and view collaborators that
// page handler tests share, backed by miniredis and a fake store API.
package webtest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/view"
	_ "github.com/storedesk/storedesk/testing"
)

// Env is a wired set of collaborators for one test.
type Env struct {
	t        *testing.T
	Redis    *miniredis.Miniredis
	Sessions *shared.SessionManager
	CSRF     *shared.CSRFManager
	Registry *access.Registry
	Guard    *guard.Guard
	Pages    *view.Pages
	Client   *apiclient.Client
	Audit    *AuditSpy
}

// New builds an Env whose store API is served by api. api may be nil when the
// test never reaches the API.
func New(t *testing.T, api http.Handler) *Env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if api == nil {
		api = http.NotFoundHandler()
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	engine, err := view.NewEngine()
	require.NoError(t, err)

	registry := access.MustDefaultRegistry()
	csrf := shared.NewCSRFManager("csrfsecret")
	audit := &AuditSpy{}
	return &Env{
		t:        t,
		Redis:    mr,
		Sessions: shared.NewSessionManager(rdb, "test_session", "secret", time.Hour, false),
		CSRF:     csrf,
		Registry: registry,
		Guard:    guard.New(registry, nil, nil),
		Pages:    view.NewPages(engine, registry, csrf, audit, nil),
		Client:   apiclient.NewClient(apiclient.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}),
		Audit:    audit,
	}
}

// User returns a profile with role.
func User(role access.Role) *access.UserProfile {
	ids := map[access.Role]int64{access.RoleUser: 11, access.RoleAdmin: 22, access.RoleSuperAdmin: 33}
	return &access.UserProfile{
		ID:       ids[role],
		Username: string(role) + "-account",
		FullName: "Test " + access.DisplayName(role),
		Email:    string(role) + "@example.com",
		Role:     role,
		IsActive: true,
	}
}

// Request builds a request carrying a fresh session. A non-nil user is signed
// in and placed in the context the way the route guard does. A non-nil form
// becomes the urlencoded body.
func (e *Env) Request(method, target string, form url.Values, user *access.UserProfile) (*http.Request, *shared.Session) {
	e.t.Helper()
	if form == nil {
		return e.RequestBody(method, target, nil, "", user)
	}
	return e.RequestBody(method, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", user)
}

// RequestBody is Request with a raw body of contentType.
func (e *Env) RequestBody(method, target string, body io.Reader, contentType string, user *access.UserProfile) (*http.Request, *shared.Session) {
	e.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	sess, err := e.Sessions.Load(context.Background(), req)
	require.NoError(e.t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	if user != nil {
		require.NoError(e.t, sess.SetAuth("token-"+string(user.Role), *user))
		ctx = shared.ContextWithIdentity(ctx, access.Identity{Token: sess.Token(), User: *user})
	}
	return req.WithContext(ctx), sess
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// AuditSpy records audit entries in memory.
type AuditSpy struct {
	Entries []shared.AuditLog
}

// Record implements the audit recorder contract.
func (a *AuditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.Entries = append(a.Entries, log)
	return nil
}

// Actions lists the recorded actions in order.
func (a *AuditSpy) Actions() []string {
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Action)
	}
	return out
}
