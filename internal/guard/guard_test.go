package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/shared"
)

type memStore struct {
	id      access.Identity
	err     error
	cleared int
}

func (m *memStore) Snapshot() (access.Identity, error) {
	if m.err != nil {
		return access.Identity{}, m.err
	}
	if m.id.Token == "" {
		return access.Identity{}, shared.ErrNoSession
	}
	return m.id, nil
}

func (m *memStore) ClearAuth() {
	m.cleared++
	m.id = access.Identity{}
	m.err = nil
}

type countingRecorder struct {
	calls map[string]int
}

func (c *countingRecorder) RecordGuardDecision(view, outcome string) {
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[view+"|"+outcome]++
}

func storeFor(role access.Role) *memStore {
	return &memStore{id: access.Identity{Token: "tok", User: access.UserProfile{ID: 1, Username: "u", Role: role}}}
}

func newGuard(t *testing.T) *Guard {
	t.Helper()
	return New(access.MustDefaultRegistry(), nil, nil)
}

func TestGuardRendersOrRedirectsToOwnDefault(t *testing.T) {
	g := newGuard(t)
	reg := g.Registry()
	for _, role := range access.Roles() {
		home, err := reg.DefaultPath(role)
		require.NoError(t, err)
		for _, rule := range reg.Rules() {
			d := g.Decide(storeFor(role), rule.View)
			if rule.Allows(role) {
				assert.Equal(t, Render, d.Outcome, "%s on %s", role, rule.View)
				continue
			}
			assert.Equal(t, RedirectToOwnDefault, d.Outcome, "%s on %s", role, rule.View)
			assert.Equal(t, home, d.Location)

			defaultView, err := access.DefaultView(role)
			require.NoError(t, err)
			again := g.Decide(storeFor(role), defaultView)
			assert.Equal(t, Render, again.Outcome, "redirect target must render for %s", role)
		}
	}
}

func TestResolverAgreesWithGuard(t *testing.T) {
	g := newGuard(t)
	for _, role := range access.Roles() {
		target := g.Resolve(storeFor(role))
		require.Equal(t, RedirectToOwnDefault, target.Outcome)

		view, err := access.DefaultView(role)
		require.NoError(t, err)
		path, err := g.Registry().Path(view)
		require.NoError(t, err)
		assert.Equal(t, path, target.Location)
		assert.Equal(t, Render, g.Decide(storeFor(role), view).Outcome)
	}
}

func TestResolverWithoutSessionGoesToLogin(t *testing.T) {
	g := newGuard(t)
	assert.Equal(t, Decision{Outcome: Login, Location: "/login"}, g.Resolve(nil))
	assert.Equal(t, "/login", g.Resolve(&memStore{}).Location)
}

func TestScenarioNoSessionOnAdminDashboard(t *testing.T) {
	g := newGuard(t)
	d := g.Decide(&memStore{}, access.ViewAdminDashboard)
	assert.Equal(t, Login, d.Outcome)
	assert.Equal(t, "/login", d.Location)
}

func TestScenarioUserOnManageUsers(t *testing.T) {
	g := newGuard(t)
	d := g.Decide(storeFor(access.RoleUser), access.ViewManageUsers)
	assert.Equal(t, RedirectToOwnDefault, d.Outcome)
	assert.Equal(t, "/user-dashboard", d.Location)
}

func TestScenarioSuperAdminOnProducts(t *testing.T) {
	g := newGuard(t)
	d := g.Decide(storeFor(access.RoleSuperAdmin), access.ViewProducts)
	assert.Equal(t, Render, d.Outcome)
	assert.Equal(t, access.RoleSuperAdmin, d.Identity.User.Role)
}

func TestScenarioAdminLandsOnAdminDashboard(t *testing.T) {
	g := newGuard(t)
	store := storeFor(access.RoleAdmin)
	target := g.Resolve(store)
	assert.Equal(t, "/admin-dashboard", target.Location)
	assert.Equal(t, Render, g.Decide(store, access.ViewAdminDashboard).Outcome)
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	g := newGuard(t)
	store := storeFor(access.Role("manager"))

	d := g.Decide(store, access.ViewUserDashboard)
	assert.Equal(t, Login, d.Outcome)
	assert.Equal(t, 1, store.cleared, "session with unknown role must be cleared")

	assert.Equal(t, Login, g.Resolve(storeFor(access.Role(""))).Outcome)
}

func TestMalformedSessionDegradesToLogin(t *testing.T) {
	g := newGuard(t)
	d := g.Decide(&memStore{err: shared.ErrMalformedSession}, access.ViewProducts)
	assert.Equal(t, Login, d.Outcome)
}

func TestRecorderSeesEveryDecision(t *testing.T) {
	rec := &countingRecorder{}
	g := New(access.MustDefaultRegistry(), nil, rec)
	g.Decide(&memStore{}, access.ViewProducts)
	g.Decide(storeFor(access.RoleUser), access.ViewSalesReport)
	g.Decide(storeFor(access.RoleAdmin), access.ViewSalesReport)

	assert.Equal(t, 1, rec.calls["products|login"])
	assert.Equal(t, 1, rec.calls["sales-report|redirect_default"])
	assert.Equal(t, 1, rec.calls["sales-report|render"])
}

func newSessionManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func requestWithSession(t *testing.T, sm *shared.SessionManager, path, cookie string) (*http.Request, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: cookie})
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestRequireMiddleware(t *testing.T) {
	g := newGuard(t)
	sm, _ := newSessionManager(t)

	var seen access.Identity
	protected := g.Require(access.ViewSalesReport)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous", func(t *testing.T) {
		req, _ := requestWithSession(t, sm, "/sales-report", "")
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})

	t.Run("user role relocated", func(t *testing.T) {
		req, sess := requestWithSession(t, sm, "/sales-report", "")
		require.NoError(t, sess.SetAuth("tok", access.UserProfile{ID: 4, Username: "bo", Role: access.RoleUser}))
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/user-dashboard", rr.Header().Get("Location"))
	})

	t.Run("admin renders", func(t *testing.T) {
		req, sess := requestWithSession(t, sm, "/sales-report", "")
		require.NoError(t, sess.SetAuth("tok", access.UserProfile{ID: 5, Username: "al", Role: access.RoleAdmin}))
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(5), seen.User.ID)
	})

	t.Run("no session in context", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sales-report", nil))
		assert.Equal(t, "/login", rr.Header().Get("Location"))
	})
}

func TestCorruptedPersistedUserRedirectsToLoginOnSamePass(t *testing.T) {
	g := newGuard(t)
	sm, mr := newSessionManager(t)
	require.NoError(t, mr.Set("session:bad", `{"values":{},"token":"tok","user":"[1,2","flashes":null}`))

	req, sess := requestWithSession(t, sm, "/products", "bad")
	rr := httptest.NewRecorder()
	g.Require(access.ViewProducts)(http.NotFoundHandler()).ServeHTTP(rr, req)

	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.False(t, sess.IsAuthenticated())
	assert.Empty(t, sess.Token())
}

func TestRedirectHome(t *testing.T) {
	g := newGuard(t)
	sm, _ := newSessionManager(t)

	req, sess := requestWithSession(t, sm, "/does-not-exist", "")
	rr := httptest.NewRecorder()
	g.RedirectHome(rr, req)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	require.NoError(t, sess.SetAuth("tok", access.UserProfile{ID: 9, Username: "root", Role: access.RoleSuperAdmin}))
	rr = httptest.NewRecorder()
	g.RedirectHome(rr, req)
	assert.Equal(t, "/super-admin-dashboard", rr.Header().Get("Location"))
}

func TestRequireJSONAnswersWithRedirectHint(t *testing.T) {
	g := newGuard(t)
	sm, _ := newSessionManager(t)
	api := g.RequireJSON(access.ViewManageUsers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req, _ := requestWithSession(t, sm, "/manage-users/x", "")
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"detail":"Sign in required","redirect":"/login"}`, rr.Body.String())

	req, sess := requestWithSession(t, sm, "/manage-users/x", "")
	require.NoError(t, sess.SetAuth("tok", access.UserProfile{ID: 2, Username: "ad", Role: access.RoleAdmin}))
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redirect":"/admin-dashboard"`)

	require.NoError(t, sess.SetAuth("tok", access.UserProfile{ID: 3, Username: "sa", Role: access.RoleSuperAdmin}))
	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
