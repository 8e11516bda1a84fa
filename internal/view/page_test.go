package view_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/view"
	"github.com/storedesk/storedesk/internal/webtest"
)

func TestRenderShowsMenuForRole(t *testing.T) {
	env := webtest.New(t, nil)
	req, _ := env.Request(http.MethodGet, "/user-dashboard", nil, webtest.User(access.RoleUser))
	rec := httptest.NewRecorder()

	env.Pages.Render(rec, req, http.StatusOK, "pages/error.html", "Oops", "Nothing here")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `href="/generate-bill"`)
	assert.NotContains(t, body, `href="/manage-users"`)
}

func TestFailWithFallbackFlashes(t *testing.T) {
	env := webtest.New(t, nil)
	req, sess := env.Request(http.MethodGet, "/products", nil, webtest.User(access.RoleAdmin))
	rec := httptest.NewRecorder()

	env.Pages.Fail(rec, req, fmt.Errorf("list: %w", apiclient.ErrUnavailable), "/admin-dashboard")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin-dashboard", rec.Header().Get("Location"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "error", flash.Kind)
}

func TestFailWithoutFallbackRendersErrorPage(t *testing.T) {
	env := webtest.New(t, nil)
	req, _ := env.Request(http.MethodGet, "/bill-history", nil, webtest.User(access.RoleUser))
	rec := httptest.NewRecorder()

	env.Pages.Fail(rec, req, apiclient.ErrNotFound, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForcedLogoutClearsNothingForOtherErrors(t *testing.T) {
	env := webtest.New(t, nil)
	req, _ := env.Request(http.MethodGet, "/products", nil, webtest.User(access.RoleUser))
	rec := httptest.NewRecorder()

	assert.False(t, env.Pages.ForcedLogout(rec, req, apiclient.ErrForbidden))
	assert.Empty(t, env.Audit.Actions())

	assert.True(t, env.Pages.ForcedLogout(rec, req, apiclient.ErrAuthRejected))
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, []string{shared.AuditAuthRejected}, env.Audit.Actions())
}

func TestAuditEntryCarriesIdentity(t *testing.T) {
	env := webtest.New(t, nil)
	req, _ := env.Request(http.MethodPost, "/logout", nil, webtest.User(access.RoleAdmin))
	req.Header.Set("User-Agent", "till/1")

	entry := view.AuditEntry(req, shared.AuditLogout)

	assert.Equal(t, shared.AuditLogout, entry.Action)
	assert.Equal(t, int64(22), entry.UserID)
	assert.Equal(t, "admin", entry.Role)
	assert.Equal(t, "till/1", entry.UserAgent)
}

func TestCredentialsWithoutSessionIsAnonymous(t *testing.T) {
	creds := view.Credentials(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, creds.Token())
	creds.ClearAuth()
}

func TestDocumentOmitsNavigation(t *testing.T) {
	env := webtest.New(t, nil)

	data := struct{ Bill apiclient.Bill }{Bill: apiclient.Bill{ID: 5, BillNumber: "BILL-0005"}}
	out, err := env.Pages.Document("pages/bill_pdf.html", "Bill", data)

	require.NoError(t, err)
	assert.Contains(t, string(out), "<title>BILL-0005</title>")
	assert.NotContains(t, string(out), "<nav")
}
