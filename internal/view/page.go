package view

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/shared"
)

// Auditor persists session audit events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Pages assembles TemplateData for authenticated pages and turns API failures
// into navigation.
type Pages struct {
	engine   *Engine
	registry *access.Registry
	csrf     *shared.CSRFManager
	audit    Auditor
	logger   *slog.Logger
}

// NewPages constructs the page helper. audit may be nil.
func NewPages(engine *Engine, registry *access.Registry, csrf *shared.CSRFManager, audit Auditor, logger *slog.Logger) *Pages {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = shared.NopAuditLogger{}
	}
	return &Pages{engine: engine, registry: registry, csrf: csrf, audit: audit, logger: logger}
}

// Data builds the shared template values for r.
func (p *Pages) Data(r *http.Request, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	td := TemplateData{Title: title, CurrentPath: r.URL.Path, Data: data}
	if sess != nil {
		if token, err := p.csrf.EnsureToken(r.Context(), sess); err == nil {
			td.CSRFToken = token
		}
		td.Flash = sess.PopFlash()
	}
	if id, ok := shared.IdentityFromContext(r.Context()); ok {
		user := id.User
		td.User = &user
		td.Menu = p.registry.Menu(user.Role, r.URL.Path)
	}
	return td
}

// Render writes the named page with status.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := p.engine.Render(w, status, name, p.Data(r, title, data)); err != nil {
		p.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Document renders a standalone page such as a printable export. It leaves
// the session untouched.
func (p *Pages) Document(name, title string, data any) ([]byte, error) {
	return p.engine.Execute(name, TemplateData{Title: title, Data: data})
}

// Redirect stores an optional flash and issues a 303.
func (p *Pages) Redirect(w http.ResponseWriter, r *http.Request, location, kind, msg string) {
	if msg != "" {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
		}
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// Fail handles an error from the store API. A rejected credential has already
// cleared the session, so the caller goes to the login page. Other failures
// flash a message and return to fallback, or render the error page when
// fallback is empty.
func (p *Pages) Fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if p.ForcedLogout(w, r, err) {
		return
	}
	p.logger.Warn("store api call failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	if fallback != "" {
		p.Redirect(w, r, fallback, "error", apiclient.Message(err))
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, apiclient.ErrNotFound) {
		status = http.StatusNotFound
	}
	p.Render(w, r, status, "pages/error.html", "Something went wrong", apiclient.Message(err))
}

// ForcedLogout redirects to the login page when err is an auth rejection and
// reports whether it did.
func (p *Pages) ForcedLogout(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apiclient.ErrAuthRejected) {
		return false
	}
	p.RecordForcedLogout(r)
	p.Redirect(w, r, access.LoginPath, "warning", apiclient.Message(err))
	return true
}

// RecordForcedLogout writes the audit entry for a session the API rejected.
func (p *Pages) RecordForcedLogout(r *http.Request) {
	entry := AuditEntry(r, shared.AuditAuthRejected)
	if err := p.audit.Record(r.Context(), entry); err != nil {
		p.logger.Warn("record forced logout", slog.Any("error", err))
	}
}

// AuditEntry fills an audit record from the request and admitted identity.
func AuditEntry(r *http.Request, action string) shared.AuditLog {
	entry := shared.AuditLog{Action: action, IP: r.RemoteAddr, UserAgent: r.UserAgent()}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		entry.SessionID = sess.ID
	}
	if id, ok := shared.IdentityFromContext(r.Context()); ok {
		entry.UserID = id.User.ID
		entry.Username = id.User.Username
		entry.Role = string(id.User.Role)
	}
	return entry
}

// Credentials returns the session of r as the credential for API calls.
func Credentials(r *http.Request) apiclient.Credentials {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess
	}
	return anonymous{}
}

type anonymous struct{}

func (anonymous) Token() string { return "" }

func (anonymous) ClearAuth() {}
