package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/view"
)

// LoginRecorder counts login attempts.
type LoginRecorder interface {
	RecordLogin(result string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	pages          *view.Pages
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	guard          *guard.Guard
	audit          view.Auditor
	recorder       LoginRecorder
	validator      *validator.Validate
}

// Deps groups the Handler collaborators. Audit and Recorder are optional.
type Deps struct {
	Logger   *slog.Logger
	Service  *Service
	Pages    *view.Pages
	Sessions *shared.SessionManager
	CSRF     *shared.CSRFManager
	Guard    *guard.Guard
	Audit    view.Auditor
	Recorder LoginRecorder
}

// NewHandler constructs a Handler instance.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := deps.Audit
	if audit == nil {
		audit = shared.NopAuditLogger{}
	}
	return &Handler{
		logger:         logger,
		service:        deps.Service,
		pages:          deps.Pages,
		sessionManager: deps.Sessions,
		csrfManager:    deps.CSRF,
		guard:          deps.Guard,
		audit:          audit,
		recorder:       deps.Recorder,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get(access.LoginPath, h.showLogin)
	r.Post(access.LoginPath, h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,max=128"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	var store guard.SessionStore
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		store = sess
	}
	if d := h.guard.Resolve(store); d.Outcome != guard.Login {
		http.Redirect(w, r, d.Location, http.StatusSeeOther)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/login.html", "Sign in", loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}

	if len(errs) == 0 {
		creds, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
		switch {
		case err == nil:
			if err := h.establish(w, r, sess, creds); err != nil {
				h.logger.Error("store login in session", slog.Any("error", err))
				errs["general"] = "Sign in failed. Please try again."
				break
			}
			return
		case errors.Is(err, shared.ErrInvalidCredentials):
			h.record("invalid")
			errs["general"] = "Incorrect username or password"
		case errors.Is(err, access.ErrUnknownRole):
			h.record("invalid")
			h.logger.Warn("login refused for unknown role", slog.String("username", form.Username), slog.Any("error", err))
			errs["general"] = "Your account has no usable role. Contact an administrator."
		default:
			h.record("error")
			h.logger.Error("login failed", slog.Any("error", err))
			errs["general"] = apiclient.Message(err)
		}
	}

	form.Password = ""
	h.pages.Render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", loginPageData{Form: form, Errors: errs})
}

// establish stores the accepted identity in a fresh session and sends the
// caller to their landing view.
func (h *Handler) establish(w http.ResponseWriter, r *http.Request, sess *shared.Session, creds Credentials) error {
	h.sessionManager.Renew(sess)
	if err := sess.SetAuth(creds.Identity.Token, creds.Identity.User); err != nil {
		return err
	}
	if !creds.ExpiresAt.IsZero() {
		sess.SetAuthExpiry(creds.ExpiresAt)
	}
	h.csrfManager.Rotate(sess)
	sess.Delete(shared.AssistantConversationKey)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + creds.Identity.User.DisplayName()})

	entry := shared.AuditLog{
		SessionID: sess.ID,
		UserID:    creds.Identity.User.ID,
		Username:  creds.Identity.User.Username,
		Role:      string(creds.Identity.User.Role),
		Action:    shared.AuditLogin,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.Warn("record login", slog.Any("error", err))
	}
	h.record("success")

	h.guard.RedirectHome(w, r)
	return nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		entry := shared.AuditLog{SessionID: sess.ID, Action: shared.AuditLogout, IP: r.RemoteAddr, UserAgent: r.UserAgent()}
		if id, ok := sess.Identity(); ok {
			entry.UserID = id.User.ID
			entry.Username = id.User.Username
			entry.Role = string(id.User.Role)
		}
		if err := h.audit.Record(r.Context(), entry); err != nil {
			h.logger.Warn("record logout", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
}

func (h *Handler) record(result string) {
	if h.recorder != nil {
		h.recorder.RecordLogin(result)
	}
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "max":
		return err.Field() + " is too long"
	default:
		return err.Field() + " is invalid"
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
