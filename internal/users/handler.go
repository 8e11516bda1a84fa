package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/view"
)

const manageBase = "/manage-users"

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	pages     *view.Pages
	guard     *guard.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages, g *guard.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pages: pages, guard: g, validator: validator.New()}
}

// MountRoutes registers user routes. /users is the read-only directory and
// /manage-users carries the account changes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(access.ViewUsers)).Get("/users", h.listUsers(false))
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(access.ViewManageUsers))
		r.Get(manageBase, h.listUsers(true))
		r.Get(manageBase+"/new", h.showCreateUserForm)
		r.Post(manageBase, h.createUser)
		r.Get(manageBase+"/{id}/edit", h.showEditUserForm)
		r.Post(manageBase+"/{id}", h.updateUser)
		r.Post(manageBase+"/{id}/delete", h.deleteUser)
	})
}

type formErrors map[string]string

type listData struct {
	Manage bool
	Users  []access.UserProfile
}

type userForm struct {
	Username string `validate:"required,max=50"`
	FullName string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=120"`
	Role     string `validate:"required,oneof=user admin super_admin"`
	IsActive bool
}

type formData struct {
	Action  string
	Editing bool
	Form    userForm
	Errors  formErrors
}

func (h *Handler) listUsers(manage bool) http.HandlerFunc {
	title := "Users"
	if manage {
		title = "Manage users"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := h.service.ListUsers(r.Context(), view.Credentials(r))
		if err != nil {
			h.pages.Fail(w, r, err, "")
			return
		}
		h.pages.Render(w, r, http.StatusOK, "pages/users.html", title, listData{Manage: manage, Users: users})
	}
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/user_form.html", "Add user", formData{
		Action: manageBase,
		Form:   userForm{Role: string(access.RoleUser), IsActive: true},
	})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := readForm(r)
	form.IsActive = true
	password := r.PostFormValue("password")
	errs := h.validate(form)
	if strings.TrimSpace(password) == "" {
		errs["Password"] = "Password is required for new users"
	}
	data := formData{Action: manageBase, Form: form, Errors: errs}
	if len(errs) > 0 {
		h.pages.Render(w, r, http.StatusBadRequest, "pages/user_form.html", "Add user", data)
		return
	}

	user, err := h.service.CreateUser(r.Context(), view.Credentials(r), apiclient.NewUser{
		Username: form.Username,
		FullName: form.FullName,
		Email:    form.Email,
		Role:     access.Role(form.Role),
		Password: password,
	})
	if err != nil {
		h.rejectForm(w, r, err, "Add user", data)
		return
	}
	h.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	h.pages.Redirect(w, r, manageBase, "success", "User "+user.Username+" created.")
}

func (h *Handler) showEditUserForm(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		h.pages.Redirect(w, r, manageBase, "error", "Unknown user.")
		return
	}
	user, err := h.service.GetUser(r.Context(), view.Credentials(r), id)
	if err != nil {
		h.pages.Fail(w, r, err, manageBase)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/user_form.html", "Edit user", formData{
		Action:  manageBase + "/" + strconv.FormatInt(id, 10),
		Editing: true,
		Form: userForm{
			Username: user.Username,
			FullName: user.FullName,
			Email:    user.Email,
			Role:     string(user.Role),
			IsActive: user.IsActive,
		},
	})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		h.pages.Redirect(w, r, manageBase, "error", "Unknown user.")
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := readForm(r)
	form.IsActive = r.PostFormValue("is_active") != ""
	data := formData{Action: manageBase + "/" + strconv.FormatInt(id, 10), Editing: true, Form: form}

	// The username is fixed once created and only echoed back for display.
	check := form
	check.Username = "unchanged"
	data.Errors = h.validate(check)
	if len(data.Errors) > 0 {
		h.pages.Render(w, r, http.StatusBadRequest, "pages/user_form.html", "Edit user", data)
		return
	}

	role := access.Role(form.Role)
	changes := apiclient.UserChanges{
		FullName: &form.FullName,
		Email:    &form.Email,
		Role:     &role,
		IsActive: &form.IsActive,
	}
	if password := r.PostFormValue("password"); strings.TrimSpace(password) != "" {
		changes.Password = &password
	}

	actor, _ := shared.IdentityFromContext(r.Context())
	user, err := h.service.UpdateUser(r.Context(), view.Credentials(r), actor.User, id, changes)
	if err != nil {
		h.rejectForm(w, r, err, "Edit user", data)
		return
	}
	h.pages.Redirect(w, r, manageBase, "success", "User "+user.Username+" updated.")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		h.pages.Redirect(w, r, manageBase, "error", "Unknown user.")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	err := h.service.DeleteUser(r.Context(), view.Credentials(r), actor.User, id)
	switch {
	case errors.Is(err, ErrSelfDelete):
		h.pages.Redirect(w, r, manageBase, "error", "You cannot delete your own account.")
	case err != nil:
		h.pages.Fail(w, r, err, manageBase)
	default:
		h.pages.Redirect(w, r, manageBase, "success", "User deleted.")
	}
}

func (h *Handler) rejectForm(w http.ResponseWriter, r *http.Request, err error, title string, data formData) {
	if h.pages.ForcedLogout(w, r, err) {
		return
	}
	msg := apiclient.Message(err)
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ErrSelfLockout):
		msg = "You cannot deactivate your own account or change your own role."
	case errors.Is(err, apiclient.ErrUnavailable):
		status = http.StatusBadGateway
	}
	h.logger.Warn("user save rejected", slog.Any("error", err))
	data.Errors = formErrors{"general": msg}
	h.pages.Render(w, r, status, "pages/user_form.html", title, data)
}

func (h *Handler) validate(form userForm) formErrors {
	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs[fe.Field()] = fieldMessage(fe)
			}
		}
	}
	return errs
}

func readForm(r *http.Request) userForm {
	return userForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Role:     strings.TrimSpace(r.PostFormValue("role")),
	}
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "oneof":
		return "Choose one of the listed roles"
	case "max":
		return "This value is too long"
	default:
		return "This value is invalid"
	}
}
