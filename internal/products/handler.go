// Package products serves the catalogue pages: list with search, create,
// edit and delete.
package products

import (
	"context"
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
	"github.com/storedesk/storedesk/internal/view"
)

// Store is the part of the API the catalogue pages use.
type Store interface {
	ListProducts(ctx context.Context, creds apiclient.Credentials) ([]apiclient.Product, error)
	GetProduct(ctx context.Context, creds apiclient.Credentials, id int64) (apiclient.Product, error)
	CreateProduct(ctx context.Context, creds apiclient.Credentials, in apiclient.ProductInput) (apiclient.Product, error)
	UpdateProduct(ctx context.Context, creds apiclient.Credentials, id int64, in apiclient.ProductInput) (apiclient.Product, error)
	DeleteProduct(ctx context.Context, creds apiclient.Credentials, id int64) error
}

// Handler manages product endpoints.
type Handler struct {
	logger    *slog.Logger
	store     Store
	pages     *view.Pages
	guard     *guard.Guard
	validator *validator.Validate
	threshold int
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store Store, pages *view.Pages, g *guard.Guard, threshold int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, pages: pages, guard: g, validator: validator.New(), threshold: threshold}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(access.ViewProducts))
		r.Get("/products", h.list)
		r.Get("/products/new", h.showCreateForm)
		r.Post("/products", h.create)
		r.Get("/products/{id}/edit", h.showEditForm)
		r.Post("/products/{id}", h.update)
		r.Post("/products/{id}/delete", h.delete)
	})
}

type listData struct {
	Query     string
	Products  []apiclient.Product
	Threshold int
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.ListProducts(r.Context(), view.Credentials(r))
	if err != nil {
		h.pages.Fail(w, r, err, "")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	h.pages.Render(w, r, http.StatusOK, "pages/products.html", "Products", listData{
		Query:     q,
		Products:  Filter(all, q),
		Threshold: h.threshold,
	})
}

// Filter keeps the products whose name, id or category contains q, ignoring
// case. An empty q keeps everything.
func Filter(products []apiclient.Product, q string) []apiclient.Product {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return products
	}
	var out []apiclient.Product
	for _, p := range products {
		switch {
		case strings.Contains(strings.ToLower(p.Name), q),
			strings.Contains(strconv.FormatInt(p.ID, 10), q),
			p.Category != nil && strings.Contains(strings.ToLower(*p.Category), q):
			out = append(out, p)
		}
	}
	return out
}

type productForm struct {
	Name          string `validate:"required,max=200"`
	Quantity      string `validate:"required,number"`
	PurchasePrice string `validate:"required,numeric"`
	SellingPrice  string `validate:"required,numeric"`
	Category      string `validate:"max=100"`
	Supplier      string `validate:"max=100"`
}

type formData struct {
	Action string
	Form   productForm
	Errors map[string]string
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/product_form.html", "Add product", formData{Action: "/products"})
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.pages.Redirect(w, r, "/products", "error", "Unknown product.")
		return
	}
	p, err := h.store.GetProduct(r.Context(), view.Credentials(r), id)
	if err != nil {
		h.pages.Fail(w, r, err, "/products")
		return
	}
	form := productForm{
		Name:          p.Name,
		Quantity:      strconv.Itoa(p.Quantity),
		PurchasePrice: strconv.FormatFloat(p.PurchasePrice, 'f', 2, 64),
		SellingPrice:  strconv.FormatFloat(p.SellingPrice, 'f', 2, 64),
	}
	if p.Category != nil {
		form.Category = *p.Category
	}
	if p.Supplier != nil {
		form.Supplier = *p.Supplier
	}
	h.pages.Render(w, r, http.StatusOK, "pages/product_form.html", "Edit product", formData{Action: "/products/" + strconv.FormatInt(id, 10), Form: form})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, data, ok := h.parse(r, "/products")
	if !ok {
		h.pages.Render(w, r, http.StatusBadRequest, "pages/product_form.html", "Add product", data)
		return
	}
	p, err := h.store.CreateProduct(r.Context(), view.Credentials(r), in)
	if err != nil {
		h.rejectForm(w, r, err, "Add product", data)
		return
	}
	h.pages.Redirect(w, r, "/products", "success", "Product "+p.Name+" added.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.pages.Redirect(w, r, "/products", "error", "Unknown product.")
		return
	}
	in, data, ok := h.parse(r, "/products/"+strconv.FormatInt(id, 10))
	if !ok {
		h.pages.Render(w, r, http.StatusBadRequest, "pages/product_form.html", "Edit product", data)
		return
	}
	p, err := h.store.UpdateProduct(r.Context(), view.Credentials(r), id, in)
	if err != nil {
		h.rejectForm(w, r, err, "Edit product", data)
		return
	}
	h.pages.Redirect(w, r, "/products", "success", "Product "+p.Name+" updated.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		h.pages.Redirect(w, r, "/products", "error", "Unknown product.")
		return
	}
	if err := h.store.DeleteProduct(r.Context(), view.Credentials(r), id); err != nil {
		h.pages.Fail(w, r, err, "/products")
		return
	}
	h.pages.Redirect(w, r, "/products", "success", "Product deleted.")
}

// rejectForm re-renders the form with the API's reason, unless the API
// signed the caller out.
func (h *Handler) rejectForm(w http.ResponseWriter, r *http.Request, err error, title string, data formData) {
	if h.pages.ForcedLogout(w, r, err) {
		return
	}
	h.logger.Warn("product save rejected", slog.Any("error", err))
	data.Errors = map[string]string{"general": apiclient.Message(err)}
	status := http.StatusBadRequest
	if errors.Is(err, apiclient.ErrUnavailable) {
		status = http.StatusBadGateway
	}
	h.pages.Render(w, r, status, "pages/product_form.html", title, data)
}

func (h *Handler) parse(r *http.Request, action string) (apiclient.ProductInput, formData, bool) {
	data := formData{Action: action, Errors: map[string]string{}}
	if err := r.ParseForm(); err != nil {
		data.Errors["general"] = "The form could not be read."
		return apiclient.ProductInput{}, data, false
	}
	data.Form = productForm{
		Name:          strings.TrimSpace(r.PostFormValue("name")),
		Quantity:      strings.TrimSpace(r.PostFormValue("quantity")),
		PurchasePrice: strings.TrimSpace(r.PostFormValue("purchase_price")),
		SellingPrice:  strings.TrimSpace(r.PostFormValue("selling_price")),
		Category:      strings.TrimSpace(r.PostFormValue("category")),
		Supplier:      strings.TrimSpace(r.PostFormValue("supplier")),
	}
	if err := h.validator.Struct(data.Form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				data.Errors[fe.Field()] = fieldMessage(fe)
			}
		}
		return apiclient.ProductInput{}, data, false
	}

	qty, err := strconv.Atoi(data.Form.Quantity)
	if err != nil {
		data.Errors["Quantity"] = "Quantity must be a whole number"
	}
	purchase, err := strconv.ParseFloat(data.Form.PurchasePrice, 64)
	if err != nil || purchase < 0 {
		data.Errors["PurchasePrice"] = "Purchase price must be zero or more"
	}
	selling, err := strconv.ParseFloat(data.Form.SellingPrice, 64)
	if err != nil || selling < 0 {
		data.Errors["SellingPrice"] = "Selling price must be zero or more"
	}
	if len(data.Errors) > 0 {
		return apiclient.ProductInput{}, data, false
	}
	return apiclient.ProductInput{
		Name:          data.Form.Name,
		Quantity:      qty,
		PurchasePrice: purchase,
		SellingPrice:  selling,
		Category:      optional(data.Form.Category),
		Supplier:      optional(data.Form.Supplier),
	}, data, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "number":
		return "Enter a whole number of zero or more"
	case "numeric":
		return "Enter a number"
	case "max":
		return "This value is too long"
	default:
		return "This value is invalid"
	}
}
