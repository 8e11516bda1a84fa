// Package bills serves bill generation, bill history and printable bills.
package bills

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/view"
)

// Store is the part of the API the bill pages use.
type Store interface {
	ListProducts(ctx context.Context, creds apiclient.Credentials) ([]apiclient.Product, error)
	CreateBill(ctx context.Context, creds apiclient.Credentials, lines []apiclient.BillLine) (apiclient.Bill, error)
	ListBills(ctx context.Context, creds apiclient.Credentials) ([]apiclient.Bill, error)
	MyBills(ctx context.Context, creds apiclient.Credentials) ([]apiclient.Bill, error)
	GetBill(ctx context.Context, creds apiclient.Credentials, id int64) (apiclient.Bill, error)
}

// PDFRenderer converts an HTML document to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// Handler manages bill endpoints.
type Handler struct {
	logger *slog.Logger
	store  Store
	pdf    PDFRenderer
	pages  *view.Pages
	guard  *guard.Guard
}

// NewHandler builds Handler instance. pdf may be nil, which disables PDF
// downloads.
func NewHandler(logger *slog.Logger, store Store, pdf PDFRenderer, pages *view.Pages, g *guard.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, pdf: pdf, pages: pages, guard: g}
}

// MountRoutes registers bill routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(access.ViewGenerateBill)).Get("/generate-bill", h.showGenerate)
	r.With(h.guard.Require(access.ViewGenerateBill)).Post("/generate-bill", h.generate)
	r.With(h.guard.Require(access.ViewBillHistory)).Get("/bill-history", h.history)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(access.ViewBillPrint))
		r.Get("/print-bill/{id}", h.print)
		r.Get("/print-bill/{id}/pdf", h.printPDF)
	})
}

type generateData struct {
	Products   []apiclient.Product
	Quantities map[int64]string
	Errors     map[string]string
}

// InStock keeps the products that can still be sold.
func InStock(products []apiclient.Product) []apiclient.Product {
	out := make([]apiclient.Product, 0, len(products))
	for _, p := range products {
		if p.Quantity > 0 {
			out = append(out, p)
		}
	}
	return out
}

func (h *Handler) showGenerate(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context(), view.Credentials(r))
	if err != nil {
		h.pages.Fail(w, r, err, "")
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/generate_bill.html", "Generate bill", generateData{
		Products:   InStock(products),
		Quantities: map[int64]string{},
	})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	products, err := h.store.ListProducts(r.Context(), view.Credentials(r))
	if err != nil {
		h.pages.Fail(w, r, err, "")
		return
	}
	stock := InStock(products)
	lines, data := ParseLines(stock, r.PostForm)
	if len(data.Errors) > 0 {
		h.pages.Render(w, r, http.StatusBadRequest, "pages/generate_bill.html", "Generate bill", data)
		return
	}

	bill, err := h.store.CreateBill(r.Context(), view.Credentials(r), lines)
	if err != nil {
		if h.pages.ForcedLogout(w, r, err) {
			return
		}
		h.logger.Warn("create bill rejected", slog.Any("error", err))
		data.Errors["general"] = apiclient.Message(err)
		h.pages.Render(w, r, http.StatusBadRequest, "pages/generate_bill.html", "Generate bill", data)
		return
	}
	h.logger.Info("bill created", slog.String("bill_number", bill.BillNumber), slog.Int("lines", len(lines)))
	h.pages.Redirect(w, r, "/print-bill/"+strconv.FormatInt(bill.ID, 10), "success", "Bill "+bill.BillNumber+" generated.")
}

// ParseLines reads the qty_<id> fields of form against the products on sale.
// Blank and zero quantities are skipped. The returned data echoes the input
// and carries a message per rejected field.
func ParseLines(products []apiclient.Product, form map[string][]string) ([]apiclient.BillLine, generateData) {
	data := generateData{Products: products, Quantities: map[int64]string{}, Errors: map[string]string{}}
	var lines []apiclient.BillLine
	for _, p := range products {
		field := fmt.Sprintf("qty_%d", p.ID)
		var raw string
		if v := form[field]; len(v) > 0 {
			raw = strings.TrimSpace(v[0])
		}
		data.Quantities[p.ID] = raw
		if raw == "" {
			continue
		}
		qty, err := strconv.Atoi(raw)
		switch {
		case err != nil || qty < 0:
			data.Errors[field] = "Enter a whole number of zero or more"
		case qty > p.Quantity:
			data.Errors[field] = fmt.Sprintf("Only %d units available in stock", p.Quantity)
		case qty > 0:
			lines = append(lines, apiclient.BillLine{ProductID: p.ID, Quantity: qty})
		}
	}
	if len(lines) == 0 && len(data.Errors) == 0 {
		data.Errors["general"] = "Add at least one product to generate a bill."
	}
	return lines, data
}

type historyData struct {
	AllBills bool
	Bills    []apiclient.Bill
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	var (
		bills []apiclient.Bill
		err   error
	)
	all := id.User.Role.AtLeast(access.RoleAdmin)
	if all {
		bills, err = h.store.ListBills(r.Context(), view.Credentials(r))
	} else {
		bills, err = h.store.MyBills(r.Context(), view.Credentials(r))
	}
	if err != nil {
		h.pages.Fail(w, r, err, "")
		return
	}
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].CreatedAt.After(bills[j].CreatedAt.Time)
	})
	h.pages.Render(w, r, http.StatusOK, "pages/bill_history.html", "Bill history", historyData{AllBills: all, Bills: bills})
}

type printData struct {
	Bill apiclient.Bill
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	bill, ok := h.loadBill(w, r)
	if !ok {
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/bill_print.html", "Bill "+bill.BillNumber, printData{Bill: bill})
}

func (h *Handler) printPDF(w http.ResponseWriter, r *http.Request) {
	bill, ok := h.loadBill(w, r)
	if !ok {
		return
	}
	back := "/print-bill/" + strconv.FormatInt(bill.ID, 10)
	if h.pdf == nil {
		h.pages.Redirect(w, r, back, "error", "PDF export is not available.")
		return
	}
	html, err := h.pages.Document("pages/bill_pdf.html", bill.BillNumber, printData{Bill: bill})
	if err != nil {
		h.logger.Error("render bill document", slog.Any("error", err))
		h.pages.Redirect(w, r, back, "error", "PDF export is not available.")
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Warn("render bill pdf", slog.String("bill_number", bill.BillNumber), slog.Any("error", err))
		h.pages.Redirect(w, r, back, "error", "PDF export is not available.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bill.BillNumber+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) loadBill(w http.ResponseWriter, r *http.Request) (apiclient.Bill, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.pages.Redirect(w, r, "/bill-history", "error", "Unknown bill.")
		return apiclient.Bill{}, false
	}
	bill, err := h.store.GetBill(r.Context(), view.Credentials(r), id)
	if err != nil {
		h.pages.Fail(w, r, err, "/bill-history")
		return apiclient.Bill{}, false
	}
	return bill, true
}
