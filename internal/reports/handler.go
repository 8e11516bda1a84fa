// Package reports serves the daily sales and profit pages.
package reports

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/view"
)

// Store is the part of the API the report pages use.
type Store interface {
	DailySales(ctx context.Context, creds apiclient.Credentials, day time.Time) (apiclient.DailySales, error)
	DailyProfit(ctx context.Context, creds apiclient.Credentials, day time.Time) (apiclient.DailyProfit, error)
}

// Handler manages report endpoints.
type Handler struct {
	logger *slog.Logger
	store  Store
	pages  *view.Pages
	guard  *guard.Guard
	now    func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store Store, pages *view.Pages, g *guard.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, pages: pages, guard: g, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(access.ViewSalesReport)).Get("/sales-report", h.sales)
	r.With(h.guard.Require(access.ViewProfitLoss)).Get("/profit-loss", h.profit)
}

type salesData struct {
	Date   string
	Report *apiclient.DailySales
}

type profitData struct {
	Date   string
	Report *apiclient.DailyProfit
}

func (h *Handler) sales(w http.ResponseWriter, r *http.Request) {
	day, ok := h.reportDay(w, r)
	if !ok {
		return
	}
	report, err := h.store.DailySales(r.Context(), view.Credentials(r), day)
	if err != nil {
		h.pages.Fail(w, r, err, "")
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/sales_report.html", "Sales report", salesData{Date: day.Format(time.DateOnly), Report: &report})
}

func (h *Handler) profit(w http.ResponseWriter, r *http.Request) {
	day, ok := h.reportDay(w, r)
	if !ok {
		return
	}
	report, err := h.store.DailyProfit(r.Context(), view.Credentials(r), day)
	if err != nil {
		h.pages.Fail(w, r, err, "")
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/profit_loss.html", "Profit/Loss", profitData{Date: day.Format(time.DateOnly), Report: &report})
}

// reportDay reads ?date=YYYY-MM-DD, defaulting to today. A malformed date
// sends the caller back to today's report.
func (h *Handler) reportDay(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		now := h.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		h.pages.Redirect(w, r, r.URL.Path, "error", "Choose a valid date.")
		return time.Time{}, false
	}
	return day, true
}
