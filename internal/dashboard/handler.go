// Package dashboard renders the three landing views. Each loads its figures
// from the store API concurrently.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/view"
)

const recentBills = 5

// Store is the part of the API the dashboards read.
type Store interface {
	ListProducts(ctx context.Context, creds apiclient.Credentials) ([]apiclient.Product, error)
	ListBills(ctx context.Context, creds apiclient.Credentials) ([]apiclient.Bill, error)
	MyBills(ctx context.Context, creds apiclient.Credentials) ([]apiclient.Bill, error)
	ListUsers(ctx context.Context, creds apiclient.Credentials) ([]access.UserProfile, error)
}

// Handler serves the dashboards.
type Handler struct {
	logger    *slog.Logger
	store     Store
	pages     *view.Pages
	guard     *guard.Guard
	threshold int
}

// NewHandler builds Handler instance. threshold marks low stock.
func NewHandler(logger *slog.Logger, store Store, pages *view.Pages, g *guard.Guard, threshold int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, pages: pages, guard: g, threshold: threshold}
}

// MountRoutes registers the dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, v := range []access.ViewID{access.ViewUserDashboard, access.ViewAdminDashboard, access.ViewSuperAdminDashboard} {
		rule, ok := h.guard.Registry().Rule(v)
		if !ok {
			continue
		}
		r.With(h.guard.Require(v)).Get(rule.Path, func(w http.ResponseWriter, r *http.Request) {
			h.show(w, r, v, rule.Title)
		})
	}
}

// RoleCount is the number of accounts holding a role.
type RoleCount struct {
	Role  access.Role
	Count int
}

// Data feeds pages/dashboard.html.
type Data struct {
	ProductCount int
	LowStock     []apiclient.Product
	AllBills     bool
	BillCount    int
	RecentBills  []apiclient.Bill
	ShowUsers    bool
	UserCount    int
	RoleCounts   []RoleCount
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request, v access.ViewID, title string) {
	data, err := h.load(r.Context(), view.Credentials(r), v)
	if err != nil {
		h.pages.Fail(w, r, err, "")
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/dashboard.html", title, data)
}

func (h *Handler) load(ctx context.Context, creds apiclient.Credentials, v access.ViewID) (Data, error) {
	var (
		data     Data
		products []apiclient.Product
		bills    []apiclient.Bill
		users    []access.UserProfile
	)
	data.AllBills = v != access.ViewUserDashboard
	data.ShowUsers = data.AllBills

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = h.store.ListProducts(gctx, creds)
		return err
	})
	g.Go(func() error {
		var err error
		if data.AllBills {
			bills, err = h.store.ListBills(gctx, creds)
		} else {
			bills, err = h.store.MyBills(gctx, creds)
		}
		return err
	})
	if data.ShowUsers {
		g.Go(func() error {
			var err error
			users, err = h.store.ListUsers(gctx, creds)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Data{}, err
	}

	data.ProductCount = len(products)
	data.LowStock = LowStock(products, h.threshold)
	data.BillCount = len(bills)
	data.RecentBills = Recent(bills, recentBills)
	data.UserCount = len(users)
	if v == access.ViewSuperAdminDashboard {
		data.RoleCounts = CountRoles(users)
	}
	return data, nil
}

// LowStock returns the products whose quantity is under threshold, scarcest
// first.
func LowStock(products []apiclient.Product, threshold int) []apiclient.Product {
	var out []apiclient.Product
	for _, p := range products {
		if p.Quantity < threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out
}

// Recent returns at most n bills, newest first.
func Recent(bills []apiclient.Bill, n int) []apiclient.Bill {
	out := make([]apiclient.Bill, len(bills))
	copy(out, bills)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// CountRoles tallies accounts per role in hierarchy order. Accounts with a
// role outside the hierarchy are not counted.
func CountRoles(users []access.UserProfile) []RoleCount {
	counts := make(map[access.Role]int)
	for _, u := range users {
		counts[u.Role]++
	}
	out := make([]RoleCount, 0, len(access.Roles()))
	for _, role := range access.Roles() {
		out = append(out, RoleCount{Role: role, Count: counts[role]})
	}
	return out
}
