package access

import (
	"errors"
	"fmt"
	"strings"
)

// ViewID identifies a protected view.
type ViewID string

// Protected views.
const (
	ViewUserDashboard       ViewID = "user-dashboard"
	ViewAdminDashboard      ViewID = "admin-dashboard"
	ViewSuperAdminDashboard ViewID = "super-admin-dashboard"
	ViewProducts            ViewID = "products"
	ViewGenerateBill        ViewID = "generate-bill"
	ViewBillHistory         ViewID = "bill-history"
	ViewBillPrint           ViewID = "bill-print"
	ViewAssistant           ViewID = "assistant"
	ViewSalesReport         ViewID = "sales-report"
	ViewProfitLoss          ViewID = "profit-loss"
	ViewUsers               ViewID = "view-users"
	ViewManageUsers         ViewID = "manage-users"
)

// LoginPath is where unauthenticated navigation ends up.
const LoginPath = "/login"

// ErrUnknownView indicates a view missing from the registry.
var ErrUnknownView = errors.New("access: unknown view")

// ViewAccessRule declares who may reach a view. The allowed set is every role
// ranked at or above MinRole, so higher tiers always inherit lower tiers' views.
type ViewAccessRule struct {
	View    ViewID
	Path    string
	Title   string
	MinRole Role
	InMenu  bool
}

// AllowedRoles expands MinRole into the set of roles allowed to reach the view.
func (r ViewAccessRule) AllowedRoles() []Role {
	var out []Role
	for _, role := range hierarchy {
		if role.AtLeast(r.MinRole) {
			out = append(out, role)
		}
	}
	return out
}

// Allows reports whether role may reach the view.
func (r ViewAccessRule) Allows(role Role) bool {
	return role.AtLeast(r.MinRole)
}

// defaultViews maps each role to the dashboard it owns.
var defaultViews = map[Role]ViewID{
	RoleUser:       ViewUserDashboard,
	RoleAdmin:      ViewAdminDashboard,
	RoleSuperAdmin: ViewSuperAdminDashboard,
}

// DefaultView returns the landing view owned by role.
func DefaultView(role Role) (ViewID, error) {
	view, ok := defaultViews[role]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, string(role))
	}
	return view, nil
}

// DefaultRules is the static view table of the application.
func DefaultRules() []ViewAccessRule {
	return []ViewAccessRule{
		{View: ViewUserDashboard, Path: "/user-dashboard", Title: "Dashboard", MinRole: RoleUser},
		{View: ViewAdminDashboard, Path: "/admin-dashboard", Title: "Admin Dashboard", MinRole: RoleAdmin},
		{View: ViewSuperAdminDashboard, Path: "/super-admin-dashboard", Title: "Super Admin Dashboard", MinRole: RoleSuperAdmin},
		{View: ViewGenerateBill, Path: "/generate-bill", Title: "Generate Bill", MinRole: RoleUser, InMenu: true},
		{View: ViewProducts, Path: "/products", Title: "Products", MinRole: RoleUser, InMenu: true},
		{View: ViewBillHistory, Path: "/bill-history", Title: "Bill History", MinRole: RoleUser, InMenu: true},
		{View: ViewBillPrint, Path: "/print-bill/{id}", Title: "Print Bill", MinRole: RoleUser},
		{View: ViewAssistant, Path: "/assistant", Title: "Assistant", MinRole: RoleUser},
		{View: ViewSalesReport, Path: "/sales-report", Title: "Sales Report", MinRole: RoleAdmin, InMenu: true},
		{View: ViewProfitLoss, Path: "/profit-loss", Title: "Profit/Loss", MinRole: RoleAdmin, InMenu: true},
		{View: ViewUsers, Path: "/users", Title: "View Users", MinRole: RoleAdmin, InMenu: true},
		{View: ViewManageUsers, Path: "/manage-users", Title: "Manage Users", MinRole: RoleSuperAdmin, InMenu: true},
	}
}

// Registry is the immutable lookup table of protected views.
type Registry struct {
	rules []ViewAccessRule
	byID  map[ViewID]ViewAccessRule
}

// NewRegistry validates rules and builds a Registry. It rejects duplicate
// views, unknown minimum roles, and any role whose default view it would not
// let through, so a redirect to a default view can never bounce again.
func NewRegistry(rules []ViewAccessRule) (*Registry, error) {
	reg := &Registry{byID: make(map[ViewID]ViewAccessRule, len(rules))}
	for _, rule := range rules {
		if rule.View == "" || rule.Path == "" {
			return nil, fmt.Errorf("access: rule %q missing view or path", rule.View)
		}
		if _, dup := reg.byID[rule.View]; dup {
			return nil, fmt.Errorf("access: duplicate rule for %q", rule.View)
		}
		if !rule.MinRole.Valid() {
			return nil, fmt.Errorf("access: rule %q: %w: %q", rule.View, ErrUnknownRole, string(rule.MinRole))
		}
		reg.byID[rule.View] = rule
		reg.rules = append(reg.rules, rule)
	}
	for _, role := range hierarchy {
		view, err := DefaultView(role)
		if err != nil {
			return nil, err
		}
		rule, ok := reg.byID[view]
		if !ok {
			return nil, fmt.Errorf("access: default view %q of %s: %w", view, role, ErrUnknownView)
		}
		if !rule.Allows(role) {
			return nil, fmt.Errorf("access: default view %q does not admit %s", view, role)
		}
		if strings.Contains(rule.Path, "{") {
			return nil, fmt.Errorf("access: default view %q needs a concrete path", view)
		}
	}
	return reg, nil
}

// MustDefaultRegistry builds the registry from DefaultRules and panics on error.
func MustDefaultRegistry() *Registry {
	reg, err := NewRegistry(DefaultRules())
	if err != nil {
		panic(err)
	}
	return reg
}

// Rule returns the rule declared for view.
func (g *Registry) Rule(view ViewID) (ViewAccessRule, bool) {
	rule, ok := g.byID[view]
	return rule, ok
}

// Rules returns the declared rules in registration order.
func (g *Registry) Rules() []ViewAccessRule {
	out := make([]ViewAccessRule, len(g.rules))
	copy(out, g.rules)
	return out
}

// Allows reports whether role may reach view. Unknown views admit nobody.
func (g *Registry) Allows(role Role, view ViewID) bool {
	rule, ok := g.byID[view]
	if !ok {
		return false
	}
	return rule.Allows(role)
}

// Path returns the route path of view.
func (g *Registry) Path(view ViewID) (string, error) {
	rule, ok := g.byID[view]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownView, string(view))
	}
	return rule.Path, nil
}

// DefaultPath returns the landing path for role.
func (g *Registry) DefaultPath(role Role) (string, error) {
	view, err := DefaultView(role)
	if err != nil {
		return "", err
	}
	return g.Path(view)
}

// ViewsFor lists the views role may reach, in registration order.
func (g *Registry) ViewsFor(role Role) []ViewID {
	var out []ViewID
	for _, rule := range g.rules {
		if rule.Allows(role) {
			out = append(out, rule.View)
		}
	}
	return out
}
