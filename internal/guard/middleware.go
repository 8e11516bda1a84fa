package guard

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/observability"
	"github.com/storedesk/storedesk/internal/platform/httpx"
	"github.com/storedesk/storedesk/internal/shared"
)

// Require guards every route below it with the rule of view. Admitted
// requests carry the identity in their context.
func (g *Guard) Require(view access.ViewID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := observability.StartGuardSpan(r.Context(), string(view))
			d := g.Decide(storeFromRequest(r), view)
			span.SetAttributes(attribute.String("storedesk.guard.outcome", string(d.Outcome)))
			span.End()
			if d.Outcome != Render {
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
				return
			}
			ctx = shared.ContextWithIdentity(ctx, d.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireJSON is Require for endpoints called from scripts. Instead of a
// redirect it answers 401 or 403 with the location the page should load.
func (g *Guard) RequireJSON(view access.ViewID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Decide(storeFromRequest(r), view)
			switch d.Outcome {
			case Render:
				ctx := shared.ContextWithIdentity(r.Context(), d.Identity)
				next.ServeHTTP(w, r.WithContext(ctx))
			case Login:
				httpx.JSON(w, http.StatusUnauthorized, Redirection{Detail: "Sign in required", Redirect: d.Location})
			default:
				httpx.JSON(w, http.StatusForbidden, Redirection{Detail: "Not available for your role", Redirect: d.Location})
			}
		})
	}
}

// Redirection is the JSON body of a guarded endpoint that refused a caller.
type Redirection struct {
	Detail   string `json:"detail"`
	Redirect string `json:"redirect"`
}

// RedirectHome sends the caller to the resolver target. Mounted on "/" and as
// the not-found handler.
func (g *Guard) RedirectHome(w http.ResponseWriter, r *http.Request) {
	d := g.Resolve(storeFromRequest(r))
	http.Redirect(w, r, d.Location, http.StatusSeeOther)
}

func storeFromRequest(r *http.Request) SessionStore {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil
	}
	return sess
}
