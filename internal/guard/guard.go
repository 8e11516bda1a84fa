// Package guard decides, from the session alone, whether a navigation to a
// protected view renders, goes to the login page, or is relocated to the
// caller's own landing view.
package guard

import (
	"errors"
	"log/slog"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/shared"
)

// SessionStore is the part of the session the guard needs.
type SessionStore interface {
	Snapshot() (access.Identity, error)
	ClearAuth()
}

// Outcome is the terminal state of one guard evaluation.
type Outcome string

// Guard outcomes.
const (
	Render               Outcome = "render"
	Login                Outcome = "login"
	RedirectToOwnDefault Outcome = "redirect_default"
)

// Decision is the result of a guard or resolver evaluation.
type Decision struct {
	Outcome  Outcome
	Location string
	Identity access.Identity
}

// Recorder receives every decision, typically a metrics sink.
type Recorder interface {
	RecordGuardDecision(view, outcome string)
}

// Guard evaluates navigation attempts against the view registry.
type Guard struct {
	registry *access.Registry
	logger   *slog.Logger
	recorder Recorder
}

// New constructs a Guard. logger and recorder may be nil.
func New(registry *access.Registry, logger *slog.Logger, recorder Recorder) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{registry: registry, logger: logger, recorder: recorder}
}

// Registry exposes the view registry the guard enforces.
func (g *Guard) Registry() *access.Registry {
	return g.registry
}

// Decide evaluates a navigation to view.
func (g *Guard) Decide(store SessionStore, view access.ViewID) Decision {
	d := g.decide(store, view)
	if g.recorder != nil {
		g.recorder.RecordGuardDecision(string(view), string(d.Outcome))
	}
	return d
}

func (g *Guard) decide(store SessionStore, view access.ViewID) Decision {
	id, ok := g.identity(store)
	if !ok {
		return loginDecision()
	}
	if g.registry.Allows(id.User.Role, view) {
		return Decision{Outcome: Render, Identity: id}
	}
	home, err := g.registry.DefaultPath(id.User.Role)
	if err != nil {
		g.logger.Error("guard default path", slog.String("role", string(id.User.Role)), slog.Any("error", err))
		store.ClearAuth()
		return loginDecision()
	}
	return Decision{Outcome: RedirectToOwnDefault, Location: home, Identity: id}
}

// identity returns the stored identity when it is complete and carries a
// known role. An unknown role invalidates the whole session.
func (g *Guard) identity(store SessionStore) (access.Identity, bool) {
	if store == nil {
		return access.Identity{}, false
	}
	id, err := store.Snapshot()
	if err != nil {
		if errors.Is(err, shared.ErrMalformedSession) {
			g.logger.Warn("discarded malformed session")
		}
		return access.Identity{}, false
	}
	if !id.User.Role.Valid() {
		g.logger.Warn("discarded session with unknown role",
			slog.String("role", string(id.User.Role)),
			slog.Int64("user_id", id.User.ID))
		store.ClearAuth()
		return access.Identity{}, false
	}
	return id, true
}

func loginDecision() Decision {
	return Decision{Outcome: Login, Location: access.LoginPath}
}
