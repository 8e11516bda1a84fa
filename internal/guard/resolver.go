package guard

// Resolve computes the landing target for the root path, unmatched paths and
// the login page when a session already exists. Its target for a role is the
// same default view Decide relocates that role to, and the registry admits
// every role to its default view, so following Resolve never bounces.
func (g *Guard) Resolve(store SessionStore) Decision {
	id, ok := g.identity(store)
	if !ok {
		return loginDecision()
	}
	home, err := g.registry.DefaultPath(id.User.Role)
	if err != nil {
		store.ClearAuth()
		return loginDecision()
	}
	return Decision{Outcome: RedirectToOwnDefault, Location: home, Identity: id}
}
