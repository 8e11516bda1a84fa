package access

// MenuItem is one sidebar entry.
type MenuItem struct {
	Title  string
	Path   string
	Active bool
}

// Menu builds the sidebar for role: its own dashboard first, then every menu
// view the role may reach. Unknown roles get an empty menu.
func (g *Registry) Menu(role Role, currentPath string) []MenuItem {
	home, err := g.DefaultPath(role)
	if err != nil {
		return nil
	}
	items := []MenuItem{{Title: "Dashboard", Path: home, Active: currentPath == home}}
	for _, rule := range g.rules {
		if !rule.InMenu || !rule.Allows(role) {
			continue
		}
		items = append(items, MenuItem{Title: rule.Title, Path: rule.Path, Active: currentPath == rule.Path})
	}
	return items
}
