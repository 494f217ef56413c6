package guard

import (
	"strings"
)

// Route describes one navigable path and its access rule
type Route struct {
	Path         string // pattern, segments starting with ':' match any value
	Name         string
	RequiresAuth bool // only reachable when authenticated
	PublicOnly   bool // only reachable when not authenticated
}

// Params holds the values bound to ':name' segments
type Params map[string]string

// Table matches paths against an ordered set of routes
type Table struct {
	routes []Route
}

// NewTable creates a route table. Earlier routes win on ambiguous matches,
// and a static segment always beats a parameter.
func NewTable(routes ...Route) *Table {
	return &Table{routes: append([]Route(nil), routes...)}
}

// Routes returns the routes in declaration order
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Match finds the route for path
func (t *Table) Match(path string) (Route, Params, bool) {
	segments := split(path)

	var (
		best       Route
		bestParams Params
		bestStatic = -1
	)
	for _, r := range t.routes {
		params, static, ok := match(split(r.Path), segments)
		if ok && static > bestStatic {
			best, bestParams, bestStatic = r, params, static
		}
	}
	if bestStatic < 0 {
		return Route{}, nil, false
	}
	return best, bestParams, true
}

// match reports whether pattern matches segments and how many segments
// matched literally
func match(pattern, segments []string) (Params, int, bool) {
	if len(pattern) != len(segments) {
		return nil, 0, false
	}

	params := Params{}
	static := 0
	for i, p := range pattern {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			if segments[i] == "" {
				return nil, 0, false
			}
			params[name] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, 0, false
		}
		static++
	}
	return params, static, true
}

// split normalizes path into its segments, dropping query and fragment
func split(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Clean returns path without query, fragment and trailing slash
func Clean(path string) string {
	return "/" + strings.Join(split(path), "/")
}

// DefaultRoutes returns the application's route table
func DefaultRoutes() *Table {
	return NewTable(
		Route{Path: "/", Name: "Root"},

		// Public routes
		Route{Path: "/home", Name: "Home", PublicOnly: true},
		Route{Path: "/login", Name: "Login", PublicOnly: true},
		Route{Path: "/register", Name: "Register", PublicOnly: true},

		// Protected routes
		Route{Path: "/dashboard", Name: "Dashboard", RequiresAuth: true},
		Route{Path: "/logout", Name: "Logout", RequiresAuth: true},
		Route{Path: "/report", Name: "Report", RequiresAuth: true},
		Route{Path: "/profile", Name: "Profile", RequiresAuth: true},
		Route{Path: "/settings", Name: "Settings", RequiresAuth: true},
		Route{Path: "/projects", Name: "Projects", RequiresAuth: true},
		Route{Path: "/project/:projectId", Name: "ProjectPage", RequiresAuth: true},
		Route{Path: "/project/update/:projectId", Name: "UpdateProjectPage", RequiresAuth: true},
		Route{Path: "/projects/create", Name: "CreateProject", RequiresAuth: true},
		Route{Path: "/vulns", Name: "Vulns", RequiresAuth: true},
		Route{Path: "/help", Name: "Help", RequiresAuth: true},
		Route{Path: "/contact", Name: "Contact", RequiresAuth: true},
		Route{Path: "/about", Name: "About", RequiresAuth: true},
		Route{Path: "/messages", Name: "Messages", RequiresAuth: true},
		Route{Path: "/team", Name: "Team", RequiresAuth: true},
		Route{Path: "/project/:projectId/assignments", Name: "Assignments", RequiresAuth: true},
		Route{Path: "/notifications", Name: "Notifications", RequiresAuth: true},
		Route{Path: "/calendar", Name: "Calendar", RequiresAuth: true},
	)
}
