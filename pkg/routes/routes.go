// Package routes declares HTTP routes as data and registers them on a ServeMux
// using method-qualified patterns.
package routes

import (
	"net/http"
	"sort"
)

// Route binds a method and path pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group is a set of routes sharing a prefix. Children inherit the prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds every route in groups to mux as "METHOD prefix+pattern".
func Register(mux *http.ServeMux, groups ...Group) {
	for _, g := range groups {
		register(mux, "", g)
	}
}

// Patterns lists the fully qualified patterns in groups, sorted.
func Patterns(groups ...Group) []string {
	var out []string
	var walk func(prefix string, g Group)
	walk = func(prefix string, g Group) {
		full := prefix + g.Prefix
		for _, r := range g.Routes {
			out = append(out, r.Method+" "+full+r.Pattern)
		}
		for _, c := range g.Children {
			walk(full, c)
		}
	}
	for _, g := range groups {
		walk("", g)
	}
	sort.Strings(out)
	return out
}

func register(mux *http.ServeMux, parent string, g Group) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		mux.HandleFunc(r.Method+" "+prefix+r.Pattern, r.Handler)
	}
	for _, c := range g.Children {
		register(mux, prefix, c)
	}
}
