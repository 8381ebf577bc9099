package router

import (
	"cmp"
	"net/http"
	"slices"
	"strings"

	"github.com/vyrodovalexey/routegw/internal/util"
)

// Request describes an inbound request to the matcher.
type Request struct {
	// Path is the escaped request path.
	Path string
	// Query is the raw query string without the leading '?'.
	Query  string
	Method string
	Host   string
	Header http.Header
}

// NewRequest builds a Request from an inbound HTTP request.
func NewRequest(r *http.Request) Request {
	return Request{
		Path:   r.URL.EscapedPath(),
		Query:  r.URL.RawQuery,
		Method: r.Method,
		Host:   r.Host,
		Header: r.Header,
	}
}

// Candidate is a route the matcher can select.
type Candidate interface {
	UpstreamTemplate() *Template
	AcceptsMethod(method string) bool
	UpstreamHost() string
	HeaderRule() *HeaderRule
}

// Match is the route selected for a request with its placeholder values.
type Match[C Candidate] struct {
	Route        C
	Placeholders Placeholders
}

// Table is an immutable, priority-ordered set of routes.
type Table[C Candidate] struct {
	routes []C
}

// NewTable orders routes by descending priority. Routes of equal priority
// keep their given order.
func NewTable[C Candidate](routes []C) *Table[C] {
	sorted := slices.Clone(routes)
	slices.SortStableFunc(sorted, func(a, b C) int {
		return cmp.Compare(b.UpstreamTemplate().Priority(), a.UpstreamTemplate().Priority())
	})
	return &Table[C]{routes: sorted}
}

// Routes returns the routes in match order.
func (t *Table[C]) Routes() []C {
	return t.routes
}

// Match returns the route for req. Among matching routes one restricted to
// an upstream host wins over unrestricted ones; within each class the
// highest priority wins. It fails with a *util.RouteNotFoundError.
func (t *Table[C]) Match(req Request) (Match[C], error) {
	var fallback *Match[C]

	for _, route := range t.routes {
		if !eligible(route, req) {
			continue
		}
		ph, ok := route.UpstreamTemplate().Match(req.Path, req.Query)
		if !ok {
			continue
		}
		if route.UpstreamHost() != "" {
			return Match[C]{Route: route, Placeholders: ph}, nil
		}
		if fallback == nil {
			fallback = &Match[C]{Route: route, Placeholders: ph}
		}
	}

	if fallback != nil {
		return *fallback, nil
	}
	return Match[C]{}, util.NewRouteNotFoundError(req.Method, req.Path)
}

// eligible applies the method, host and header filters.
func eligible(route Candidate, req Request) bool {
	return route.AcceptsMethod(req.Method) &&
		HostMatches(route.UpstreamHost(), req.Host) &&
		route.HeaderRule().Satisfied(req.Header)
}

// HostMatches reports whether a request host satisfies an upstream host
// restriction. The comparison includes the port.
func HostMatches(restriction, host string) bool {
	return restriction == "" || strings.EqualFold(restriction, host)
}
