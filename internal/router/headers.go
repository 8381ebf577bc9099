package router

import (
	"net/http"
	"strings"
)

// HeaderMode selects how a HeaderRule combines its predicates.
type HeaderMode int

// Header rule modes.
const (
	HeaderModeAny HeaderMode = iota
	HeaderModeAll
)

// String implements fmt.Stringer.
func (m HeaderMode) String() string {
	if m == HeaderModeAll {
		return "all"
	}
	return "any"
}

// HeaderRule restricts a route to requests carrying given header values.
// Each entry maps a header name to the values it may take; values compare
// case-insensitively.
type HeaderRule struct {
	Mode    HeaderMode
	Headers map[string][]string
}

// NewHeaderRule creates a rule. Header names are canonicalized.
func NewHeaderRule(mode HeaderMode, headers map[string][]string) *HeaderRule {
	canonical := make(map[string][]string, len(headers))
	for name, values := range headers {
		key := http.CanonicalHeaderKey(name)
		canonical[key] = append(canonical[key], values...)
	}
	return &HeaderRule{Mode: mode, Headers: canonical}
}

// Satisfied reports whether h satisfies the rule. A nil rule is always
// satisfied.
func (r *HeaderRule) Satisfied(h http.Header) bool {
	if r == nil || len(r.Headers) == 0 {
		return true
	}

	for name, allowed := range r.Headers {
		ok := headerMatches(h.Values(name), allowed)
		if ok && r.Mode == HeaderModeAny {
			return true
		}
		if !ok && r.Mode == HeaderModeAll {
			return false
		}
	}
	return r.Mode == HeaderModeAll
}

// headerMatches reports whether any present value is allowed. An empty
// allowed list only requires presence.
func headerMatches(present, allowed []string) bool {
	if len(present) == 0 {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, value := range present {
		for _, want := range allowed {
			if strings.EqualFold(strings.TrimSpace(value), want) {
				return true
			}
		}
	}
	return false
}
