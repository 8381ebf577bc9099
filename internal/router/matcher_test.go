package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/routegw/internal/util"
)

type testRoute struct {
	name     string
	template *Template
	methods  []string
	host     string
	headers  *HeaderRule
}

func (r *testRoute) UpstreamTemplate() *Template { return r.template }
func (r *testRoute) UpstreamHost() string        { return r.host }
func (r *testRoute) HeaderRule() *HeaderRule     { return r.headers }

func (r *testRoute) AcceptsMethod(method string) bool {
	if len(r.methods) == 0 {
		return true
	}
	for _, m := range r.methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func newTestRoute(name, template string, priority *int) *testRoute {
	tmpl, err := Compile(template, false, priority)
	if err != nil {
		panic(err)
	}
	return &testRoute{name: name, template: tmpl}
}

func intPtr(i int) *int { return &i }

func TestTable_Match_Priority(t *testing.T) {
	t.Parallel()

	low := newTestRoute("low", "/products/{id}", intPtr(0))
	high := newTestRoute("high", "/products/{id}", intPtr(5))
	table := NewTable([]*testRoute{low, high})

	m, err := table.Match(Request{Path: "/products/1", Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, "high", m.Route.name)
	assert.Equal(t, []*testRoute{high, low}, table.Routes())
}

func TestTable_Match_SpecificBeatsCatchAll(t *testing.T) {
	t.Parallel()

	catchAll := newTestRoute("catch-all", "/{everything}", nil)
	specific := newTestRoute("specific", "/users/{id}", nil)
	table := NewTable([]*testRoute{catchAll, specific})

	m, err := table.Match(Request{Path: "/users/3", Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, "specific", m.Route.name)

	m, err = table.Match(Request{Path: "/other", Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, "catch-all", m.Route.name)
}

func TestTable_Match_TiesKeepCatalogOrder(t *testing.T) {
	t.Parallel()

	first := newTestRoute("first", "/a/{x}", nil)
	second := newTestRoute("second", "/a/{y}", nil)

	m, err := NewTable([]*testRoute{first, second}).Match(Request{Path: "/a/1", Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, "first", m.Route.name)
}

func TestTable_Match_HostPreferred(t *testing.T) {
	t.Parallel()

	open := newTestRoute("open", "/", intPtr(10))
	hosted := newTestRoute("hosted", "/", nil)
	hosted.host = "api.example.com"
	table := NewTable([]*testRoute{open, hosted})

	m, err := table.Match(Request{Path: "/", Method: http.MethodGet, Host: "api.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "hosted", m.Route.name)

	m, err = table.Match(Request{Path: "/", Method: http.MethodGet, Host: "api.example.com:9999"})
	require.NoError(t, err)
	assert.Equal(t, "open", m.Route.name)

	m, err = table.Match(Request{Path: "/", Method: http.MethodGet, Host: "other.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "open", m.Route.name)
}

func TestTable_Match_Methods(t *testing.T) {
	t.Parallel()

	get := newTestRoute("get", "/items", nil)
	get.methods = []string{"get"}
	post := newTestRoute("post", "/items", nil)
	post.methods = []string{"POST"}
	table := NewTable([]*testRoute{get, post})

	m, err := table.Match(Request{Path: "/items", Method: http.MethodPost})
	require.NoError(t, err)
	assert.Equal(t, "post", m.Route.name)

	_, err = table.Match(Request{Path: "/items", Method: http.MethodDelete})
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestTable_Match_HeaderRules(t *testing.T) {
	t.Parallel()

	anyRoute := newTestRoute("any", "/h", intPtr(2))
	anyRoute.headers = NewHeaderRule(HeaderModeAny, map[string][]string{
		"x-tenant": {"blue"},
		"X-Beta":   {"on"},
	})
	allRoute := newTestRoute("all", "/h", intPtr(3))
	allRoute.headers = NewHeaderRule(HeaderModeAll, map[string][]string{
		"X-Tenant": {"blue"},
		"X-Beta":   {"on"},
	})
	fallback := newTestRoute("fallback", "/h", intPtr(1))
	table := NewTable([]*testRoute{anyRoute, allRoute, fallback})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "all satisfied", headers: map[string]string{"X-Tenant": "BLUE", "X-Beta": "on"}, want: "all"},
		{name: "one satisfied", headers: map[string]string{"X-Beta": "on"}, want: "any"},
		{name: "wrong value", headers: map[string]string{"X-Tenant": "red"}, want: "fallback"},
		{name: "none", want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			header := http.Header{}
			for k, v := range tt.headers {
				header.Set(k, v)
			}
			m, err := table.Match(Request{Path: "/h", Method: http.MethodGet, Header: header})
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Route.name)
		})
	}
}

func TestTable_Match_QueryTemplate(t *testing.T) {
	t.Parallel()

	route := newTestRoute("users", "/users?userId={uid}", nil)
	table := NewTable([]*testRoute{route})

	m, err := table.Match(Request{Path: "/users", Query: "userId=9", Method: http.MethodGet})
	require.NoError(t, err)
	v, _ := m.Placeholders.Get("uid")
	assert.Equal(t, "9", v)

	_, err = table.Match(Request{Path: "/users", Method: http.MethodGet})
	var notFound *util.RouteNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "/users", notFound.Path)
}

func TestTable_Match_Deterministic(t *testing.T) {
	t.Parallel()

	routes := []*testRoute{
		newTestRoute("a", "/{x}", nil),
		newTestRoute("b", "/v1/{rest}", nil),
		newTestRoute("c", "/v1/users/{id}", intPtr(2)),
	}
	table := NewTable(routes)
	req := Request{Path: "/v1/users/5", Method: http.MethodGet}

	first, err := table.Match(req)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		m, err := table.Match(req)
		require.NoError(t, err)
		assert.Same(t, first.Route, m.Route)
		assert.Equal(t, first.Placeholders, m.Placeholders)
	}
	assert.Equal(t, "c", first.Route.name)
}

func TestNewRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPut, "http://api.local:8080/a%2Fb/c?x=1", nil)
	r.Header.Set("X-Test", "yes")

	req := NewRequest(r)
	assert.Equal(t, "/a%2Fb/c", req.Path)
	assert.Equal(t, "x=1", req.Query)
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "api.local:8080", req.Host)
	assert.Equal(t, "yes", req.Header.Get("X-Test"))
}

func TestHostMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		restriction string
		host        string
		want        bool
	}{
		{"", "anything", true},
		{"api.local", "api.local", true},
		{"API.local", "api.LOCAL", true},
		{"api.local", "api.local:8080", false},
		{"api.local", "api.local:9999", false},
		{"api.local:8080", "api.local:8080", true},
		{"api.local:8080", "api.local:9090", false},
		{"api.local", "other.local", false},
		{"api.local", "other.local:80", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HostMatches(tt.restriction, tt.host), "%s vs %s", tt.restriction, tt.host)
	}
}

func TestHeaderRule_NilAndEmptyValues(t *testing.T) {
	t.Parallel()

	var rule *HeaderRule
	assert.True(t, rule.Satisfied(nil))

	presence := NewHeaderRule(HeaderModeAll, map[string][]string{"X-Present": nil})
	assert.False(t, presence.Satisfied(http.Header{}))
	assert.True(t, presence.Satisfied(http.Header{"X-Present": {"whatever"}}))
	assert.Equal(t, "all", presence.Mode.String())
	assert.Equal(t, "any", HeaderModeAny.String())
}
