package router

import (
	"fmt"
	"regexp"
	"strings"
)

// Default priorities for templates without an explicit priority.
const (
	DefaultPriority  = 1
	CatchAllPriority = 0
)

// Source tells where a placeholder value was taken from.
type Source int

// Placeholder sources.
const (
	SourcePath Source = iota
	SourceQuery
	SourceWholeQuery
)

// Placeholder is a named value extracted from a request.
type Placeholder struct {
	Name   string
	Value  string
	Source Source
}

// Placeholders is the ordered set of values extracted by a template match.
type Placeholders []Placeholder

// Get returns the value bound to name. Names compare case-insensitively.
func (p Placeholders) Get(name string) (string, bool) {
	for _, ph := range p {
		if strings.EqualFold(ph.Name, name) {
			return ph.Value, true
		}
	}
	return "", false
}

// queryRule is one "key=value" pair of a template's query part. An empty
// placeholder means value is a literal the request must carry.
type queryRule struct {
	key         string
	placeholder string
	value       string
}

// Template is a compiled upstream path template.
type Template struct {
	original      string
	priority      int
	caseSensitive bool
	pattern       *regexp.Regexp
	pathNames     []string
	query         []queryRule
	wholeQuery    string
}

// token is a literal run or a placeholder name of a path template.
type token struct {
	literal string
	name    string
}

func (t token) isPlaceholder() bool { return t.name != "" }

// Compile compiles an upstream template. A nil priority selects
// DefaultPriority, or CatchAllPriority for a lone catch-all such as "/{url}".
func Compile(template string, caseSensitive bool, priority *int) (*Template, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("template %q must start with '/'", template)
	}

	pathPart, queryPart, _ := strings.Cut(template, "?")

	tokens, err := tokenize(pathPart)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", template, err)
	}

	t := &Template{
		original:      template,
		caseSensitive: caseSensitive,
	}

	expr, catchAllOnly := t.buildPathExpr(tokens)
	if t.pattern, err = compileRegex(expr); err != nil {
		return nil, fmt.Errorf("template %q: %w", template, err)
	}

	if err := t.parseQuery(queryPart); err != nil {
		return nil, fmt.Errorf("template %q: %w", template, err)
	}

	seen := make(map[string]bool)
	for _, name := range t.Names() {
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("template %q: placeholder {%s} is used more than once", template, name)
		}
		seen[key] = true
	}

	switch {
	case priority != nil:
		t.priority = *priority
	case catchAllOnly:
		t.priority = CatchAllPriority
	default:
		t.priority = DefaultPriority
	}

	return t, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(template string) *Template {
	t, err := Compile(template, false, nil)
	if err != nil {
		panic(err)
	}
	return t
}

// tokenize splits a path template into literal and placeholder tokens.
func tokenize(path string) ([]token, error) {
	var tokens []token
	for path != "" {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			if strings.IndexByte(path, '}') >= 0 {
				return nil, fmt.Errorf("unbalanced '}'")
			}
			tokens = append(tokens, token{literal: path})
			break
		}
		if open > 0 {
			if strings.IndexByte(path[:open], '}') >= 0 {
				return nil, fmt.Errorf("unbalanced '}'")
			}
			tokens = append(tokens, token{literal: path[:open]})
		}
		closing := strings.IndexByte(path[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("unbalanced '{'")
		}
		name := path[open+1 : open+closing]
		if name == "" || strings.ContainsAny(name, "{/") {
			return nil, fmt.Errorf("invalid placeholder {%s}", name)
		}
		tokens = append(tokens, token{name: name})
		path = path[open+closing+1:]
	}
	return tokens, nil
}

// buildPathExpr builds the anchored regular expression for the path part.
// Inner placeholders match one segment. A trailing placeholder matches the
// rest of the path, slashes included. A trailing slash is optional.
func (t *Template) buildPathExpr(tokens []token) (expr string, catchAllOnly bool) {
	var b strings.Builder
	if !t.caseSensitive {
		b.WriteString("(?i)")
	}
	b.WriteString("^")

	if len(tokens) == 2 && tokens[0].literal == "/" && tokens[1].isPlaceholder() {
		t.pathNames = []string{tokens[1].name}
		b.WriteString("/(.*)$")
		return b.String(), true
	}

	last := len(tokens) - 1
	trailingPlaceholder := last >= 0 && tokens[last].isPlaceholder()
	if !trailingPlaceholder && last >= 0 {
		tokens[last].literal = strings.TrimSuffix(tokens[last].literal, "/")
	}

	for i, tok := range tokens {
		switch {
		case !tok.isPlaceholder():
			b.WriteString(regexp.QuoteMeta(tok.literal))
		case i == last:
			t.pathNames = append(t.pathNames, tok.name)
			b.WriteString("(.+)")
		default:
			t.pathNames = append(t.pathNames, tok.name)
			b.WriteString("([^/]+)")
		}
	}

	if !trailingPlaceholder {
		b.WriteString("/?")
	}
	b.WriteString("$")
	return b.String(), false
}

// parseQuery compiles the query part of a template.
func (t *Template) parseQuery(query string) error {
	if query == "" {
		return nil
	}
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		if name, ok := placeholderName(part); ok {
			if t.wholeQuery != "" {
				return fmt.Errorf("more than one whole-query placeholder")
			}
			t.wholeQuery = name
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if key == "" {
			return fmt.Errorf("query part %q has no key", part)
		}
		if name, ok := placeholderName(value); ok {
			t.query = append(t.query, queryRule{key: key, placeholder: name})
			continue
		}
		if strings.ContainsAny(value, "{}") {
			return fmt.Errorf("invalid query part %q", part)
		}
		t.query = append(t.query, queryRule{key: key, value: value})
	}
	return nil
}

// placeholderName reports whether s is exactly one "{name}" placeholder.
func placeholderName(s string) (string, bool) {
	if len(s) < 3 || s[0] != '{' || s[len(s)-1] != '}' {
		return "", false
	}
	name := s[1 : len(s)-1]
	if strings.ContainsAny(name, "{}") {
		return "", false
	}
	return name, true
}

// Match matches an escaped request path and raw query string against the
// template and returns the extracted placeholders.
func (t *Template) Match(path, rawQuery string) (Placeholders, bool) {
	m := t.pattern.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}

	ph := make(Placeholders, 0, len(t.pathNames)+len(t.query)+1)
	for i, name := range t.pathNames {
		ph = append(ph, Placeholder{Name: name, Value: m[i+1], Source: SourcePath})
	}

	if !t.HasQuery() {
		return ph, true
	}

	params := splitQuery(rawQuery)
	for _, rule := range t.query {
		values := params.values(rule.key, t.caseSensitive)
		if len(values) == 0 {
			return nil, false
		}
		if rule.placeholder == "" {
			if !containsValue(values, rule.value, t.caseSensitive) {
				return nil, false
			}
			continue
		}
		ph = append(ph, Placeholder{Name: rule.placeholder, Value: values[0], Source: SourceQuery})
	}

	if t.wholeQuery != "" {
		if rawQuery == "" {
			return nil, false
		}
		ph = append(ph, Placeholder{Name: t.wholeQuery, Value: rawQuery, Source: SourceWholeQuery})
	}

	return ph, true
}

// Original returns the template as configured.
func (t *Template) Original() string { return t.original }

// Priority returns the effective priority.
func (t *Template) Priority() int { return t.priority }

// HasQuery reports whether the template constrains the query string.
func (t *Template) HasQuery() bool { return len(t.query) > 0 || t.wholeQuery != "" }

// Names returns every placeholder name in template order.
func (t *Template) Names() []string {
	names := make([]string, 0, len(t.pathNames)+len(t.query)+1)
	names = append(names, t.pathNames...)
	for _, rule := range t.query {
		if rule.placeholder != "" {
			names = append(names, rule.placeholder)
		}
	}
	if t.wholeQuery != "" {
		names = append(names, t.wholeQuery)
	}
	return names
}

// String implements fmt.Stringer.
func (t *Template) String() string { return t.original }

func containsValue(values []string, want string, caseSensitive bool) bool {
	for _, v := range values {
		if v == want || (!caseSensitive && strings.EqualFold(v, want)) {
			return true
		}
	}
	return false
}
