package router

import (
	"strings"
)

// BuildDownstreamPath substitutes placeholders into a downstream template
// and appends the inbound query. Inbound parameters whose key names a
// placeholder used by the downstream template are dropped, since their
// value was already placed by the template. The inbound query is not
// appended at all when the template forwards it through a whole-query
// placeholder. Placeholders missing from ph are left as written.
func BuildDownstreamPath(template string, ph Placeholders, rawQuery string) string {
	pathPart, queryPart, _ := strings.Cut(template, "?")

	used := make(map[string]Source)
	path := substitute(pathPart, ph, used)
	query := substitute(queryPart, ph, used)

	parts := make([]string, 0, 4)
	for _, part := range strings.Split(query, "&") {
		if part != "" {
			parts = append(parts, part)
		}
	}

	if !usesWholeQuery(used) {
		for _, p := range splitQuery(rawQuery) {
			if _, ok := used[strings.ToLower(p.key)]; ok {
				continue
			}
			parts = append(parts, p.raw)
		}
	}

	if path == "" {
		path = "/"
	}
	if len(parts) == 0 {
		return path
	}
	return path + "?" + strings.Join(parts, "&")
}

// substitute replaces each bound {name} in s and records the names used.
func substitute(s string, ph Placeholders, used map[string]Source) string {
	if !strings.Contains(s, "{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			break
		}
		closing := strings.IndexByte(s[open:], '}')
		if closing < 0 {
			b.WriteString(s)
			break
		}
		name := s[open+1 : open+closing]
		b.WriteString(s[:open])

		if value, source, ok := lookup(ph, name); ok {
			b.WriteString(value)
			used[strings.ToLower(name)] = source
		} else {
			b.WriteString(s[open : open+closing+1])
		}
		s = s[open+closing+1:]
	}
	return b.String()
}

func lookup(ph Placeholders, name string) (string, Source, bool) {
	for _, p := range ph {
		if strings.EqualFold(p.Name, name) {
			return p.Value, p.Source, true
		}
	}
	return "", 0, false
}

func usesWholeQuery(used map[string]Source) bool {
	for _, source := range used {
		if source == SourceWholeQuery {
			return true
		}
	}
	return false
}
