package router

import (
	"net/url"
	"strings"
)

// queryParam is one "key=value" pair of a raw query string. Value and raw
// keep their original escaping so they can be forwarded unchanged.
type queryParam struct {
	key   string
	value string
	raw   string
}

type queryParams []queryParam

// splitQuery splits a raw query string without decoding values.
func splitQuery(rawQuery string) queryParams {
	if rawQuery == "" {
		return nil
	}
	parts := strings.Split(rawQuery, "&")
	params := make(queryParams, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		params = append(params, queryParam{key: key, value: value, raw: part})
	}
	return params
}

// values returns the raw values for key in order of appearance.
func (q queryParams) values(key string, caseSensitive bool) []string {
	var out []string
	for _, p := range q {
		if p.key == key || (!caseSensitive && strings.EqualFold(p.key, key)) {
			out = append(out, p.value)
		}
	}
	return out
}
