package router

import (
	"regexp"
	"sync"
)

// regexCacheMaxSize bounds the number of compiled patterns kept across
// catalog reloads.
const regexCacheMaxSize = 1000

type regexCacheEntry struct {
	regex       *regexp.Regexp
	accessOrder int64
}

var (
	regexCache         = make(map[string]*regexCacheEntry)
	regexCacheMu       sync.Mutex
	regexAccessCounter int64
)

// compileRegex compiles expr, reusing a previously compiled pattern so a
// reload of an unchanged catalog does not recompile every template.
func compileRegex(expr string) (*regexp.Regexp, error) {
	metrics := getRegexCacheMetrics()

	regexCacheMu.Lock()
	if entry, ok := regexCache[expr]; ok {
		regexAccessCounter++
		entry.accessOrder = regexAccessCounter
		regexCacheMu.Unlock()
		metrics.cacheHits.Inc()
		return entry.regex, nil
	}
	regexCacheMu.Unlock()

	metrics.cacheMisses.Inc()

	// Compile outside the lock.
	regex, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()

	regexAccessCounter++
	if existing, ok := regexCache[expr]; ok {
		existing.accessOrder = regexAccessCounter
		return existing.regex, nil
	}

	if len(regexCache) >= regexCacheMaxSize {
		evictLRURegexEntry()
		metrics.cacheEvictions.Inc()
	}

	regexCache[expr] = &regexCacheEntry{regex: regex, accessOrder: regexAccessCounter}
	metrics.cacheSize.Set(float64(len(regexCache)))

	return regex, nil
}

// evictLRURegexEntry removes the least recently used entry.
// Must be called with regexCacheMu held.
func evictLRURegexEntry() {
	var lruKey string
	var lruOrder int64 = -1

	for key, entry := range regexCache {
		if lruOrder == -1 || entry.accessOrder < lruOrder {
			lruOrder = entry.accessOrder
			lruKey = key
		}
	}

	if lruKey != "" {
		delete(regexCache, lruKey)
	}
}
