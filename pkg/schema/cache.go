// Package schema provides a TTL-bounded cache of catalog table metadata
// with categorized field summaries and fuzzy-match miss recovery.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agext/levenshtein"
)

const (
	// maxSuggestions bounds the fuzzy-match list on a miss.
	maxSuggestions = 5
	// minSimilarity is the cutoff below which a cached name is not offered
	// as a suggestion.
	minSimilarity = 0.55
)

// Entry is one cached table: its fields, the categorized summary computed
// at insertion time, and the insertion timestamp used for TTL expiry.
type Entry struct {
	Table      string
	Fields     []Field
	Categories map[Category][]string
	insertedAt time.Time
}

// SummaryLines renders the categorized summary as compact prompt lines,
// one category per line in fixed order.
func (e *Entry) SummaryLines() []string {
	lines := []string{"table: " + e.Table}
	for _, cat := range categoryOrder {
		names := e.Categories[cat]
		if len(names) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", cat, strings.Join(names, ", ")))
	}
	return lines
}

// NotFoundError is the structured, recoverable miss signal. Suggestions
// carries up to five fuzzy-matched cached table names so an agentic caller
// can self-correct a misspelled table reference without another round trip
// to the catalog backend.
type NotFoundError struct {
	Table       string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no cached schema for table %q", e.Table)
	}
	return fmt.Sprintf("no cached schema for table %q (did you mean: %s)",
		e.Table, strings.Join(e.Suggestions, ", "))
}

// Cache is a thread-safe table-metadata cache keyed by lower-cased table
// name. Expired entries are treated identically to absent ones and cleaned
// up lazily on Get, no background goroutine. Entries are independent;
// single-entry reads and writes are atomic but no cross-entry transaction
// is provided.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func key(table string) string { return strings.ToLower(strings.TrimSpace(table)) }

// Get returns the entry for table if present and younger than the TTL.
func (c *Cache) Get(table string) (*Entry, bool) {
	k := key(table)

	c.mu.RLock()
	entry, ok := c.entries[k]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if now.Sub(entry.insertedAt) > c.ttl {
		// Expired: delete lazily, re-checking under the write lock in
		// case a concurrent Set replaced the entry with a fresh one.
		c.mu.Lock()
		if current, ok := c.entries[k]; ok && c.now().Sub(current.insertedAt) > c.ttl {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry, true
}

// Set stores fields for table, overwriting any previous entry and
// recomputing the categorized summary at write time.
func (c *Cache) Set(table string, fields []Field) *Entry {
	categories := make(map[Category][]string)
	for _, f := range fields {
		cat := categorize(f)
		categories[cat] = append(categories[cat], f.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &Entry{
		Table:      key(table),
		Fields:     fields,
		Categories: categories,
		insertedAt: c.now(),
	}
	c.entries[entry.Table] = entry
	return entry
}

// Summary returns the cached entry for table, or a *NotFoundError carrying
// fuzzy-matched suggestions drawn from the currently cached names.
func (c *Cache) Summary(table string) (*Entry, error) {
	if entry, ok := c.Get(table); ok {
		return entry, nil
	}
	return nil, &NotFoundError{
		Table:       table,
		Suggestions: c.suggest(key(table)),
	}
}

// Tables returns the names of all live (non-expired) entries.
func (c *Cache) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	names := make([]string, 0, len(c.entries))
	for name, entry := range c.entries {
		if now.Sub(entry.insertedAt) <= c.ttl {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// suggest ranks live cached names by string similarity to want, highest
// first, alphabetical on ties, bounded by maxSuggestions and the
// similarity cutoff.
func (c *Cache) suggest(want string) []string {
	type scored struct {
		name  string
		score float64
	}

	params := levenshtein.NewParams()
	var candidates []scored
	for _, name := range c.Tables() {
		score := levenshtein.Similarity(want, name, params)
		if score >= minSimilarity {
			candidates = append(candidates, scored{name: name, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	out := make([]string, len(candidates))
	for i, cand := range candidates {
		out[i] = cand.name
	}
	return out
}
