// Package search filters catalog items with fuzzy matching and field qualifiers.
package search

import (
	"strings"

	"github.com/mmcdole/shelf/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Query is a parsed filter expression.
// "type:movie tag:scifi status:reading dune" narrows by fields, then fuzzy-matches the rest.
type Query struct {
	Text   string
	Type   domain.ItemType
	Tag    string
	Status string
}

// ParseQuery splits qualifiers from the free text of a filter expression
func ParseQuery(s string) Query {
	var q Query
	var text []string
	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, ":")
		if !ok || value == "" {
			text = append(text, field)
			continue
		}
		switch strings.ToLower(key) {
		case "type":
			q.Type = domain.ItemType(strings.ToLower(value))
		case "tag":
			q.Tag = value
		case "status":
			q.Status = strings.ToLower(value)
		default:
			text = append(text, field)
		}
	}
	q.Text = strings.Join(text, " ")
	return q
}

func (q Query) allows(item *domain.Item) bool {
	if q.Type != "" && item.Type != q.Type {
		return false
	}
	if q.Tag != "" && !item.HasTag(q.Tag) {
		return false
	}
	if q.Status != "" && !strings.EqualFold(item.Status, q.Status) {
		return false
	}
	return true
}

// Result is a matched item with the positions that matched in its search key
type Result struct {
	Item           *domain.Item
	MatchedIndexes []int
	Score          int
}

// FilterIndex implements fuzzy.Source over "title creator" keys
type FilterIndex struct {
	items []*domain.Item
	keys  []string // pre-computed lowercase keys
}

func (idx *FilterIndex) String(i int) string { return idx.keys[i] }

func (idx *FilterIndex) Len() int { return len(idx.items) }

// NewFilterIndex builds an index over items
func NewFilterIndex(items []*domain.Item) *FilterIndex {
	idx := &FilterIndex{items: items, keys: make([]string, len(items))}
	for i, item := range items {
		idx.keys[i] = strings.ToLower(strings.TrimSpace(item.Title + " " + item.Creator()))
	}
	return idx
}

// Filter returns items matching the expression, best matches first.
// With no free text, every item passing the qualifiers is returned in its original order.
func Filter(items []*domain.Item, expr string) []Result {
	q := ParseQuery(expr)

	var candidates []*domain.Item
	for _, item := range items {
		if q.allows(item) {
			candidates = append(candidates, item)
		}
	}

	if q.Text == "" {
		results := make([]Result, len(candidates))
		for i, item := range candidates {
			results[i] = Result{Item: item}
		}
		return results
	}

	idx := NewFilterIndex(candidates)
	matches := fuzzy.FindFrom(strings.ToLower(q.Text), idx)

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			Item:           idx.items[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}

// Items unwraps results
func Items(results []Result) []*domain.Item {
	items := make([]*domain.Item, len(results))
	for i, r := range results {
		items[i] = r.Item
	}
	return items
}
