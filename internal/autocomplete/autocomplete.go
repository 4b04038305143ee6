// Package autocomplete answers suggestion queries against the current cache
// snapshot. There is no separate index structure to maintain: every query
// reads one immutable snapshot, so the only synchronization cost is loading
// the snapshot pointer. An empty snapshot yields an empty list, never an
// error.
package autocomplete

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/domain"
)

// MaxResults caps suggestion lists at Discord's autocomplete limit.
const MaxResults = 25

// ScopeKind selects which slice of the snapshot a query matches against.
type ScopeKind string

const (
	ScopeRepo    ScopeKind = "repo"
	ScopeUser    ScopeKind = "user"
	ScopeProject ScopeKind = "project"
	ScopeItem    ScopeKind = "item"
	ScopeField   ScopeKind = "field"
	ScopeValue   ScopeKind = "value"
)

// Scope is the context of a query. Field carries the selected field name for
// ScopeValue queries; Project narrows ScopeItem and ScopeField queries when
// the user already picked a board.
type Scope struct {
	Kind    ScopeKind
	Project string
	Field   string
}

// Match is one ranked suggestion. Name is shown to the user; Value is what
// the command receives when the suggestion is picked.
type Match struct {
	Name  string
	Value string
}

// Index serves queries from a cache store.
type Index struct {
	store *cache.Store
}

// New returns an index reading from store.
func New(store *cache.Store) *Index {
	return &Index{store: store}
}

// Query returns up to MaxResults matches for the partial text in the given
// scope, ranked exact-prefix first, then substring, then fuzzy.
func (ix *Index) Query(text string, scope Scope) []Match {
	snap := ix.store.Current()

	var candidates []Match
	switch scope.Kind {
	case ScopeRepo:
		for _, r := range snap.Repos {
			candidates = append(candidates, Match{Name: r.Name, Value: r.Name})
		}
	case ScopeUser:
		for _, u := range snap.Users {
			candidates = append(candidates, Match{Name: u.Login, Value: u.Login})
		}
	case ScopeProject:
		for _, p := range snap.Projects {
			candidates = append(candidates, Match{Name: p.Title, Value: p.Title})
		}
	case ScopeItem:
		candidates = itemCandidates(snap, scope.Project)
	case ScopeField:
		candidates = fieldCandidates(snap, scope.Project)
	case ScopeValue:
		candidates = valueCandidates(snap, scope.Field)
	}

	return rank(text, candidates)
}

// itemCandidates lists open items, optionally narrowed to one project. The
// value form "repo #number" is what the edit and view-item commands parse.
func itemCandidates(snap *cache.Snapshot, projectTitle string) []Match {
	var out []Match
	appendItems := func(p domain.Project) {
		for _, it := range p.Items {
			if it.Closed() || it.Number == 0 {
				continue
			}
			title := it.Title
			if r := []rune(title); len(r) > 30 {
				title = string(r[:30]) + "..."
			}
			out = append(out, Match{
				Name:  fmt.Sprintf("%s #%d: %s", it.Repo, it.Number, title),
				Value: fmt.Sprintf("%s #%d", it.Repo, it.Number),
			})
		}
	}

	if projectTitle != "" {
		if p, ok := snap.ProjectTitled(projectTitle); ok {
			appendItems(p)
		}
		return out
	}
	for _, p := range snap.Projects {
		appendItems(p)
	}
	return out
}

// fieldCandidates lists unique field names, narrowed to one project when
// known.
func fieldCandidates(snap *cache.Snapshot, projectTitle string) []Match {
	seen := make(map[string]bool)
	var out []Match
	appendFields := func(p domain.Project) {
		for _, f := range p.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			out = append(out, Match{Name: f.Name, Value: f.Name})
		}
	}

	if projectTitle != "" {
		if p, ok := snap.ProjectTitled(projectTitle); ok {
			appendFields(p)
		}
		return out
	}
	for _, p := range snap.Projects {
		appendFields(p)
	}
	return out
}

// valueCandidates lists the legal values of the named field: option names
// for select/iteration fields, entry hints for date fields.
func valueCandidates(snap *cache.Snapshot, fieldName string) []Match {
	seen := make(map[string]bool)
	var out []Match
	for _, p := range snap.Projects {
		f, ok := p.FieldNamed(fieldName)
		if !ok {
			continue
		}
		switch f.Type {
		case domain.FieldSingleSelect, domain.FieldIteration:
			for _, o := range f.Options {
				if seen[o.Name] {
					continue
				}
				seen[o.Name] = true
				out = append(out, Match{Name: o.Name, Value: o.Name})
			}
		case domain.FieldDate:
			if !seen["Today"] {
				seen["Today"] = true
				out = append(out,
					Match{Name: "Today", Value: "Today"},
					Match{Name: "YYYY-MM-DD", Value: "YYYY-MM-DD"},
				)
			}
		}
	}
	return out
}

// rank orders candidates by match tier and truncates to MaxResults. Within a
// tier the snapshot order is preserved for prefix and substring matches;
// fuzzy matches are ordered by fuzzy score.
func rank(text string, candidates []Match) []Match {
	if text == "" {
		if len(candidates) > MaxResults {
			return candidates[:MaxResults]
		}
		return candidates
	}

	needle := strings.ToLower(text)
	var prefix, substr []Match
	var rest []Match
	for _, c := range candidates {
		name := strings.ToLower(c.Name)
		switch {
		case strings.HasPrefix(name, needle):
			prefix = append(prefix, c)
		case strings.Contains(name, needle):
			substr = append(substr, c)
		default:
			rest = append(rest, c)
		}
	}

	out := append(prefix, substr...)
	if len(out) < MaxResults && len(rest) > 0 {
		names := make([]string, len(rest))
		for i, c := range rest {
			names[i] = c.Name
		}
		// fuzzy.Find returns matches already sorted by descending score.
		for _, m := range fuzzy.Find(text, names) {
			out = append(out, rest[m.Index])
			if len(out) >= MaxResults {
				break
			}
		}
	}

	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out
}
