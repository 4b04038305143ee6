package autocomplete

import (
	"fmt"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/domain"
)

func testStore() *cache.Store {
	store := cache.NewStore()

	statusField := domain.FieldDef{
		ID:   "field_status",
		Name: "Status",
		Type: domain.FieldSingleSelect,
		Options: []domain.Option{
			{ID: "opt_todo", Name: "Todo"},
			{ID: "opt_doing", Name: "Doing"},
			{ID: "opt_done", Name: "Done"},
		},
	}
	dueField := domain.FieldDef{ID: "field_due", Name: "Due", Type: domain.FieldDate}

	backlog := domain.Project{
		ID:     "proj_backlog",
		Title:  "Backlog",
		Fields: []domain.FieldDef{statusField, dueField},
		Items: []domain.Item{
			{ID: "item_1", Repo: "backend", Number: 12, Title: "Fix login timeout", State: "OPEN"},
			{ID: "item_2", Repo: "frontend", Number: 7, Title: "Redesign navbar", State: "OPEN"},
			{ID: "item_3", Repo: "backend", Number: 3, Title: "Old bug", State: "CLOSED"},
		},
	}
	roadmap := domain.Project{
		ID:     "proj_roadmap",
		Title:  "Roadmap 2026",
		Fields: []domain.FieldDef{statusField},
	}

	store.Publish(cache.NewSnapshot(
		[]domain.Repository{
			{Name: "backend"},
			{Name: "frontend"},
			{Name: "infra-tools"},
		},
		[]domain.User{
			{Login: "octocat"},
			{Login: "hubot"},
			{Login: "monalisa"},
		},
		[]domain.Project{backlog, roadmap},
		time.Now(),
	))
	return store
}

func names(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Name
	}
	return out
}

func TestEmptySnapshotReturnsEmptyList(t *testing.T) {
	ix := New(cache.NewStore())
	for _, kind := range []ScopeKind{ScopeRepo, ScopeUser, ScopeProject, ScopeItem, ScopeField, ScopeValue} {
		assert.Empty(t, ix.Query("any", Scope{Kind: kind}), "scope %s", kind)
	}
}

func TestRepoQueryRanking(t *testing.T) {
	ix := New(testStore())

	t.Run("prefix beats substring", func(t *testing.T) {
		got := names(ix.Query("front", Scope{Kind: ScopeRepo}))
		require.NotEmpty(t, got)
		assert.Equal(t, "frontend", got[0])
	})

	t.Run("substring matches", func(t *testing.T) {
		got := names(ix.Query("end", Scope{Kind: ScopeRepo}))
		assert.ElementsMatch(t, []string{"backend", "frontend"}, got)
	})

	t.Run("fuzzy fallback", func(t *testing.T) {
		got := names(ix.Query("ifratools", Scope{Kind: ScopeRepo}))
		assert.Contains(t, got, "infra-tools")
	})

	t.Run("empty text lists all", func(t *testing.T) {
		got := ix.Query("", Scope{Kind: ScopeRepo})
		assert.Len(t, got, 3)
	})
}

func TestUserAndProjectScopes(t *testing.T) {
	ix := New(testStore())

	assert.Equal(t, []string{"octocat"}, names(ix.Query("octo", Scope{Kind: ScopeUser})))
	assert.Equal(t, []string{"Backlog"}, names(ix.Query("back", Scope{Kind: ScopeProject})))
}

func TestItemScopeFiltersClosedAndFormatsValue(t *testing.T) {
	ix := New(testStore())

	got := ix.Query("", Scope{Kind: ScopeItem, Project: "Backlog"})
	require.Len(t, got, 2)
	assert.Equal(t, "backend #12: Fix login timeout", got[0].Name)
	assert.Equal(t, "backend #12", got[0].Value)

	for _, m := range got {
		assert.NotContains(t, m.Name, "Old bug")
	}
}

func TestItemScopeSearchesAllProjectsWithoutContext(t *testing.T) {
	ix := New(testStore())

	got := names(ix.Query("navbar", Scope{Kind: ScopeItem}))
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "frontend #7")
}

func TestFieldScopeDeduplicates(t *testing.T) {
	ix := New(testStore())

	// Status appears in both projects but must be suggested once.
	got := names(ix.Query("", Scope{Kind: ScopeField}))
	assert.ElementsMatch(t, []string{"Status", "Due"}, got)
}

func TestValueScope(t *testing.T) {
	ix := New(testStore())

	t.Run("select options", func(t *testing.T) {
		// "Doing" and "Done" match by prefix, "Todo" only by substring.
		got := names(ix.Query("do", Scope{Kind: ScopeValue, Field: "Status"}))
		require.Len(t, got, 3)
		assert.ElementsMatch(t, []string{"Doing", "Done"}, got[:2])
		assert.Equal(t, "Todo", got[2])
	})

	t.Run("date hints", func(t *testing.T) {
		got := names(ix.Query("", Scope{Kind: ScopeValue, Field: "Due"}))
		assert.Equal(t, []string{"Today", "YYYY-MM-DD"}, got)
	})

	t.Run("unknown field", func(t *testing.T) {
		assert.Empty(t, ix.Query("x", Scope{Kind: ScopeValue, Field: "Nope"}))
	})
}

func TestResultCap(t *testing.T) {
	store := cache.NewStore()
	repos := make([]domain.Repository, 40)
	for i := range repos {
		repos[i] = domain.Repository{Name: fmt.Sprintf("service-%02d", i)}
	}
	store.Publish(cache.NewSnapshot(repos, nil, nil, time.Now()))

	ix := New(store)
	assert.Len(t, ix.Query("service", Scope{Kind: ScopeRepo}), MaxResults)
	assert.Len(t, ix.Query("", Scope{Kind: ScopeRepo}), MaxResults)
}

func TestLongItemTitlesTruncateOnRuneBoundary(t *testing.T) {
	store := cache.NewStore()
	store.Publish(cache.NewSnapshot(nil, nil, []domain.Project{
		{
			ID:    "proj_intl",
			Title: "Intl",
			Items: []domain.Item{
				{
					ID:     "item_jp",
					Repo:   "backend",
					Number: 9,
					Title:  "日本語のタイトルが長すぎて切り詰めが必要になる場合の確認テストです",
					State:  "OPEN",
				},
			},
		},
	}, time.Now()))

	got := New(store).Query("", Scope{Kind: ScopeItem})
	require.Len(t, got, 1)
	assert.True(t, utf8.ValidString(got[0].Name))
	assert.Contains(t, got[0].Name, "...")
	assert.Contains(t, got[0].Name, string([]rune("日本語のタイトル")))
}
