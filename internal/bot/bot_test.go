package bot

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wylited/usthingy/internal/autocomplete"
	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/database"
	"github.com/wylited/usthingy/internal/domain"
)

func boardSnapshot() *cache.Snapshot {
	projects := []domain.Project{
		{
			ID:     "proj-1",
			Number: 1,
			Title:  "Backlog",
			Fields: []domain.FieldDef{
				{ID: "field-status", Name: "Status", Type: domain.FieldSingleSelect, Options: []domain.Option{
					{ID: "opt-todo", Name: "Todo"},
					{ID: "opt-done", Name: "Done"},
				}},
			},
			Items: []domain.Item{
				{ID: "item-1", ProjectID: "proj-1", ContentType: domain.ContentIssue, Title: "Fix login", Repo: "backend", Number: 42, State: "OPEN"},
				{ID: "item-2", ProjectID: "proj-1", ContentType: domain.ContentIssue, Title: "Old bug", Repo: "frontend", Number: 7, State: "CLOSED"},
			},
		},
		{
			ID:     "proj-2",
			Number: 2,
			Title:  "Icebox",
			Items: []domain.Item{
				{ID: "item-3", ProjectID: "proj-2", ContentType: domain.ContentIssue, Title: "Someday", Repo: "tools", Number: 3, State: "OPEN"},
			},
		},
	}
	return cache.NewSnapshot(nil, nil, projects, time.Now())
}

func openBotTestDB(t *testing.T) *database.Database {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	d, err := database.New(filepath.Join(t.TempDir(), "test.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func TestParseItemRef(t *testing.T) {
	repo, number, ok := parseItemRef("backend #42")
	require.True(t, ok)
	assert.Equal(t, "backend", repo)
	assert.Equal(t, 42, number)

	for _, bad := range []string{"", "backend", "#42", "backend #", "backend #x"} {
		_, _, ok := parseItemRef(bad)
		assert.False(t, ok, "ref %q should not parse", bad)
	}
}

func TestResolveItemGlobalLookup(t *testing.T) {
	snap := boardSnapshot()

	item, project, err := resolveItem(snap, "backend #42", "")
	require.NoError(t, err)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "Backlog", project.Title)

	_, _, err = resolveItem(snap, "backend #999", "")
	assert.ErrorContains(t, err, "not on any project board")

	_, _, err = resolveItem(snap, "not-a-ref", "")
	assert.ErrorContains(t, err, "repo #123")
}

func TestResolveItemNarrowedToBoard(t *testing.T) {
	snap := boardSnapshot()

	item, project, err := resolveItem(snap, "tools #3", "Icebox")
	require.NoError(t, err)
	assert.Equal(t, "item-3", item.ID)
	assert.Equal(t, "Icebox", project.Title)

	// The item exists but sits on a different board.
	_, _, err = resolveItem(snap, "backend #42", "Icebox")
	assert.ErrorContains(t, err, "is not on")

	_, _, err = resolveItem(snap, "backend #42", "Nonexistent")
	assert.ErrorContains(t, err, "No project named")
}

func TestScopeForFieldNarrowsToItemBoard(t *testing.T) {
	store := cache.NewStore()
	store.Publish(boardSnapshot())
	b := &Bot{db: openBotTestDB(t), store: store}

	siblings := []*discordgo.ApplicationCommandInteractionDataOption{
		stringOption("item", "backend #42"),
		stringOption("field", ""),
	}
	scope, ok := b.scopeFor("chan-1", "field", siblings)
	require.True(t, ok)
	assert.Equal(t, autocomplete.ScopeField, scope.Kind)
	assert.Equal(t, "Backlog", scope.Project)

	// An unparseable item reference leaves the scope unnarrowed.
	scope, ok = b.scopeFor("chan-1", "field", []*discordgo.ApplicationCommandInteractionDataOption{
		stringOption("item", "nonsense"),
	})
	require.True(t, ok)
	assert.Empty(t, scope.Project)
}

func TestScopeForValueCarriesFieldName(t *testing.T) {
	b := &Bot{db: openBotTestDB(t), store: cache.NewStore()}

	scope, ok := b.scopeFor("chan-1", "value", []*discordgo.ApplicationCommandInteractionDataOption{
		stringOption("item", "backend #42"),
		stringOption("field", "Status"),
	})
	require.True(t, ok)
	assert.Equal(t, autocomplete.ScopeValue, scope.Kind)
	assert.Equal(t, "Status", scope.Field)
}

func TestScopeForItemUsesChannelDefault(t *testing.T) {
	db := openBotTestDB(t)
	require.NoError(t, db.SaveChannelDefaults(&database.ChannelDefaults{
		ChannelID:      "chan-1",
		DefaultProject: "Backlog",
	}))
	b := &Bot{db: db, store: cache.NewStore()}

	scope, ok := b.scopeFor("chan-1", "item", nil)
	require.True(t, ok)
	assert.Equal(t, autocomplete.ScopeItem, scope.Kind)
	assert.Equal(t, "Backlog", scope.Project)

	_, ok = b.scopeFor("chan-1", "number", nil)
	assert.False(t, ok)
}

func pagedItemsField(t *testing.T, embed *discordgo.MessageEmbed) *discordgo.MessageEmbedField {
	t.Helper()
	for _, f := range embed.Fields {
		if strings.HasPrefix(f.Name, "Items (page") {
			return f
		}
	}
	t.Fatal("embed has no items field")
	return nil
}

func TestProjectEmbedFiltersClosedItems(t *testing.T) {
	project := domain.Project{Title: "Backlog", Number: 1}
	for i := 0; i < 25; i++ {
		project.Items = append(project.Items, domain.Item{
			Title: fmt.Sprintf("open %d", i), Repo: "backend", Number: i + 1, State: "OPEN",
		})
	}
	for i := 0; i < 20; i++ {
		project.Items = append(project.Items, domain.Item{
			Title: fmt.Sprintf("closed %d", i), Repo: "backend", Number: 100 + i, State: "CLOSED",
		})
	}

	active := buildProjectEmbed(project, "active", 2)
	f := pagedItemsField(t, active)
	assert.Equal(t, "Items (page 2 of 2)", f.Name)
	assert.Equal(t, 5, strings.Count(f.Value, "\n")+1)
	assert.NotContains(t, f.Value, "closed")

	all := buildProjectEmbed(project, "all", 3)
	f = pagedItemsField(t, all)
	assert.Equal(t, "Items (page 3 of 3)", f.Name)
	assert.Contains(t, f.Value, "closed")
}

func TestProjectEmbedClampsPage(t *testing.T) {
	project := domain.Project{
		Title:  "Backlog",
		Number: 1,
		Items:  []domain.Item{{Title: "only one", Repo: "backend", Number: 1, State: "OPEN"}},
	}

	f := pagedItemsField(t, buildProjectEmbed(project, "active", 99))
	assert.Equal(t, "Items (page 1 of 1)", f.Name)

	f = pagedItemsField(t, buildProjectEmbed(project, "active", -4))
	assert.Equal(t, "Items (page 1 of 1)", f.Name)

	// An empty board still renders one page with a placeholder.
	f = pagedItemsField(t, buildProjectEmbed(domain.Project{Title: "Empty"}, "active", 1))
	assert.Equal(t, "Items (page 1 of 1)", f.Name)
	assert.Equal(t, "-", f.Value)
}

func TestModalValueToleratesMalformedSubmissions(t *testing.T) {
	assert.Empty(t, modalValue(discordgo.ModalSubmitInteractionData{}))

	assert.Empty(t, modalValue(discordgo.ModalSubmitInteractionData{
		Components: []discordgo.MessageComponent{&discordgo.Button{Label: "nope"}},
	}))

	assert.Empty(t, modalValue(discordgo.ModalSubmitInteractionData{
		Components: []discordgo.MessageComponent{&discordgo.ActionsRow{}},
	}))

	got := modalValue(discordgo.ModalSubmitInteractionData{
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "value", Value: "2026-01-15"},
			}},
		},
	})
	assert.Equal(t, "2026-01-15", got)
}
