package bot

import (
	"github.com/bwmarrin/discordgo"

	"github.com/wylited/usthingy/internal/autocomplete"
)

// handleAutocomplete answers suggestion queries from the cache snapshot. A
// cold cache simply yields no choices.
func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts = opts[0].Options
	}

	var focused *discordgo.ApplicationCommandInteractionDataOption
	for _, opt := range opts {
		if opt.Focused {
			focused = opt
			break
		}
	}
	if focused == nil {
		return
	}

	scope, ok := b.scopeFor(i.ChannelID, focused.Name, opts)
	if !ok {
		return
	}

	matches := b.index.Query(focused.StringValue(), scope)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(matches))
	for _, m := range matches {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  m.Name,
			Value: m.Value,
		})
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}

// scopeFor maps an option name to its suggestion scope. Item queries are
// narrowed to the channel's default project when one is set; field queries
// narrow to the board of the sibling item option, and value queries carry
// the sibling field name.
func (b *Bot) scopeFor(channelID, optionName string, siblings []*discordgo.ApplicationCommandInteractionDataOption) (autocomplete.Scope, bool) {
	switch optionName {
	case "repo":
		return autocomplete.Scope{Kind: autocomplete.ScopeRepo}, true
	case "user":
		return autocomplete.Scope{Kind: autocomplete.ScopeUser}, true
	case "project":
		return autocomplete.Scope{Kind: autocomplete.ScopeProject}, true
	case "item":
		scope := autocomplete.Scope{Kind: autocomplete.ScopeItem}
		if settings, err := b.db.GetChannelDefaults(channelID); err == nil {
			scope.Project = settings.DefaultProject
		}
		return scope, true
	case "field":
		scope := autocomplete.Scope{Kind: autocomplete.ScopeField}
		if repo, number, ok := parseItemRef(stringOptionValue(siblings, "item")); ok {
			if _, p, ok := b.store.Current().ItemNumbered(repo, number); ok {
				scope.Project = p.Title
			}
		}
		return scope, true
	case "value":
		return autocomplete.Scope{
			Kind:  autocomplete.ScopeValue,
			Field: stringOptionValue(siblings, "field"),
		}, true
	}
	return autocomplete.Scope{}, false
}

// stringOptionValue reads a sibling option's partial value during an
// autocomplete interaction without panicking on non-string options.
func stringOptionValue(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			if v, ok := opt.Value.(string); ok {
				return v
			}
		}
	}
	return ""
}
