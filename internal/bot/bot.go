// Package bot is the Discord surface: slash commands, autocomplete and the
// message components driving field edits. Reads are served from the cache
// snapshot; only account linking, issue assignment and confirmed edits reach
// GitHub directly.
package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/wylited/usthingy/internal/autocomplete"
	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/config"
	"github.com/wylited/usthingy/internal/database"
	"github.com/wylited/usthingy/internal/domain"
	"github.com/wylited/usthingy/internal/gateway"
	"github.com/wylited/usthingy/internal/identity"
	"github.com/wylited/usthingy/internal/refresh"
	"github.com/wylited/usthingy/internal/session"
)

type Bot struct {
	config    *config.Config
	db        *database.Database
	store     *cache.Store
	index     *autocomplete.Index
	sessions  *session.Manager
	identity  *identity.Service
	refresher *refresh.Refresher
	gw        gateway.Gateway
	logger    *slog.Logger

	session  *discordgo.Session
	commands []*discordgo.ApplicationCommand
}

// Deps bundles everything the bot is wired to.
type Deps struct {
	Config    *config.Config
	DB        *database.Database
	Store     *cache.Store
	Gateway   gateway.Gateway
	Refresher *refresh.Refresher
	Sessions  *session.Manager
	Identity  *identity.Service
	Logger    *slog.Logger
}

func New(d Deps) (*Bot, error) {
	ds, err := discordgo.New("Bot " + d.Config.DiscordBotToken)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		config:    d.Config,
		db:        d.DB,
		store:     d.Store,
		index:     autocomplete.New(d.Store),
		sessions:  d.Sessions,
		identity:  d.Identity,
		refresher: d.Refresher,
		gw:        d.Gateway,
		logger:    d.Logger,
		session:   ds,
	}

	bot.registerCommands()
	ds.AddHandler(bot.handleInteraction)

	return bot, nil
}

func (b *Bot) registerCommands() {
	b.commands = []*discordgo.ApplicationCommand{
		{
			Name:        "repo",
			Description: "Organization repositories",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List all repositories",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "issues",
					Description: "List open issues in a repository",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "repo",
							Description:  "Repository name",
							Required:     true,
							Autocomplete: true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "assign",
					Description: "Assign an issue to a user",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "repo",
							Description:  "Repository name",
							Required:     true,
							Autocomplete: true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "number",
							Description: "Issue number",
							Required:    true,
						},
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "user",
							Description:  "GitHub login to assign",
							Required:     true,
							Autocomplete: true,
						},
					},
				},
			},
		},
		{
			Name:        "proj",
			Description: "Organization project boards",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List all project boards",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "View a project board",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "project",
							Description:  "Project title (channel default when omitted)",
							Required:     false,
							Autocomplete: true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "filter",
							Description: "Which items to show",
							Required:    false,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "active", Value: "active"},
								{Name: "all", Value: "all"},
							},
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "page",
							Description: "Page of items to show",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view-item",
					Description: "View one project item",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "item",
							Description:  "Item, as repo #number",
							Required:     true,
							Autocomplete: true,
						},
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "project",
							Description:  "Board the item must be on",
							Required:     false,
							Autocomplete: true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "edit",
					Description: "Edit a field on a project item",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "item",
							Description:  "Item, as repo #number",
							Required:     true,
							Autocomplete: true,
						},
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "field",
							Description:  "Field to edit (skips the field picker)",
							Required:     false,
							Autocomplete: true,
						},
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "value",
							Description:  "New value (skips straight to confirm)",
							Required:     false,
							Autocomplete: true,
						},
					},
				},
			},
		},
		{
			Name:        "user",
			Description: "GitHub account linking and user lookups",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "connect",
					Description: "Link your GitHub account",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "disconnect",
					Description: "Remove your GitHub account link",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "View a user's open work",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionString,
							Name:         "user",
							Description:  "GitHub login",
							Required:     true,
							Autocomplete: true,
						},
					},
				},
			},
		},
		{
			Name:        "refresh",
			Description: "Refresh the cached GitHub data now",
		},
		{
			Name:        "set-project",
			Description: "Set the default project for this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "project",
					Description:  "Project title",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
	}
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return err
	}

	b.logger.Info("registering commands", "application", b.config.DiscordApplicationID)
	for _, cmd := range b.commands {
		_, err := b.session.ApplicationCommandCreate(b.config.DiscordApplicationID, "", cmd)
		if err != nil {
			b.logger.Error("command registration failed", "command", cmd.Name, "error", err)
			return err
		}
	}

	return nil
}

func (b *Bot) Stop() {
	commands, err := b.session.ApplicationCommands(b.config.DiscordApplicationID, "")
	if err != nil {
		b.logger.Error("fetching commands for cleanup failed", "error", err)
	} else {
		for _, cmd := range commands {
			if err := b.session.ApplicationCommandDelete(b.config.DiscordApplicationID, "", cmd.ID); err != nil {
				b.logger.Error("command cleanup failed", "command", cmd.Name, "error", err)
			}
		}
	}

	b.session.Close()
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModal(s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	switch data.Name {
	case "repo":
		switch data.Options[0].Name {
		case "list":
			b.handleRepoList(s, i)
		case "issues":
			b.handleRepoIssues(s, i)
		case "assign":
			b.handleRepoAssign(s, i)
		}
	case "proj":
		switch data.Options[0].Name {
		case "list":
			b.handleProjList(s, i)
		case "view":
			b.handleProjView(s, i)
		case "view-item":
			b.handleProjViewItem(s, i)
		case "edit":
			b.handleProjEdit(s, i)
		}
	case "user":
		switch data.Options[0].Name {
		case "connect":
			b.handleUserConnect(s, i)
		case "disconnect":
			b.handleUserDisconnect(s, i)
		case "view":
			b.handleUserView(s, i)
		}
	case "refresh":
		b.handleRefresh(s, i)
	case "set-project":
		b.handleSetProject(s, i)
	default:
		b.respondError(s, i, "Unknown command")
	}
}

// interactionUser works in both guild channels and DMs.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

// userMessage turns an internal error into something worth showing a user.
func userMessage(err error) string {
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	var aerr *session.AuthorizationError
	if errors.As(err, &aerr) {
		if errors.Is(err, identity.ErrUnlinked) {
			return "You need a linked GitHub account for that. Use `/user connect` first."
		}
		return aerr.Reason
	}
	if errors.Is(err, session.ErrExpiredSession) {
		return "This edit session has expired. Start again with `/proj edit`."
	}
	if errors.Is(err, session.ErrItemGone) {
		return "That item is no longer on any project board."
	}
	if errors.Is(err, identity.ErrUnlinked) {
		return "You need a linked GitHub account for that. Use `/user connect` first."
	}
	var rerr *gateway.RemoteError
	if errors.As(err, &rerr) && rerr.Transient() {
		return "GitHub is not answering right now, try again in a moment."
	}
	return "Something went wrong talking to GitHub."
}

func (b *Bot) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("❌ %s", message),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) respondSuccess(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
		},
	})
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func getStringOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func getIntOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) int {
	for _, opt := range options {
		if opt.Name == name {
			return int(opt.IntValue())
		}
	}
	return 0
}

// resolveItem finds an item by its "repo #number" reference, optionally
// requiring it to sit on the named board. The returned error message is
// user-facing.
func resolveItem(snap *cache.Snapshot, ref, projectTitle string) (domain.Item, domain.Project, error) {
	repo, number, ok := parseItemRef(ref)
	if !ok {
		return domain.Item{}, domain.Project{}, errors.New("Item must look like `repo #123`.")
	}

	if projectTitle != "" {
		p, ok := snap.ProjectTitled(projectTitle)
		if !ok {
			return domain.Item{}, domain.Project{}, fmt.Errorf("No project named **%s**.", projectTitle)
		}
		for _, it := range p.Items {
			if it.Number == number && strings.EqualFold(it.Repo, repo) {
				return it, p, nil
			}
		}
		return domain.Item{}, domain.Project{}, fmt.Errorf("**%s #%d** is not on **%s**.", repo, number, p.Title)
	}

	item, project, ok := snap.ItemNumbered(repo, number)
	if !ok {
		return domain.Item{}, domain.Project{}, fmt.Errorf("**%s #%d** is not on any project board.", repo, number)
	}
	return item, project, nil
}

// parseItemRef splits the "repo #number" form produced by item autocomplete.
func parseItemRef(ref string) (string, int, bool) {
	repo, num, ok := strings.Cut(ref, "#")
	if !ok {
		return "", 0, false
	}
	repo = strings.TrimSpace(repo)
	var number int
	if _, err := fmt.Sscanf(strings.TrimSpace(num), "%d", &number); err != nil || repo == "" {
		return "", 0, false
	}
	return repo, number, true
}
