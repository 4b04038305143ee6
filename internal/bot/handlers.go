package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/wylited/usthingy/internal/session"
)

func (b *Bot) handleRepoList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	snap := b.store.Current()
	if len(snap.Repos) == 0 {
		b.respondEphemeral(s, i, "No repositories cached yet. Try `/refresh`.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Repositories (%d):**\n", len(snap.Repos))
	for _, r := range snap.Repos {
		fmt.Fprintf(&sb, "- **%s** (%d open)\n", r.Name, r.OpenIssues)
		if sb.Len() > 1800 {
			sb.WriteString("- ...\n")
			break
		}
	}
	b.respondSuccess(s, i, sb.String())
}

func (b *Bot) handleRepoIssues(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options
	repo := getStringOption(opts, "repo")

	issues, err := b.gw.ListOpenIssues(context.Background(), repo, 15)
	if err != nil {
		b.logger.Error("listing issues failed", "repo", repo, "error", err)
		b.respondError(s, i, userMessage(err))
		return
	}
	if len(issues) == 0 {
		b.respondSuccess(s, i, fmt.Sprintf("No open issues in **%s**.", repo))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Open issues in %s:**\n", repo)
	for _, is := range issues {
		fmt.Fprintf(&sb, "- [#%d %s](%s)\n", is.Number, is.Title, is.URL)
	}
	b.respondSuccess(s, i, sb.String())
}

func (b *Bot) handleRepoAssign(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options
	repo := getStringOption(opts, "repo")
	number := getIntOption(opts, "number")
	assignee := getStringOption(opts, "user")
	caller := interactionUser(i)

	if _, err := b.identity.Resolve(context.Background(), caller.ID); err != nil {
		b.respondError(s, i, userMessage(err))
		return
	}

	url, err := b.gw.AssignIssue(context.Background(), repo, number, assignee)
	if err != nil {
		b.logger.Error("assign failed", "repo", repo, "number", number, "assignee", assignee, "error", err)
		b.respondError(s, i, userMessage(err))
		return
	}

	b.respondSuccess(s, i, fmt.Sprintf("✅ Assigned **%s** to [%s#%d](%s)", assignee, repo, number, url))
}

func (b *Bot) handleProjList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	snap := b.store.Current()
	if len(snap.Projects) == 0 {
		b.respondEphemeral(s, i, "No projects cached yet. Try `/refresh`.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Projects (%d):**\n", len(snap.Projects))
	for _, p := range snap.Projects {
		fmt.Fprintf(&sb, "- **%s** (#%d, %d items)\n", p.Title, p.Number, len(p.Items))
	}
	b.respondSuccess(s, i, sb.String())
}

func (b *Bot) handleProjView(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options
	title := getStringOption(opts, "project")

	if title == "" {
		settings, err := b.db.GetChannelDefaults(i.ChannelID)
		if err != nil || settings.DefaultProject == "" {
			b.respondError(s, i, "No project given and no default set for this channel. Use `/set-project`.")
			return
		}
		title = settings.DefaultProject
	}

	project, ok := b.store.Current().ProjectTitled(title)
	if !ok {
		b.respondError(s, i, fmt.Sprintf("No project named **%s**.", title))
		return
	}

	filter := getStringOption(opts, "filter")
	if filter == "" {
		filter = "active"
	}
	page := getIntOption(opts, "page")
	if page < 1 {
		page = 1
	}
	b.respondEmbed(s, i, buildProjectEmbed(project, filter, page))
}

func (b *Bot) handleProjViewItem(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options

	item, project, err := resolveItem(b.store.Current(), getStringOption(opts, "item"), getStringOption(opts, "project"))
	if err != nil {
		b.respondError(s, i, err.Error())
		return
	}
	b.respondEmbed(s, i, buildItemEmbed(item, project))
}

func (b *Bot) handleProjEdit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options
	caller := interactionUser(i)
	ctx := context.Background()

	item, project, err := resolveItem(b.store.Current(), getStringOption(opts, "item"), "")
	if err != nil {
		b.respondError(s, i, err.Error())
		return
	}

	view, err := b.sessions.Begin(ctx, caller.ID, item.ID)
	if err != nil {
		b.respondError(s, i, userMessage(err))
		return
	}

	// The field and value options let autocomplete users skip the pickers.
	warning := ""
	if fieldName := getStringOption(opts, "field"); fieldName != "" {
		field, ok := project.FieldNamed(fieldName)
		if !ok {
			b.respondError(s, i, fmt.Sprintf("No field named **%s** on **%s**.", fieldName, project.Title))
			return
		}
		view, err = b.sessions.ChooseField(ctx, view.ID, caller.ID, field.ID)
		if err != nil {
			b.respondError(s, i, userMessage(err))
			return
		}
		if raw := getStringOption(opts, "value"); raw != "" {
			view, err = b.sessions.SubmitValue(ctx, view.ID, caller.ID, raw)
			var verr *session.ValidationError
			switch {
			case err == nil:
			case errors.As(err, &verr):
				// The session stays in ValueInput; show the reason and
				// let the user retry in the flow.
				warning = "⚠️ " + userMessage(err) + "\n\n"
			default:
				b.respondError(s, i, userMessage(err))
				return
			}
		}
	}

	content, components := renderSession(view)
	content = warning + content
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) handleUserConnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	caller := interactionUser(i)
	ctx := context.Background()

	if login, err := b.identity.Resolve(ctx, caller.ID); err == nil {
		b.respondEphemeral(s, i, fmt.Sprintf(
			"You are already linked as **%s**. Use `/user disconnect` first to switch accounts.", login))
		return
	}

	auth, err := b.identity.BeginLink(ctx)
	if err != nil {
		b.logger.Error("device flow start failed", "error", err)
		b.respondError(s, i, userMessage(err))
		return
	}

	b.respondEphemeral(s, i, fmt.Sprintf(
		"Open %s and enter the code **%s**.\nI'll confirm here once you've authorized (you have 15 minutes).",
		auth.VerificationURI, auth.UserCode))

	go func() {
		login, err := b.identity.WaitForLink(context.Background(), caller.ID, auth)
		var content string
		if err != nil {
			b.logger.Warn("device flow did not complete", "discord", caller.ID, "error", err)
			content = "❌ GitHub authorization did not complete. Run `/user connect` to try again."
		} else {
			content = fmt.Sprintf("✅ Linked as **%s**.", login)
		}
		s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
	}()
}

func (b *Bot) handleUserDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	caller := interactionUser(i)
	if err := b.identity.Unlink(caller.ID); err != nil {
		b.logger.Error("unlink failed", "discord", caller.ID, "error", err)
		b.respondError(s, i, "Could not remove your link.")
		return
	}
	b.respondEphemeral(s, i, "Your GitHub account link has been removed.")
}

func (b *Bot) handleUserView(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options[0].Options
	login := getStringOption(opts, "user")

	workload, err := b.gw.Workload(context.Background(), login)
	if err != nil {
		b.logger.Error("workload lookup failed", "login", login, "error", err)
		b.respondError(s, i, userMessage(err))
		return
	}
	b.respondEmbed(s, i, buildWorkloadEmbed(login, workload))
}

func (b *Bot) handleRefresh(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.refresher.Trigger()
	b.respondEphemeral(s, i, "Refreshing GitHub data in the background.")
}

func (b *Bot) handleSetProject(s *discordgo.Session, i *discordgo.InteractionCreate) {
	title := getStringOption(i.ApplicationCommandData().Options, "project")

	project, ok := b.store.Current().ProjectTitled(title)
	if !ok {
		b.respondError(s, i, fmt.Sprintf("No project named **%s**.", title))
		return
	}

	settings, err := b.db.GetChannelDefaults(i.ChannelID)
	if err != nil {
		b.logger.Error("loading channel defaults failed", "channel", i.ChannelID, "error", err)
		b.respondError(s, i, "Could not load channel settings.")
		return
	}
	settings.DefaultProject = project.Title
	if err := b.db.SaveChannelDefaults(settings); err != nil {
		b.logger.Error("saving channel defaults failed", "channel", i.ChannelID, "error", err)
		b.respondError(s, i, "Could not save channel settings.")
		return
	}

	b.respondSuccess(s, i, fmt.Sprintf("✅ Default project for this channel is now **%s**.", project.Title))
}
