package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/wylited/usthingy/internal/domain"
	"github.com/wylited/usthingy/internal/gateway"
)

const (
	colorOpen   = 0x2ea44f
	colorClosed = 0x8250df
)

func buildItemEmbed(item domain.Item, project domain.Project) *discordgo.MessageEmbed {
	color := colorOpen
	if item.Closed() {
		color = colorClosed
	}

	title := item.Title
	if item.Number != 0 {
		title = fmt.Sprintf("#%d %s", item.Number, item.Title)
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "State", Value: orDash(item.State), Inline: true},
		{Name: "Repo", Value: orDash(item.Repo), Inline: true},
		{Name: "Type", Value: item.ContentType, Inline: true},
	}
	if len(item.Assignees) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Assignees", Value: strings.Join(item.Assignees, ", "), Inline: true,
		})
	}
	if len(item.Labels) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Labels", Value: strings.Join(item.Labels, ", "), Inline: true,
		})
	}

	// Board fields in schema order, skipping the ones this item has no
	// value for.
	for _, def := range project.Fields {
		if v, ok := item.Values[def.ID]; ok && v.Display != "" {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: def.Name, Value: v.Display, Inline: true,
			})
		}
	}

	return &discordgo.MessageEmbed{
		Title:  title,
		URL:    item.URL,
		Color:  color,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Project: %s", project.Title),
		},
	}
}

// projectPageItems is how many items one board page shows.
const projectPageItems = 20

// buildProjectEmbed renders one page of a board. filter is "all" or
// "active" (anything else is treated as active); page is 1-based and
// clamped to the last page.
func buildProjectEmbed(project domain.Project, filter string, page int) *discordgo.MessageEmbed {
	var open int
	shown := make([]domain.Item, 0, len(project.Items))
	for _, it := range project.Items {
		if !it.Closed() {
			open++
		}
		if filter == "all" || !it.Closed() {
			shown = append(shown, it)
		}
	}

	pages := (len(shown) + projectPageItems - 1) / projectPageItems
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * projectPageItems
	end := start + projectPageItems
	if end > len(shown) {
		end = len(shown)
	}

	lines := make([]string, 0, end-start)
	for _, it := range shown[start:end] {
		lines = append(lines, fmt.Sprintf("- %s: %s", itemLabel(it), it.Title))
	}

	fieldNames := make([]string, 0, len(project.Fields))
	for _, f := range project.Fields {
		fieldNames = append(fieldNames, f.Name)
	}

	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s (#%d)", project.Title, project.Number),
		URL:   project.URL,
		Color: colorOpen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Open items", Value: fmt.Sprintf("%d of %d", open, len(project.Items)), Inline: true},
			{Name: "Fields", Value: orDash(strings.Join(fieldNames, ", ")), Inline: true},
			{
				Name:  fmt.Sprintf("Items (page %d of %d)", page, pages),
				Value: orDash(strings.Join(lines, "\n")),
			},
		},
	}
}

func buildWorkloadEmbed(login string, w gateway.Workload) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s's open work", login),
		URL:   "https://github.com/" + login,
		Color: colorOpen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: fmt.Sprintf("Assigned issues (%d)", len(w.Assigned)), Value: issueLines(w.Assigned)},
			{Name: fmt.Sprintf("Open pull requests (%d)", len(w.OpenPRs)), Value: issueLines(w.OpenPRs)},
			{Name: fmt.Sprintf("Review requests (%d)", len(w.Reviews)), Value: issueLines(w.Reviews)},
		},
	}
}

func issueLines(issues []gateway.IssueSummary) string {
	if len(issues) == 0 {
		return "-"
	}
	var sb strings.Builder
	for n, is := range issues {
		if n == 10 {
			sb.WriteString("...\n")
			break
		}
		fmt.Fprintf(&sb, "[%s#%d](%s) %s\n", is.Repo, is.Number, is.URL, is.Title)
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
