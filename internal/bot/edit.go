package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/wylited/usthingy/internal/domain"
	"github.com/wylited/usthingy/internal/session"
)

// Edit flow custom IDs are "edit:<action>:<session id>". The session ID in
// the component is all the state Discord carries for us; everything else
// lives in the session manager.
const editPrefix = "edit"

func editID(action, sessionID string) string {
	return strings.Join([]string{editPrefix, action, sessionID}, ":")
}

func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	parts := strings.Split(i.MessageComponentData().CustomID, ":")
	if len(parts) != 3 || parts[0] != editPrefix {
		return
	}
	action, sessionID := parts[1], parts[2]
	caller := interactionUser(i)
	ctx := context.Background()

	switch action {
	case "field":
		fieldID := i.MessageComponentData().Values[0]
		view, err := b.sessions.ChooseField(ctx, sessionID, caller.ID, fieldID)
		b.renderOutcome(s, i, view, err)

	case "value":
		raw := i.MessageComponentData().Values[0]
		view, err := b.sessions.SubmitValue(ctx, sessionID, caller.ID, raw)
		b.renderOutcome(s, i, view, err)

	case "input":
		b.openValueModal(s, i, sessionID, caller.ID)

	case "back":
		view, err := b.sessions.Back(ctx, sessionID, caller.ID)
		b.renderOutcome(s, i, view, err)

	case "again":
		view, err := b.sessions.EditAgain(ctx, sessionID, caller.ID)
		b.renderOutcome(s, i, view, err)

	case "confirm":
		view, err := b.sessions.Confirm(ctx, sessionID, caller.ID)
		b.renderOutcome(s, i, view, err)

	case "cancel":
		view, err := b.sessions.Cancel(ctx, sessionID, caller.ID)
		b.renderOutcome(s, i, view, err)
	}
}

func (b *Bot) handleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	parts := strings.Split(data.CustomID, ":")
	if len(parts) != 3 || parts[0] != editPrefix || parts[1] != "modal" {
		return
	}
	sessionID := parts[2]
	caller := interactionUser(i)

	view, err := b.sessions.SubmitValue(context.Background(), sessionID, caller.ID, modalValue(data))
	b.renderOutcome(s, i, view, err)
}

// modalValue digs the single text input out of a modal submission. Anything
// malformed yields an empty string, which validation then rejects.
func modalValue(data discordgo.ModalSubmitInteractionData) string {
	if len(data.Components) == 0 {
		return ""
	}
	row, ok := data.Components[0].(*discordgo.ActionsRow)
	if !ok || len(row.Components) == 0 {
		return ""
	}
	input, ok := row.Components[0].(*discordgo.TextInput)
	if !ok {
		return ""
	}
	return input.Value
}

// openValueModal responds with a modal for free-form value entry. Modals can
// only be opened as an interaction response, hence the dedicated button.
func (b *Bot) openValueModal(s *discordgo.Session, i *discordgo.InteractionCreate, sessionID, userID string) {
	view, err := b.sessions.Peek(context.Background(), sessionID, userID)
	if err != nil {
		b.respondError(s, i, userMessage(err))
		return
	}

	label := "Value"
	switch view.Field.Type {
	case domain.FieldDate:
		label = "Date (YYYY-MM-DD or Today)"
	case domain.FieldNumber:
		label = "Number"
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: editID("modal", sessionID),
			Title:    "Set " + view.Field.Name,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID: "value",
						Label:    label,
						Style:    discordgo.TextInputShort,
						Required: true,
					},
				}},
			},
		},
	})
}

// renderOutcome updates the edit flow message in place. Validation and
// authorization problems keep the flow alive with the reason shown inline;
// dead sessions get their components stripped.
func (b *Bot) renderOutcome(s *discordgo.Session, i *discordgo.InteractionCreate, view session.View, err error) {
	if err != nil {
		var verr *session.ValidationError
		var aerr *session.AuthorizationError
		switch {
		case errors.As(err, &verr), errors.As(err, &aerr):
			if view.ID != "" {
				content, components := renderSession(view)
				b.updateMessage(s, i, "⚠️ "+userMessage(err)+"\n\n"+content, components)
				return
			}
			b.respondError(s, i, userMessage(err))
		case errors.Is(err, session.ErrInvalidTransition):
			// Stale click on an outdated message; nothing to update.
			b.respondError(s, i, "That step is no longer active.")
		default:
			if view.ID != "" && view.State.Terminal() {
				content, _ := renderSession(view)
				b.updateMessage(s, i, content, []discordgo.MessageComponent{})
				return
			}
			b.updateMessage(s, i, "❌ "+userMessage(err), []discordgo.MessageComponent{})
		}
		return
	}

	content, components := renderSession(view)
	b.updateMessage(s, i, content, components)
}

func (b *Bot) updateMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string, components []discordgo.MessageComponent) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	})
}

// renderSession turns a session view into message content plus the
// components legal in its state.
func renderSession(v session.View) (string, []discordgo.MessageComponent) {
	label := itemLabel(v.Item)

	switch v.State {
	case session.StateFieldSelect:
		options := make([]discordgo.SelectMenuOption, 0, len(v.Project.Fields))
		for _, f := range v.Project.Fields {
			options = append(options, discordgo.SelectMenuOption{
				Label:       f.Name,
				Value:       f.ID,
				Description: strings.ToLower(string(f.Type)),
			})
			if len(options) == 25 {
				break
			}
		}
		return fmt.Sprintf("Editing **%s** on **%s**. Pick a field:", label, v.Project.Title),
			[]discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						MenuType: discordgo.StringSelectMenu,
						CustomID: editID("field", v.ID),
						Options:  options,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					cancelButton(v.ID),
				}},
			}

	case session.StateValueInput:
		if v.Field.HasOptions() {
			options := make([]discordgo.SelectMenuOption, 0, len(v.Field.Options))
			for _, o := range v.Field.Options {
				options = append(options, discordgo.SelectMenuOption{Label: o.Name, Value: o.Name})
				if len(options) == 25 {
					break
				}
			}
			return fmt.Sprintf("Pick a value for **%s** on **%s**:", v.Field.Name, label),
				[]discordgo.MessageComponent{
					discordgo.ActionsRow{Components: []discordgo.MessageComponent{
						discordgo.SelectMenu{
							MenuType: discordgo.StringSelectMenu,
							CustomID: editID("value", v.ID),
							Options:  options,
						},
					}},
					discordgo.ActionsRow{Components: []discordgo.MessageComponent{
						backButton(v.ID), cancelButton(v.ID),
					}},
				}
		}
		return fmt.Sprintf("Enter a value for **%s** on **%s**:", v.Field.Name, label),
			[]discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Enter value",
						Style:    discordgo.PrimaryButton,
						CustomID: editID("input", v.ID),
					},
					backButton(v.ID), cancelButton(v.ID),
				}},
			}

	case session.StateConfirm:
		return fmt.Sprintf("Set **%s** to **%s** on **%s**?", v.Field.Name, v.Pending.Display, label),
			[]discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Confirm",
						Style:    discordgo.SuccessButton,
						CustomID: editID("confirm", v.ID),
					},
					discordgo.Button{
						Label:    "Edit value",
						Style:    discordgo.SecondaryButton,
						CustomID: editID("again", v.ID),
					},
					cancelButton(v.ID),
				}},
			}

	case session.StateCommitted:
		return fmt.Sprintf("✅ **%s** set to **%s** on **%s**.", v.Field.Name, v.Pending.Display, label),
			[]discordgo.MessageComponent{}

	case session.StateCancelled:
		return "Edit cancelled.", []discordgo.MessageComponent{}

	case session.StateFailed:
		return fmt.Sprintf("❌ Edit of **%s** failed: %s", label, userMessage(v.Cause)),
			[]discordgo.MessageComponent{}
	}

	return "…", []discordgo.MessageComponent{}
}

func itemLabel(item domain.Item) string {
	if item.Number == 0 {
		return item.Title
	}
	return fmt.Sprintf("%s #%d", item.Repo, item.Number)
}

func backButton(sessionID string) discordgo.Button {
	return discordgo.Button{
		Label:    "Back",
		Style:    discordgo.SecondaryButton,
		CustomID: editID("back", sessionID),
	}
}

func cancelButton(sessionID string) discordgo.Button {
	return discordgo.Button{
		Label:    "Cancel",
		Style:    discordgo.DangerButton,
		CustomID: editID("cancel", sessionID),
	}
}
