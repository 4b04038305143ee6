package gateway

import (
	"context"

	"github.com/machinebox/graphql"

	"github.com/wylited/usthingy/internal/domain"
)

// CommitFieldMutation issues the single upstream mutation of an edit session.
// The value variant sent to GitHub is chosen from the field's declared type,
// not guessed from the value, so a mismatch fails loudly server-side.
func (c *Client) CommitFieldMutation(ctx context.Context, projectID, itemID string, field domain.FieldDef, value domain.Value) error {
	const op = "commit field mutation"

	var valueLiteral string
	vars := map[string]interface{}{
		"projectId": projectID,
		"itemId":    itemID,
		"fieldId":   field.ID,
	}

	switch field.Type {
	case domain.FieldSingleSelect:
		valueLiteral = `{ singleSelectOptionId: $optionId }`
		vars["optionId"] = value.OptionID
	case domain.FieldIteration:
		valueLiteral = `{ iterationId: $optionId }`
		vars["optionId"] = value.OptionID
	case domain.FieldNumber:
		valueLiteral = `{ number: $number }`
		vars["number"] = value.Number
	case domain.FieldDate:
		valueLiteral = `{ date: $date }`
		vars["date"] = value.Date.Format("2006-01-02")
	default:
		valueLiteral = `{ text: $text }`
		vars["text"] = value.Text
	}

	req := graphql.NewRequest(mutationFor(field.Type, valueLiteral))
	for k, v := range vars {
		req.Var(k, v)
	}

	var resp struct {
		UpdateProjectV2ItemFieldValue struct {
			ProjectV2Item struct {
				ID string `json:"id"`
			} `json:"projectV2Item"`
		} `json:"updateProjectV2ItemFieldValue"`
	}

	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return classifyGraphQL(op, err)
	}
	return nil
}

func mutationFor(t domain.FieldType, valueLiteral string) string {
	var decl string
	switch t {
	case domain.FieldSingleSelect, domain.FieldIteration:
		decl = "$optionId: String!"
	case domain.FieldNumber:
		decl = "$number: Float!"
	case domain.FieldDate:
		decl = "$date: Date!"
	default:
		decl = "$text: String!"
	}

	return `
		mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, ` + decl + `) {
			updateProjectV2ItemFieldValue(
				input: {
					projectId: $projectId
					itemId: $itemId
					fieldId: $fieldId
					value: ` + valueLiteral + `
				}
			) {
				projectV2Item {
					id
				}
			}
		}
	`
}
