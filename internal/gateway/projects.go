package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/machinebox/graphql"

	"github.com/wylited/usthingy/internal/domain"
)

const (
	projectPageSize = 20

	// fieldPageSize is requested for both a project's field schema and each
	// item's fieldValues. Projects V2 caps boards at 50 fields, so one page
	// at this size covers everything; using the same size on both sides
	// means no item can carry a value for a field the schema page missed.
	fieldPageSize = 50
)

// FetchProjects fetches every Projects V2 board in the org, field schemas
// first, then items, paginating both to exhaustion. Item field values are
// resolved against the schema fetched in the same pass; values referencing
// unknown fields are dropped rather than carried dangling.
func (c *Client) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project

	cursor := ""
	for {
		page, next, err := c.fetchProjectPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		projects = append(projects, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	for i := range projects {
		items, err := c.fetchProjectItems(ctx, &projects[i])
		if err != nil {
			return nil, err
		}
		projects[i].Items = items
	}

	return projects, nil
}

var projectPageQuery = fmt.Sprintf(`
		query($org: String!, $first: Int!, $after: String) {
			organization(login: $org) {
				projectsV2(first: $first, after: $after) {
					pageInfo {
						hasNextPage
						endCursor
					}
					nodes {
						id
						number
						title
						url
						fields(first: %d) {
							nodes {
								... on ProjectV2FieldCommon {
									id
									name
									dataType
								}
								... on ProjectV2SingleSelectField {
									options {
										id
										name
									}
								}
								... on ProjectV2IterationField {
									configuration {
										iterations {
											id
											title
										}
									}
								}
							}
						}
					}
				}
			}
		}
	`, fieldPageSize)

func (c *Client) fetchProjectPage(ctx context.Context, cursor string) ([]domain.Project, string, error) {
	const op = "fetch projects"

	req := graphql.NewRequest(projectPageQuery)
	req.Var("org", c.org)
	req.Var("first", projectPageSize)
	if cursor != "" {
		req.Var("after", cursor)
	} else {
		req.Var("after", nil)
	}

	var resp struct {
		Organization struct {
			ProjectsV2 struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []struct {
					ID     string `json:"id"`
					Number int    `json:"number"`
					Title  string `json:"title"`
					URL    string `json:"url"`
					Fields struct {
						Nodes []struct {
							ID       string `json:"id"`
							Name     string `json:"name"`
							DataType string `json:"dataType"`
							Options  []struct {
								ID   string `json:"id"`
								Name string `json:"name"`
							} `json:"options"`
							Configuration *struct {
								Iterations []struct {
									ID    string `json:"id"`
									Title string `json:"title"`
								} `json:"iterations"`
							} `json:"configuration"`
						} `json:"nodes"`
					} `json:"fields"`
				} `json:"nodes"`
			} `json:"projectsV2"`
		} `json:"organization"`
	}

	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, "", classifyGraphQL(op, err)
	}

	conn := resp.Organization.ProjectsV2
	projects := make([]domain.Project, 0, len(conn.Nodes))
	for _, node := range conn.Nodes {
		p := domain.Project{
			ID:     node.ID,
			Number: node.Number,
			Title:  node.Title,
			URL:    node.URL,
		}
		for _, f := range node.Fields.Nodes {
			if f.ID == "" {
				continue
			}
			def := domain.FieldDef{
				ID:   f.ID,
				Name: f.Name,
				Type: domain.FieldType(f.DataType),
			}
			for _, o := range f.Options {
				def.Options = append(def.Options, domain.Option{ID: o.ID, Name: o.Name})
			}
			if f.Configuration != nil {
				for _, it := range f.Configuration.Iterations {
					def.Options = append(def.Options, domain.Option{ID: it.ID, Name: it.Title})
				}
			}
			p.Fields = append(p.Fields, def)
		}
		projects = append(projects, p)
	}

	next := ""
	if conn.PageInfo.HasNextPage {
		next = conn.PageInfo.EndCursor
	}
	return projects, next, nil
}

const itemPageSize = 100

var itemPageQuery = fmt.Sprintf(`
			query($id: ID!, $first: Int!, $after: String) {
				node(id: $id) {
					... on ProjectV2 {
						items(first: $first, after: $after) {
							pageInfo {
								hasNextPage
								endCursor
							}
							nodes {
								id
								content {
									__typename
									... on Issue {
										title
										number
										url
										state
										repository { name }
										assignees(first: 10) { nodes { login } }
										labels(first: 10) { nodes { name } }
									}
									... on PullRequest {
										title
										number
										url
										state
										repository { name }
										assignees(first: 10) { nodes { login } }
										labels(first: 10) { nodes { name } }
									}
									... on DraftIssue {
										title
									}
								}
								fieldValues(first: %d) {
									nodes {
										... on ProjectV2ItemFieldTextValue {
											text
											field { ... on ProjectV2FieldCommon { id } }
										}
										... on ProjectV2ItemFieldNumberValue {
											number
											field { ... on ProjectV2FieldCommon { id } }
										}
										... on ProjectV2ItemFieldDateValue {
											date
											field { ... on ProjectV2FieldCommon { id } }
										}
										... on ProjectV2ItemFieldSingleSelectValue {
											optionId
											name
											field { ... on ProjectV2FieldCommon { id } }
										}
										... on ProjectV2ItemFieldIterationValue {
											iterationId
											title
											field { ... on ProjectV2FieldCommon { id } }
										}
									}
								}
							}
						}
					}
				}
			}
		`, fieldPageSize)

func (c *Client) fetchProjectItems(ctx context.Context, p *domain.Project) ([]domain.Item, error) {
	const op = "fetch project items"

	var items []domain.Item
	cursor := ""
	for {
		req := graphql.NewRequest(itemPageQuery)
		req.Var("id", p.ID)
		req.Var("first", itemPageSize)
		if cursor != "" {
			req.Var("after", cursor)
		} else {
			req.Var("after", nil)
		}

		var resp struct {
			Node struct {
				Items struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []itemNode `json:"nodes"`
				} `json:"items"`
			} `json:"node"`
		}

		if err := c.gql.Run(ctx, req, &resp); err != nil {
			return nil, classifyGraphQL(op, err)
		}

		for _, node := range resp.Node.Items.Nodes {
			items = append(items, node.toDomain(p))
		}
		if !resp.Node.Items.PageInfo.HasNextPage {
			break
		}
		cursor = resp.Node.Items.PageInfo.EndCursor
	}

	return items, nil
}

type itemNode struct {
	ID      string `json:"id"`
	Content *struct {
		Typename   string `json:"__typename"`
		Title      string `json:"title"`
		Number     int    `json:"number"`
		URL        string `json:"url"`
		State      string `json:"state"`
		Repository *struct {
			Name string `json:"name"`
		} `json:"repository"`
		Assignees *struct {
			Nodes []struct {
				Login string `json:"login"`
			} `json:"nodes"`
		} `json:"assignees"`
		Labels *struct {
			Nodes []struct {
				Name string `json:"name"`
			} `json:"nodes"`
		} `json:"labels"`
	} `json:"content"`
	FieldValues struct {
		Nodes []struct {
			Text        *string  `json:"text"`
			Number      *float64 `json:"number"`
			Date        *string  `json:"date"`
			OptionID    *string  `json:"optionId"`
			IterationID *string  `json:"iterationId"`
			Name        string   `json:"name"`
			Title       string   `json:"title"`
			Field       *struct {
				ID string `json:"id"`
			} `json:"field"`
		} `json:"nodes"`
	} `json:"fieldValues"`
}

// toDomain converts an item node, resolving field values against the schema
// of the project fetched in the same cycle.
func (n itemNode) toDomain(p *domain.Project) domain.Item {
	item := domain.Item{
		ID:        n.ID,
		ProjectID: p.ID,
		Values:    make(map[string]domain.Value),
	}

	if n.Content != nil {
		item.Title = n.Content.Title
		item.Number = n.Content.Number
		item.URL = n.Content.URL
		item.State = n.Content.State
		switch n.Content.Typename {
		case "Issue":
			item.ContentType = domain.ContentIssue
		case "PullRequest":
			item.ContentType = domain.ContentPullRequest
		default:
			item.ContentType = domain.ContentDraftIssue
		}
		if n.Content.Repository != nil {
			item.Repo = n.Content.Repository.Name
		}
		if n.Content.Assignees != nil {
			for _, a := range n.Content.Assignees.Nodes {
				item.Assignees = append(item.Assignees, a.Login)
			}
		}
		if n.Content.Labels != nil {
			for _, l := range n.Content.Labels.Nodes {
				item.Labels = append(item.Labels, l.Name)
			}
		}
	}

	for _, fv := range n.FieldValues.Nodes {
		if fv.Field == nil {
			continue
		}
		if _, ok := p.Field(fv.Field.ID); !ok {
			continue
		}
		switch {
		case fv.OptionID != nil:
			item.Values[fv.Field.ID] = domain.Value{
				Kind: domain.ValueOption, OptionID: *fv.OptionID, Display: fv.Name,
			}
		case fv.IterationID != nil:
			item.Values[fv.Field.ID] = domain.Value{
				Kind: domain.ValueOption, OptionID: *fv.IterationID, Display: fv.Title,
			}
		case fv.Date != nil:
			d, err := time.Parse("2006-01-02", *fv.Date)
			if err != nil {
				continue
			}
			item.Values[fv.Field.ID] = domain.Value{
				Kind: domain.ValueDate, Date: d, Display: *fv.Date,
			}
		case fv.Number != nil:
			item.Values[fv.Field.ID] = domain.Value{
				Kind: domain.ValueNumber, Number: *fv.Number, Display: trimFloat(*fv.Number),
			}
		case fv.Text != nil:
			item.Values[fv.Field.ID] = domain.Value{
				Kind: domain.ValueText, Text: *fv.Text, Display: *fv.Text,
			}
		}
	}

	return item
}

// trimFloat renders a number without trailing zeros, e.g. 3 not 3.000000.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
