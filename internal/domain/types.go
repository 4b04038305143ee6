// Package domain defines the normalized record types mirrored from GitHub.
// Everything here is captured into immutable snapshots by the refresher;
// none of these types are mutated in place after a snapshot is built.
package domain

import (
	"strings"
	"time"
)

// Repository is an org repository as captured at refresh time.
type Repository struct {
	ID         int64  // GitHub repository ID
	Name       string // Short name (e.g. "backend-service")
	FullName   string // "org/backend-service"
	OpenIssues int    // Open issue + PR count, used for listings
}

// UserKind classifies how a user relates to the organization.
type UserKind string

const (
	UserMember       UserKind = "member"
	UserCollaborator UserKind = "collaborator"
)

// User is an org member or outside collaborator.
type User struct {
	ID        int64
	Login     string
	AvatarURL string
	Kind      UserKind
}

// FieldType is a Projects V2 field data type.
type FieldType string

const (
	FieldText         FieldType = "TEXT"
	FieldNumber       FieldType = "NUMBER"
	FieldDate         FieldType = "DATE"
	FieldSingleSelect FieldType = "SINGLE_SELECT"
	FieldIteration    FieldType = "ITERATION"
)

// Option is one selectable value of a single-select or iteration field.
type Option struct {
	ID   string
	Name string
}

// FieldDef is a project field definition. Options are kept in the order the
// API returns them, which is the order shown on the project board.
type FieldDef struct {
	ID      string
	Name    string
	Type    FieldType
	Options []Option
}

// Option returns the option with the given ID, if the field has one.
func (f FieldDef) Option(id string) (Option, bool) {
	for _, o := range f.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionNamed returns the option whose name matches case-insensitively.
func (f FieldDef) OptionNamed(name string) (Option, bool) {
	for _, o := range f.Options {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return Option{}, false
}

// HasOptions reports whether the field type carries an option set.
func (f FieldDef) HasOptions() bool {
	return f.Type == FieldSingleSelect || f.Type == FieldIteration
}

// ValueKind tags the variant held by a Value.
type ValueKind string

const (
	ValueText   ValueKind = "text"
	ValueNumber ValueKind = "number"
	ValueDate   ValueKind = "date"
	ValueOption ValueKind = "option"
)

// Value is a typed field value, either read from a snapshot item or pending
// in an edit session. Exactly one variant is meaningful per Kind.
type Value struct {
	Kind     ValueKind
	Text     string
	Number   float64
	Date     time.Time
	OptionID string
	// Display is the human-readable form shown in UI (option name, formatted
	// date, raw text). Set by whoever constructs the value.
	Display string
}

// ContentType constants for project items.
const (
	ContentIssue       = "Issue"
	ContentPullRequest = "PullRequest"
	ContentDraftIssue  = "DraftIssue"
)

// Item is one project item plus denormalized content metadata for display.
// Values maps field-definition IDs to typed values resolved against the
// field schema captured in the same snapshot.
type Item struct {
	ID          string // ProjectV2Item node ID
	ProjectID   string
	ContentType string
	Title       string
	URL         string
	Repo        string // Repository short name, empty for drafts
	Number      int    // Issue/PR number, 0 for drafts
	State       string // OPEN, CLOSED, MERGED
	Assignees   []string
	Labels      []string
	Values      map[string]Value
}

// Closed reports whether the item's content is closed or merged.
func (it Item) Closed() bool {
	return it.State == "CLOSED" || it.State == "MERGED"
}

// Project is a Projects V2 board with its field schema and items. Fields are
// captured before items so item values always resolve against this schema.
type Project struct {
	ID     string // ProjectV2 node ID
	Number int
	Title  string
	URL    string
	Fields []FieldDef
	Items  []Item
}

// Field returns the field definition with the given ID.
func (p Project) Field(id string) (FieldDef, bool) {
	for _, f := range p.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldDef{}, false
}

// FieldNamed returns the field whose name matches case-insensitively.
func (p Project) FieldNamed(name string) (FieldDef, bool) {
	for _, f := range p.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldDef{}, false
}
