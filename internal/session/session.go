package session

import (
	"sync"
	"time"

	"github.com/wylited/usthingy/internal/domain"
)

// State names a step in the edit flow. A session moves forward through the
// input states and ends in exactly one terminal state.
type State string

const (
	StateFieldSelect State = "field_select"
	StateValueInput  State = "value_input"
	StateConfirm     State = "confirm"
	StateCommitting  State = "committing"
	StateCommitted   State = "committed"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled || s == StateFailed
}

// session holds the mutable state of one in-flight edit. All event handling
// for a session happens under mu, so events are applied one at a time in
// arrival order.
type session struct {
	mu sync.Mutex

	id        string
	ownerID   string
	projectID string
	itemID    string
	fieldID   string
	pending   domain.Value
	state     State
	createdAt time.Time
	updatedAt time.Time
	cause     error
}

// View is an immutable copy of a session plus the snapshot-resolved entities
// the caller needs to render it.
type View struct {
	ID      string
	OwnerID string
	State   State
	Project domain.Project
	Item    domain.Item
	Field   domain.FieldDef
	Pending domain.Value
	Cause   error
}
