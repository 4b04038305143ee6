package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/domain"
)

// DefaultTTL is how long a session may sit idle before it is abandoned.
const DefaultTTL = 10 * time.Minute

// Committer is the slice of the gateway the manager needs: exactly one
// mutation per successfully confirmed session.
type Committer interface {
	CommitFieldMutation(ctx context.Context, projectID, itemID string, field domain.FieldDef, value domain.Value) error
}

// Linker resolves a chat user ID to a linked GitHub login. An error means
// the user has not completed linking and may not commit edits.
type Linker interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Manager owns all in-flight edit sessions. Each event takes the session ID
// and the acting user's ID; sessions only answer to their owner.
type Manager struct {
	store  *cache.Store
	gw     Committer
	linker Linker
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(store *cache.Store, gw Committer, linker Linker, logger *slog.Logger, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:    store,
		gw:       gw,
		linker:   linker,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Run expires idle sessions until ctx is done. The per-event expiry check
// makes this a cleanup pass rather than a correctness requirement.
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.expireIdle()
		}
	}
}

func (m *Manager) expireIdle() {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	stale := make([]*session, 0)
	for _, s := range m.sessions {
		stale = append(stale, s)
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.mu.Lock()
		expired := !s.state.Terminal() && s.updatedAt.Before(cutoff)
		if expired {
			s.state = StateCancelled
		}
		s.mu.Unlock()
		if expired {
			m.remove(s.id)
			m.logger.Info("edit session expired", "session", s.id, "user", s.ownerID)
		}
	}
}

// Begin opens a session for itemID in FieldSelect. The item must be present
// in the current snapshot.
func (m *Manager) Begin(ctx context.Context, ownerID, itemID string) (View, error) {
	snap := m.store.Current()
	item, project, ok := snap.Item(itemID)
	if !ok {
		return View{}, ErrItemGone
	}

	s := &session{
		id:        uuid.NewString(),
		ownerID:   ownerID,
		projectID: project.ID,
		itemID:    item.ID,
		state:     StateFieldSelect,
		createdAt: m.now(),
		updatedAt: m.now(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("edit session opened", "session", s.id, "user", ownerID, "item", itemID)
	return m.view(s, project, item), nil
}

// Peek returns the session's current view without advancing it.
func (m *Manager) Peek(ctx context.Context, sessionID, userID string) (View, error) {
	s, err := m.take(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()

	project, item, err := m.resolve(s)
	if err != nil {
		return View{}, err
	}
	return m.view(s, project, item), nil
}

// ChooseField moves FieldSelect to ValueInput once the named field is
// confirmed to exist on the item's project in the current snapshot.
func (m *Manager) ChooseField(ctx context.Context, sessionID, userID, fieldID string) (View, error) {
	s, err := m.take(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()

	if s.state != StateFieldSelect {
		return View{}, ErrInvalidTransition
	}
	project, item, err := m.resolve(s)
	if err != nil {
		return View{}, err
	}
	field, ok := project.Field(fieldID)
	if !ok {
		return View{}, &ValidationError{Reason: "unknown field"}
	}

	s.fieldID = field.ID
	s.pending = domain.Value{}
	s.state = StateValueInput
	s.updatedAt = m.now()
	return m.view(s, project, item), nil
}

// SubmitValue validates raw input against the chosen field. A validation
// failure leaves the session in ValueInput so the user can retry.
func (m *Manager) SubmitValue(ctx context.Context, sessionID, userID, raw string) (View, error) {
	s, err := m.take(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()

	if s.state != StateValueInput {
		return View{}, ErrInvalidTransition
	}
	project, item, err := m.resolve(s)
	if err != nil {
		return View{}, err
	}
	field, ok := project.Field(s.fieldID)
	if !ok {
		return View{}, &ValidationError{Reason: "field no longer exists"}
	}

	value, err := validateValue(field, raw, m.now())
	if err != nil {
		s.updatedAt = m.now()
		return m.view(s, project, item), err
	}

	s.pending = value
	s.state = StateConfirm
	s.updatedAt = m.now()
	return m.view(s, project, item), nil
}

// Back returns from ValueInput to FieldSelect, dropping the chosen field.
func (m *Manager) Back(ctx context.Context, sessionID, userID string) (View, error) {
	s, err := m.take(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()

	if s.state != StateValueInput {
		return View{}, ErrInvalidTransition
	}
	project, item, err := m.resolve(s)
	if err != nil {
		return View{}, err
	}

	s.fieldID = ""
	s.pending = domain.Value{}
	s.state = StateFieldSelect
	s.updatedAt = m.now()
	return m.view(s, project, item), nil
}

// EditAgain returns from Confirm to ValueInput, dropping the pending value.
func (m *Manager) EditAgain(ctx context.Context, sessionID, userID string) (View, error) {
	s, err := m.take(sessionID, userID)
	if err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()

	if s.state != StateConfirm {
		return View{}, ErrInvalidTransition
	}
	project, item, err := m.resolve(s)
	if err != nil {
		return View{}, err
	}

	s.pending = domain.Value{}
	s.state = StateValueInput
	s.updatedAt = m.now()
	return m.view(s, project, item), nil
}

// Cancel finishes the session in Cancelled from any non-terminal state.
func (m *Manager) Cancel(ctx context.Context, sessionID, userID string) (View, error) {
	s, err := m.take(sessionID, userID)
	if err != nil {
		return View{}, err
	}

	s.state = StateCancelled
	s.updatedAt = m.now()
	v := m.viewLocked(s)
	s.mu.Unlock()

	m.remove(s.id)
	m.logger.Info("edit session cancelled", "session", s.id, "user", userID)
	return v, nil
}

// Confirm performs the single commit for the session. It requires a linked
// identity, re-checks option values against the current snapshot, and moves
// to Committed or Failed. Duplicate confirms are rejected because the state
// has already left Confirm by the time a second event is handled.
func (m *Manager) Confirm(ctx context.Context, sessionID, userID string) (View, error) {
	s, err := m.take(sessionID, userID)
	if err != nil {
		return View{}, err
	}

	if s.state != StateConfirm {
		s.mu.Unlock()
		return View{}, ErrInvalidTransition
	}

	project, item, err := m.resolve(s)
	if err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	field, ok := project.Field(s.fieldID)
	if !ok {
		s.state = StateFailed
		s.cause = &ValidationError{Reason: "field no longer exists"}
		v := m.view(s, project, item)
		s.mu.Unlock()
		m.remove(s.id)
		return v, s.cause
	}

	login, err := m.linker.Resolve(ctx, userID)
	if err != nil {
		s.updatedAt = m.now()
		v := m.view(s, project, item)
		s.mu.Unlock()
		return v, &AuthorizationError{Reason: "no linked GitHub account", Err: err}
	}

	if err := revalidateOption(field, s.pending); err != nil {
		s.pending = domain.Value{}
		s.state = StateValueInput
		s.updatedAt = m.now()
		v := m.view(s, project, item)
		s.mu.Unlock()
		return v, err
	}

	s.state = StateCommitting
	s.updatedAt = m.now()
	value := s.pending

	// The session stays locked across the gateway call so a racing confirm
	// cannot observe Confirm and commit a second time. No lock shared with
	// cache readers or other sessions is held here.
	commitErr := m.gw.CommitFieldMutation(ctx, s.projectID, s.itemID, field, value)
	if commitErr != nil {
		s.state = StateFailed
		s.cause = commitErr
		m.logger.Error("field edit failed",
			"session", s.id, "user", userID, "login", login,
			"item", s.itemID, "field", field.Name, "error", commitErr)
	} else {
		s.state = StateCommitted
		m.logger.Info("field edit committed",
			"session", s.id, "user", userID, "login", login,
			"item", s.itemID, "field", field.Name, "value", value.Display)
	}
	s.updatedAt = m.now()
	v := m.view(s, project, item)
	s.mu.Unlock()

	m.remove(s.id)
	if commitErr != nil {
		return v, fmt.Errorf("commit %s on %s: %w", field.Name, item.Title, commitErr)
	}
	return v, nil
}

// take looks a session up and locks it for one event. Unknown, terminal and
// timed-out sessions all report ErrExpiredSession. The caller unlocks.
func (m *Manager) take(sessionID, userID string) (*session, error) {
	m.mu.Lock()
	s := m.sessions[sessionID]
	m.mu.Unlock()
	if s == nil {
		return nil, ErrExpiredSession
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil, ErrExpiredSession
	}
	if m.now().Sub(s.updatedAt) > m.ttl {
		s.state = StateCancelled
		s.mu.Unlock()
		m.remove(s.id)
		return nil, ErrExpiredSession
	}
	if s.ownerID != userID {
		s.mu.Unlock()
		return nil, &AuthorizationError{Reason: "session belongs to another user"}
	}
	return s, nil
}

// resolve re-reads the session's project and item from the current snapshot.
// Entities can disappear across a refresh, in which case the session ends.
func (m *Manager) resolve(s *session) (domain.Project, domain.Item, error) {
	snap := m.store.Current()
	item, project, ok := snap.Item(s.itemID)
	if !ok {
		s.state = StateFailed
		s.cause = ErrItemGone
		m.remove(s.id)
		return domain.Project{}, domain.Item{}, ErrItemGone
	}
	return project, item, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) view(s *session, project domain.Project, item domain.Item) View {
	v := View{
		ID:      s.id,
		OwnerID: s.ownerID,
		State:   s.state,
		Project: project,
		Item:    item,
		Pending: s.pending,
		Cause:   s.cause,
	}
	if s.fieldID != "" {
		if f, ok := project.Field(s.fieldID); ok {
			v.Field = f
		}
	}
	return v
}

// viewLocked builds a View when the snapshot entities are not needed, such
// as on cancellation.
func (m *Manager) viewLocked(s *session) View {
	snap := m.store.Current()
	if item, project, ok := snap.Item(s.itemID); ok {
		return m.view(s, project, item)
	}
	return View{ID: s.id, OwnerID: s.ownerID, State: s.state, Pending: s.pending, Cause: s.cause}
}
