package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/domain"
	"github.com/wylited/usthingy/internal/gateway"
)

// fakeGateway serves canned data and scripted failures.
type fakeGateway struct {
	mu sync.Mutex

	repos    []domain.Repository
	users    []domain.User
	projects []domain.Project

	// repoErrs is consumed one error per FetchRepositories call; nil entries
	// mean success.
	repoErrs []error

	cycles  atomic.Int32 // completed FetchProjects calls
	started atomic.Int32 // FetchRepositories calls (cycle entries)
	block   chan struct{}
}

func (f *fakeGateway) FetchRepositories(ctx context.Context) ([]domain.Repository, error) {
	f.started.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.repoErrs) > 0 {
		err := f.repoErrs[0]
		f.repoErrs = f.repoErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.repos, nil
}

func (f *fakeGateway) FetchUsers(ctx context.Context) ([]domain.User, error) {
	return f.users, nil
}

func (f *fakeGateway) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	f.cycles.Add(1)
	return f.projects, nil
}

func (f *fakeGateway) CommitFieldMutation(ctx context.Context, projectID, itemID string, field domain.FieldDef, value domain.Value) error {
	return nil
}

func (f *fakeGateway) AssignIssue(ctx context.Context, repo string, number int, assignee string) (string, error) {
	return "", nil
}

func (f *fakeGateway) ListOpenIssues(ctx context.Context, repo string, limit int) ([]gateway.IssueSummary, error) {
	return nil, nil
}

func (f *fakeGateway) Workload(ctx context.Context, login string) (gateway.Workload, error) {
	return gateway.Workload{}, nil
}

func transientErr() error {
	return &gateway.RemoteError{Kind: gateway.FailureNetwork, Op: "fetch repositories", Err: errors.New("connection reset")}
}

func permanentErr() error {
	return &gateway.RemoteError{Kind: gateway.FailureAuth, Op: "fetch repositories", Err: errors.New("bad credentials")}
}

func newTestRefresher(gw gateway.Gateway, store *cache.Store, opts Options) *Refresher {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Millisecond
	}
	return New(gw, store, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
}

func TestSuccessfulCyclePublishes(t *testing.T) {
	gw := &fakeGateway{
		repos:    []domain.Repository{{Name: "backend"}},
		users:    []domain.User{{Login: "octocat"}},
		projects: []domain.Project{{ID: "p1", Title: "Backlog"}},
	}
	store := cache.NewStore()
	r := newTestRefresher(gw, store, Options{})

	require.True(t, r.RefreshNow(context.Background()))

	snap := store.Current()
	assert.False(t, snap.Empty())
	assert.Len(t, snap.Repos, 1)
	assert.Len(t, snap.Users, 1)
	_, ok := snap.ProjectTitled("Backlog")
	assert.True(t, ok)
}

func TestFailedCycleLeavesSnapshotUnchanged(t *testing.T) {
	gw := &fakeGateway{
		repos: []domain.Repository{{Name: "backend"}},
	}
	store := cache.NewStore()
	r := newTestRefresher(gw, store, Options{MaxAttempts: 2})

	require.True(t, r.RefreshNow(context.Background()))
	before := store.Current()

	// Exhaust retries with transient failures: no publish.
	gw.mu.Lock()
	gw.repoErrs = []error{transientErr(), transientErr()}
	gw.mu.Unlock()

	assert.False(t, r.RefreshNow(context.Background()))
	assert.Same(t, before, store.Current())
}

func TestTransientFailureIsRetried(t *testing.T) {
	gw := &fakeGateway{
		repos:    []domain.Repository{{Name: "backend"}},
		repoErrs: []error{transientErr(), nil},
	}
	store := cache.NewStore()
	r := newTestRefresher(gw, store, Options{MaxAttempts: 3})

	assert.True(t, r.RefreshNow(context.Background()))
	assert.False(t, store.Current().Empty())
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	gw := &fakeGateway{
		repoErrs: []error{permanentErr(), nil},
	}
	store := cache.NewStore()
	r := newTestRefresher(gw, store, Options{MaxAttempts: 5})

	assert.False(t, r.RefreshNow(context.Background()))
	// Only the single failing call; no retry consumed the nil entry.
	assert.Equal(t, int32(1), gw.started.Load())
	assert.True(t, store.Current().Empty())
}

// TestCoalescing verifies that triggers arriving while a cycle is in flight
// collapse into at most one follow-up cycle.
func TestCoalescing(t *testing.T) {
	gw := &fakeGateway{block: make(chan struct{})}
	store := cache.NewStore()
	r := newTestRefresher(gw, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Wait for the startup cycle to enter the gateway, then pile on triggers
	// while it is blocked.
	require.Eventually(t, func() bool { return gw.started.Load() == 1 }, time.Second, time.Millisecond)
	r.Trigger()
	r.Trigger()
	r.Trigger()

	// Unblock all cycles and let the loop drain. Receives on the closed
	// channel return immediately for every subsequent cycle.
	close(gw.block)

	assert.Eventually(t, func() bool { return gw.cycles.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// The three stacked triggers coalesced: startup cycle plus at most one more.
	assert.LessOrEqual(t, gw.started.Load(), int32(2))

	cancel()
	<-done
}

func TestRefreshNowGateRejectsConcurrentCycle(t *testing.T) {
	gw := &fakeGateway{block: make(chan struct{})}
	store := cache.NewStore()
	r := newTestRefresher(gw, store, Options{})

	first := make(chan bool)
	go func() {
		first <- r.RefreshNow(context.Background())
	}()

	require.Eventually(t, func() bool { return gw.started.Load() == 1 }, time.Second, time.Millisecond)

	// Second entry while the first is blocked inside the gateway.
	assert.False(t, r.RefreshNow(context.Background()))

	close(gw.block)
	assert.True(t, <-first)
}
