// Package cache holds immutable snapshots of mirrored GitHub state and an
// atomically-swapped pointer to the current one. Readers grab the pointer
// and work with a frozen view; the refresher builds a whole new snapshot off
// to the side and publishes it in one step. Nothing in a published snapshot
// is ever mutated.
package cache

import (
	"strings"
	"time"

	"github.com/wylited/usthingy/internal/domain"
)

// Snapshot is one internally consistent capture of all cached remote data.
// Lookup indexes are built once at construction and shared by all readers.
type Snapshot struct {
	Repos    []domain.Repository
	Users    []domain.User
	Projects []domain.Project

	FetchedAt time.Time

	projectsByID    map[string]int
	projectsByTitle map[string]int
	itemsByID       map[string]itemRef
}

type itemRef struct {
	project int
	item    int
}

// NewSnapshot freezes the given records into a snapshot and builds its
// indexes. The caller must not retain or modify the slices afterwards.
func NewSnapshot(repos []domain.Repository, users []domain.User, projects []domain.Project, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Repos:     repos,
		Users:     users,
		Projects:  projects,
		FetchedAt: fetchedAt,

		projectsByID:    make(map[string]int, len(projects)),
		projectsByTitle: make(map[string]int, len(projects)),
		itemsByID:       make(map[string]itemRef),
	}
	for pi, p := range projects {
		s.projectsByID[p.ID] = pi
		s.projectsByTitle[foldTitle(p.Title)] = pi
		for ii, it := range p.Items {
			s.itemsByID[it.ID] = itemRef{project: pi, item: ii}
		}
	}
	return s
}

func emptySnapshot() *Snapshot {
	return NewSnapshot(nil, nil, nil, time.Time{})
}

// Empty reports whether the snapshot predates the first successful refresh.
func (s *Snapshot) Empty() bool {
	return s.FetchedAt.IsZero()
}

// Project returns the project with the given node ID.
func (s *Snapshot) Project(id string) (domain.Project, bool) {
	if i, ok := s.projectsByID[id]; ok {
		return s.Projects[i], true
	}
	return domain.Project{}, false
}

// ProjectTitled returns the project whose title matches case-insensitively.
func (s *Snapshot) ProjectTitled(title string) (domain.Project, bool) {
	if i, ok := s.projectsByTitle[foldTitle(title)]; ok {
		return s.Projects[i], true
	}
	return domain.Project{}, false
}

// Item returns an item by node ID along with its parent project.
func (s *Snapshot) Item(id string) (domain.Item, domain.Project, bool) {
	ref, ok := s.itemsByID[id]
	if !ok {
		return domain.Item{}, domain.Project{}, false
	}
	p := s.Projects[ref.project]
	return p.Items[ref.item], p, true
}

// ItemNumbered finds an item by its content reference ("repo" and issue or
// PR number), the form autocomplete hands back to commands. Drafts have no
// number and are never returned.
func (s *Snapshot) ItemNumbered(repo string, number int) (domain.Item, domain.Project, bool) {
	if number == 0 {
		return domain.Item{}, domain.Project{}, false
	}
	for pi, p := range s.Projects {
		for ii, it := range p.Items {
			if it.Number == number && strings.EqualFold(it.Repo, repo) {
				return s.Projects[pi].Items[ii], s.Projects[pi], true
			}
		}
	}
	return domain.Item{}, domain.Project{}, false
}

func foldTitle(t string) string {
	return strings.ToLower(t)
}
