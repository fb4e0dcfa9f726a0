// Package memory is an in-process persistence provider. One lock guards all
// tables so multi-entity commits are atomic.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/store"
)

type Store struct {
	mu sync.RWMutex

	users   map[string]store.Record[domain.User]
	events  map[string]store.Record[domain.Event]
	tasks   map[string]store.Record[domain.Task]
	credits []domain.CreditEntry
	// creditedTasks indexes credits by task id; one entry per task.
	creditedTasks map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]store.Record[domain.User]),
		events:        make(map[string]store.Record[domain.Event]),
		tasks:         make(map[string]store.Record[domain.Task]),
		credits:       make([]domain.CreditEntry, 0),
		creditedTasks: make(map[string]struct{}),
	}
}

func (s *Store) GetUser(_ context.Context, id string) (store.Record[domain.User], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[strings.TrimSpace(id)]
	if !ok {
		return store.Record[domain.User]{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (store.Record[domain.User], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.users {
		if strings.EqualFold(rec.Value.Email, strings.TrimSpace(email)) {
			return rec, nil
		}
	}
	return store.Record[domain.User]{}, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, u domain.User) (store.Record[domain.User], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return store.Record[domain.User]{}, store.ErrDuplicate
	}
	for _, rec := range s.users {
		if strings.EqualFold(rec.Value.Email, u.Email) {
			return store.Record[domain.User]{}, store.ErrDuplicate
		}
	}
	rec := store.Record[domain.User]{Value: u, Version: 1}
	s.users[u.ID] = rec
	return rec, nil
}

func (s *Store) CompareAndSwapUser(_ context.Context, id string, expected int64, next domain.User) (store.Record[domain.User], error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return store.Record[domain.User]{}, store.ErrNotFound
	}
	if cur.Version != expected {
		return store.Record[domain.User]{}, store.ErrVersionConflict
	}
	next.ID = id
	rec := store.Record[domain.User]{Value: next, Version: expected + 1}
	s.users[id] = rec
	return rec, nil
}

func (s *Store) GetEvent(_ context.Context, id string) (store.Record[domain.Event], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.events[strings.TrimSpace(id)]
	if !ok {
		return store.Record[domain.Event]{}, store.ErrNotFound
	}
	rec.Value = rec.Value.Clone()
	return rec, nil
}

func (s *Store) CreateEvent(_ context.Context, e domain.Event) (store.Record[domain.Event], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.ID]; ok {
		return store.Record[domain.Event]{}, store.ErrDuplicate
	}
	rec := store.Record[domain.Event]{Value: e.Clone(), Version: 1}
	s.events[e.ID] = rec
	return store.Record[domain.Event]{Value: e.Clone(), Version: 1}, nil
}

func (s *Store) CompareAndSwapEvent(_ context.Context, id string, expected int64, next domain.Event) (store.Record[domain.Event], error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.events[id]
	if !ok {
		return store.Record[domain.Event]{}, store.ErrNotFound
	}
	if cur.Version != expected {
		return store.Record[domain.Event]{}, store.ErrVersionConflict
	}
	next.ID = id
	s.events[id] = store.Record[domain.Event]{Value: next.Clone(), Version: expected + 1}
	return store.Record[domain.Event]{Value: next.Clone(), Version: expected + 1}, nil
}

func (s *Store) DeleteEvent(_ context.Context, id string, expected int64) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expected {
		return store.ErrVersionConflict
	}
	delete(s.events, id)
	return nil
}

func (s *Store) ListEvents(_ context.Context, f store.EventFilter) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Event, 0)
	for _, rec := range s.events {
		if matchEvent(rec.Value, f) {
			items = append(items, rec.Value.Clone())
		}
	}
	slices.SortFunc(items, func(a, b domain.Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return items, nil
}

func matchEvent(e domain.Event, f store.EventFilter) bool {
	switch {
	case f.PublishedOnly && !e.Published,
		f.CreatorID != "" && e.CreatorID != f.CreatorID,
		f.Participant != "" && !e.HasParticipant(f.Participant),
		f.Club != domain.NoClub && e.Club != f.Club,
		!f.From.IsZero() && e.Date.Before(f.From),
		!f.To.IsZero() && e.Date.After(f.To):
		return false
	}
	return containsFold(f.Keyword, e.Title, e.Description, e.Location)
}

func (s *Store) GetTask(_ context.Context, id string) (store.Record[domain.Task], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[strings.TrimSpace(id)]
	if !ok {
		return store.Record[domain.Task]{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) CreateTask(_ context.Context, t domain.Task) (store.Record[domain.Task], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return store.Record[domain.Task]{}, store.ErrDuplicate
	}
	rec := store.Record[domain.Task]{Value: t, Version: 1}
	s.tasks[t.ID] = rec
	return rec, nil
}

func (s *Store) CompareAndSwapTask(_ context.Context, id string, expected int64, next domain.Task) (store.Record[domain.Task], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.swapTaskLocked(id, expected, next)
}

func (s *Store) swapTaskLocked(id string, expected int64, next domain.Task) (store.Record[domain.Task], error) {
	id = strings.TrimSpace(id)
	cur, ok := s.tasks[id]
	if !ok {
		return store.Record[domain.Task]{}, store.ErrNotFound
	}
	if cur.Version != expected {
		return store.Record[domain.Task]{}, store.ErrVersionConflict
	}
	next.ID = id
	rec := store.Record[domain.Task]{Value: next, Version: expected + 1}
	s.tasks[id] = rec
	return rec, nil
}

func (s *Store) DeleteTask(_ context.Context, id string, expected int64) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expected {
		return store.ErrVersionConflict
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) ListTasks(_ context.Context, f store.TaskFilter) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Task, 0)
	for _, rec := range s.tasks {
		t := rec.Value
		switch {
		case f.AssignedTo != "" && t.AssignedTo != f.AssignedTo,
			f.CreatedBy != "" && t.CreatedBy != f.CreatedBy,
			f.Club != domain.NoClub && t.Club != f.Club,
			!containsFold(f.Keyword, t.Title, t.Description):
			continue
		}
		items = append(items, t)
	}
	slices.SortFunc(items, func(a, b domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return items, nil
}

func (s *Store) CommitVerification(_ context.Context, taskID string, expected int64, next domain.Task, entry domain.CreditEntry) (store.Record[domain.Task], error) {
	taskID = strings.TrimSpace(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[taskID]
	if !ok {
		return store.Record[domain.Task]{}, store.ErrNotFound
	}
	if cur.Version != expected {
		return store.Record[domain.Task]{}, store.ErrVersionConflict
	}
	if _, ok := s.creditedTasks[taskID]; ok {
		return store.Record[domain.Task]{}, store.ErrDuplicate
	}
	user, ok := s.users[entry.UserID]
	if !ok {
		return store.Record[domain.Task]{}, store.ErrNotFound
	}

	rec, err := s.swapTaskLocked(taskID, expected, next)
	if err != nil {
		return store.Record[domain.Task]{}, err
	}
	user.Value.CreditScore += entry.Amount
	user.Value.UpdatedAt = entry.CreatedAt
	user.Version++
	s.users[entry.UserID] = user
	s.credits = append(s.credits, entry)
	s.creditedTasks[taskID] = struct{}{}
	return rec, nil
}

func (s *Store) ListCreditEntries(_ context.Context, userID string) ([]domain.CreditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.CreditEntry, 0)
	for _, entry := range s.credits {
		if entry.UserID == userID {
			items = append(items, entry)
		}
	}
	return items, nil
}

// containsFold reports whether keyword occurs in any of fields. An empty
// keyword matches.
func containsFold(keyword string, fields ...string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), keyword) {
			return true
		}
	}
	return false
}

var _ store.Store = (*Store)(nil)
