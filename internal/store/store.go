// Package store defines the persistence contract the workflows rely on: a
// versioned read and a compare-and-swap write per entity id.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrDuplicate       = errors.New("store: duplicate")
)

// Record is an entity snapshot together with the version it was read at.
type Record[T any] struct {
	Value   T
	Version int64
}

type Users interface {
	GetUser(ctx context.Context, id string) (Record[domain.User], error)
	FindUserByEmail(ctx context.Context, email string) (Record[domain.User], error)
	// CreateUser fails with ErrDuplicate when the email is taken.
	CreateUser(ctx context.Context, u domain.User) (Record[domain.User], error)
	CompareAndSwapUser(ctx context.Context, id string, expected int64, next domain.User) (Record[domain.User], error)
}

type Events interface {
	GetEvent(ctx context.Context, id string) (Record[domain.Event], error)
	CreateEvent(ctx context.Context, e domain.Event) (Record[domain.Event], error)
	CompareAndSwapEvent(ctx context.Context, id string, expected int64, next domain.Event) (Record[domain.Event], error)
	DeleteEvent(ctx context.Context, id string, expected int64) error
	// ListEvents returns matching events ordered by date, then id.
	ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error)
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	// Keyword matches title, description or location, case-insensitively.
	Keyword       string
	From          time.Time
	To            time.Time
	CreatorID     string
	Participant   string
	Club          domain.Club
	PublishedOnly bool
}

type Tasks interface {
	GetTask(ctx context.Context, id string) (Record[domain.Task], error)
	CreateTask(ctx context.Context, t domain.Task) (Record[domain.Task], error)
	CompareAndSwapTask(ctx context.Context, id string, expected int64, next domain.Task) (Record[domain.Task], error)
	DeleteTask(ctx context.Context, id string, expected int64) error
	// ListTasks returns matching tasks, oldest first.
	ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error)
}

type TaskFilter struct {
	AssignedTo string
	CreatedBy  string
	Club       domain.Club
	Keyword    string
}

type Credits interface {
	// CommitVerification swaps the task to next, appends entry and adds
	// entry.Amount to the user's credit score as one atomic step. It fails
	// with ErrVersionConflict without side effects when the task moved on,
	// and with ErrDuplicate when an entry for the task already exists.
	CommitVerification(ctx context.Context, taskID string, expected int64, next domain.Task, entry domain.CreditEntry) (Record[domain.Task], error)
	ListCreditEntries(ctx context.Context, userID string) ([]domain.CreditEntry, error)
}

// Store is the full persistence provider.
type Store interface {
	Users
	Events
	Tasks
	Credits
}

// DefaultMaxAttempts bounds the read-check-write loop of a single operation.
const DefaultMaxAttempts = 64

// RetryOnConflict runs op again, with jittered backoff, for as long as it
// fails with ErrVersionConflict and attempts remain. Any other error stops
// the loop immediately.
func RetryOnConflict[T any](ctx context.Context, maxAttempts uint, op func() (T, error)) (T, error) {
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 25 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, ErrVersionConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxAttempts))
}

// Translate turns storage sentinels into typed application errors. Typed
// errors pass through unchanged.
func Translate(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ErrNotFound):
		return apperrors.NotFound(entity, id)
	case errors.Is(err, ErrVersionConflict):
		e := apperrors.Internal(entity+" is under contention, retry later", err)
		e.Reason = apperrors.ReasonContention
		return e
	default:
		return apperrors.Internal("persist "+entity, err)
	}
}
