// Package credit adjusts user credit scores. Adjustments are append-only and
// happen only as part of a task verification.
package credit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/policy"
	"clubhub-backend/internal/store"
)

type Ledger struct {
	store store.Credits
	users store.Users
	log   *logrus.Entry
	now   func() time.Time
}

func NewLedger(credits store.Credits, users store.Users, log *logrus.Entry) *Ledger {
	return &Ledger{
		store: credits,
		users: users,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the ledger's time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Award flips rec to verified and credits its assignee with rec's credits in
// one commit. It returns store.ErrVersionConflict when rec is stale, leaving
// the caller to reload and decide again.
func (l *Ledger) Award(ctx context.Context, rec store.Record[domain.Task], verified domain.Task) (store.Record[domain.Task], error) {
	const op = "credit.Ledger.Award"

	task := rec.Value
	if task.Credits < domain.MinTaskCredits || task.Credits > domain.MaxTaskCredits {
		return store.Record[domain.Task]{}, apperrors.Validation("credits", "task credits out of range")
	}
	if verified.State != domain.TaskVerified {
		return store.Record[domain.Task]{}, apperrors.Internal("award requires a verified task", nil)
	}

	entry := domain.CreditEntry{
		ID:        uuid.NewString(),
		UserID:    task.AssignedTo,
		TaskID:    task.ID,
		Amount:    task.Credits,
		CreatedAt: l.now(),
	}

	out, err := l.store.CommitVerification(ctx, task.ID, rec.Version, verified, entry)
	if err != nil {
		return store.Record[domain.Task]{}, err
	}

	l.log.WithFields(logrus.Fields{
		"operation": op,
		"task_id":   task.ID,
		"user_id":   entry.UserID,
		"amount":    entry.Amount,
	}).Info("credits awarded")
	return out, nil
}

// History lists a user's credit adjustments in the order they were made.
func (l *Ledger) History(ctx context.Context, actor domain.Actor, userID string) ([]domain.CreditEntry, error) {
	if actor.Anonymous() {
		return nil, apperrors.Unauthorized("actor is required")
	}
	rec, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return nil, store.Translate("user", userID, err)
	}
	if err := policy.Authorize(actor, policy.ActionRead, policy.UserTarget(rec.Value)).Err(policy.ActionRead); err != nil {
		return nil, err
	}

	entries, err := l.store.ListCreditEntries(ctx, userID)
	if err != nil {
		return nil, store.Translate("credit entries", userID, err)
	}
	return entries, nil
}
