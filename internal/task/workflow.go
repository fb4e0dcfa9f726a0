// Package task runs the task lifecycle: pending, in-progress, completed and,
// once, verified. Verification commits the state flip and the credit award
// together through the credit ledger.
package task

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/credit"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/policy"
	"clubhub-backend/internal/role"
	"clubhub-backend/internal/store"
)

type Workflow struct {
	tasks       store.Tasks
	users       store.Users
	ledger      *credit.Ledger
	log         *logrus.Entry
	now         func() time.Time
	newID       func() string
	maxAttempts uint
}

type Option func(*Workflow)

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(w *Workflow) { w.newID = newID }
}

func WithMaxAttempts(n uint) Option {
	return func(w *Workflow) { w.maxAttempts = n }
}

func NewWorkflow(tasks store.Tasks, users store.Users, ledger *credit.Ledger, log *logrus.Entry, opts ...Option) *Workflow {
	w := &Workflow{
		tasks:       tasks,
		users:       users,
		ledger:      ledger,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type CreateInput struct {
	Title       string
	Description string
	AssignedTo  string
	Credits     int
	Priority    string
	IsGlobal    bool
}

// Create assigns a new pending task. Admin tasks belong to the admin's club;
// superadmin tasks take the assignee's club unless they are global.
func (w *Workflow) Create(ctx context.Context, actor domain.Actor, in CreateInput) (domain.Task, error) {
	const op = "task.Workflow.Create"
	log := w.log.WithFields(logrus.Fields{"operation": op, "actor_id": actor.ID})

	if actor.Anonymous() {
		return domain.Task{}, apperrors.Unauthorized("actor is required")
	}
	if err := policy.Authorize(actor, policy.ActionCreateTask, policy.Target{}).Err(policy.ActionCreateTask); err != nil {
		log.WithError(err).Debug("create task denied")
		return domain.Task{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, apperrors.Validation("title", "title is required")
	}
	if in.Credits < domain.MinTaskCredits || in.Credits > domain.MaxTaskCredits {
		return domain.Task{}, apperrors.Validation("credits", "credits must be between 1 and 100")
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return domain.Task{}, apperrors.Validation("priority", err.Error())
	}
	assigneeID := strings.TrimSpace(in.AssignedTo)
	if assigneeID == "" {
		return domain.Task{}, apperrors.Validation("assigned_to", "assignee is required")
	}

	assignee, err := w.users.GetUser(ctx, assigneeID)
	if err != nil {
		return domain.Task{}, store.Translate("user", assigneeID, err)
	}
	target := policy.UserTarget(assignee.Value)
	target.Global = in.IsGlobal
	if err := policy.Authorize(actor, policy.ActionCreateTask, target).Err(policy.ActionCreateTask); err != nil {
		log.WithError(err).Debug("create task denied")
		return domain.Task{}, err
	}

	club := actor.Club
	if actor.Role == role.Superadmin {
		club = assignee.Value.Club
		if in.IsGlobal {
			club = domain.NoClub
		}
	}

	now := w.now()
	t := domain.Task{
		ID:          w.newID(),
		CreatedBy:   actor.ID,
		AssignedTo:  assigneeID,
		Club:        club,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Credits:     in.Credits,
		Priority:    priority,
		State:       domain.TaskPending,
		IsGlobal:    in.IsGlobal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec, err := w.tasks.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, store.Translate("task", t.ID, err)
	}
	log.WithFields(logrus.Fields{"task_id": rec.Value.ID, "assigned_to": assigneeID}).Info("task created")
	return rec.Value, nil
}

// Get returns the task if the actor may read it.
func (w *Workflow) Get(ctx context.Context, actor domain.Actor, id string) (domain.Task, error) {
	if actor.Anonymous() {
		return domain.Task{}, apperrors.Unauthorized("actor is required")
	}
	rec, err := w.tasks.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, store.Translate("task", id, err)
	}
	if err := policy.Authorize(actor, policy.ActionRead, policy.TaskTarget(rec.Value)).Err(policy.ActionRead); err != nil {
		return domain.Task{}, err
	}
	return rec.Value, nil
}

// List returns tasks matching f, narrowed to what actor oversees: members see
// their own assignments, admins their club, superadmins everything.
func (w *Workflow) List(ctx context.Context, actor domain.Actor, f store.TaskFilter) ([]domain.Task, error) {
	if actor.Anonymous() {
		return nil, apperrors.Unauthorized("actor is required")
	}
	switch actor.Role {
	case role.Superadmin:
	case role.Admin:
		switch {
		case actor.Club == domain.NoClub:
			f.AssignedTo = actor.ID
		case f.AssignedTo != actor.ID:
			f.Club = actor.Club
		}
	default:
		f.AssignedTo = actor.ID
	}

	tasks, err := w.tasks.ListTasks(ctx, f)
	if err != nil {
		return nil, store.Translate("tasks", "", err)
	}
	return tasks, nil
}

// StatusUpdate is a requested status change. Verify is only honoured for
// admins and superadmins, and only when the task ends up completed.
type StatusUpdate struct {
	Status domain.TaskStatus
	Verify bool
}

// UpdateStatus moves the task. The assignee may only step pending to
// in-progress and in-progress to completed; privileged actors may force any
// status and verify in the same call.
func (w *Workflow) UpdateStatus(ctx context.Context, actor domain.Actor, id string, in StatusUpdate) (domain.Task, error) {
	const op = "task.Workflow.UpdateStatus"
	log := w.log.WithFields(logrus.Fields{"operation": op, "task_id": id, "actor_id": actor.ID})

	if actor.Anonymous() {
		return domain.Task{}, apperrors.Unauthorized("actor is required")
	}
	status, err := domain.ParseTaskStatus(string(in.Status))
	if err != nil {
		return domain.Task{}, apperrors.Validation("status", err.Error())
	}

	t, err := store.RetryOnConflict(ctx, w.maxAttempts, func() (domain.Task, error) {
		rec, err := w.tasks.GetTask(ctx, id)
		if err != nil {
			return domain.Task{}, err
		}
		if rec.Value.AssignedTo == actor.ID {
			return w.advanceByAssignee(ctx, actor, rec, status, in.Verify)
		}
		return w.force(ctx, actor, rec, status, in.Verify)
	})
	if err != nil {
		log.WithError(err).Debug("task status update rejected")
		return domain.Task{}, store.Translate("task", id, err)
	}
	log.WithFields(logrus.Fields{"state": t.State}).Info("task status updated")
	return t, nil
}

func (w *Workflow) advanceByAssignee(ctx context.Context, actor domain.Actor, rec store.Record[domain.Task], status domain.TaskStatus, verify bool) (domain.Task, error) {
	t := rec.Value
	if err := w.authorize(actor, policy.ActionUpdateOwnTaskStatus, t); err != nil {
		return domain.Task{}, err
	}
	if t.IsVerified() {
		return domain.Task{}, apperrors.Forbidden(apperrors.ReasonVerifiedImmutable, "task is verified")
	}

	legal := (t.State == domain.TaskPending && status == domain.StatusInProgress) ||
		(t.State == domain.TaskInProgress && status == domain.StatusCompleted)
	if verify || !legal {
		return domain.Task{}, apperrors.Forbidden(
			apperrors.ReasonIllegalAssigneeTransition,
			"assignee cannot move task from "+string(t.Status())+" to "+string(status),
		)
	}

	next := t
	next.State = domain.StateOf(status)
	next.UpdatedAt = w.now()
	out, err := w.tasks.CompareAndSwapTask(ctx, t.ID, rec.Version, next)
	if err != nil {
		return domain.Task{}, err
	}
	return out.Value, nil
}

func (w *Workflow) force(ctx context.Context, actor domain.Actor, rec store.Record[domain.Task], status domain.TaskStatus, verify bool) (domain.Task, error) {
	t := rec.Value
	if err := w.authorize(actor, policy.ActionManageTask, t); err != nil {
		return domain.Task{}, err
	}

	if t.IsVerified() {
		if status == domain.StatusCompleted {
			return t, nil
		}
		return domain.Task{}, apperrors.Forbidden(apperrors.ReasonVerifiedImmutable, "task is verified")
	}

	target := domain.StateOf(status)
	if verify {
		if target != domain.TaskCompleted {
			return domain.Task{}, apperrors.Conflict(apperrors.ReasonNotCompleted, "only completed tasks can be verified")
		}
		return w.award(ctx, rec)
	}
	if target == t.State {
		return t, nil
	}

	next := t
	next.State = target
	next.UpdatedAt = w.now()
	out, err := w.tasks.CompareAndSwapTask(ctx, t.ID, rec.Version, next)
	if err != nil {
		return domain.Task{}, err
	}
	return out.Value, nil
}

// Verify confirms a completed task and awards its credits to the assignee.
// Verifying an already verified task returns it unchanged. Nobody verifies a
// task assigned to themselves.
func (w *Workflow) Verify(ctx context.Context, actor domain.Actor, id string) (domain.Task, error) {
	const op = "task.Workflow.Verify"
	log := w.log.WithFields(logrus.Fields{"operation": op, "task_id": id, "actor_id": actor.ID})

	if actor.Anonymous() {
		return domain.Task{}, apperrors.Unauthorized("actor is required")
	}

	t, err := store.RetryOnConflict(ctx, w.maxAttempts, func() (domain.Task, error) {
		rec, err := w.tasks.GetTask(ctx, id)
		if err != nil {
			return domain.Task{}, err
		}
		if err := w.authorize(actor, policy.ActionVerifyTask, rec.Value); err != nil {
			return domain.Task{}, err
		}
		if rec.Value.AssignedTo == actor.ID {
			return domain.Task{}, apperrors.Forbidden(apperrors.ReasonIllegalAssigneeTransition, "assignee cannot verify own task")
		}
		if rec.Value.IsVerified() {
			return rec.Value, nil
		}
		if rec.Value.State != domain.TaskCompleted {
			return domain.Task{}, apperrors.Conflict(apperrors.ReasonNotCompleted, "only completed tasks can be verified")
		}
		return w.award(ctx, rec)
	})
	if err != nil {
		log.WithError(err).Debug("task verification rejected")
		return domain.Task{}, store.Translate("task", id, err)
	}
	return t, nil
}

func (w *Workflow) award(ctx context.Context, rec store.Record[domain.Task]) (domain.Task, error) {
	next := rec.Value
	next.State = domain.TaskVerified
	next.UpdatedAt = w.now()
	out, err := w.ledger.Award(ctx, rec, next)
	if err != nil {
		return domain.Task{}, err
	}
	return out.Value, nil
}

// Delete removes an unverified task. The creator may always delete it;
// otherwise the policy decides.
func (w *Workflow) Delete(ctx context.Context, actor domain.Actor, id string) error {
	const op = "task.Workflow.Delete"
	log := w.log.WithFields(logrus.Fields{"operation": op, "task_id": id, "actor_id": actor.ID})

	if actor.Anonymous() {
		return apperrors.Unauthorized("actor is required")
	}

	_, err := store.RetryOnConflict(ctx, w.maxAttempts, func() (struct{}, error) {
		rec, err := w.tasks.GetTask(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		if rec.Value.CreatedBy != actor.ID {
			if err := w.authorize(actor, policy.ActionDeleteTask, rec.Value); err != nil {
				return struct{}{}, err
			}
		}
		if rec.Value.IsVerified() {
			return struct{}{}, apperrors.Forbidden(apperrors.ReasonVerifiedImmutable, "verified tasks cannot be deleted")
		}
		return struct{}{}, w.tasks.DeleteTask(ctx, rec.Value.ID, rec.Version)
	})
	if err != nil {
		log.WithError(err).Debug("delete task rejected")
		return store.Translate("task", id, err)
	}
	log.Info("task deleted")
	return nil
}

func (w *Workflow) authorize(actor domain.Actor, action policy.Action, t domain.Task) error {
	return policy.Authorize(actor, action, policy.TaskTarget(t)).Err(action)
}
