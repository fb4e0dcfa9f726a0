// Package event runs the event lifecycle: creation, approval, participation
// and unregistration. Each transition is a read-decide-swap loop on the
// event's version, so the capacity check and the participant append commit
// together or not at all.
package event

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/notify"
	"clubhub-backend/internal/policy"
	"clubhub-backend/internal/role"
	"clubhub-backend/internal/store"
)

type Workflow struct {
	events      store.Events
	notifier    notify.Dispatcher
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

// WithMaxAttempts bounds how often a transition is retried after losing a
// version race.
func WithMaxAttempts(n uint) Option {
	return func(w *Workflow) { w.maxAttempts = n }
}

func NewWorkflow(events store.Events, notifier notify.Dispatcher, log *logrus.Entry, opts ...Option) *Workflow {
	w := &Workflow{
		events:      events,
		notifier:    notifier,
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
	Location    string
	Date        time.Time
	Capacity    int
	// Club is honoured only for superadmin creators.
	Club     domain.Club
	Invitees []string
}

// Created is the result of Create. NotifyErr is set when the event was
// stored but the invitation could not be dispatched.
type Created struct {
	Event     domain.Event
	NotifyErr error
}

// Degraded reports whether the event exists but notification failed.
func (c Created) Degraded() bool {
	return c.NotifyErr != nil
}

// Create stores a new event. Superadmin events are published immediately;
// everyone else's wait for approval.
func (w *Workflow) Create(ctx context.Context, actor domain.Actor, in CreateInput) (Created, error) {
	const op = "event.Workflow.Create"
	log := w.log.WithFields(logrus.Fields{"operation": op, "actor_id": actor.ID})

	if actor.Anonymous() {
		return Created{}, apperrors.Unauthorized("actor is required")
	}
	if err := policy.Authorize(actor, policy.ActionCreateEvent, policy.Target{}).Err(policy.ActionCreateEvent); err != nil {
		log.WithError(err).Debug("create event denied")
		return Created{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Created{}, apperrors.Validation("title", "title is required")
	}
	if in.Capacity <= 0 {
		return Created{}, apperrors.Validation("capacity", "capacity must be a positive integer")
	}
	if in.Date.IsZero() {
		return Created{}, apperrors.Validation("date", "date is required")
	}

	club := actor.Club
	if actor.Role == role.Superadmin && in.Club != domain.NoClub {
		parsed, err := domain.ParseClub(string(in.Club))
		if err != nil {
			return Created{}, apperrors.Validation("club", err.Error())
		}
		club = parsed
	}

	now := w.now()
	ev := domain.Event{
		ID:           w.newID(),
		CreatorID:    actor.ID,
		Club:         club,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		Location:     strings.TrimSpace(in.Location),
		Date:         in.Date.UTC(),
		Capacity:     in.Capacity,
		Approvals:    []string{},
		Participants: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if actor.Role == role.Superadmin {
		ev.Published = true
		ev.Approvals = append(ev.Approvals, actor.ID)
	}

	rec, err := w.events.CreateEvent(ctx, ev)
	if err != nil {
		return Created{}, store.Translate("event", ev.ID, err)
	}
	log = log.WithField("event_id", rec.Value.ID)
	log.WithField("published", rec.Value.Published).Info("event created")

	out := Created{Event: rec.Value}
	if w.notifier != nil {
		inv := notify.Invitation{
			EventID:     rec.Value.ID,
			OrganizerID: actor.ID,
			Club:        rec.Value.Club,
			Title:       rec.Value.Title,
			Location:    rec.Value.Location,
			Date:        rec.Value.Date,
			Invitees:    normalizeInvitees(in.Invitees),
		}
		if err := w.notifier.EventCreated(ctx, inv); err != nil {
			log.WithError(err).Warn("event invitation failed")
			out.NotifyErr = err
		}
	}
	return out, nil
}

// Get returns the event if the actor may read it.
func (w *Workflow) Get(ctx context.Context, actor domain.Actor, id string) (domain.Event, error) {
	if actor.Anonymous() {
		return domain.Event{}, apperrors.Unauthorized("actor is required")
	}
	rec, err := w.events.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, store.Translate("event", id, err)
	}
	if err := policy.Authorize(actor, policy.ActionRead, policy.EventTarget(rec.Value)).Err(policy.ActionRead); err != nil {
		return domain.Event{}, err
	}
	if !visible(actor, rec.Value) {
		return domain.Event{}, apperrors.NotFound("event", id)
	}
	return rec.Value, nil
}

// visible reports whether actor may see ev. Drafts are shown only to their
// creator and to admins.
func visible(actor domain.Actor, ev domain.Event) bool {
	return ev.Published || ev.CreatorID == actor.ID || role.IsPrivileged(actor.Role)
}

// Search lists events matching f. Actors below admin only see unpublished
// events they created themselves.
func (w *Workflow) Search(ctx context.Context, actor domain.Actor, f store.EventFilter) ([]domain.Event, error) {
	if actor.Anonymous() {
		return nil, apperrors.Unauthorized("actor is required")
	}
	if err := policy.Authorize(actor, policy.ActionRead, policy.Target{Kind: policy.TargetEvent}).Err(policy.ActionRead); err != nil {
		return nil, err
	}
	if f.From.After(f.To) && !f.To.IsZero() {
		return nil, apperrors.Validation("end_date", "end date is before start date")
	}

	privileged := role.IsPrivileged(actor.Role)
	if !privileged && f.CreatorID != actor.ID {
		f.PublishedOnly = true
	}
	events, err := w.events.ListEvents(ctx, f)
	if err != nil {
		return nil, store.Translate("events", "", err)
	}
	return events, nil
}

// Approve publishes the event. Approving twice with the same superadmin is a
// no-op; one approval is enough to publish.
func (w *Workflow) Approve(ctx context.Context, actor domain.Actor, id string) (domain.Event, error) {
	return w.transition(ctx, "event.Workflow.Approve", actor, id, func(ev domain.Event) (domain.Event, bool, error) {
		if err := w.authorize(actor, policy.ActionApproveEvent, ev); err != nil {
			return ev, false, err
		}
		if ev.HasApproval(actor.ID) {
			return ev, false, nil
		}
		next := ev.Clone()
		next.Approvals = append(next.Approvals, actor.ID)
		next.Published = true
		return next, true, nil
	})
}

// Participate adds the actor to a published event that still has a seat.
func (w *Workflow) Participate(ctx context.Context, actor domain.Actor, id string) (domain.Event, error) {
	return w.transition(ctx, "event.Workflow.Participate", actor, id, func(ev domain.Event) (domain.Event, bool, error) {
		if err := w.authorize(actor, policy.ActionParticipate, ev); err != nil {
			return ev, false, err
		}
		if !ev.Published {
			return ev, false, apperrors.Forbidden(apperrors.ReasonNotPublished, "event is not published yet")
		}
		if ev.Full() {
			return ev, false, apperrors.Conflict(apperrors.ReasonAtCapacity, "event is at capacity")
		}
		if ev.HasParticipant(actor.ID) {
			return ev, false, apperrors.Conflict(apperrors.ReasonAlreadyRegistered, "already registered for this event")
		}
		next := ev.Clone()
		next.Participants = append(next.Participants, actor.ID)
		return next, true, nil
	})
}

// Unregister removes the actor from the event's participants.
func (w *Workflow) Unregister(ctx context.Context, actor domain.Actor, id string) (domain.Event, error) {
	return w.transition(ctx, "event.Workflow.Unregister", actor, id, func(ev domain.Event) (domain.Event, bool, error) {
		if err := w.authorize(actor, policy.ActionUnregister, ev); err != nil {
			return ev, false, err
		}
		if !ev.HasParticipant(actor.ID) {
			return ev, false, apperrors.Conflict(apperrors.ReasonNotRegistered, "not registered for this event")
		}
		next := ev.Clone()
		next.Participants = slices.DeleteFunc(next.Participants, func(p string) bool { return p == actor.ID })
		return next, true, nil
	})
}

// Delete removes the event.
func (w *Workflow) Delete(ctx context.Context, actor domain.Actor, id string) error {
	const op = "event.Workflow.Delete"
	if actor.Anonymous() {
		return apperrors.Unauthorized("actor is required")
	}

	_, err := store.RetryOnConflict(ctx, w.maxAttempts, func() (struct{}, error) {
		rec, err := w.events.GetEvent(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		if err := w.authorize(actor, policy.ActionDeleteEvent, rec.Value); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, w.events.DeleteEvent(ctx, rec.Value.ID, rec.Version)
	})
	if err != nil {
		w.log.WithFields(logrus.Fields{"operation": op, "event_id": id}).WithError(err).Debug("delete event failed")
		return store.Translate("event", id, err)
	}
	w.log.WithFields(logrus.Fields{"operation": op, "event_id": id, "actor_id": actor.ID}).Info("event deleted")
	return nil
}

// transition reloads the event, lets decide compute the next state and swaps
// it in against the version that was read. decide returning changed=false
// leaves the event untouched.
func (w *Workflow) transition(
	ctx context.Context,
	op string,
	actor domain.Actor,
	id string,
	decide func(domain.Event) (domain.Event, bool, error),
) (domain.Event, error) {
	log := w.log.WithFields(logrus.Fields{"operation": op, "event_id": id, "actor_id": actor.ID})
	if actor.Anonymous() {
		return domain.Event{}, apperrors.Unauthorized("actor is required")
	}

	changed := false
	ev, err := store.RetryOnConflict(ctx, w.maxAttempts, func() (domain.Event, error) {
		rec, err := w.events.GetEvent(ctx, id)
		if err != nil {
			return domain.Event{}, err
		}
		next, ok, err := decide(rec.Value.Clone())
		if err != nil {
			return domain.Event{}, err
		}
		if !ok {
			changed = false
			return rec.Value, nil
		}
		next.UpdatedAt = w.now()
		out, err := w.events.CompareAndSwapEvent(ctx, rec.Value.ID, rec.Version, next)
		if err != nil {
			return domain.Event{}, err
		}
		changed = true
		return out.Value, nil
	})
	if err != nil {
		log.WithError(err).Debug("event transition rejected")
		return domain.Event{}, store.Translate("event", id, err)
	}

	log.WithFields(logrus.Fields{
		"changed":      changed,
		"published":    ev.Published,
		"participants": len(ev.Participants),
	}).Info("event transition applied")
	return ev, nil
}

func (w *Workflow) authorize(actor domain.Actor, action policy.Action, ev domain.Event) error {
	return policy.Authorize(actor, action, policy.EventTarget(ev)).Err(action)
}

func normalizeInvitees(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
