package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/notify"
	"clubhub-backend/internal/role"
	"clubhub-backend/internal/store"
	"clubhub-backend/internal/store/memory"
)

var (
	root      = domain.Actor{ID: "root", Role: role.Superadmin}
	root2     = domain.Actor{ID: "root-2", Role: role.Superadmin}
	acmAdmin  = domain.Actor{ID: "adm-acm", Role: role.Admin, Club: domain.ClubACM}
	acmMember = domain.Actor{ID: "mem-acm", Role: role.Member, Club: domain.ClubACM}
	eventDate = time.Date(2026, 11, 20, 18, 0, 0, 0, time.UTC)
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newWorkflow(t *testing.T, notifier notify.Dispatcher) (*Workflow, *memory.Store) {
	t.Helper()
	s := memory.NewStore()
	return NewWorkflow(s, notifier, quietLog()), s
}

func seedEvent(t *testing.T, s *memory.Store, ev domain.Event) domain.Event {
	t.Helper()
	if ev.ID == "" {
		ev.ID = "e1"
	}
	if ev.Participants == nil {
		ev.Participants = []string{}
	}
	rec, err := s.CreateEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return rec.Value
}

func member(id string) domain.Actor {
	return domain.Actor{ID: id, Role: role.Member, Club: domain.ClubACM}
}

func TestCreateBySuperadminIsPublished(t *testing.T) {
	w, _ := newWorkflow(t, nil)

	out, err := w.Create(context.Background(), root, CreateInput{Title: " Hack Night ", Capacity: 30, Date: eventDate, Club: domain.ClubIEEE})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !out.Event.Published {
		t.Fatal("expected superadmin event to be published")
	}
	if out.Event.Club != domain.ClubIEEE {
		t.Fatalf("expected explicit club IEEE, got %q", out.Event.Club)
	}
	if out.Event.Title != "Hack Night" {
		t.Fatalf("expected trimmed title, got %q", out.Event.Title)
	}
}

func TestCreateByMemberIsPendingInOwnClub(t *testing.T) {
	w, _ := newWorkflow(t, nil)

	out, err := w.Create(context.Background(), acmMember, CreateInput{Title: "Workshop", Capacity: 10, Date: eventDate, Club: domain.ClubIEEE})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Event.Published {
		t.Fatal("expected member event to wait for approval")
	}
	if out.Event.Club != domain.ClubACM {
		t.Fatalf("expected club from actor, got %q", out.Event.Club)
	}
}

func TestCreateValidation(t *testing.T) {
	w, _ := newWorkflow(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor domain.Actor
		input CreateInput
		kind  apperrors.Kind
	}{
		{name: "anonymous", actor: domain.Actor{}, input: CreateInput{Title: "x", Capacity: 1, Date: eventDate}, kind: apperrors.KindUnauthorized},
		{name: "user tier", actor: domain.Actor{ID: "u", Role: role.User}, input: CreateInput{Title: "x", Capacity: 1, Date: eventDate}, kind: apperrors.KindForbidden},
		{name: "missing title", actor: acmMember, input: CreateInput{Capacity: 1, Date: eventDate}, kind: apperrors.KindValidation},
		{name: "zero capacity", actor: acmMember, input: CreateInput{Title: "x", Date: eventDate}, kind: apperrors.KindValidation},
		{name: "missing date", actor: acmMember, input: CreateInput{Title: "x", Capacity: 1}, kind: apperrors.KindValidation},
		{name: "unknown club", actor: root, input: CreateInput{Title: "x", Capacity: 1, Date: eventDate, Club: domain.Club("chess")}, kind: apperrors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Create(ctx, tt.actor, tt.input)
			if got := apperrors.KindOf(err); got != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestCreateDegradesWhenNotificationFails(t *testing.T) {
	var got notify.Invitation
	failing := notify.DispatcherFunc(func(_ context.Context, inv notify.Invitation) error {
		got = inv
		return errors.New("smtp down")
	})
	w, s := newWorkflow(t, failing)

	out, err := w.Create(context.Background(), acmMember, CreateInput{
		Title:    "Meetup",
		Capacity: 5,
		Date:     eventDate,
		Invitees: []string{"a", " a ", "", "b"},
	})
	if err != nil {
		t.Fatalf("create must succeed despite notification failure: %v", err)
	}
	if !out.Degraded() {
		t.Fatal("expected degraded result")
	}
	if !reflect.DeepEqual(got.Invitees, []string{"a", "b"}) {
		t.Fatalf("expected normalized invitees, got %v", got.Invitees)
	}
	if _, err := s.GetEvent(context.Background(), out.Event.ID); err != nil {
		t.Fatalf("event must be stored: %v", err)
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{Club: domain.ClubACM, Capacity: 5})
	ctx := context.Background()

	once, err := w.Approve(ctx, root, "e1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	twice, err := w.Approve(ctx, root, "e1")
	if err != nil {
		t.Fatalf("approve again: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second approval changed state:\n%+v\n%+v", once, twice)
	}
	if !twice.Published || len(twice.Approvals) != 1 {
		t.Fatalf("expected one approval and published, got %+v", twice)
	}

	third, err := w.Approve(ctx, root2, "e1")
	if err != nil {
		t.Fatalf("approve by second superadmin: %v", err)
	}
	if !third.Published || len(third.Approvals) != 2 {
		t.Fatalf("expected two approvals, got %v", third.Approvals)
	}
}

func TestApproveRequiresSuperadmin(t *testing.T) {
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{Club: domain.ClubACM, Capacity: 5})

	_, err := w.Approve(context.Background(), acmAdmin, "e1")
	if !errors.Is(err, apperrors.Forbidden(apperrors.ReasonInsufficientRole, "")) {
		t.Fatalf("expected insufficient-role, got %v", err)
	}
}

func TestParticipateRespectsCapacity(t *testing.T) {
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{Club: domain.ClubACM, Capacity: 2, Published: true})
	ctx := context.Background()

	if _, err := w.Participate(ctx, member("A"), "e1"); err != nil {
		t.Fatalf("participate A: %v", err)
	}
	if _, err := w.Participate(ctx, member("B"), "e1"); err != nil {
		t.Fatalf("participate B: %v", err)
	}
	_, err := w.Participate(ctx, member("C"), "e1")
	if !errors.Is(err, apperrors.Conflict(apperrors.ReasonAtCapacity, "")) {
		t.Fatalf("expected at-capacity conflict, got %v", err)
	}

	ev, err := w.Get(ctx, root, "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(ev.Participants, []string{"A", "B"}) {
		t.Fatalf("expected [A B], got %v", ev.Participants)
	}
}

func TestParticipateRejections(t *testing.T) {
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{ID: "pending", Club: domain.ClubACM, Capacity: 2})
	seedEvent(t, s, domain.Event{ID: "open", Club: domain.ClubACM, Capacity: 3, Published: true, Participants: []string{"A"}})
	ctx := context.Background()

	_, err := w.Participate(ctx, member("A"), "pending")
	if !errors.Is(err, apperrors.Forbidden(apperrors.ReasonNotPublished, "")) {
		t.Fatalf("expected not-published, got %v", err)
	}

	_, err = w.Participate(ctx, domain.Actor{ID: "guest", Role: role.User}, "pending")
	if !errors.Is(err, apperrors.Forbidden(apperrors.ReasonNotPublished, "")) {
		t.Fatalf("expected not-published for user tier, got %v", err)
	}

	_, err = w.Participate(ctx, member("A"), "open")
	if !errors.Is(err, apperrors.Conflict(apperrors.ReasonAlreadyRegistered, "")) {
		t.Fatalf("expected already-registered, got %v", err)
	}

	_, err = w.Participate(ctx, member("A"), "missing")
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{Club: domain.ClubACM, Capacity: 1, Published: true, Participants: []string{"A"}})
	ctx := context.Background()

	ev, err := w.Unregister(ctx, member("A"), "e1")
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if len(ev.Participants) != 0 {
		t.Fatalf("expected no participants, got %v", ev.Participants)
	}

	_, err = w.Unregister(ctx, member("A"), "e1")
	if !errors.Is(err, apperrors.Conflict(apperrors.ReasonNotRegistered, "")) {
		t.Fatalf("expected not-registered, got %v", err)
	}

	if _, err := w.Participate(ctx, member("B"), "e1"); err != nil {
		t.Fatalf("freed seat should be available: %v", err)
	}
}

func TestDeleteIsClubScoped(t *testing.T) {
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{ID: "ieee", Club: domain.ClubIEEE, Capacity: 1})
	seedEvent(t, s, domain.Event{ID: "acm", Club: domain.ClubACM, Capacity: 1})
	ctx := context.Background()

	err := w.Delete(ctx, acmAdmin, "ieee")
	if !errors.Is(err, apperrors.Forbidden(apperrors.ReasonOutOfClub, "")) {
		t.Fatalf("expected out-of-club, got %v", err)
	}
	if err := w.Delete(ctx, acmAdmin, "acm"); err != nil {
		t.Fatalf("delete own club event: %v", err)
	}
	if _, err := w.Get(ctx, root, "acm"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected deleted event to be gone, got %v", err)
	}
}

func TestConcurrentParticipationNeverExceedsCapacity(t *testing.T) {
	const (
		capacity = 7
		callers  = 40
	)
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{Club: domain.ClubACM, Capacity: capacity, Published: true})
	ctx := context.Background()

	results := make([]error, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			_, err := w.Participate(ctx, member(fmt.Sprintf("m-%02d", i)), "e1")
			results[i] = err
			return nil
		})
	}
	_ = g.Wait()

	admitted := 0
	for i, err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, apperrors.Conflict(apperrors.ReasonAtCapacity, "")):
		default:
			t.Fatalf("caller %d: unexpected error %v", i, err)
		}
	}

	ev, err := w.Get(ctx, root, "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ev.Participants) > ev.Capacity {
		t.Fatalf("capacity overshoot: %d > %d", len(ev.Participants), ev.Capacity)
	}
	if admitted != capacity || len(ev.Participants) != capacity {
		t.Fatalf("expected %d admitted, got %d (participants %d)", capacity, admitted, len(ev.Participants))
	}
}

func TestSearchHidesOtherPeoplesDrafts(t *testing.T) {
	w, s := newWorkflow(t, nil)
	ctx := context.Background()
	seedEvent(t, s, domain.Event{ID: "pub", Title: "Demo Day", Capacity: 5, Published: true, Date: eventDate, CreatorID: "root"})
	seedEvent(t, s, domain.Event{ID: "mine", Title: "Demo prep", Capacity: 5, Date: eventDate.Add(time.Hour), CreatorID: acmMember.ID})
	seedEvent(t, s, domain.Event{ID: "theirs", Title: "Demo retro", Capacity: 5, Date: eventDate.Add(2 * time.Hour), CreatorID: "someone"})

	ids := func(events []domain.Event) []string {
		out := make([]string, 0, len(events))
		for _, ev := range events {
			out = append(out, ev.ID)
		}
		return out
	}

	got, err := w.Search(ctx, acmMember, store.EventFilter{Keyword: "demo"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"pub"}) {
		t.Fatalf("expected only published events, got %v", ids(got))
	}

	got, err = w.Search(ctx, acmMember, store.EventFilter{CreatorID: acmMember.ID})
	if err != nil {
		t.Fatalf("search own: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"mine"}) {
		t.Fatalf("expected own draft, got %v", ids(got))
	}

	got, err = w.Search(ctx, root, store.EventFilter{})
	if err != nil {
		t.Fatalf("search as superadmin: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected every event, got %v", ids(got))
	}

	_, err = w.Search(ctx, root, store.EventFilter{From: eventDate, To: eventDate.Add(-time.Hour)})
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error for inverted window, got %v", err)
	}
}

func TestGetHidesOtherPeoplesDrafts(t *testing.T) {
	w, s := newWorkflow(t, nil)
	ctx := context.Background()
	seedEvent(t, s, domain.Event{ID: "draft", Club: domain.ClubACM, Capacity: 5, CreatorID: acmMember.ID})
	seedEvent(t, s, domain.Event{ID: "pub", Club: domain.ClubACM, Capacity: 5, Published: true, CreatorID: "root"})

	tests := []struct {
		name  string
		actor domain.Actor
		id    string
		kind  apperrors.Kind
	}{
		{name: "creator sees own draft", actor: acmMember, id: "draft"},
		{name: "admin sees draft", actor: acmAdmin, id: "draft"},
		{name: "superadmin sees draft", actor: root, id: "draft"},
		{name: "other member", actor: member("other"), id: "draft", kind: apperrors.KindNotFound},
		{name: "user tier", actor: domain.Actor{ID: "usr", Role: role.User}, id: "draft", kind: apperrors.KindNotFound},
		{name: "published is public", actor: domain.Actor{ID: "usr", Role: role.User}, id: "pub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := w.Get(ctx, tt.actor, tt.id)
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				if ev.ID != tt.id {
					t.Fatalf("expected %s, got %s", tt.id, ev.ID)
				}
				return
			}
			if apperrors.KindOf(err) != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestTransitionsAcceptPaddedIDs(t *testing.T) {
	w, s := newWorkflow(t, nil)
	seedEvent(t, s, domain.Event{Club: domain.ClubACM, Capacity: 2, Published: true})
	ctx := context.Background()

	ev, err := w.Participate(ctx, member("A"), " e1 ")
	if err != nil {
		t.Fatalf("participate: %v", err)
	}
	if ev.ID != "e1" || !ev.HasParticipant("A") {
		t.Fatalf("expected A in e1, got %+v", ev)
	}
	if _, err := w.Unregister(ctx, member("A"), "e1 "); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := w.Delete(ctx, acmAdmin, " e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
