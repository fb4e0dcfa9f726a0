package memory

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/role"
	"clubhub-backend/internal/store"
)

func TestCompareAndSwapEventRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	rec, err := s.CreateEvent(ctx, domain.Event{ID: "e1", Capacity: 2})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	next := rec.Value.Clone()
	next.Participants = append(next.Participants, "a")
	updated, err := s.CompareAndSwapEvent(ctx, "e1", rec.Version, next)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if updated.Version != rec.Version+1 {
		t.Fatalf("expected version %d, got %d", rec.Version+1, updated.Version)
	}

	_, err = s.CompareAndSwapEvent(ctx, "e1", rec.Version, next)
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if _, err := s.CompareAndSwapEvent(ctx, "missing", 1, next); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetEventReturnsDetachedCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if _, err := s.CreateEvent(ctx, domain.Event{ID: "e1", Capacity: 2, Participants: []string{"a"}}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	rec, err := s.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	rec.Value.Participants[0] = "mutated"

	again, err := s.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if again.Value.Participants[0] != "a" {
		t.Fatalf("stored event was mutated through a snapshot: %v", again.Value.Participants)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if _, err := s.CreateUser(ctx, domain.User{ID: "u1", Email: "a@club.test", Role: role.Member}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := s.CreateUser(ctx, domain.User{ID: "u2", Email: "A@club.test", Role: role.Member})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	rec, err := s.FindUserByEmail(ctx, "a@CLUB.test")
	if err != nil || rec.Value.ID != "u1" {
		t.Fatalf("expected to find u1, got %+v, %v", rec, err)
	}
}

func TestCommitVerificationIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.CreateUser(ctx, domain.User{ID: "u1", Email: "u1@club.test", Role: role.Member, CreditScore: 10}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	taskRec, err := s.CreateTask(ctx, domain.Task{ID: "t1", AssignedTo: "u1", Credits: 15, State: domain.TaskCompleted})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	verified := taskRec.Value
	verified.State = domain.TaskVerified
	entry := domain.CreditEntry{ID: "c1", UserID: "u1", TaskID: "t1", Amount: 15, CreatedAt: now}

	if _, err := s.CommitVerification(ctx, "t1", taskRec.Version+1, verified, entry); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	user, _ := s.GetUser(ctx, "u1")
	if user.Value.CreditScore != 10 {
		t.Fatalf("failed commit must not touch the score, got %d", user.Value.CreditScore)
	}

	rec, err := s.CommitVerification(ctx, "t1", taskRec.Version, verified, entry)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !rec.Value.IsVerified() {
		t.Fatal("expected verified task")
	}
	user, _ = s.GetUser(ctx, "u1")
	if user.Value.CreditScore != 25 {
		t.Fatalf("expected score 25, got %d", user.Value.CreditScore)
	}

	if _, err := s.CommitVerification(ctx, "t1", rec.Version, verified, entry); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate credit, got %v", err)
	}

	entries, err := s.ListCreditEntries(ctx, "u1")
	if err != nil {
		t.Fatalf("list credits: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != 15 {
		t.Fatalf("expected one entry of 15, got %+v", entries)
	}
}

func TestDeleteTaskChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rec, err := s.CreateTask(ctx, domain.Task{ID: "t1", State: domain.TaskPending})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := s.DeleteTask(ctx, "t1", rec.Version+3); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if err := s.DeleteTask(ctx, "t1", rec.Version); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTask(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestListEventsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	day := func(d int) time.Time { return time.Date(2026, 11, d, 18, 0, 0, 0, time.UTC) }

	seed := []domain.Event{
		{ID: "late", Title: "Robot Wars", Club: domain.ClubRobotics, Date: day(20), Published: true, CreatorID: "a"},
		{ID: "early", Title: "Intro to Go", Location: "Lab 3", Club: domain.ClubACM, Date: day(2), Published: true, CreatorID: "b", Participants: []string{"p1"}},
		{ID: "draft", Title: "Go Workshop", Club: domain.ClubACM, Date: day(10), CreatorID: "b"},
	}
	for _, ev := range seed {
		if _, err := s.CreateEvent(ctx, ev); err != nil {
			t.Fatalf("create %s: %v", ev.ID, err)
		}
	}

	tests := []struct {
		name   string
		filter store.EventFilter
		want   []string
	}{
		{name: "all by date", want: []string{"early", "draft", "late"}},
		{name: "keyword", filter: store.EventFilter{Keyword: "GO"}, want: []string{"early", "draft"}},
		{name: "keyword in location", filter: store.EventFilter{Keyword: "lab"}, want: []string{"early"}},
		{name: "published only", filter: store.EventFilter{PublishedOnly: true}, want: []string{"early", "late"}},
		{name: "creator", filter: store.EventFilter{CreatorID: "b"}, want: []string{"early", "draft"}},
		{name: "participant", filter: store.EventFilter{Participant: "p1"}, want: []string{"early"}},
		{name: "club", filter: store.EventFilter{Club: domain.ClubRobotics}, want: []string{"late"}},
		{name: "date window", filter: store.EventFilter{From: day(5), To: day(15)}, want: []string{"draft"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEvents(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, ev := range got {
				ids = append(ids, ev.ID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestListTasksFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seed := []domain.Task{
		{ID: "t1", AssignedTo: "u1", CreatedBy: "adm", Club: domain.ClubACM, Title: "Print posters", CreatedAt: base},
		{ID: "t2", AssignedTo: "u2", CreatedBy: "adm", Club: domain.ClubACM, Title: "Book room", CreatedAt: base.Add(time.Hour)},
		{ID: "t3", AssignedTo: "u1", CreatedBy: "root", Club: domain.ClubIEEE, Title: "Posters for IEEE", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, task := range seed {
		if _, err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("create %s: %v", task.ID, err)
		}
	}

	got, err := s.ListTasks(ctx, store.TaskFilter{AssignedTo: "u1", Keyword: "posters"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t3" {
		t.Fatalf("unexpected tasks %+v", got)
	}

	got, _ = s.ListTasks(ctx, store.TaskFilter{Club: domain.ClubACM, CreatedBy: "adm"})
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("unexpected club tasks %+v", got)
	}
}

func TestPaddedIDsReachTheSameRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	ev, err := s.CreateEvent(ctx, domain.Event{ID: "e1", Capacity: 2})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	got, err := s.GetEvent(ctx, " e1 ")
	if err != nil {
		t.Fatalf("get padded event: %v", err)
	}
	next := got.Value.Clone()
	next.Participants = append(next.Participants, "a")
	swapped, err := s.CompareAndSwapEvent(ctx, " e1 ", ev.Version, next)
	if err != nil {
		t.Fatalf("swap padded event: %v", err)
	}
	if swapped.Value.ID != "e1" {
		t.Fatalf("expected stored id e1, got %q", swapped.Value.ID)
	}
	if err := s.DeleteEvent(ctx, "e1\t", swapped.Version); err != nil {
		t.Fatalf("delete padded event: %v", err)
	}

	task, err := s.CreateTask(ctx, domain.Task{ID: "t1", State: domain.TaskPending})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	moved := task.Value
	moved.State = domain.TaskInProgress
	if _, err := s.CompareAndSwapTask(ctx, " t1", task.Version, moved); err != nil {
		t.Fatalf("swap padded task: %v", err)
	}
	if err := s.DeleteTask(ctx, "t1 ", task.Version+1); err != nil {
		t.Fatalf("delete padded task: %v", err)
	}

	user, err := s.CreateUser(ctx, domain.User{ID: "u1", Email: "u1@club.test", Role: role.User})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	promoted := user.Value
	promoted.Role = role.Member
	out, err := s.CompareAndSwapUser(ctx, " u1 ", user.Version, promoted)
	if err != nil {
		t.Fatalf("swap padded user: %v", err)
	}
	if out.Value.ID != "u1" || out.Value.Role != role.Member {
		t.Fatalf("unexpected user after swap: %+v", out.Value)
	}
}
