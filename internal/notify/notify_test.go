package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"clubhub-backend/internal/domain"
)

func TestLogDispatcherRecordsInvitation(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := NewLogDispatcher(logrus.NewEntry(logger))

	inv := Invitation{
		EventID:  "e1",
		Club:     domain.ClubGDSC,
		Date:     time.Date(2026, 10, 1, 17, 0, 0, 0, time.UTC),
		Invitees: []string{"a", "b"},
	}
	if err := d.EventCreated(context.Background(), inv); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["event_id"] != "e1" || entry.Data["invitees"] != 2 {
		t.Fatalf("unexpected fields %v", entry.Data)
	}
	if entry.Data["date"] != "2026-10-01T17:00:00Z" {
		t.Fatalf("unexpected date %v", entry.Data["date"])
	}
}

func TestDispatcherFunc(t *testing.T) {
	boom := errors.New("smtp down")
	var got Invitation
	d := DispatcherFunc(func(_ context.Context, inv Invitation) error {
		got = inv
		return boom
	})

	err := d.EventCreated(context.Background(), Invitation{EventID: "e7"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected dispatcher error, got %v", err)
	}
	if got.EventID != "e7" {
		t.Fatalf("expected invitation to be passed through, got %+v", got)
	}
}
