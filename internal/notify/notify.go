// Package notify delivers event invitations. Delivery is best effort; the
// event workflow only logs failures.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"clubhub-backend/internal/domain"
)

// Invitation describes a freshly created event and who should hear about it.
type Invitation struct {
	EventID     string
	OrganizerID string
	Club        domain.Club
	Title       string
	Location    string
	Date        time.Time
	Invitees    []string
}

type Dispatcher interface {
	EventCreated(ctx context.Context, inv Invitation) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, inv Invitation) error

func (f DispatcherFunc) EventCreated(ctx context.Context, inv Invitation) error {
	return f(ctx, inv)
}

// LogDispatcher writes invitations to the log instead of sending them.
type LogDispatcher struct {
	log *logrus.Entry
}

func NewLogDispatcher(log *logrus.Entry) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) EventCreated(_ context.Context, inv Invitation) error {
	d.log.WithFields(logrus.Fields{
		"operation": "notify.EventCreated",
		"event_id":  inv.EventID,
		"club":      inv.Club,
		"date":      inv.Date.Format(time.RFC3339),
		"invitees":  len(inv.Invitees),
	}).Info("event invitation dispatched")
	return nil
}
