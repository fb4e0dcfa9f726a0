// Package payment turns signed payment confirmations into event
// registrations. The payment provider itself is out of reach; only its
// webhook is modelled.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/store"
)

// Confirmation is the webhook payload sent once a ticket is paid.
type Confirmation struct {
	Reference string `json:"reference"`
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
}

// Verifier authenticates a raw payload against its signature.
type Verifier interface {
	Verify(payload []byte, signature string) error
}

// HMACVerifier checks hex encoded HMAC-SHA256 signatures. A "sha256="
// prefix on the signature is accepted.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) Verify(payload []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(v.secret) == 0 {
		return apperrors.Unauthorized("invalid payment signature")
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return apperrors.Unauthorized("invalid payment signature")
	}
	return nil
}

// Registrar is the part of the event workflow a confirmation drives.
type Registrar interface {
	Participate(ctx context.Context, actor domain.Actor, eventID string) (domain.Event, error)
	Get(ctx context.Context, actor domain.Actor, eventID string) (domain.Event, error)
}

type Confirmer struct {
	verifier Verifier
	events   Registrar
	users    store.Users
	log      *logrus.Entry
}

func NewConfirmer(verifier Verifier, events Registrar, users store.Users, log *logrus.Entry) *Confirmer {
	return &Confirmer{verifier: verifier, events: events, users: users, log: log}
}

// Confirm registers the paying user for the event named in payload.
// Redelivered confirmations for an existing registration succeed without
// changing the event.
func (c *Confirmer) Confirm(ctx context.Context, eventID string, payload []byte, signature string) (domain.Event, error) {
	const op = "payment.Confirmer.Confirm"
	log := c.log.WithFields(logrus.Fields{"operation": op, "event_id": eventID})

	if err := c.verifier.Verify(payload, signature); err != nil {
		log.Warn("payment confirmation with bad signature")
		return domain.Event{}, err
	}

	var conf Confirmation
	if err := json.Unmarshal(payload, &conf); err != nil {
		return domain.Event{}, apperrors.Validation("body", "malformed payment confirmation")
	}
	if conf.EventID != eventID {
		return domain.Event{}, apperrors.Validation("event_id", "confirmation is for a different event")
	}
	if strings.TrimSpace(conf.UserID) == "" {
		return domain.Event{}, apperrors.Validation("user_id", "user is required")
	}

	rec, err := c.users.GetUser(ctx, conf.UserID)
	if err != nil {
		return domain.Event{}, store.Translate("user", conf.UserID, err)
	}
	actor := rec.Value.Actor()
	log = log.WithFields(logrus.Fields{"user_id": actor.ID, "reference": conf.Reference})

	ev, err := c.events.Participate(ctx, actor, eventID)
	switch apperrors.ReasonOf(err) {
	case apperrors.ReasonAlreadyRegistered:
		log.Info("payment confirmation redelivered")
		return c.events.Get(ctx, actor, eventID)
	case apperrors.ReasonAtCapacity:
		// Capacity is checked before membership, so a payer holding the
		// last seat sees at-capacity on redelivery.
		current, getErr := c.events.Get(ctx, actor, eventID)
		if getErr == nil && current.HasParticipant(actor.ID) {
			log.Info("payment confirmation redelivered")
			return current, nil
		}
	}
	if err != nil {
		log.WithError(err).Warn("paid registration rejected")
		return domain.Event{}, err
	}
	log.WithField("amount", conf.Amount).Info("paid registration confirmed")
	return ev, nil
}
