package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesKindAndReason(t *testing.T) {
	err := fmt.Errorf("participate: %w", Conflict(ReasonAtCapacity, "event is full"))

	if !errors.Is(err, &Error{Kind: KindConflict}) {
		t.Fatal("expected match on kind alone")
	}
	if !errors.Is(err, Conflict(ReasonAtCapacity, "")) {
		t.Fatal("expected match on kind and reason")
	}
	if errors.Is(err, Conflict(ReasonAlreadyRegistered, "")) {
		t.Fatal("did not expect match on a different reason")
	}
	if errors.Is(err, Forbidden(ReasonAtCapacity, "")) {
		t.Fatal("did not expect match on a different kind")
	}
}

func TestKindOfAndReasonOf(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected untyped errors to be internal, got %s", got)
	}
	err := Forbidden(ReasonOutOfClub, "club mismatch")
	if got := KindOf(err); got != KindForbidden {
		t.Fatalf("expected forbidden, got %s", got)
	}
	if got := ReasonOf(err); got != ReasonOutOfClub {
		t.Fatalf("expected out-of-club, got %s", got)
	}
}

func TestInternalUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("load event", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindValidation:   http.StatusBadRequest,
		KindConflict:     http.StatusConflict,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := kind.HTTPStatus(); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
