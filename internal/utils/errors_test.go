package utils

import (
	"errors"
	"testing"
)

func TestAppErrorUnwrapsSentinel(t *testing.T) {
	err := NewAppError("campaign.Create", "unknown persona", ErrInvalidConfig)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected wrapped sentinel to match, got %v", err)
	}
	want := "campaign.Create: unknown persona: invalid configuration"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestAppErrorWithoutCause(t *testing.T) {
	err := NewAppError("campaign.Get", "lookup failed", nil)
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no sentinel match without cause")
	}
	if err.Error() != "campaign.Get: lookup failed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
