package kyc

import (
	"errors"
	"testing"
)

func TestErrorMessagePrecedence(t *testing.T) {
	withMessage := New(KindBadInput, "missing selfie_image")
	if withMessage.Error() != "missing selfie_image" {
		t.Errorf("Error() = %q, want message", withMessage.Error())
	}

	wrapped := Wrap(KindBackendFailure, "", errors.New("connection reset"))
	if wrapped.Error() != "connection reset" {
		t.Errorf("Error() = %q, want underlying error text", wrapped.Error())
	}

	bare := &Error{Kind: KindInternal}
	if bare.Error() != string(KindInternal) {
		t.Errorf("Error() = %q, want kind fallback", bare.Error())
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(New(KindTimeout, "deadline exceeded")); got != KindTimeout {
		t.Errorf("KindOf = %v, want %v", got, KindTimeout)
	}
	if got := KindOf(errors.New("plain error")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindInternal)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("network blip")
	wrapped := Wrap(KindBackendFailure, "backend call failed", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should see through Wrap to the underlying cause")
	}
}
