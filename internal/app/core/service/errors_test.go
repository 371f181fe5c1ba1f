package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("deposit", "abc123")

	expected := `deposit "abc123" not found`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to wrap ErrNotFound")
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should return true")
	}
	if Code(err) != CodeNotFound {
		t.Errorf("unexpected code %s", Code(err))
	}
}

func TestNotFoundError_NoID(t *testing.T) {
	err := NewNotFoundError("plan", "")
	if err.Error() != "plan not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestAmountErrorMapsToInvalidAmount(t *testing.T) {
	err := NewAmountError("below minimum 100")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatal("expected ErrInvalidAmount")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Fatal("amount errors should not match ErrInvalidInput")
	}
	if Code(err) != CodeInvalidAmount {
		t.Fatalf("unexpected code %s", Code(err))
	}
}

func TestRequiredError(t *testing.T) {
	err := RequiredError("user_id")
	if err.Error() != "user_id: is required" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if Code(err) != CodeInvalidInput {
		t.Errorf("unexpected code %s", Code(err))
	}
}

func TestTransitionErrorCarriesBothStates(t *testing.T) {
	err := &TransitionError{Entity: "withdrawal", From: "approved", To: "rejected"}
	if !IsInvalidTransition(err) {
		t.Fatal("expected invalid transition")
	}
	if err.Error() != `withdrawal: cannot transition from "approved" to "rejected"` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestPersistenceErrorHidesDetailsFromUsers(t *testing.T) {
	err := NewPersistenceError("update user", errors.New("pq: connection reset by peer"))
	if !IsPersistence(err) {
		t.Fatal("expected persistence error")
	}
	if msg := PublicMessage(err, false); msg == err.Error() {
		t.Fatalf("storage details leaked to user: %q", msg)
	}
	if msg := PublicMessage(err, true); msg != err.Error() {
		t.Fatalf("admin should see details, got %q", msg)
	}
}

func TestPersistenceErrorKeepsCause(t *testing.T) {
	err := NewPersistenceError("begin", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("cause should be reachable")
	}
	again := NewPersistenceError("commit", err)
	if again != err {
		t.Fatal("persistence errors should not be double wrapped")
	}
	if NewPersistenceError("noop", nil) != nil {
		t.Fatal("nil cause should yield nil")
	}
}

func TestServiceError(t *testing.T) {
	underlying := NewNotFoundError("investment", "xyz")
	err := WrapServiceError("investments", "Approve", underlying)

	expected := `investments.Approve: investment "xyz" not found`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped error should still match ErrNotFound")
	}
	if WrapServiceError("x", "y", nil) != nil {
		t.Error("WrapServiceError(nil) should return nil")
	}
}

func TestCodeUnknownAndNil(t *testing.T) {
	if Code(nil) != "" {
		t.Fatal("nil should have empty code")
	}
	if Code(fmt.Errorf("plain")) != CodeInternal {
		t.Fatal("unknown errors map to INTERNAL")
	}
	if PublicMessage(fmt.Errorf("secret detail"), false) != "internal error" {
		t.Fatal("internal details leaked")
	}
}

func TestDescriptorWithCapabilities(t *testing.T) {
	d := Descriptor{Name: "ledger", Capabilities: []string{"balance"}}
	e := d.WithCapabilities("entries")
	if len(d.Capabilities) != 1 || len(e.Capabilities) != 2 {
		t.Fatalf("descriptor mutated: %v / %v", d.Capabilities, e.Capabilities)
	}
	if same := d.WithCapabilities(); len(same.Capabilities) != 1 {
		t.Fatal("empty append should be a no-op")
	}
	if dup := e.WithCapabilities("balance", "entries", "reconcile", "reconcile"); len(dup.Capabilities) != 3 {
		t.Fatalf("repeats kept: %v", dup.Capabilities)
	}
	if !e.Supports("entries") || e.Supports("reconcile") {
		t.Fatal("Supports disagrees with Capabilities")
	}
}
