package errs

import (
	"errors"
	"testing"
)

func TestUserErrorFormatting(t *testing.T) {
	err := NewUserError("bad committish %q", "HEAD^^")
	if err.Error() != `bad committish "HEAD^^"` {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !IsUser(err) {
		t.Errorf("expected IsUser to recognize a UserError")
	}
}

func TestConflictErrorIsAlsoUser(t *testing.T) {
	status := "some status"
	err := NewConflictError(status, "conflict in %s", "libA")
	if !IsUser(err) {
		t.Errorf("ConflictError must satisfy IsUser")
	}
	c, ok := IsConflict(err)
	if !ok {
		t.Fatalf("expected IsConflict to match")
	}
	if c.Status.(string) != status {
		t.Errorf("expected status payload to round-trip")
	}
}

func TestIntegrityErrorWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("missing object")
	err := NewIntegrityError(cause, "could not load commit %s", "abc123")
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause")
	}
	if !IsIntegrity(err) {
		t.Errorf("expected IsIntegrity to recognize an IntegrityError")
	}
	if IsUser(err) {
		t.Errorf("IntegrityError must not be classified as a UserError")
	}
}

func TestInternalErrorPrefixed(t *testing.T) {
	err := NewInternalError("invariant broken: %s", "tree missing parent")
	if err.Error() != "internal error: invariant broken: tree missing parent" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !IsInternal(err) {
		t.Errorf("expected IsInternal to recognize an InternalError")
	}
}

func TestPredicatesAreDisjoint(t *testing.T) {
	errsToCheck := []error{
		NewUserError("u"),
		NewConflictError(nil, "c"),
		NewIntegrityError(nil, "i"),
		NewInternalError("n"),
	}
	for _, e := range errsToCheck {
		count := 0
		if IsUser(e) {
			count++
		}
		if IsIntegrity(e) {
			count++
		}
		if IsInternal(e) {
			count++
		}
		if count != 1 {
			t.Errorf("expected exactly one taxonomy predicate to match %T, got %d", e, count)
		}
	}
}
