package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"not_found", ErrNotFound, KindNotFound},
		{"wrapped_not_found", fmt.Errorf("load job: %w", ErrNotFound), KindNotFound},
		{"validation", fmt.Errorf("%w: cron pattern", ErrValidation), KindValidation},
		{"dependency", fmt.Errorf("%w: broker down", ErrDependencyFailure), KindDependencyFailure},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"timeout_sentinel", ErrTimeout, KindTimeout},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf_PriorityOnJoin(t *testing.T) {
	t.Parallel()

	// NotFound outranks DependencyFailure in the priority table.
	joined := errors.Join(ErrDependencyFailure, ErrNotFound)
	if got := KindOf(joined); got != KindNotFound {
		t.Errorf("KindOf(join) = %v, want %v", got, KindNotFound)
	}
}

func TestMarkKind(t *testing.T) {
	t.Parallel()

	base := errors.New("dial tcp: connection refused")
	marked := MarkKind(base, KindDependencyFailure)

	if !errors.Is(marked, ErrDependencyFailure) {
		t.Error("marked error should match sentinel")
	}
	if !errors.Is(marked, base) {
		t.Error("marked error should preserve the original")
	}
	if KindOf(marked) != KindDependencyFailure {
		t.Errorf("KindOf(marked) = %v", KindOf(marked))
	}

	// Idempotent: marking again returns the error unchanged.
	again := MarkKind(marked, KindDependencyFailure)
	if again != marked {
		t.Error("re-marking with the same kind should be a no-op")
	}
}

func TestMarkKind_Nil(t *testing.T) {
	t.Parallel()

	if err := MarkKind(nil, KindNotFound); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkKind(nil) = %v, want sentinel", err)
	}
	if err := MarkKind(nil, KindUnknown); err != nil {
		t.Errorf("MarkKind(nil, unknown) = %v, want nil", err)
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}

	base := ErrValidation
	wrapped := Wrap(base, "create job")
	if wrapped.Error() != "create job: validation failed" {
		t.Errorf("unexpected message: %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("Wrap should preserve the chain")
	}
	if Wrap(base, "") != base {
		t.Error("empty context should return the original error")
	}
}

func TestHasKind(t *testing.T) {
	t.Parallel()

	err := Wrapf(ErrNotFound, "job %s", "abc")
	if !HasKind(err, KindNotFound) {
		t.Error("expected KindNotFound")
	}
	if HasKind(err, KindValidation) {
		t.Error("did not expect KindValidation")
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	pairs := map[Kind]string{
		KindUnknown:           "Unknown",
		KindNotFound:          "NotFound",
		KindValidation:        "Validation",
		KindConflict:          "Conflict",
		KindInternal:          "Internal",
		KindTimeout:           "Timeout",
		KindDependencyFailure: "DependencyFailure",
		KindCanceled:          "Canceled",
	}
	for k, want := range pairs {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
