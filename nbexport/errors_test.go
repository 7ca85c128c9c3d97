package nbexport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	errorslib "github.com/goliatone/go-errors"
)

func TestAsGoErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		category errorslib.Category
		code     string
	}{
		{NewError(KindValidation, "bad input", nil), errorslib.CategoryValidation, "validation"},
		{NewError(KindNotFound, "missing", nil), errorslib.CategoryNotFound, "not_found"},
		{NewError(KindUnavailable, "no backend", nil), errorslib.CategoryOperation, "unavailable"},
		{context.DeadlineExceeded, errorslib.CategoryOperation, "timeout"},
		{context.Canceled, errorslib.CategoryOperation, "canceled"},
		{NewError(KindInternal, "boom", nil), errorslib.CategoryInternal, "internal"},
	}

	for _, tc := range cases {
		mapped := AsGoError(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapping for %v", tc.err)
		}
		if mapped.Category != tc.category {
			t.Fatalf("expected category %s, got %s", tc.category, mapped.Category)
		}
		if mapped.TextCode != tc.code {
			t.Fatalf("expected text code %s, got %s", tc.code, mapped.TextCode)
		}
	}
}

func TestIsNotAvailable(t *testing.T) {
	err := NewError(KindUnavailable, "no enabled backend produced a document", nil)
	if !IsNotAvailable(err) {
		t.Fatalf("expected unavailable kind to match")
	}
	if !IsNotAvailable(fmt.Errorf("request failed: %w", err)) {
		t.Fatalf("expected wrapped unavailable to match")
	}
	if IsNotAvailable(NewError(KindNotFound, "missing", nil)) {
		t.Fatalf("not-found must not read as unavailable")
	}
	if IsNotAvailable(nil) {
		t.Fatalf("nil must not read as unavailable")
	}
}

func TestIsNotAvailableSurvivesGoErrorMapping(t *testing.T) {
	mapped := AsGoError(NewError(KindUnavailable, "no backend", nil))
	if !IsNotAvailable(mapped) {
		t.Fatalf("mapped error must keep its unavailable kind")
	}
}

func TestKindFromError(t *testing.T) {
	if kind := KindFromError(nil); kind != "" {
		t.Fatalf("expected empty kind for nil, got %q", kind)
	}
	if kind := KindFromError(errors.New("plain")); kind != KindInternal {
		t.Fatalf("expected internal for plain errors, got %q", kind)
	}
	wrapped := fmt.Errorf("render: %w", NewError(KindTimeout, "slow", nil))
	if kind := KindFromError(wrapped); kind != KindTimeout {
		t.Fatalf("expected timeout, got %q", kind)
	}
}

func TestRenderErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(KindInternal, "wrapper", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected unwrap to reach the cause")
	}
	if err.Error() != "wrapper: root cause" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
