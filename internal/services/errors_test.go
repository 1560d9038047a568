package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"elicit/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUnreachable, "transcription", "request", "dial failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUnreachable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcription", "request", "dial failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToUnknownMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrUnknown) {
		t.Fatalf("expected unknown marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want services.FailureKind
	}{
		{nil, ""},
		{services.Wrap(services.ErrUnreachable, "s", "op", "", nil), services.KindUnreachable},
		{services.Wrap(services.ErrRejected, "s", "op", "", nil), services.KindRejected},
		{services.Wrap(services.ErrValidation, "s", "op", "", nil), services.KindRejected},
		{services.Wrap(services.ErrQuota, "s", "op", "", nil), services.KindQuota},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrQuota, "s", "op", "", nil)), services.KindQuota},
		{errors.New("plain"), services.KindUnknown},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
