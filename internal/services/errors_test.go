package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"mediapipe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "creation", "upload", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"creation", "upload", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err)
	}
}

func TestMarkerName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("plain"), "unknown"},
		{services.Wrap(services.ErrValidation, "jobs", "decode", "bad", nil), "validation"},
		{services.Wrap(services.ErrNotReady, "notification", "lookup", "pending", nil), "not_ready"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrTimeout, "moderation", "poll", "", nil)), "timeout"},
	}
	for _, tt := range tests {
		if got := services.MarkerName(tt.err); got != tt.want {
			t.Fatalf("MarkerName(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{200, nil},
		{204, nil},
		{408, services.ErrExternalTool},
		{429, services.ErrTransient},
		{400, services.ErrExternalTool},
		{502, services.ErrTransient},
	}
	for _, tt := range tests {
		err := services.StatusError("transcribe", "post", tt.status, []byte("body"))
		if tt.want == nil {
			if err != nil {
				t.Fatalf("status %d: unexpected error %v", tt.status, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) || !strings.Contains(err.Error(), fmt.Sprintf("http %d", tt.status)) {
			t.Fatalf("status %d: got %v", tt.status, err)
		}
	}
}
