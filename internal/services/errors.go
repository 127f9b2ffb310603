package services

import (
	"errors"
	"fmt"
	"strings"
)

// Markers classify failures so the workflow can choose an outcome without
// inspecting messages.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	// ErrNotReady marks data another stage has not produced yet.
	ErrNotReady     = errors.New("not ready")
	ErrTimeout      = errors.New("timeout")
	ErrExternalTool = errors.New("external service error")
	ErrTransient    = errors.New("transient failure")
)

// markerNames is ordered: the first match wins when an error carries more
// than one marker.
var markerNames = []struct {
	marker error
	name   string
}{
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrNotFound, "not_found"},
	{ErrNotReady, "not_ready"},
	{ErrTimeout, "timeout"},
	{ErrExternalTool, "external"},
	{ErrTransient, "transient"},
}

// Wrap tags err with marker and prefixes it with "stage: operation: message".
// A nil marker defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	var parts []string
	for _, p := range []string{stage, operation, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = "service failure"
	}
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

// Marker returns the first sentinel matched by err, or nil.
func Marker(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range markerNames {
		if errors.Is(err, m.marker) {
			return m.marker
		}
	}
	return nil
}

// MarkerName is a stable label for logs and metrics: "" for nil, "unknown"
// for errors without a marker.
func MarkerName(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range markerNames {
		if errors.Is(err, m.marker) {
			return m.name
		}
	}
	return "unknown"
}
