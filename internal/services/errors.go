package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnreachable   = errors.New("remote unreachable")
	ErrRejected      = errors.New("input rejected")
	ErrQuota         = errors.New("quota exceeded")
	ErrUnknown       = errors.New("remote failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// FailureKind is the opaque category surfaced to observers when a remote
// stage call fails.
type FailureKind string

const (
	KindUnreachable FailureKind = "unreachable"
	KindRejected    FailureKind = "rejected_input"
	KindQuota       FailureKind = "quota_exceeded"
	KindUnknown     FailureKind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUnknown
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps a stage error onto the remote failure taxonomy. Errors without a
// recognised marker are reported as unknown.
func Kind(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, ErrRejected), errors.Is(err, ErrValidation):
		return KindRejected
	case errors.Is(err, ErrQuota):
		return KindQuota
	default:
		return KindUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
