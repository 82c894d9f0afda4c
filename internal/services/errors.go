package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrToolchain     = errors.New("toolchain error")
	ErrProcessing    = errors.New("processing error")
	ErrStorage       = errors.New("storage error")
	ErrState         = errors.New("state error")
	ErrTimeout       = errors.New("timeout")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Kind names an error class for logs, API payloads, and job rows.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindToolchain     Kind = "toolchain"
	KindProcessing    Kind = "processing"
	KindStorage       Kind = "storage"
	KindState         Kind = "state"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error onto its Kind. Validation wins over every other
// marker so a bad upload is never reported as a service fault.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrState):
		return KindState
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrProcessing), errors.Is(err, ErrTimeout):
		return KindProcessing
	case errors.Is(err, ErrToolchain):
		return KindToolchain
	default:
		return KindInternal
	}
}

// Retryable reports whether the queue worker should put a job back to pending
// after err. Toolchain failures are retried on the queue path because transient
// resource pressure is plausible there.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindToolchain, KindProcessing, KindStorage, KindInternal:
		return true
	default:
		return false
	}
}

// UserMessage renders a reason safe to show to the person who submitted a
// video. It separates "fix your file" from "try again later" without leaking
// toolchain output.
func UserMessage(err error) string {
	switch Classify(err) {
	case "":
		return ""
	case KindValidation:
		return "the uploaded file is not a supported video: " + validationReason(err)
	case KindStorage, KindProcessing:
		return "the video could not be processed right now; please try again shortly"
	case KindNotFound:
		return "the requested resource was not found"
	default:
		return "the video could not be processed due to an internal failure"
	}
}

func validationReason(err error) string {
	var reason *ReasonError
	if errors.As(err, &reason) {
		return reason.Reason
	}
	return "unsupported format or corrupt file"
}

// ReasonError carries a short human-readable reason alongside a marker.
type ReasonError struct {
	Reason string
}

func (e *ReasonError) Error() string { return e.Reason }

// Invalid returns a validation error carrying a user-facing reason.
func Invalid(stage, reason string) error {
	return Wrap(ErrValidation, stage, "validate", "", &ReasonError{Reason: reason})
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
