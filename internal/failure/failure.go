// Package failure defines the error markers the pipeline uses to tell fatal
// conditions apart and to report them consistently.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrArchive marks an input archive that cannot be opened or read.
	ErrArchive = errors.New("archive error")
	// ErrConfiguration marks invalid settings or unusable paths.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks data that does not have the expected shape.
	ErrValidation = errors.New("validation error")
	// ErrIO marks filesystem or database failures while persisting results.
	ErrIO = errors.New("io error")
	// ErrLocked marks a work directory already owned by another run.
	ErrLocked = errors.New("work directory locked")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above; nil defaults to ErrIO.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short classification for logs and the run ledger.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrArchive):
		return "archive"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrLocked):
		return "locked"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "unknown"
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
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
