package splitter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when the artifact is not a paginated
	// format the splitter can address by page.
	ErrUnsupportedFormat = errors.New("unsupported format for splitting")

	// ErrCorruptDocument is returned when a supported artifact cannot be parsed.
	ErrCorruptDocument = errors.New("document cannot be parsed")

	// ErrNoPages is returned when an assembly is requested with no pages.
	ErrNoPages = errors.New("no pages selected")
)

// SplitError reports a failure while cutting a source document.
type SplitError struct {
	Op             string
	Filename       string
	Classification string
	Err            error
}

// Error implements the error interface.
func (e *SplitError) Error() string {
	if e.Classification != "" {
		return fmt.Sprintf("splitter: %s %s (%s): %v", e.Op, e.Filename, e.Classification, e.Err)
	}
	return fmt.Sprintf("splitter: %s %s: %v", e.Op, e.Filename, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *SplitError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *SplitError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
