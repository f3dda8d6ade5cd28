package docai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Common extraction errors
var (
	// ErrInvalidDocument is returned when the content is empty, corrupted or
	// rejected by the processor as malformed.
	ErrInvalidDocument = errors.New("invalid or corrupted document")

	// ErrProcessingFailed is returned when Document AI processing fails.
	ErrProcessingFailed = errors.New("document AI processing failed")

	// ErrInvalidCredentials is returned when Google Cloud credentials are invalid
	// or do not have the necessary permissions.
	ErrInvalidCredentials = errors.New("invalid Google Cloud credentials")

	// ErrMissingCredentials is returned when Google Cloud credentials are not configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials")

	// ErrInvalidConfiguration is returned when the client configuration is invalid.
	ErrInvalidConfiguration = errors.New("invalid Document AI configuration")

	// ErrProcessorNotFound is returned when the processor cannot be found or accessed.
	ErrProcessorNotFound = errors.New("Document AI processor not found")

	// ErrQuotaExceeded is returned when Document AI API quota limits are exceeded.
	ErrQuotaExceeded = errors.New("Document AI API quota exceeded")

	// ErrDocumentTooLarge is returned when the content exceeds the online size limit.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size limit")

	// ErrContextCanceled is returned when processing is canceled via context.
	ErrContextCanceled = errors.New("document processing was canceled")
)

// ExtractionError wraps errors with context about a failed extraction request.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "Process", "BatchProcess").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// ProcessorID is the processor the request was sent to (if available).
	ProcessorID string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("docai: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	if e.ProcessorID != "" {
		return fmt.Sprintf("docai: %s failed (processor: %s): %v", e.Op, e.ProcessorID, e.Err)
	}
	return fmt.Sprintf("docai: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(op string, err error, details string) *ExtractionError {
	return &ExtractionError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapExtractionError wraps an error as an ExtractionError if it isn't already one.
func WrapExtractionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return err // Already wrapped
	}

	return NewExtractionError(op, err, details)
}

// mapError converts a Document AI RPC failure into an ExtractionError around
// one of the package sentinels, keyed by gRPC status code.
func mapError(op, processorID string, err error) error {
	if err == nil {
		return nil
	}

	var sentinel error
	var details string

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		sentinel, details = context.DeadlineExceeded, "processing timeout"
	case errors.Is(err, context.Canceled):
		sentinel, details = ErrContextCanceled, "processing was canceled"
	default:
		switch status.Code(err) {
		case codes.PermissionDenied, codes.Unauthenticated:
			sentinel, details = ErrInvalidCredentials, "insufficient permissions for Document AI"
		case codes.ResourceExhausted:
			sentinel, details = ErrQuotaExceeded, "Document AI API quota exceeded"
		case codes.NotFound:
			sentinel, details = ErrProcessorNotFound, fmt.Sprintf("processor not found: %s", processorID)
		case codes.InvalidArgument:
			sentinel, details = ErrInvalidDocument, "document format not supported or corrupted"
		case codes.DeadlineExceeded:
			sentinel, details = context.DeadlineExceeded, "processing timeout"
		case codes.Canceled:
			sentinel, details = ErrContextCanceled, "processing was canceled"
		default:
			sentinel, details = ErrProcessingFailed, fmt.Sprintf("Document AI error: %v", err)
		}
	}

	return &ExtractionError{
		Op:          op,
		Err:         sentinel,
		Details:     details,
		ProcessorID: processorID,
	}
}
