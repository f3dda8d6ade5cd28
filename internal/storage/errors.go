package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when a bucket or object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidURI is returned for URIs that are not gs://bucket/object.
	ErrInvalidURI = errors.New("invalid storage URI")

	// ErrBatchTooLarge is returned when a batch size above MaxBatchSize is requested.
	ErrBatchTooLarge = errors.New("batch size exceeds maximum")
)

// StorageError wraps a failed object store operation.
type StorageError struct {
	Op     string
	Bucket string
	Name   string
	Err    error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s gs://%s/%s: %v", e.Op, e.Bucket, e.Name, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func wrap(op, bucket, name string, err error) error {
	if err == nil {
		return nil
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &StorageError{Op: op, Bucket: bucket, Name: name, Err: err}
}
