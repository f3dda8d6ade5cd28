package docai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", status.Error(codes.PermissionDenied, "denied"), ErrInvalidCredentials},
		{"quota", status.Error(codes.ResourceExhausted, "slow down"), ErrQuotaExceeded},
		{"not found", status.Error(codes.NotFound, "no such processor"), ErrProcessorNotFound},
		{"bad document", status.Error(codes.InvalidArgument, "bad pdf"), ErrInvalidDocument},
		{"rpc deadline", status.Error(codes.DeadlineExceeded, "late"), context.DeadlineExceeded},
		{"ctx deadline", fmt.Errorf("rpc: %w", context.DeadlineExceeded), context.DeadlineExceeded},
		{"ctx canceled", context.Canceled, ErrContextCanceled},
		{"other", errors.New("boom"), ErrProcessingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("Process", "abc123", tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var extractionErr *ExtractionError
			require.ErrorAs(t, err, &extractionErr)
			assert.Equal(t, "abc123", extractionErr.ProcessorID)
		})
	}
}

func TestWrapExtractionError_NoDoubleWrap(t *testing.T) {
	inner := NewExtractionError("Process", ErrDocumentTooLarge, "file size: 1 bytes")
	wrapped := WrapExtractionError("Outer", inner, "ignored")
	assert.Same(t, inner, wrapped)
	assert.Nil(t, WrapExtractionError("Outer", nil, ""))
}

func TestValidateContent(t *testing.T) {
	assert.ErrorIs(t, validateContent("", []byte("x"), "application/pdf"), ErrInvalidConfiguration)
	assert.ErrorIs(t, validateContent("p", nil, "application/pdf"), ErrInvalidDocument)
	assert.ErrorIs(t, validateContent("p", make([]byte, MaxDocumentSizeBytes+1), "application/pdf"), ErrDocumentTooLarge)
	assert.ErrorIs(t, validateContent("p", []byte("x"), ""), ErrInvalidDocument)
	assert.NoError(t, validateContent("p", []byte("x"), "image/png"))
}

func TestProcessorName(t *testing.T) {
	assert.Equal(t, "projects/p/locations/eu/processors/abc",
		ProcessorName("p", "eu", "abc", ""))
	assert.Equal(t, "projects/p/locations/us/processors/abc/processorVersions/pretrained",
		ProcessorName("p", "us", "abc", "pretrained"))
	assert.Equal(t, "eu-documentai.googleapis.com:443", Endpoint("eu"))
}
