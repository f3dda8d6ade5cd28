package docai

import (
	"context"
	"fmt"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

// BatchInput is one object submitted in a batch request.
type BatchInput struct {
	URI      string // gs://bucket/object
	MimeType string
}

// BatchStatus reports the outcome for one input of a batch request.
type BatchStatus struct {
	InputURI  string
	OutputURI string // gs:// prefix holding the Document JSON shards
	Code      int32
	Message   string
}

// OK reports whether the input was processed successfully.
func (s BatchStatus) OK() bool {
	return s.Code == 0
}

// BatchProcess submits inputs as one long-running batch request writing
// Document JSON under outputURI, waits for completion and returns the
// per-input statuses.
func (c *Client) BatchProcess(ctx context.Context, processorID string, inputs []BatchInput, outputURI string) ([]BatchStatus, error) {
	const op = "BatchProcess"

	if processorID == "" {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "processor id is required")
	}
	if len(inputs) == 0 {
		return nil, nil
	}
	if outputURI == "" {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "output uri is required")
	}

	documents := make([]*documentaipb.GcsDocument, 0, len(inputs))
	for _, in := range inputs {
		documents = append(documents, &documentaipb.GcsDocument{
			GcsUri:   in.URI,
			MimeType: in.MimeType,
		})
	}

	req := &documentaipb.BatchProcessRequest{
		Name: c.ProcessorName(processorID),
		InputDocuments: &documentaipb.BatchDocumentsInputConfig{
			Source: &documentaipb.BatchDocumentsInputConfig_GcsDocuments{
				GcsDocuments: &documentaipb.GcsDocuments{Documents: documents},
			},
		},
		DocumentOutputConfig: &documentaipb.DocumentOutputConfig{
			Destination: &documentaipb.DocumentOutputConfig_GcsOutputConfig_{
				GcsOutputConfig: &documentaipb.DocumentOutputConfig_GcsOutputConfig{
					GcsUri: outputURI,
				},
			},
		},
	}

	operation, err := c.client.BatchProcessDocuments(ctx, req)
	if err != nil {
		return nil, mapError(op, processorID, err)
	}

	c.log.Info().
		Str("processor_id", processorID).
		Str("operation", operation.Name()).
		Int("documents", len(inputs)).
		Msg("Waiting for batch operation")

	if _, err := operation.Wait(ctx); err != nil {
		return nil, mapError(op, processorID, err)
	}

	metadata, err := operation.Metadata()
	if err != nil {
		return nil, WrapExtractionError(op, err, "failed to read batch metadata")
	}
	if metadata.GetState() != documentaipb.BatchProcessMetadata_SUCCEEDED {
		return nil, &ExtractionError{
			Op:          op,
			Err:         ErrProcessingFailed,
			Details:     fmt.Sprintf("batch state %s: %s", metadata.GetState(), metadata.GetStateMessage()),
			ProcessorID: processorID,
		}
	}

	statuses := make([]BatchStatus, 0, len(metadata.GetIndividualProcessStatuses()))
	for _, s := range metadata.GetIndividualProcessStatuses() {
		statuses = append(statuses, BatchStatus{
			InputURI:  s.GetInputGcsSource(),
			OutputURI: s.GetOutputGcsDestination(),
			Code:      s.GetStatus().GetCode(),
			Message:   s.GetStatus().GetMessage(),
		})
	}
	return statuses, nil
}
