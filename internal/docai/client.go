package docai

import (
	"context"
	"fmt"
	"os"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"doctools/internal/logger"
	"doctools/pkg/models"
)

const (
	// MaxDocumentSizeBytes is the maximum document size for online processing (20MB)
	MaxDocumentSizeBytes = 20 * 1024 * 1024

	// DefaultTimeout bounds a single online request.
	DefaultTimeout = 200 * time.Second
)

// Config identifies the project and region processors live in.
type Config struct {
	ProjectID        string
	Location         string // "us", "eu", ...
	ProcessorVersion string // Optional, applied to every processor name
	Timeout          time.Duration
	CredentialsJSON  string // Overrides GOOGLE_CREDENTIALS
	CredentialsFile  string // Overrides GOOGLE_APPLICATION_CREDENTIALS
}

// Client submits documents to Document AI processors. It implements
// services.ExtractionService.
type Client struct {
	client *documentai.DocumentProcessorClient
	config Config
	log    zerolog.Logger
}

// NewClient creates a Document AI client on the regional endpoint for
// config.Location. Credentials come from config, then GOOGLE_CREDENTIALS,
// then GOOGLE_APPLICATION_CREDENTIALS, then application default credentials.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	const op = "NewClient"

	if config.ProjectID == "" {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "project id is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	clientOptions := []option.ClientOption{
		option.WithEndpoint(Endpoint(config.Location)),
	}

	credJSON := firstNonEmpty(config.CredentialsJSON, os.Getenv("GOOGLE_CREDENTIALS"))
	credFile := firstNonEmpty(config.CredentialsFile, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	hasCredentials := credJSON != "" || credFile != ""
	if credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if !hasCredentials {
			return nil, WrapExtractionError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapExtractionError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return &Client{
		client: client,
		config: config,
		log:    logger.WithComponent("docai"),
	}, nil
}

// NewClientWithProcessorClient wraps an existing processor client (for testing).
func NewClientWithProcessorClient(config Config, client *documentai.DocumentProcessorClient) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		client: client,
		config: config,
		log:    logger.WithComponent("docai"),
	}
}

// Endpoint returns the regional API endpoint for location.
func Endpoint(location string) string {
	return fmt.Sprintf("%s-documentai.googleapis.com:443", location)
}

// ProcessorName builds the full resource name for processorID.
func (c *Client) ProcessorName(processorID string) string {
	return ProcessorName(c.config.ProjectID, c.config.Location, processorID, c.config.ProcessorVersion)
}

// ProcessorName builds a processor (or processor version) resource name.
func ProcessorName(projectID, location, processorID, version string) string {
	if version != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			projectID, location, processorID, version)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID)
}

// Process sends content to the processor synchronously and converts the
// returned document.
func (c *Client) Process(ctx context.Context, processorID string, content []byte, mimeType string) (*models.ExtractionResult, error) {
	doc, err := c.ProcessRaw(ctx, processorID, content, mimeType)
	if err != nil {
		return nil, err
	}
	return FromProto(doc), nil
}

// ProcessRaw is Process without the model conversion, for callers that need
// fields the model does not carry.
func (c *Client) ProcessRaw(ctx context.Context, processorID string, content []byte, mimeType string) (*documentaipb.Document, error) {
	const op = "Process"

	if err := validateContent(processorID, content, mimeType); err != nil {
		return nil, err
	}

	// Create context with timeout
	processCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: c.ProcessorName(processorID),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	}

	c.log.Debug().
		Str("processor_id", processorID).
		Str("mime_type", mimeType).
		Int("size", len(content)).
		Msg("Submitting document")

	start := time.Now()
	resp, err := c.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, mapError(op, processorID, err)
	}

	if resp.GetDocument() == nil {
		return nil, &ExtractionError{Op: op, Err: ErrProcessingFailed, Details: "no document in response", ProcessorID: processorID}
	}

	c.log.Debug().
		Str("processor_id", processorID).
		Int("entities", len(resp.GetDocument().GetEntities())).
		Int("pages", len(resp.GetDocument().GetPages())).
		Dur("elapsed", time.Since(start)).
		Msg("Document processed")

	return resp.GetDocument(), nil
}

func validateContent(processorID string, content []byte, mimeType string) error {
	const op = "Process"

	if processorID == "" {
		return WrapExtractionError(op, ErrInvalidConfiguration, "processor id is required")
	}
	if len(content) == 0 {
		return &ExtractionError{Op: op, Err: ErrInvalidDocument, Details: "empty content", ProcessorID: processorID}
	}
	if len(content) > MaxDocumentSizeBytes {
		return &ExtractionError{Op: op, Err: ErrDocumentTooLarge, Details: fmt.Sprintf("file size: %d bytes", len(content)), ProcessorID: processorID}
	}
	if mimeType == "" {
		return &ExtractionError{Op: op, Err: ErrInvalidDocument, Details: "mime type is required", ProcessorID: processorID}
	}
	return nil
}

// Close closes the underlying Document AI client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
