package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"doctools/internal/config"
	"doctools/internal/docai"
	"doctools/internal/splitter"
)

const credentialsHelp = "Please set one of:\n\n" +
	"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
	"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
	"2. Export GOOGLE_CREDENTIALS with inline JSON:\n" +
	"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
	"3. Use Application Default Credentials (if gcloud is configured):\n" +
	"   gcloud auth application-default login"

// loadConfig reads the environment configuration and the processor map named
// by --processors or PROCESSOR_CONFIG.
func loadConfig(cmd *cobra.Command) (*config.Config, *config.ProcessorMap, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	path, _ := cmd.Flags().GetString("processors")
	if path == "" {
		path = cfg.ProcessorConfig
	}
	processors, err := config.LoadProcessorMap(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, processors, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// createDocAIClient creates the Document AI client for the configured project
// and region.
func createDocAIClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*docai.Client, error) {
	client, err := docai.NewClient(ctx, docai.Config{
		ProjectID: cfg.GoogleCloudProject,
		Location:  cfg.GoogleCloudLocation,
		Timeout:   cfg.DocumentAITimeout,
	})
	if err != nil {
		if errors.Is(err, docai.ErrMissingCredentials) {
			log.Error().Err(err).Msg("Google Cloud credentials not configured")
			return nil, fmt.Errorf("Google Cloud credentials not configured. %s", credentialsHelp)
		}
		log.Error().Err(err).Msg("Failed to create Document AI client")
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}

	log.Debug().
		Str("project", cfg.GoogleCloudProject).
		Str("location", cfg.GoogleCloudLocation).
		Msg("Document AI client created")
	return client, nil
}

// readInputFile validates and reads a local document.
func readInputFile(path string, log zerolog.Logger) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("File not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}
	if info.Size() > docai.MaxDocumentSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", info.Size()).
			Int64("max_size", docai.MaxDocumentSizeBytes).
			Msg("File exceeds maximum size limit")
		return nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes (20MB)", info.Size(), docai.MaxDocumentSizeBytes)
	}

	return os.ReadFile(path)
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(path string, data []byte, log zerolog.Logger) error {
	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Error().Err(err).Str("output_file", path).Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().Str("output_file", path).Int("bytes", len(data)).Msg("Results written to file")
	return nil
}

// handleExtractionError provides user-friendly error messages for Document AI
// failures.
func handleExtractionError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Document processing failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled), errors.Is(err, docai.ErrContextCanceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, docai.ErrDocumentTooLarge):
		return fmt.Errorf("document is too large (maximum 20MB). Try splitting the file")
	case errors.Is(err, docai.ErrInvalidDocument):
		return fmt.Errorf("invalid or corrupted document. Please check the file integrity: %w", err)
	case errors.Is(err, docai.ErrProcessorNotFound):
		return fmt.Errorf("processor not found. Check the processor ids in your processor map: %w", err)
	case errors.Is(err, docai.ErrInvalidCredentials):
		return fmt.Errorf("Google Cloud authentication failed. %s\n\nEnsure the service account has the 'Document AI API User' role.\n\nOriginal error: %v", credentialsHelp, err)
	case errors.Is(err, docai.ErrQuotaExceeded):
		return fmt.Errorf("Document AI quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, splitter.ErrUnsupportedFormat):
		return fmt.Errorf("only PDF documents can be split: %w", err)
	default:
		return fmt.Errorf("document processing failed: %w", err)
	}
}
