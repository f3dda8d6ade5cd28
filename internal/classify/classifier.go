// Package classify decides what kind of document a file is and which parser
// processor should extract it.
package classify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"doctools/internal/config"
	"doctools/internal/logger"
	"doctools/pkg/models"
	"doctools/pkg/services"
)

const (
	// LabelOther is returned by classifiers for documents they do not recognize.
	LabelOther = "other"

	// NoClassifier labels documents that were never sent to a classifier.
	NoClassifier = "No Classifier"
)

// Result is the outcome of classifying one document.
type Result struct {
	Label          string
	Confidence     float32
	ClassifierType string          // processor type of the classifier that answered
	Entities       []models.Entity // all entities the classifier returned, in order
}

// Unclassified reports whether no classifier recognized the document.
func (r Result) Unclassified() bool {
	return r.Label == LabelOther || r.Label == NoClassifier
}

// Classifier tries classifier processors in order until one recognizes the
// document.
type Classifier struct {
	extractor    services.ExtractionService
	classifiers  []config.Processor
	threshold    float32
	defaultClass string
	log          zerolog.Logger
}

// Options tunes label acceptance.
type Options struct {
	// Threshold is the minimum confidence for a label to be used. Labels below
	// it are replaced by DefaultClass. Zero accepts every label.
	Threshold float32
	// DefaultClass replaces low-confidence labels. Defaults to "other".
	DefaultClass string
}

// NewClassifier creates a Classifier.
func NewClassifier(extractor services.ExtractionService, classifiers []config.Processor, opts Options) *Classifier {
	if opts.DefaultClass == "" {
		opts.DefaultClass = LabelOther
	}
	return &Classifier{
		extractor:    extractor,
		classifiers:  classifiers,
		threshold:    opts.Threshold,
		defaultClass: opts.DefaultClass,
		log:          logger.WithComponent("classifier"),
	}
}

// Classify sends content to each classifier in turn. A classifier that
// returns no entities or labels the document "other" passes it on to the
// next one. With no classifiers configured the result is labelled
// NoClassifier with confidence -1.
func (c *Classifier) Classify(ctx context.Context, filename string, content []byte, mimeType string) (Result, error) {
	log := c.log.With().Str("file", filename).Logger()

	if len(c.classifiers) == 0 {
		return Result{Label: NoClassifier, Confidence: -1}, nil
	}

	result := Result{Label: LabelOther}
	for _, classifier := range c.classifiers {
		extraction, err := c.extractor.Process(ctx, classifier.ID, content, mimeType)
		if err != nil {
			return Result{}, fmt.Errorf("classifier %s: %w", classifier.Type, err)
		}

		top := models.TopEntity(extraction.Entities)
		if top == nil {
			log.Debug().Str("classifier", classifier.Type).Msg("Classifier returned no entities")
			continue
		}

		log.Debug().
			Str("classifier", classifier.Type).
			Str("classification", top.Type).
			Float32("confidence", top.Confidence).
			Msg("Classifier answered")

		result = Result{
			Label:          top.Type,
			Confidence:     top.Confidence,
			ClassifierType: classifier.Type,
			Entities:       extraction.Entities,
		}
		if top.Type != LabelOther {
			break
		}
	}

	if c.threshold > 0 && result.Label != LabelOther && result.Confidence < c.threshold {
		log.Info().
			Str("classification", result.Label).
			Float32("confidence", result.Confidence).
			Str("default_class", c.defaultClass).
			Msg("Confidence below threshold, using default class")
		result.Label = c.defaultClass
	}

	return result, nil
}

// IsSplittingRequired reports whether a classifier result describes more
// than one document: more than one entity and at least one anchored to pages.
func IsSplittingRequired(entities []models.Entity) bool {
	if len(entities) < 2 {
		return false
	}
	for _, e := range entities {
		if e.HasPages() {
			return true
		}
	}
	return false
}

// Metadata keys written on stored objects.
const (
	MetaConfidence = "confidence"
	MetaType       = "type"
	MetaOriginal   = "original"
)

// Metadata returns the object metadata describing a classification. A nil
// entity produces the NoClassifier label with confidence -1.
func Metadata(entity *models.Entity, original string) map[string]string {
	label, confidence := NoClassifier, float32(-1)
	if entity != nil {
		label, confidence = entity.Type, entity.Confidence
	}

	meta := map[string]string{
		MetaConfidence: strconv.FormatFloat(float64(confidence), 'f', -1, 32),
		MetaType:       label,
	}
	if original != "" {
		meta[MetaOriginal] = original
	}
	return meta
}
