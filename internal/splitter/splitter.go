// Package splitter cuts a paginated source document into sub-documents, one
// per classified entity, using each entity's page references.
package splitter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"doctools/internal/flatten"
	"doctools/internal/logger"
	"doctools/pkg/models"
)

// Splitter partitions documents along entity page references. It holds no
// state between calls and is safe for concurrent use.
type Splitter struct {
	randomSuffix bool
	log          zerolog.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithRandomSuffix appends a random token to every file name so that names
// never collide across runs writing into the same bucket.
func WithRandomSuffix() Option {
	return func(s *Splitter) {
		s.randomSuffix = true
	}
}

// WithLogger replaces the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Splitter) {
		s.log = log
	}
}

// New creates a Splitter.
func New(opts ...Option) *Splitter {
	s := &Splitter{log: logger.WithComponent("splitter")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split emits one sub-document per entity that references at least one valid
// page of doc, in entity order. Pages are included in the order the entity
// lists them. Entities without page references are skipped, as are page
// indexes outside the document.
//
// An empty result means no splitting happened. Callers treat it as the whole
// document being a single unit.
func (s *Splitter) Split(filename string, doc Paginated, entities []models.Entity) ([]models.SubDocument, error) {
	log := s.log.With().Str("file", filename).Logger()

	if len(entities) == 0 {
		return nil, nil
	}

	pageCount := doc.PageCount()
	names := make(map[string]bool)
	var out []models.SubDocument

	for i, entity := range entities {
		if !entity.HasPages() {
			log.Debug().
				Str("classification", entity.Type).
				Int("entity", i).
				Msg("Skipping document-level entity")
			continue
		}

		pages := make([]int, 0, len(entity.PageRefs))
		for _, page := range entity.PageRefs {
			if page < 0 || page >= pageCount {
				log.Warn().
					Str("classification", entity.Type).
					Int("page", page).
					Int("page_count", pageCount).
					Msg("Page reference out of range, skipping page")
				continue
			}
			pages = append(pages, page)
		}

		if len(pages) == 0 {
			log.Warn().
				Str("classification", entity.Type).
				Int("entity", i).
				Msg("No valid pages for entity, skipping")
			continue
		}

		start, end := bounds(pages)

		data, err := doc.Assemble(pages)
		if err != nil {
			return nil, &SplitError{
				Op:             "Assemble",
				Filename:       filename,
				Classification: entity.Type,
				Err:            err,
			}
		}

		name := s.name(filename, start, end, entity.Type, names)

		log.Debug().
			Str("classification", entity.Type).
			Str("output", name).
			Int("pages", len(pages)).
			Msg("Created sub-document")

		out = append(out, models.SubDocument{
			SourceFilename:     filename,
			ClassificationType: entity.Type,
			Filename:           name,
			StartPage:          start,
			EndPage:            end,
			PageCount:          len(pages),
			Confidence:         entity.Confidence,
			MimeType:           doc.MimeType(),
			Bytes:              data,
		})
	}

	return out, nil
}

// name builds {stem}_pg{NNN}-{NNN}_{type}{ext}. A name already handed out in
// this call gets a running _n suffix.
func (s *Splitter) name(filename string, start, end int, entityType string, used map[string]bool) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := fmt.Sprintf("%s_pg%s_%s", stem, models.PageRangeLabel(start, end), flatten.FieldName(entityType))

	if s.randomSuffix {
		return name + "_" + uuid.NewString() + ext
	}

	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[candidate] = true
	return candidate + ext
}

func bounds(pages []int) (int, int) {
	start, end := pages[0], pages[0]
	for _, p := range pages[1:] {
		if p < start {
			start = p
		}
		if p > end {
			end = p
		}
	}
	return start, end
}
