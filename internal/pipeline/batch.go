package pipeline

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"doctools/internal/docai"
	"doctools/internal/flatten"
	"doctools/internal/storage"
	"doctools/pkg/models"
)

// BatchOutput locates the Document JSON written by a batch operation for
// one input.
type BatchOutput struct {
	InputURI  string
	OutputURI string // gs:// prefix holding one or more JSON shards
}

// CollectBatch reads the Document JSON shards of each output, merges the
// entities of all shards of an input in shard order and flattens them into
// one record routed by classification.
func (p *Pipeline) CollectBatch(ctx context.Context, classification string, outputs []BatchOutput) []FileResult {
	route := p.router.Select(classification)
	results := make([]FileResult, 0, len(outputs))

	for _, out := range outputs {
		result := FileResult{Name: out.InputURI, Classification: classification, Confidence: -1}
		unit := Unit{
			Name:                path.Base(out.InputURI),
			Classification:      classification,
			BroadClassification: route.BroadClassification(),
			Location:            out.OutputURI,
		}

		extraction, err := p.readShards(ctx, out.OutputURI)
		if err != nil {
			unit.Err = err
			result.Err = fmt.Errorf("%s: %w", out.InputURI, err)
		} else {
			entities := flatten.FilterByConfidence(extraction.Entities, p.opts.MinConfidence)
			record := flatten.Flatten(entities)
			record.Set(models.FieldSourceFile, path.Base(out.InputURI))
			record.Set(models.FieldClassification, classification)
			record.Set(models.FieldBroadClassification, route.BroadClassification())
			result.Records = append(result.Records, record)
			unit.PageCount = len(extraction.Pages)
		}

		result.Units = append(result.Units, unit)
		results = append(results, result)
	}
	return results
}

func (p *Pipeline) readShards(ctx context.Context, outputURI string) (*models.ExtractionResult, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}

	bucket, prefix, err := storage.SplitURI(outputURI)
	if err != nil {
		return nil, err
	}

	objects, err := p.store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, ".json") {
			names = append(names, obj.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no document output under %s", outputURI)
	}
	sort.Strings(names)

	merged := &models.ExtractionResult{}
	for _, name := range names {
		data, err := p.store.Read(ctx, bucket, name)
		if err != nil {
			return nil, err
		}
		shard, err := docai.ParseDocumentJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", storage.URI(bucket, name), err)
		}
		merged.Text += shard.Text
		merged.Entities = append(merged.Entities, shard.Entities...)
		merged.Pages = append(merged.Pages, shard.Pages...)
	}
	return merged, nil
}
