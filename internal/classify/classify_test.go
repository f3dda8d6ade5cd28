package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctools/internal/config"
	"doctools/pkg/models"
)

type fakeExtractor struct {
	results map[string]*models.ExtractionResult
	errs    map[string]error
	calls   []string
}

func (f *fakeExtractor) Process(_ context.Context, processorID string, _ []byte, _ string) (*models.ExtractionResult, error) {
	f.calls = append(f.calls, processorID)
	if err := f.errs[processorID]; err != nil {
		return nil, err
	}
	if r, ok := f.results[processorID]; ok {
		return r, nil
	}
	return &models.ExtractionResult{}, nil
}

var classifiers = []config.Processor{
	{Type: "LENDING_DOCUMENT_SPLIT_PROCESSOR", ID: "lending"},
	{Type: "PROCUREMENT_DOCUMENT_SPLIT_PROCESSOR", ID: "procurement"},
}

func TestClassify_CyclesPastOther(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]*models.ExtractionResult{
		"lending": {Entities: []models.Entity{{Type: "other", Confidence: 0.99}}},
		"procurement": {Entities: []models.Entity{
			{Type: "invoice_statement", Confidence: 0.7, PageRefs: []int{0}},
			{Type: "receipt_statement", Confidence: 0.9, PageRefs: []int{1}},
		}},
	}}

	c := NewClassifier(extractor, classifiers, Options{})
	result, err := c.Classify(context.Background(), "f.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, []string{"lending", "procurement"}, extractor.calls)
	assert.Equal(t, "receipt_statement", result.Label)
	assert.InDelta(t, 0.9, result.Confidence, 1e-6)
	assert.Equal(t, "PROCUREMENT_DOCUMENT_SPLIT_PROCESSOR", result.ClassifierType)
	assert.Len(t, result.Entities, 2)
	assert.False(t, result.Unclassified())
}

func TestClassify_StopsAtFirstRecognized(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]*models.ExtractionResult{
		"lending": {Entities: []models.Entity{{Type: "w2_2020", Confidence: 0.8}}},
	}}

	result, err := NewClassifier(extractor, classifiers, Options{}).
		Classify(context.Background(), "f.pdf", []byte("x"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, []string{"lending"}, extractor.calls)
	assert.Equal(t, "w2_2020", result.Label)
}

func TestClassify_AllOther(t *testing.T) {
	extractor := &fakeExtractor{}

	result, err := NewClassifier(extractor, classifiers, Options{}).
		Classify(context.Background(), "f.pdf", []byte("x"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, LabelOther, result.Label)
	assert.True(t, result.Unclassified())
}

func TestClassify_NoClassifiers(t *testing.T) {
	result, err := NewClassifier(&fakeExtractor{}, nil, Options{}).
		Classify(context.Background(), "f.pdf", []byte("x"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, NoClassifier, result.Label)
	assert.Equal(t, float32(-1), result.Confidence)
}

func TestClassify_Threshold(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]*models.ExtractionResult{
		"lending": {Entities: []models.Entity{{Type: "payslip", Confidence: 0.4}}},
	}}

	result, err := NewClassifier(extractor, classifiers[:1], Options{Threshold: 0.5, DefaultClass: "unknown"}).
		Classify(context.Background(), "f.pdf", []byte("x"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "unknown", result.Label)
	assert.InDelta(t, 0.4, result.Confidence, 1e-6)
}

func TestClassify_ExtractorError(t *testing.T) {
	boom := errors.New("quota")
	extractor := &fakeExtractor{errs: map[string]error{"lending": boom}}

	_, err := NewClassifier(extractor, classifiers, Options{}).
		Classify(context.Background(), "f.pdf", []byte("x"), "application/pdf")
	assert.ErrorIs(t, err, boom)
}

func TestIsSplittingRequired(t *testing.T) {
	assert.False(t, IsSplittingRequired(nil))
	assert.False(t, IsSplittingRequired([]models.Entity{{Type: "w2", PageRefs: []int{0, 1}}}))
	assert.False(t, IsSplittingRequired([]models.Entity{{Type: "a"}, {Type: "b"}}))
	assert.True(t, IsSplittingRequired([]models.Entity{{Type: "a"}, {Type: "b", PageRefs: []int{2}}}))
}

func TestMetadata(t *testing.T) {
	meta := Metadata(&models.Entity{Type: "w2", Confidence: 0.5}, "bundle.pdf")
	assert.Equal(t, map[string]string{"confidence": "0.5", "type": "w2", "original": "bundle.pdf"}, meta)

	meta = Metadata(nil, "")
	assert.Equal(t, map[string]string{"confidence": "-1", "type": NoClassifier}, meta)
}

func TestRouter(t *testing.T) {
	pm := config.DefaultProcessorMap()
	pm.Parsers["FORM_W2_PROCESSOR"] = config.Parser{ID: "w2-id", Labels: pm.Parsers["FORM_W2_PROCESSOR"].Labels}
	router := NewRouter(pm)

	route := router.Select("w2_2020")
	assert.Equal(t, "FORM_W2_PROCESSOR", route.ProcessorType)
	assert.Equal(t, "w2-id", route.ProcessorID)
	assert.Equal(t, "FORM_W2", route.BroadClassification())

	route = router.Select("never_seen")
	assert.Equal(t, config.DefaultProcessorType, route.ProcessorType)
	assert.Equal(t, "FORM_PARSER", route.BroadClassification())
	assert.Empty(t, route.ProcessorID)

	assert.Equal(t, "EXPENSE_PROCESSOR", router.Select("hotel_statement").ProcessorType)
}
