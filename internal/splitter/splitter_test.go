package splitter

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctools/internal/pdftest"
	"doctools/pkg/models"
)

func pageList(n int) *PageList {
	pages := make([][]byte, n)
	for i := range pages {
		pages[i] = []byte{byte('a' + i)}
	}
	return NewPageList(pages...)
}

func newTestSplitter(opts ...Option) *Splitter {
	return New(append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func TestSplit_OnePerEntityInListedOrder(t *testing.T) {
	doc := pageList(6)
	entities := []models.Entity{
		{Type: "w2", PageRefs: []int{0, 1}, Confidence: 0.9},
		{Type: "1099-int", PageRefs: []int{4, 2}, Confidence: 0.8},
		{Type: "paystub", PageRefs: []int{5}},
	}

	subs, err := newTestSplitter().Split("bundle.pdf", doc, entities)
	require.NoError(t, err)
	require.Len(t, subs, 3)

	assert.Equal(t, []byte("ab"), subs[0].Bytes)
	assert.Equal(t, 2, subs[0].PageCount)
	assert.Equal(t, "bundle_pg001-002_w2.pdf", subs[0].Filename)
	assert.InDelta(t, 0.9, subs[0].Confidence, 1e-6)

	// Non-contiguous pages keep their listed order; min and max only name the file
	assert.Equal(t, []byte("ec"), subs[1].Bytes)
	assert.Equal(t, 2, subs[1].StartPage)
	assert.Equal(t, 4, subs[1].EndPage)
	assert.Equal(t, "bundle_pg003-005_1099_int.pdf", subs[1].Filename)
	assert.Equal(t, "1099-int", subs[1].ClassificationType)

	assert.Equal(t, []byte("f"), subs[2].Bytes)
	assert.Equal(t, "bundle.pdf", subs[2].SourceFilename)
	assert.Equal(t, "application/octet-stream", subs[2].MimeType)
}

func TestSplit_BytesAreConcatenationOfPages(t *testing.T) {
	doc := pageList(8)
	refs := [][]int{{0}, {1, 2, 3}, {7, 6}, {4, 5}}

	var entities []models.Entity
	for _, r := range refs {
		entities = append(entities, models.Entity{Type: "form", PageRefs: r})
	}

	subs, err := newTestSplitter().Split("f.pdf", doc, entities)
	require.NoError(t, err)
	require.Len(t, subs, len(refs))

	for i, r := range refs {
		var want bytes.Buffer
		for _, p := range r {
			want.Write(doc.Pages[p])
		}
		assert.Equal(t, want.Bytes(), subs[i].Bytes)
		assert.Equal(t, len(r), subs[i].PageCount)
	}
}

func TestSplit_OverlappingEntitiesEachGetASubDocument(t *testing.T) {
	subs, err := newTestSplitter().Split("f.pdf", pageList(3), []models.Entity{
		{Type: "a", PageRefs: []int{0, 1}},
		{Type: "b", PageRefs: []int{1, 2}},
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, []byte("ab"), subs[0].Bytes)
	assert.Equal(t, []byte("bc"), subs[1].Bytes)
}

func TestSplit_OutOfRangePagesAreSkipped(t *testing.T) {
	subs, err := newTestSplitter().Split("f.pdf", pageList(3), []models.Entity{
		{Type: "partial", PageRefs: []int{1, 9, -1, 2}},
		{Type: "gone", PageRefs: []int{3, 4}},
		{Type: "last", PageRefs: []int{0}},
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "partial", subs[0].ClassificationType)
	assert.Equal(t, []byte("bc"), subs[0].Bytes)
	assert.Equal(t, 2, subs[0].PageCount)
	assert.Equal(t, 1, subs[0].StartPage)
	assert.Equal(t, 2, subs[0].EndPage)

	assert.Equal(t, "last", subs[1].ClassificationType)
}

func TestSplit_EmptyEntities(t *testing.T) {
	subs, err := newTestSplitter().Split("f.pdf", pageList(2), nil)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSplit_ScenarioA(t *testing.T) {
	subs, err := newTestSplitter().Split("invoices.pdf", pageList(3), []models.Entity{
		{Type: "invoice", MentionText: "INV-1", PageRefs: []int{0, 1}},
		{Type: "invoice", MentionText: "INV-2", PageRefs: []int{2}},
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, 2, subs[0].PageCount)
	assert.Equal(t, 1, subs[1].PageCount)
	assert.Equal(t, "invoice", subs[0].ClassificationType)
	assert.Equal(t, "invoice", subs[1].ClassificationType)
	assert.NotEqual(t, subs[0].Filename, subs[1].Filename)
}

func TestSplit_ScenarioD(t *testing.T) {
	subs, err := newTestSplitter().Split("f.pdf", pageList(2), []models.Entity{
		{Type: "summary", MentionText: "whole document", PageRefs: []int{}},
	})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSplit_RepeatedNamesAreNumbered(t *testing.T) {
	subs, err := newTestSplitter().Split("dir/f.pdf", pageList(2), []models.Entity{
		{Type: "w2", PageRefs: []int{0}},
		{Type: "w2", PageRefs: []int{0}},
		{Type: "w2", PageRefs: []int{0}},
		{Type: "w2_2", PageRefs: []int{0}},
	})
	require.NoError(t, err)
	require.Len(t, subs, 4)

	assert.Equal(t, "f_pg001-001_w2.pdf", subs[0].Filename)
	assert.Equal(t, "f_pg001-001_w2_2.pdf", subs[1].Filename)
	assert.Equal(t, "f_pg001-001_w2_3.pdf", subs[2].Filename)
	// A type that already looks suffixed does not reuse a taken name
	assert.Equal(t, "f_pg001-001_w2_2_2.pdf", subs[3].Filename)
}

func TestSplit_RandomSuffix(t *testing.T) {
	subs, err := newTestSplitter(WithRandomSuffix()).Split("f.pdf", pageList(1), []models.Entity{
		{Type: "w2", PageRefs: []int{0}},
		{Type: "w2", PageRefs: []int{0}},
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.NotEqual(t, subs[0].Filename, subs[1].Filename)
	assert.True(t, strings.HasPrefix(subs[0].Filename, "f_pg001-001_w2_"))
	assert.True(t, strings.HasSuffix(subs[0].Filename, ".pdf"))
}

type failingDoc struct{ *PageList }

func (failingDoc) Assemble([]int) ([]byte, error) {
	return nil, errors.New("disk full")
}

func TestSplit_AssemblyFailureIsTyped(t *testing.T) {
	_, err := newTestSplitter().Split("f.pdf", failingDoc{pageList(1)}, []models.Entity{
		{Type: "w2", PageRefs: []int{0}},
	})
	require.Error(t, err)

	var splitErr *SplitError
	require.ErrorAs(t, err, &splitErr)
	assert.Equal(t, "w2", splitErr.Classification)
	assert.Equal(t, "Assemble", splitErr.Op)
}

func TestSplit_PDF(t *testing.T) {
	doc, err := OpenPDF(pdftest.Build(t, 3))
	require.NoError(t, err)

	subs, err := newTestSplitter().Split("tax.pdf", doc, []models.Entity{
		{Type: "w2", PageRefs: []int{0, 1}},
		{Type: "1099int", PageRefs: []int{2}},
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, MimeTypePDF, subs[0].MimeType)

	first, err := OpenPDF(subs[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, 2, first.PageCount())

	texts := pdftest.PageTexts(t, subs[1].Bytes)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "(page 3)")
}
