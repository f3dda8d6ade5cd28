package docai

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageAnchor(pages ...int64) *documentaipb.Document_PageAnchor {
	anchor := &documentaipb.Document_PageAnchor{}
	for _, p := range pages {
		anchor.PageRefs = append(anchor.PageRefs, &documentaipb.Document_PageAnchor_PageRef{Page: p})
	}
	return anchor
}

func TestFromProto(t *testing.T) {
	doc := &documentaipb.Document{
		MimeType: "application/pdf",
		Text:     "ACME 2024-01-05",
		Entities: []*documentaipb.Document_Entity{
			{
				Type:        "invoice_date",
				MentionText: "Jan 5, 2024",
				Confidence:  0.9,
				NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{
					Text: "2024-01-05",
				},
				PageAnchor: pageAnchor(0),
			},
			{
				Type:        "line_item",
				MentionText: "Widget 3",
				PageAnchor:  pageAnchor(1, 2),
				Properties: []*documentaipb.Document_Entity{
					{Type: "line_item/description", MentionText: "Widget"},
				},
			},
		},
		Pages: []*documentaipb.Document_Page{
			{
				PageNumber: 1,
				Dimension:  &documentaipb.Document_Page_Dimension{Width: 612, Height: 792},
				DetectedLanguages: []*documentaipb.Document_Page_DetectedLanguage{
					{LanguageCode: "en", Confidence: 0.98},
				},
			},
		},
	}

	result := FromProto(doc)

	assert.Equal(t, "application/pdf", result.MimeType)
	assert.Equal(t, "ACME 2024-01-05", result.Text)
	require.Len(t, result.Entities, 2)

	date := result.Entities[0]
	assert.Equal(t, "2024-01-05", date.Value())
	assert.Equal(t, []int{0}, date.PageRefs)
	assert.InDelta(t, 0.9, date.Confidence, 1e-6)

	item := result.Entities[1]
	assert.Nil(t, item.NormalizedValue)
	assert.Equal(t, []int{1, 2}, item.PageRefs)
	require.Len(t, item.Properties, 1)
	assert.Equal(t, "Widget", item.Properties[0].Value())
	assert.Empty(t, item.Properties[0].PageRefs)

	require.Len(t, result.Pages, 1)
	assert.Equal(t, 1, result.Pages[0].PageNumber)
	assert.Equal(t, "en", result.Pages[0].DetectedLanguages[0].LanguageCode)
}

func TestFromProto_Nil(t *testing.T) {
	result := FromProto(nil)
	require.NotNil(t, result)
	assert.Empty(t, result.Entities)
}

func TestParseDocumentJSON(t *testing.T) {
	data := []byte(`{
		"mimeType": "application/pdf",
		"text": "W-2",
		"entities": [
			{"type": "w2_2020", "mentionText": "", "confidence": 0.97,
			 "pageAnchor": {"pageRefs": [{"page": "0"}, {"page": "1"}]}},
			{"type": "1099int", "confidence": 0.8,
			 "pageAnchor": {"pageRefs": [{}]}}
		],
		"someFutureField": true
	}`)

	result, err := ParseDocumentJSON(data)
	require.NoError(t, err)
	require.Len(t, result.Entities, 2)
	assert.Equal(t, []int{0, 1}, result.Entities[0].PageRefs)
	// An omitted page number is page 0
	assert.Equal(t, []int{0}, result.Entities[1].PageRefs)
}

func TestParseDocumentJSON_Invalid(t *testing.T) {
	_, err := ParseDocumentJSON([]byte(`{"entities": "nope"`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
