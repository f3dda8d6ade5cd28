package docai

import (
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/protobuf/encoding/protojson"

	"doctools/pkg/models"
)

// FromProto converts a Document AI document into an ExtractionResult.
// A nil document yields an empty result.
func FromProto(doc *documentaipb.Document) *models.ExtractionResult {
	result := &models.ExtractionResult{}
	if doc == nil {
		return result
	}

	result.URI = doc.GetUri()
	result.MimeType = doc.GetMimeType()
	result.Text = doc.GetText()
	result.Entities = convertEntities(doc.GetEntities())

	for _, p := range doc.GetPages() {
		page := models.Page{
			PageNumber: int(p.GetPageNumber()),
			Width:      p.GetDimension().GetWidth(),
			Height:     p.GetDimension().GetHeight(),
		}
		for _, lang := range p.GetDetectedLanguages() {
			page.DetectedLanguages = append(page.DetectedLanguages, models.DetectedLanguage{
				LanguageCode: lang.GetLanguageCode(),
				Confidence:   lang.GetConfidence(),
			})
		}
		result.Pages = append(result.Pages, page)
	}

	return result
}

func convertEntities(entities []*documentaipb.Document_Entity) []models.Entity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		entity := models.Entity{
			Type:        e.GetType(),
			MentionText: e.GetMentionText(),
			Confidence:  e.GetConfidence(),
			Properties:  convertEntities(e.GetProperties()),
		}
		if nv := e.GetNormalizedValue(); nv != nil && nv.GetText() != "" {
			entity.NormalizedValue = &models.NormalizedValue{Text: nv.GetText()}
		}
		for _, ref := range e.GetPageAnchor().GetPageRefs() {
			entity.PageRefs = append(entity.PageRefs, int(ref.GetPage()))
		}
		out = append(out, entity)
	}
	return out
}

// ParseDocumentJSON decodes a Document JSON file, as written by batch
// processing or exported by the console, into an ExtractionResult.
func ParseDocumentJSON(data []byte) (*models.ExtractionResult, error) {
	const op = "ParseDocumentJSON"

	var doc documentaipb.Document
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, &doc); err != nil {
		return nil, NewExtractionError(op, ErrInvalidDocument, err.Error())
	}
	return FromProto(&doc), nil
}
