package flatten

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctools/pkg/models"
)

func TestFlatten_UniqueTypes(t *testing.T) {
	entities := []models.Entity{
		{Type: "invoice_id", MentionText: "INV-7"},
		{Type: "supplier-name", MentionText: "ACME"},
		{Type: "total_amount", MentionText: "12,00", NormalizedValue: &models.NormalizedValue{Text: "12.00"}},
	}

	record := Flatten(entities)

	require.Equal(t, len(entities), record.Len())
	assert.Equal(t, []string{"invoice_id", "supplier_name", "total_amount"}, record.Keys())
	for i, key := range record.Keys() {
		assert.NotContains(t, key, "-")
		assert.NotContains(t, key, "/")
		v, _ := record.Get(key)
		assert.Equal(t, entities[i].Value(), v)
	}
}

func TestFlatten_DuplicateSuffixes(t *testing.T) {
	for k := 1; k <= 5; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			var entities []models.Entity
			want := []string{"item"}
			for i := 1; i <= k; i++ {
				entities = append(entities, models.Entity{Type: "item", MentionText: fmt.Sprintf("v%d", i)})
				if i > 1 {
					want = append(want, fmt.Sprintf("item_%d", i))
				}
			}

			record := Flatten(entities)
			assert.Equal(t, want, record.Keys())
			for i, key := range want {
				v, _ := record.Get(key)
				assert.Equal(t, fmt.Sprintf("v%d", i+1), v)
			}
		})
	}
}

func TestFlatten_PropertiesFollowParent(t *testing.T) {
	entities := []models.Entity{
		{
			Type:        "line_item",
			MentionText: "Widget 2 4.00",
			Properties: []models.Entity{
				{Type: "line_item/description", MentionText: "Widget"},
				{Type: "line_item/amount", MentionText: "4.00"},
			},
		},
		{
			Type:        "line_item",
			MentionText: "Gadget 1 9.00",
			Properties: []models.Entity{
				{Type: "line_item/description", MentionText: "Gadget"},
			},
		},
		{Type: "currency", MentionText: "EUR"},
	}

	record := Flatten(entities)

	assert.Equal(t, []string{
		"line_item",
		"line_item_description",
		"line_item_amount",
		"line_item_2",
		"line_item_description_2",
		"currency",
	}, record.Keys())

	v, _ := record.Get("line_item_description_2")
	assert.Equal(t, "Gadget", v)
}

func TestFlatten_DeeperNestingIsKeptOpaque(t *testing.T) {
	deep := []models.Entity{{Type: "unit", MentionText: "kg"}}
	entities := []models.Entity{
		{
			Type: "line_item",
			Properties: []models.Entity{
				{Type: "line_item/quantity", MentionText: "3", Properties: deep},
			},
		},
	}

	record := Flatten(entities)

	assert.Equal(t, []string{"line_item", "line_item_quantity"}, record.Keys())
	assert.False(t, record.Has("unit"))
	assert.Equal(t, deep, record.Nested["line_item_quantity"])
}

func TestFlatten_ChildrenAreWrittenOut(t *testing.T) {
	entities := []models.Entity{
		{
			Type:        "line_item",
			MentionText: "li",
			Properties: []models.Entity{
				{
					Type:        "quantity",
					MentionText: "2",
					Properties: []models.Entity{
						{Type: "unit", MentionText: "pcs", Properties: []models.Entity{{Type: "code", MentionText: "C62"}}},
					},
				},
			},
		},
	}

	record := Flatten(entities)

	want := []models.Child{
		{Parent: "quantity", Type: "unit", Value: "pcs"},
		{Parent: "unit", Type: "code", Value: "C62"},
	}
	assert.Equal(t, want, record.Children())

	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"line_item": "li",
		"quantity": "2",
		"children": [
			{"parent": "quantity", "type": "unit", "value": "pcs"},
			{"parent": "unit", "type": "code", "value": "C62"}
		]
	}`, string(data))

	doc := record.Document()
	assert.Equal(t, "li", doc["line_item"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"parent": "quantity", "type": "unit", "value": "pcs"},
		map[string]interface{}{"parent": "unit", "type": "code", "value": "C62"},
	}, doc[models.FieldChildren])
}

func TestFlatten_NoChildrenKeyWhenFlat(t *testing.T) {
	record := Flatten([]models.Entity{{Type: "w2", MentionText: "2020"}})

	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{"w2":"2020"}`, string(data))
	assert.NotContains(t, record.Document(), models.FieldChildren)
}

func TestFlatten_LiteralSuffixDoesNotCollide(t *testing.T) {
	record := Flatten([]models.Entity{
		{Type: "x", MentionText: "a"},
		{Type: "x_2", MentionText: "b"},
		{Type: "x", MentionText: "c"},
	})

	assert.Equal(t, []string{"x", "x_2", "x_3"}, record.Keys())
	assert.Equal(t, map[string]string{"x": "a", "x_2": "b", "x_3": "c"}, record.Map())
}

func TestFlatten_ChildrenKeyIsReserved(t *testing.T) {
	record := Flatten([]models.Entity{
		{Type: "children", MentionText: "2"},
		{Type: "children", MentionText: "3"},
	})

	assert.Equal(t, []string{"children_2", "children_3"}, record.Keys())
}

func TestFlatten_EmptyValuesAndTypes(t *testing.T) {
	record := Flatten([]models.Entity{
		{Type: "signature"},
		{Type: "", MentionText: "orphan"},
	})

	v, ok := record.Get("signature")
	require.True(t, ok)
	assert.Equal(t, "", v)

	v, ok = record.Get("")
	require.True(t, ok)
	assert.Equal(t, "orphan", v)
}

func TestFlatten_NilInput(t *testing.T) {
	record := Flatten(nil)
	require.NotNil(t, record)
	assert.Equal(t, 0, record.Len())
}

func TestFlatten_Idempotent(t *testing.T) {
	entities := []models.Entity{
		{Type: "a", MentionText: "1"},
		{Type: "a", MentionText: "2"},
		{Type: "b/c", MentionText: "3"},
	}

	first := Flatten(entities)
	second := Flatten(entities)

	assert.Equal(t, first.Keys(), second.Keys())
	assert.Equal(t, first.Map(), second.Map())
}

func TestFlatten_ScenarioA(t *testing.T) {
	record := Flatten([]models.Entity{
		{Type: "invoice", MentionText: "INV-1", PageRefs: []int{0, 1}},
		{Type: "invoice", MentionText: "INV-2", PageRefs: []int{2}},
	})

	assert.Equal(t, map[string]string{"invoice": "INV-1", "invoice_2": "INV-2"}, record.Map())
}

func TestFlatten_ScenarioB(t *testing.T) {
	record := Flatten([]models.Entity{
		{Type: "w2", MentionText: "raw-2020-text", NormalizedValue: &models.NormalizedValue{Text: "2020"}},
	})

	assert.Equal(t, map[string]string{"w2": "2020"}, record.Map())
}

func TestFlatten_ScenarioC(t *testing.T) {
	record := Flatten([]models.Entity{{Type: "misc-field/extra", MentionText: "x"}})

	assert.Equal(t, []string{"misc_field_extra"}, record.Keys())
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "form_parser/v2", SanitizeIdentifier("form-parser/v2"))
	assert.Equal(t, "form_parser_v2", FieldName("form-parser/v2"))
}

func TestFilterByConfidence(t *testing.T) {
	entities := []models.Entity{
		{Type: "a", Confidence: 0.9, Properties: []models.Entity{
			{Type: "a/x", Confidence: 0.2},
			{Type: "a/y", Confidence: 0.95},
		}},
		{Type: "b", Confidence: 0.4},
	}

	filtered := FilterByConfidence(entities, 0.5)

	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].Type)
	require.Len(t, filtered[0].Properties, 1)
	assert.Equal(t, "a/y", filtered[0].Properties[0].Type)

	// The input is not modified
	assert.Len(t, entities[0].Properties, 2)

	assert.Equal(t, entities, FilterByConfidence(entities, 0))
}
