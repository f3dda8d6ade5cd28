// Package flatten reduces a nested entity tree into a flat record of field
// name to value.
package flatten

import (
	"strconv"
	"strings"

	"doctools/pkg/models"
)

var (
	fieldReplacer      = strings.NewReplacer("-", "_", "/", "_")
	identifierReplacer = strings.NewReplacer("-", "_")
)

// FieldName converts an entity type into a record key.
// "line_item/amount" becomes "line_item_amount".
func FieldName(entityType string) string {
	return fieldReplacer.Replace(entityType)
}

// SanitizeIdentifier makes a name usable as a warehouse identifier such as a
// table name. Only '-' is replaced.
func SanitizeIdentifier(name string) string {
	return identifierReplacer.Replace(name)
}

// Flatten walks entities in order, visiting each entity's properties right
// after the entity itself, and returns one record with a key per visited
// entity. The first occurrence of a field name gets the bare key and the
// n-th occurrence gets key_n, starting at key_2. A key already claimed by a
// literal type such as "x_2" moves the occurrence on to the next free suffix,
// so every entity keeps its own key.
//
// Properties of properties are not flattened. They are kept on the record
// under Nested, keyed by the owning property's field name, and written out
// under models.FieldChildren.
func Flatten(entities []models.Entity) *models.Record {
	record := models.NewRecord()
	seen := make(map[string]int)

	taken := func(key string) bool {
		return key == models.FieldChildren || record.Has(key)
	}

	claim := func(e models.Entity) string {
		base := FieldName(e.Type)
		seen[base]++
		n := seen[base]
		key := base
		if n > 1 {
			key = base + "_" + strconv.Itoa(n)
		}
		for taken(key) {
			n++
			key = base + "_" + strconv.Itoa(n)
		}
		seen[base] = n
		record.Set(key, e.Value())
		return key
	}

	for _, entity := range entities {
		claim(entity)
		for _, prop := range entity.Properties {
			key := claim(prop)
			record.AddNested(key, prop.Properties)
		}
	}

	return record
}

// FilterByConfidence returns the entities at or above min, keeping order.
// Properties are filtered with the same threshold.
func FilterByConfidence(entities []models.Entity, min float32) []models.Entity {
	if min <= 0 {
		return entities
	}

	out := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Confidence < min {
			continue
		}
		if len(e.Properties) > 0 {
			e.Properties = FilterByConfidence(e.Properties, min)
		}
		out = append(out, e)
	}
	return out
}
