package flatten_test

import (
	"encoding/json"
	"fmt"

	"doctools/internal/flatten"
	"doctools/pkg/models"
)

// Example shows duplicate field names being suffixed in source order.
func Example() {
	record := flatten.Flatten([]models.Entity{
		{Type: "invoice", MentionText: "INV-1"},
		{Type: "invoice", MentionText: "INV-2"},
		{Type: "due-date", MentionText: "May 1", NormalizedValue: &models.NormalizedValue{Text: "2024-05-01"}},
	})

	out, _ := json.Marshal(record)
	fmt.Println(string(out))
	// Output: {"invoice":"INV-1","invoice_2":"INV-2","due_date":"2024-05-01"}
}
