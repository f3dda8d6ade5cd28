package classify_test

import (
	"fmt"

	"doctools/internal/classify"
	"doctools/internal/config"
)

// ExampleRouter_Select shows how classification labels route to parsers.
func ExampleRouter_Select() {
	router := classify.NewRouter(config.DefaultProcessorMap())

	for _, label := range []string{"w2_2020", "credit_card_slip", "unknown"} {
		route := router.Select(label)
		fmt.Println(label, route.ProcessorType, route.BroadClassification())
	}
	// Output:
	// w2_2020 FORM_W2_PROCESSOR FORM_W2
	// credit_card_slip EXPENSE_PROCESSOR EXPENSE
	// unknown FORM_PARSER_PROCESSOR FORM_PARSER
}
