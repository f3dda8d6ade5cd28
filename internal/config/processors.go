package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultProcessorType handles every classification without a dedicated parser.
const DefaultProcessorType = "FORM_PARSER_PROCESSOR"

// ProcessorMap is the single policy table that routes classification labels
// to parser processors and lists the classifier processors to try.
type ProcessorMap struct {
	// Classifiers are tried in order until one returns a label other than "other".
	Classifiers []Processor `yaml:"classifiers"`

	// Parsers maps a processor type (e.g. FORM_W2_PROCESSOR) to its processor
	// id and the classification labels it handles.
	Parsers map[string]Parser `yaml:"parsers"`

	// DefaultParser is used for labels no parser claims.
	DefaultParser string `yaml:"default_parser"`
}

// Processor identifies a deployed processor.
type Processor struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

// Parser is a specialized extraction processor and the labels it accepts.
type Parser struct {
	ID     string   `yaml:"id"`
	Labels []string `yaml:"labels"`
}

// DefaultProcessorMap returns the built-in label table without processor ids.
// Ids are deployment specific and come from the YAML file.
func DefaultProcessorMap() *ProcessorMap {
	years := func(base string, from, to int) []string {
		labels := []string{base}
		for y := from; y <= to; y++ {
			labels = append(labels, fmt.Sprintf("%s_%d", base, y))
		}
		return labels
	}

	return &ProcessorMap{
		DefaultParser: DefaultProcessorType,
		Parsers: map[string]Parser{
			DefaultProcessorType: {Labels: []string{"other"}},
			"UTILITY_PROCESSOR":  {Labels: []string{"utility_statement"}},
			"INVOICE_PROCESSOR":  {Labels: []string{"debit_note", "credit_note", "invoice_statement"}},
			"EXPENSE_PROCESSOR": {Labels: []string{
				"credit_card_slip", "restaurant_statement", "air_travel_statement",
				"hotel_statement", "car_rental_statement", "ground_transportation_statement",
				"receipt_statement",
			}},
			"BANK_STATEMENT_PROCESSOR":                  {Labels: []string{"account_statement_bank"}},
			"FORM_1040SCH_C_PROCESSOR":                  {Labels: years("1040sc", 2018, 2021)},
			"FORM_1040_PROCESSOR":                       {Labels: years("1040", 2018, 2021)},
			"FORM_1099DIV_PROCESSOR":                    {Labels: years("1099div", 2018, 2021)},
			"FORM_1099INT_PROCESSOR":                    {Labels: years("1099int", 2018, 2021)},
			"FORM_1099MISC_PROCESSOR":                   {Labels: years("1099misc", 2018, 2021)},
			"FORM_1099NEC_PROCESSOR":                    {Labels: years("1099nec", 2018, 2021)},
			"FORM_1099R_PROCESSOR":                      {Labels: years("1099r", 2018, 2021)},
			"FORM_W2_PROCESSOR":                         {Labels: years("w2", 2018, 2021)},
			"FORM_W9_PROCESSOR":                         {Labels: years("w9", 2017, 2021)},
			"MORTGAGE_STATEMENT_PROCESSOR":              {Labels: []string{"mortgage_statements"}},
			"PAYSTUB_PROCESSOR":                         {Labels: []string{"payslip"}},
			"RETIREMENT_INVESTMENT_STATEMENT_PROCESSOR": {Labels: []string{"account_statement_investment_and_retirement"}},
			"US_DRIVER_LICENSE_PROCESSOR":               {Labels: []string{"us_driver_license"}},
			"US_PASSPORT_PROCESSOR":                     {Labels: []string{"us_passport"}},
		},
	}
}

// LoadProcessorMap reads a YAML processor map from path and merges it over
// the defaults. An empty path returns the defaults.
func LoadProcessorMap(path string) (*ProcessorMap, error) {
	pm := DefaultProcessorMap()
	if path == "" {
		return pm, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read processor config %s: %w", path, err)
	}

	return pm.Merge(data)
}

// Merge overlays YAML data onto the map. Parsers present in data replace the
// default entry; a parser without labels keeps the default labels.
func (pm *ProcessorMap) Merge(data []byte) (*ProcessorMap, error) {
	var override ProcessorMap
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse processor config: %w", err)
	}

	if len(override.Classifiers) > 0 {
		pm.Classifiers = override.Classifiers
	}
	if override.DefaultParser != "" {
		pm.DefaultParser = override.DefaultParser
	}
	if pm.Parsers == nil {
		pm.Parsers = make(map[string]Parser)
	}
	for processorType, parser := range override.Parsers {
		if len(parser.Labels) == 0 {
			parser.Labels = pm.Parsers[processorType].Labels
		}
		pm.Parsers[processorType] = parser
	}

	if err := pm.Validate(); err != nil {
		return nil, err
	}
	return pm, nil
}

// Validate checks that no label is claimed by two parsers.
func (pm *ProcessorMap) Validate() error {
	owners := make(map[string]string)
	for _, processorType := range pm.ParserTypes() {
		for _, label := range pm.Parsers[processorType].Labels {
			if owner, ok := owners[label]; ok {
				return fmt.Errorf("label %q is mapped to both %s and %s", label, owner, processorType)
			}
			owners[label] = processorType
		}
	}
	return nil
}

// ParserTypes returns parser processor types in sorted order.
func (pm *ProcessorMap) ParserTypes() []string {
	types := make([]string, 0, len(pm.Parsers))
	for t := range pm.Parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// LabelIndex inverts the parser table into label -> processor type.
func (pm *ProcessorMap) LabelIndex() map[string]string {
	index := make(map[string]string)
	for processorType, parser := range pm.Parsers {
		for _, label := range parser.Labels {
			index[label] = processorType
		}
	}
	return index
}
