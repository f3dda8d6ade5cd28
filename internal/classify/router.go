package classify

import (
	"strings"

	"doctools/internal/config"
)

// Route is the parser chosen for a classification label.
type Route struct {
	Label         string
	ProcessorType string // e.g. FORM_W2_PROCESSOR
	ProcessorID   string // empty when the map has no deployed id for the type
}

// BroadClassification is the processor type without its _PROCESSOR suffix,
// e.g. "FORM_W2". It groups labels that share a parser.
func (r Route) BroadClassification() string {
	return BroadClassification(r.ProcessorType)
}

// BroadClassification strips the _PROCESSOR suffix from a processor type.
func BroadClassification(processorType string) string {
	return strings.TrimSuffix(processorType, "_PROCESSOR")
}

// Router maps classification labels to parser processors.
type Router struct {
	processors *config.ProcessorMap
	index      map[string]string
}

// NewRouter builds a Router from a processor map.
func NewRouter(processors *config.ProcessorMap) *Router {
	if processors == nil {
		processors = config.DefaultProcessorMap()
	}
	return &Router{
		processors: processors,
		index:      processors.LabelIndex(),
	}
}

// Select returns the parser for label, falling back to the default parser for
// labels no parser claims.
func (r *Router) Select(label string) Route {
	processorType, ok := r.index[label]
	if !ok {
		processorType = r.processors.DefaultParser
	}
	if processorType == "" {
		processorType = config.DefaultProcessorType
	}

	return Route{
		Label:         label,
		ProcessorType: processorType,
		ProcessorID:   r.processors.Parsers[processorType].ID,
	}
}

// Classifiers returns the configured classifier processors in try order.
func (r *Router) Classifiers() []config.Processor {
	return r.processors.Classifiers
}
