package models

import "fmt"

// SubDocument is one artifact cut out of a source document by the splitter.
type SubDocument struct {
	SourceFilename     string  // Name of the original artifact
	ClassificationType string  // Entity type that produced this sub-document
	Filename           string  // Destination name, unique per source and type
	StartPage          int     // Lowest included page, 0-based
	EndPage            int     // Highest included page, 0-based, inclusive
	PageCount          int     // Number of pages actually included
	Confidence         float32 // Confidence of the classifying entity
	MimeType           string
	Bytes              []byte
}

// PageLabel returns the 1-based, zero-padded page range used in file names,
// e.g. "003-005".
func (s SubDocument) PageLabel() string {
	return PageRangeLabel(s.StartPage, s.EndPage)
}

// PageRangeLabel formats a 0-based inclusive range as a 1-based padded label.
func PageRangeLabel(start, end int) string {
	return fmt.Sprintf("%03d-%03d", start+1, end+1)
}
