package splitter

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const MimeTypePDF = "application/pdf"

// Paginated is a source artifact addressable by 0-based page index.
type Paginated interface {
	// PageCount returns the number of pages in the artifact.
	PageCount() int

	// Assemble builds a new artifact from the given pages, in the given order.
	// Every index must be within [0, PageCount()).
	Assemble(pages []int) ([]byte, error)

	// MimeType is the content type of assembled artifacts.
	MimeType() string
}

// Open returns a Paginated view of data. Only PDF is supported; the format is
// taken from mimeType, or from the file extension when mimeType is empty.
func Open(filename, mimeType string, data []byte) (Paginated, error) {
	if mimeType == "" && strings.EqualFold(filepath.Ext(filename), ".pdf") {
		mimeType = MimeTypePDF
	}

	switch mimeType {
	case MimeTypePDF:
		return OpenPDF(data)
	default:
		return nil, &SplitError{
			Op:       "Open",
			Filename: filename,
			Err:      fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType),
		}
	}
}

// PDF is a PDF document held in memory.
type PDF struct {
	data  []byte
	pages int
	conf  *model.Configuration
}

// OpenPDF parses and validates data.
func OpenPDF(data []byte) (*PDF, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: pdfcpu read: %v", ErrCorruptDocument, err)
	}
	return &PDF{data: data, pages: ctx.PageCount, conf: conf}, nil
}

func (p *PDF) PageCount() int {
	return p.pages
}

func (p *PDF) MimeType() string {
	return MimeTypePDF
}

// Assemble collects pages into a new PDF. Repeated pages are allowed.
func (p *PDF) Assemble(pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	selection := make([]string, 0, len(pages))
	for _, page := range pages {
		if page < 0 || page >= p.pages {
			return nil, fmt.Errorf("page %d out of range [0,%d)", page, p.pages)
		}
		// pdfcpu numbers pages from 1
		selection = append(selection, strconv.Itoa(page+1))
	}

	var buf bytes.Buffer
	if err := api.Collect(bytes.NewReader(p.data), &buf, selection, p.conf); err != nil {
		return nil, fmt.Errorf("pdfcpu collect: %w", err)
	}
	return buf.Bytes(), nil
}

// PageList is an artifact whose pages are already separate byte slices.
// Assembly concatenates the selected pages.
type PageList struct {
	Pages       [][]byte
	ContentType string
}

// NewPageList creates a PageList of octet-stream pages.
func NewPageList(pages ...[]byte) *PageList {
	return &PageList{Pages: pages, ContentType: "application/octet-stream"}
}

func (l *PageList) PageCount() int {
	return len(l.Pages)
}

func (l *PageList) MimeType() string {
	return l.ContentType
}

func (l *PageList) Assemble(pages []int) ([]byte, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	var buf bytes.Buffer
	for _, page := range pages {
		if page < 0 || page >= len(l.Pages) {
			return nil, fmt.Errorf("page %d out of range [0,%d)", page, len(l.Pages))
		}
		buf.Write(l.Pages[page])
	}
	return buf.Bytes(), nil
}
