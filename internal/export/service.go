package export

import (
	"context"
	"fmt"
)

// Service provides document export functionality
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export renders doc to the requested format.
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	html, err := RenderDocumentHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatPDF:
		return exportPDF(ctx, html, doc.Title)
	case FormatDOCX:
		return exportDOCX(html, doc.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
