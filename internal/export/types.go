// Package export renders PRD content to downloadable PDF and DOCX files.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat validates a requested format string.
func ParseFormat(raw string) (Format, bool) {
	switch Format(raw) {
	case FormatPDF, FormatDOCX:
		return Format(raw), true
	default:
		return "", false
	}
}

// Section is one heading/body block of the exported document.
type Section struct {
	Heading string
	Body    string
}

// Document is the assembled content handed to the exporter.
type Document struct {
	Title         string
	Summary       string
	Sections      []Section
	Author        string
	WorkspaceName string
	UpdatedAt     time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
