// Package prdgen produces PRD content from a source document. The actual
// model call sits behind Provider so the pipeline can be swapped per
// workspace configuration.
package prdgen

import (
	"context"
	"fmt"
	"strings"
)

// Request carries everything a provider needs to draft a PRD.
type Request struct {
	Provider string
	Model    string
	APIKey   string

	DocumentTitle   string
	DocumentSummary string
	SourceText      string
}

// Section is one heading/body block of generated PRD content.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Result is the generated PRD.
type Result struct {
	Summary  string
	Sections []Section
}

// Provider generates PRD content for a document.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// TemplateProvider drafts a skeleton PRD from the document metadata
// without calling an external model. It is the default when no AI
// provider is configured for a workspace.
type TemplateProvider struct{}

func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

func (p *TemplateProvider) Generate(_ context.Context, req Request) (*Result, error) {
	title := strings.TrimSpace(req.DocumentTitle)
	if title == "" {
		return nil, fmt.Errorf("document title is required")
	}

	summary := strings.TrimSpace(req.DocumentSummary)
	if summary == "" {
		summary = fmt.Sprintf("Product requirements for %s.", title)
	}

	background := strings.TrimSpace(req.SourceText)
	if background == "" {
		background = "No source material was attached. Capture the motivating problem here."
	} else if len(background) > 2000 {
		background = background[:2000] + "…"
	}

	return &Result{
		Summary: summary,
		Sections: []Section{
			{Heading: "Background", Body: background},
			{Heading: "Problem Statement", Body: fmt.Sprintf("Describe the user problem %s addresses and why it matters now.", title)},
			{Heading: "Goals", Body: "List the measurable outcomes this work must achieve."},
			{Heading: "Non-Goals", Body: "Call out adjacent work that is explicitly out of scope."},
			{Heading: "Requirements", Body: "Enumerate the functional requirements, ordered by priority."},
			{Heading: "Success Metrics", Body: "Define how success will be measured after launch."},
			{Heading: "Open Questions", Body: "Track unresolved decisions and their owners."},
		},
	}, nil
}
