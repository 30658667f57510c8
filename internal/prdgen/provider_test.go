package prdgen

import (
	"context"
	"strings"
	"testing"
)

func TestTemplateProviderGenerate(t *testing.T) {
	p := NewTemplateProvider()

	res, err := p.Generate(context.Background(), Request{
		DocumentTitle:   "Checkout Redesign",
		DocumentSummary: "Streamline the purchase flow.",
		SourceText:      "Cart abandonment sits at 70%.",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Summary != "Streamline the purchase flow." {
		t.Errorf("summary = %q", res.Summary)
	}
	if len(res.Sections) == 0 {
		t.Fatal("expected sections")
	}
	if res.Sections[0].Heading != "Background" {
		t.Errorf("first section = %q, want Background", res.Sections[0].Heading)
	}
	if res.Sections[0].Body != "Cart abandonment sits at 70%." {
		t.Errorf("background body = %q", res.Sections[0].Body)
	}

	var headings []string
	for _, s := range res.Sections {
		headings = append(headings, s.Heading)
	}
	joined := strings.Join(headings, ",")
	for _, want := range []string{"Problem Statement", "Goals", "Requirements", "Success Metrics"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing section %q in %v", want, headings)
		}
	}
}

func TestTemplateProviderDefaults(t *testing.T) {
	p := NewTemplateProvider()

	res, err := p.Generate(context.Background(), Request{DocumentTitle: "Bare"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(res.Summary, "Bare") {
		t.Errorf("default summary should mention the title, got %q", res.Summary)
	}
	if !strings.Contains(res.Sections[0].Body, "No source material") {
		t.Errorf("background body = %q", res.Sections[0].Body)
	}
}

func TestTemplateProviderRequiresTitle(t *testing.T) {
	p := NewTemplateProvider()
	if _, err := p.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestTemplateProviderTruncatesLongSource(t *testing.T) {
	p := NewTemplateProvider()
	res, err := p.Generate(context.Background(), Request{
		DocumentTitle: "Big",
		SourceText:    strings.Repeat("a", 5000),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Sections[0].Body) > 2100 {
		t.Errorf("background body not truncated: %d bytes", len(res.Sections[0].Body))
	}
}
