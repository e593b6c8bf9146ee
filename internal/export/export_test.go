package export

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseContent(t *testing.T) {
	raw := json.RawMessage(`{
		"basics": {"name": "Ada Lovelace", "email": "ada@example.com"},
		"summary": "Analytical engine programmer.",
		"experience": [{"company": "Babbage & Co", "role": "Engineer", "start": "1842", "highlights": ["Wrote the first program"]}],
		"skills": ["Mathematics", "Notes"],
		"volunteer_work": ["Mentoring"]
	}`)

	content, extras, err := parseContent(raw)
	if err != nil {
		t.Fatalf("parseContent: %v", err)
	}
	if content.Basics.Name != "Ada Lovelace" {
		t.Errorf("name = %q", content.Basics.Name)
	}
	if len(content.Experience) != 1 || content.Experience[0].Company != "Babbage & Co" {
		t.Errorf("experience = %+v", content.Experience)
	}
	if len(extras) != 1 {
		t.Fatalf("extras = %+v", extras)
	}
	if extras[0].Name != "Volunteer Work" {
		t.Errorf("extra name = %q", extras[0].Name)
	}
	if extras[0].Body != "Mentoring" {
		t.Errorf("extra body = %q", extras[0].Body)
	}
}

func TestParseContentEmpty(t *testing.T) {
	content, extras, err := parseContent(nil)
	if err != nil {
		t.Fatalf("parseContent(nil): %v", err)
	}
	if content.Summary != "" || len(extras) != 0 {
		t.Errorf("expected zero content, got %+v / %+v", content, extras)
	}
}

func TestParseContentInvalid(t *testing.T) {
	if _, _, err := parseContent(json.RawMessage(`"not an object"`)); err == nil {
		t.Fatal("expected error for non-object content")
	}
}

func TestRenderResumeHTML(t *testing.T) {
	html, err := RenderResumeHTML(TemplateData{
		Title:    "Staff Engineer Resume",
		Name:     "Ada Lovelace",
		Headline: "Software Engineer",
		Email:    "ada@example.com",
		Summary:  "Ten years of experience.",
		Experience: []experienceEntry{
			{Company: "Babbage & Co", Role: "Engineer", Start: "1842", End: "1852", Highlights: []string{"Shipped the difference engine"}},
		},
		Skills: []string{"Go", "SQL"},
	})
	if err != nil {
		t.Fatalf("RenderResumeHTML: %v", err)
	}

	for _, want := range []string{
		"Ada Lovelace",
		"Software Engineer",
		"Babbage &amp; Co",
		"Shipped the difference engine",
		"Go, SQL",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderResumeHTMLEscapes(t *testing.T) {
	html, err := RenderResumeHTML(TemplateData{
		Title:   "r",
		Summary: "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("RenderResumeHTML: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("summary not escaped")
	}
}

func TestSectionTitle(t *testing.T) {
	cases := map[string]string{
		"volunteer_work": "Volunteer Work",
		"awards":         "Awards",
		"side-projects":  "Side Projects",
	}
	for in, want := range cases {
		if got := sectionTitle(in); got != want {
			t.Errorf("sectionTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"My Resume 2026":     "My-Resume-2026",
		"":                   "resume",
		"///":                "resume",
		"backend_engineer":   "backend_engineer",
		strings.Repeat("a", 80): strings.Repeat("a", 50),
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Errorf("percentEncodeForDataURL = %q", got)
	}
}
