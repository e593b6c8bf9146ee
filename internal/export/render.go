package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// resumeContent mirrors the stored content JSON. Every field is optional;
// sections the builder does not know about end up in extras and are rendered
// generically so nothing the user wrote is silently dropped.
type resumeContent struct {
	Basics     basicsSection     `json:"basics"`
	Summary    string            `json:"summary"`
	Experience []experienceEntry `json:"experience"`
	Education  []educationEntry  `json:"education"`
	Skills     []string          `json:"skills"`
	Projects   []projectEntry    `json:"projects"`
}

type basicsSection struct {
	Name     string `json:"name"`
	Headline string `json:"headline"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Website  string `json:"website"`
}

type experienceEntry struct {
	Company    string   `json:"company"`
	Role       string   `json:"role"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Highlights []string `json:"highlights"`
}

type educationEntry struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type projectEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

var knownSections = map[string]bool{
	"basics":     true,
	"summary":    true,
	"experience": true,
	"education":  true,
	"skills":     true,
	"projects":   true,
}

// parseContent decodes the content blob and collects unknown top-level
// sections for generic rendering.
func parseContent(raw json.RawMessage) (resumeContent, []ExtraSection, error) {
	var content resumeContent
	if len(raw) == 0 {
		return content, nil, nil
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return content, nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return content, nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	var extras []ExtraSection
	for name, value := range fields {
		if knownSections[name] {
			continue
		}
		extras = append(extras, ExtraSection{
			Name: sectionTitle(name),
			Body: renderValue(value),
		})
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i].Name < extras[j].Name })
	return content, extras, nil
}

// sectionTitle turns a JSON key like "volunteer_work" into "Volunteer Work".
func sectionTitle(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// renderValue flattens an arbitrary JSON value to readable plain text.
func renderValue(raw json.RawMessage) string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return flatten(value)
}

func flatten(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := flatten(v[k]); s != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", sectionTitle(k), s))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
