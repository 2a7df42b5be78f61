package prompt

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
)

// ErrNoBundle is returned when a completion holds no usable template object.
var ErrNoBundle = errors.New("completion holds no template bundle")

const templateSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["name", "description", "biceptemplate", "armtemplate"],
    "properties": {
      "name": {"type": "string"},
      "description": {"type": "string"},
      "biceptemplate": {"type": "string", "minLength": 1},
      "armtemplate": {"type": ["string", "object"]}
    }
  }
}`

var templateLoader = gojsonschema.NewStringLoader(templateSchema)

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseComponents turns "VM, sql, storage." into ["VM" "sql" "storage"].
func ParseComponents(text string) []string {
	text = StripFences(text)
	out := []string{}
	for _, p := range strings.Split(text, ",") {
		p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "."))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalize decodes text into a list of objects with lower-cased keys.
// A single object is accepted as a one element list.
func normalize(text string) ([]map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(StripFences(text)), &v); err != nil {
		return nil, false
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	default:
		return nil, false
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, false
		}
		low := make(map[string]any, len(obj))
		for k, val := range obj {
			low[strings.ToLower(k)] = val
		}
		out = append(out, low)
	}
	return out, true
}

// ValidTemplateResponse is the validity predicate for template completions.
func ValidTemplateResponse(text string) bool {
	items, ok := normalize(text)
	if !ok {
		return false
	}
	res, err := gojsonschema.Validate(templateLoader, gojsonschema.NewGoLoader(items))
	if err != nil {
		return false
	}
	return res.Valid()
}

// ParseTemplateBundle picks the first object carrying both templates.
func ParseTemplateBundle(text string) (analysis.TemplateBundle, error) {
	items, ok := normalize(text)
	if !ok {
		return analysis.TemplateBundle{}, ErrNoBundle
	}
	for _, it := range items {
		b := analysis.TemplateBundle{
			Name:          asText(it["name"]),
			Description:   asText(it["description"]),
			BicepTemplate: asText(it["biceptemplate"]),
			ArmTemplate:   asText(it["armtemplate"]),
		}
		if strings.TrimSpace(b.BicepTemplate) != "" && strings.TrimSpace(b.ArmTemplate) != "" {
			return b, nil
		}
	}
	return analysis.TemplateBundle{}, ErrNoBundle
}

// asText keeps strings as-is and re-encodes nested JSON (ARM sometimes comes back as an object).
func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return ""
		}
		return string(b)
	}
}
