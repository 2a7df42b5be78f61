package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record adalah state satu workflow analisa, dari upload sketsa sampai template.
type Record struct {
	ID                  string    `json:"id"`
	Components          []string  `json:"componentList"`
	ImageURL            string    `json:"imageUrl,omitempty"`
	ArchitectureDetail  string    `json:"architectureDetail,omitempty"`
	TemplateName        string    `json:"templateName,omitempty"`
	TemplateDescription string    `json:"templateDescription,omitempty"`
	BicepTemplate       string    `json:"bicepTemplate,omitempty"`
	ArmTemplate         string    `json:"armTemplate,omitempty"`
	ArmURL              string    `json:"armUrl,omitempty"`
	ZipURL              string    `json:"zipUrl,omitempty"`
	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Field names one updatable column of a Record.
type Field string

const (
	FieldComponentList       Field = "componentList"
	FieldImageURL            Field = "imageUrl"
	FieldArchitectureDetail  Field = "architectureDetail"
	FieldTemplateName        Field = "templateName"
	FieldTemplateDescription Field = "templateDescription"
	FieldBicepTemplate       Field = "bicepTemplate"
	FieldArmTemplate         Field = "armTemplate"
	FieldArmURL              Field = "armUrl"
	FieldZipURL              Field = "zipUrl"
)

// ChangeSet is a sparse update: only the named fields are written.
type ChangeSet map[Field]any

// Apply merges cs into r. Fields absent from cs are left untouched.
func (r *Record) Apply(cs ChangeSet) error {
	for f, v := range cs {
		if f == FieldComponentList {
			list, ok := v.([]string)
			if !ok {
				return fmt.Errorf("field %s: want []string, got %T", f, v)
			}
			r.Components = append([]string(nil), list...)
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %s: want string, got %T", f, v)
		}
		switch f {
		case FieldImageURL:
			r.ImageURL = s
		case FieldArchitectureDetail:
			r.ArchitectureDetail = s
		case FieldTemplateName:
			r.TemplateName = s
		case FieldTemplateDescription:
			r.TemplateDescription = s
		case FieldBicepTemplate:
			r.BicepTemplate = s
		case FieldArmTemplate:
			r.ArmTemplate = s
		case FieldArmURL:
			r.ArmURL = s
		case FieldZipURL:
			r.ZipURL = s
		default:
			return fmt.Errorf("unknown field %q", f)
		}
	}
	return nil
}

// ETag is the optimistic-concurrency token of the stored version.
func (r *Record) ETag() string { return fmt.Sprintf("%d", r.Version) }

func (r *Record) HasArchitectureDetail() bool {
	return strings.TrimSpace(r.ArchitectureDetail) != ""
}

// HasTemplates reports whether both template texts are cached.
func (r *Record) HasTemplates() bool {
	return strings.TrimSpace(r.BicepTemplate) != "" && strings.TrimSpace(r.ArmTemplate) != ""
}

func (r *Record) JoinedComponents() string {
	return strings.Join(r.Components, ", ")
}

// EncodeComponents serializes the list as a flat JSON array.
func EncodeComponents(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// DecodeComponents is the inverse of EncodeComponents. Empty input is an empty list.
func DecodeComponents(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode component list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// TemplateBundle adalah hasil satu panggilan generate template (tidak disimpan sendiri).
type TemplateBundle struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	BicepTemplate string `json:"bicepTemplate"`
	ArmTemplate   string `json:"armTemplate"`
	ArmURL        string `json:"armUrl,omitempty"`
}

// BundleFromRecord rebuilds a bundle from cached fields, filling a default name and description.
func BundleFromRecord(r *Record) TemplateBundle {
	b := TemplateBundle{
		Name:          r.TemplateName,
		Description:   r.TemplateDescription,
		BicepTemplate: r.BicepTemplate,
		ArmTemplate:   r.ArmTemplate,
		ArmURL:        r.ArmURL,
	}
	if strings.TrimSpace(b.Name) == "" {
		b.Name = DefaultTemplateName(r.Components)
	}
	if strings.TrimSpace(b.Description) == "" {
		b.Description = DefaultTemplateDescription(r.Components)
	}
	return b
}

func DefaultTemplateName(components []string) string {
	return "Architecture with " + strings.Join(components, ", ")
}

func DefaultTemplateDescription(components []string) string {
	return "Deployment template for " + strings.Join(components, ", ")
}

// DisplayFolderName trims the unique suffix off a registry folder for display.
func DisplayFolderName(folder string) string {
	i := strings.LastIndex(folder, "-")
	if i <= 0 {
		return folder
	}
	return folder[:i] + "..."
}
