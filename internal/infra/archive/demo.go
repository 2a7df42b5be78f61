package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/xeipuuv/gojsonschema"
)

// Entry names inside the demo package.
const (
	ArmEntry      = "azuredeploy.json"
	BicepEntry    = "main.bicep"
	MetadataEntry = "metadata.json"
)

// DemoMetadata is the fixed-key document shipped with every demo package.
type DemoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Preview     string   `json:"preview"`
	Website     string   `json:"website"`
	Author      string   `json:"author"`
	Source      string   `json:"source"`
	Tags        []string `json:"tags"`
	DemoGuide   string   `json:"demoguide"`
	Cost        string   `json:"cost"`
	DeployTime  string   `json:"deploytime"`
	Prereqs     string   `json:"prereqs"`
}

const metadataSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["title", "description", "preview", "website", "author", "source", "tags", "demoguide", "cost", "deploytime", "prereqs"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "preview": {"type": "string"},
    "website": {"type": "string"},
    "author": {"type": "string"},
    "source": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "demoguide": {"type": "string"},
    "cost": {"type": "string"},
    "deploytime": {"type": "string"},
    "prereqs": {"type": "string"}
  }
}`

var metadataLoader = gojsonschema.NewStringLoader(metadataSchema)

// Encode validates m against the metadata schema and returns indented JSON.
func (m DemoMetadata) Encode() ([]byte, error) {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	res, err := gojsonschema.Validate(metadataLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid demo metadata: %s", strings.Join(msgs, "; "))
	}
	return raw, nil
}

// BuildDemoZip packs the ARM template, the Bicep template and the metadata in memory.
func BuildDemoZip(meta DemoMetadata, arm, bicep string) ([]byte, error) {
	metaJSON, err := meta.Encode()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := []struct {
		name string
		data []byte
	}{
		{ArmEntry, []byte(arm)},
		{BicepEntry, []byte(bicep)},
		{MetadataEntry, metaJSON},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
