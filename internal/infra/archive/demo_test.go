package archive

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMeta() DemoMetadata {
	return DemoMetadata{
		Title:       "Web tier",
		Description: "VM plus storage",
		Preview:     "https://blob/img.png",
		Author:      "Scribble to Azure",
		Tags:        []string{"VM", "storage"},
		Cost:        "0",
		DeployTime:  "10",
	}
}

func TestBuildDemoZipHasThreeEntries(t *testing.T) {
	data, err := BuildDemoZip(sampleMeta(), `{"resources":[]}`, "resource x")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(b)
	}
	require.Len(t, files, 3)
	assert.Equal(t, `{"resources":[]}`, files[ArmEntry])
	assert.Equal(t, "resource x", files[BicepEntry])

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(files[MetadataEntry]), &meta))
	for _, k := range []string{"title", "description", "preview", "website", "author", "source", "tags", "demoguide", "cost", "deploytime", "prereqs"} {
		assert.Contains(t, meta, k)
	}
	assert.Len(t, meta, 11)
	assert.Equal(t, []any{"VM", "storage"}, meta["tags"])
}

func TestEncodeRejectsMissingTitle(t *testing.T) {
	m := sampleMeta()
	m.Title = ""
	_, err := m.Encode()
	assert.ErrorContains(t, err, "invalid demo metadata")
}

func TestEncodeNilTagsBecomesEmptyArray(t *testing.T) {
	m := sampleMeta()
	m.Tags = nil
	raw, err := m.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tags": []`)
}
