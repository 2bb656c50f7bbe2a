package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptorFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDescriptors(t *testing.T) {
	path := writeDescriptorFile(t, `
providers:
  - id: whitepages
    label: Whitepages Pro
    ttl_minutes: 1440
    error_ttl_minutes: 60
    supports_force: true
    default: true
  - id: pdl
    label: People Data Labs
    ttl_minutes: 10080
`)

	descriptors, err := LoadDescriptors(path)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	assert.Equal(t, "whitepages", descriptors[0].ID)
	assert.True(t, descriptors[0].Default)
	assert.True(t, descriptors[0].SupportsForce)
	assert.Equal(t, 1440, descriptors[0].TTLMinutes)

	assert.Equal(t, "pdl", descriptors[1].ID)
	assert.False(t, descriptors[1].Default)
}

func TestLoadDescriptors_DefaultsTTLs(t *testing.T) {
	path := writeDescriptorFile(t, `
providers:
  - id: trace
    label: Trace
`)

	descriptors, err := LoadDescriptors(path)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, 60, descriptors[0].TTLMinutes)
	assert.Equal(t, 15, descriptors[0].ErrorTTLMinutes)
}

func TestLoadDescriptors_MissingID(t *testing.T) {
	path := writeDescriptorFile(t, `
providers:
  - label: No ID Here
`)

	_, err := LoadDescriptors(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func TestLoadDescriptors_DuplicateID(t *testing.T) {
	path := writeDescriptorFile(t, `
providers:
  - id: trace
  - id: trace
`)

	_, err := LoadDescriptors(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestLoadDescriptors_MultipleDefaults(t *testing.T) {
	path := writeDescriptorFile(t, `
providers:
  - id: whitepages
    default: true
  - id: pdl
    default: true
`)

	_, err := LoadDescriptors(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one default")
}

func TestLoadDescriptors_FileMissing(t *testing.T) {
	_, err := LoadDescriptors(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadDescriptors_MalformedYAML(t *testing.T) {
	path := writeDescriptorFile(t, "providers: [whoops")
	_, err := LoadDescriptors(path)
	require.Error(t, err)
}
