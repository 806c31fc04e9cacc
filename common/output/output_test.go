package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func init() {
	color.NoColor = true
}

func newTestPrinter(format string) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &Printer{Out: &out, Err: &errOut, Format: format}, &out, &errOut
}

func TestStatusLines(t *testing.T) {
	p, out, errOut := newTestPrinter(FormatTable)

	p.Success("Created %d events", 5)
	p.Info("window %s", "2024-01-01")
	p.Warn("truncated")
	p.Error("failed: %s", "boom")

	assert.Contains(t, out.String(), "✓ Created 5 events")
	assert.Contains(t, out.String(), "window 2024-01-01")
	assert.Contains(t, out.String(), "⚠ truncated")
	assert.Contains(t, errOut.String(), "✗ failed: boom")
	assert.NotContains(t, out.String(), "boom")
}

func TestValue_JSON(t *testing.T) {
	p, out, _ := newTestPrinter(FormatJSON)
	require.NoError(t, p.Value(map[string]int{"created": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got["created"])
	assert.True(t, p.Structured())
}

func TestValue_YAML(t *testing.T) {
	p, out, _ := newTestPrinter(FormatYAML)
	require.NoError(t, p.Value(map[string]int{"created": 2}))

	var got map[string]int
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got["created"])
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable("ID", "STATUS")
	tbl.AddRow("synctask-1", "success")
	tbl.AddRow("x")
	tbl.Render(&buf)

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[0]), "ID")
	assert.Contains(t, string(lines[1]), "----------")
	assert.Contains(t, string(lines[2]), "synctask-1  success")
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat("table"))
	assert.True(t, ValidFormat("yaml"))
	assert.False(t, ValidFormat("xml"))
}
