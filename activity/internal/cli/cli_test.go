package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command against in-memory storage.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ACTIVITY_DATABASE_TYPE", "memory")
	t.Setenv("ACTIVITY_EXPORT_DIR", t.TempDir())
	t.Setenv("ACTIVITY_LOGGING_LEVEL", "error")

	cfgFile = ""
	outputFormat = "table"

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	expected := map[string]bool{
		"sync": false, "runs": false, "sweep": false, "export": false,
		"fields": false, "seed": false, "migrate": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := expected[c.Name()]; ok {
			expected[c.Name()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "command %q should be registered", name)
	}
}

func TestFieldsSync_JSON(t *testing.T) {
	out, err := run(t, "fields", "sync", "-o", "json")
	require.NoError(t, err)

	var status map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "created", status["activity"])
	assert.Equal(t, "created", status["creationtime"])
}

func TestFieldsSet(t *testing.T) {
	_, err := run(t, "fields", "set", "activity")
	assert.ErrorContains(t, err, "nothing to change")

	out, err := run(t, "fields", "set", "activity", "--chart", "--display-name", "Activity")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated field activity")
}

func TestSeed(t *testing.T) {
	out, err := run(t, "seed", "--events", "20", "--users", "3", "--days", "2", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 20 events")
}

func TestSync_MissingCredential(t *testing.T) {
	_, err := run(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential")
}

func TestRunsList_Empty(t *testing.T) {
	out, err := run(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sync runs recorded")
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	_, err := run(t, "migrate", "up")
	assert.ErrorContains(t, err, "database.type postgres")
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := run(t, "runs", "list", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}
