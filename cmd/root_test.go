package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"inspect", "load", "history", "tiles"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "geostream", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotEmpty(t, rootCmd.Version)
}

func TestInspectCommand_Flags(t *testing.T) {
	flag := inspectCmd.Flags().Lookup("format")
	require.NotNil(t, flag, "inspect command should have --format flag")
	assert.Equal(t, "text", flag.DefValue)
}

func TestLoadCommand_Flags(t *testing.T) {
	for _, name := range []string{"mode", "batch-size", "concurrency"} {
		assert.NotNil(t, loadCmd.Flags().Lookup(name), "load command should have --%s flag", name)
	}
}

func TestHistoryCommand_Flags(t *testing.T) {
	flag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "history command should have --limit flag")
	assert.Equal(t, "20", flag.DefValue)
}

func TestTilesCommand_Flags(t *testing.T) {
	for _, name := range []string{"zoom", "out", "user", "from", "count", "exec"} {
		assert.NotNil(t, tilesCmd.Flags().Lookup(name), "tiles command should have --%s flag", name)
	}
	assert.Equal(t, "-1", tilesCmd.Flags().Lookup("zoom").DefValue)
}
