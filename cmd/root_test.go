package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"analyze", "compare", "runs", "data", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "safewalk", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestDataCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range dataCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"sync", "status", "migrate", "collect"} {
		assert.True(t, names[name], "expected data subcommand %q not found", name)
	}
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"source", "file", "encoding", "name", "sido", "bounds", "method", "locale", "json", "csv", "no-save"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(name), "analyze should have --%s", name)
	}
	assert.NotNil(t, compareCmd.Flags().Lookup("sido"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
