package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/config"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("chatstream-relay", flag.ContinueOnError)
}

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := parseArgs(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestParseArgsFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9999"
responder: ollama
ollama_model: mistral:latest
`), 0644))

	cfg, err := parseArgs(newFlagSet(), []string{
		"-config", path,
		"-addr", ":7777",
		"-responder", "echo",
	})
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, config.ResponderEcho, cfg.Responder)
	// file keys without a competing flag still apply
	assert.Equal(t, "mistral:latest", cfg.OllamaModel)
}

func TestParseArgsMissingConfigFile(t *testing.T) {
	_, err := parseArgs(newFlagSet(), []string{"-config", filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}
