package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("src-endpoint", "", "")
	flags.String("src-token", "", "")
	flags.String("dst-endpoint", "", "")
	flags.String("dst-token", "", "")
	flags.String("entity-types", "", "")
	flags.Int("batch-size", 100, "")
	flags.Int("concurrency", 4, "")
	flags.Bool("resume", false, "")
	flags.String("log-level", "info", "")
	return flags
}

func TestLoadFromFileWithFlagOverrides(t *testing.T) {
	t.Parallel()

	yaml := `
source:
  endpoint: https://tracker.example.com
  api_token: src-secret
target:
  endpoint: https://pm.example.com
  api_token: dst-secret
migration:
  entity_types: [users, issues]
  batch_size: 50
log_level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	flags := newFlagSet()
	require.NoError(t, flags.Parse([]string{"--entity-types=issues", "--concurrency=8"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "https://tracker.example.com", cfg.Source.Endpoint)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.Migration.BatchSize)
	// Flags win over the file
	assert.Equal(t, []string{"issues"}, cfg.Migration.EntityTypes)
	assert.Equal(t, 8, cfg.Migration.Concurrency)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	flags := newFlagSet()
	require.NoError(t, flags.Parse([]string{
		"--src-endpoint=https://a.example.com",
		"--dst-endpoint=https://b.example.com",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, []string{"users", "projects", "issues"}, cfg.Migration.EntityTypes)
	assert.Equal(t, 100, cfg.Migration.BatchSize)
	assert.Equal(t, "./state/checkpoints", cfg.Migration.StateDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing source", []string{"--dst-endpoint=https://b.example.com"}, "source endpoint"},
		{"missing target", []string{"--src-endpoint=https://a.example.com"}, "target endpoint"},
		{
			"bad batch size",
			[]string{"--src-endpoint=https://a.example.com", "--dst-endpoint=https://b.example.com", "--batch-size=0"},
			"batch size",
		},
		{
			"no entity types",
			[]string{"--src-endpoint=https://a.example.com", "--dst-endpoint=https://b.example.com", "--entity-types= "},
			"entity type",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flags := newFlagSet()
			require.NoError(t, flags.Parse(tt.args))

			_, err := Load("", flags)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
