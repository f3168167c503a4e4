package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, "fleeting", cfg.DefaultNoteType)
	assert.Equal(t, "hash", cfg.IDScheme)
	assert.Equal(t, 3.0, cfg.Traversal.MaxHops)
	assert.True(t, cfg.Traversal.SemanticInversion)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("id_scheme: uuid\ntraversal:\n  max_hops: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, "uuid", cfg.IDScheme)
	assert.Equal(t, 5.0, cfg.Traversal.MaxHops)
	assert.True(t, cfg.Traversal.SemanticInversion)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("version: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadAndSave(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg, err := Load(fs, "/s/.qipu/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg, "missing file yields defaults")

	cfg.IDScheme = "timestamp"
	cfg.Ontology.LinkTypes = map[string]LinkTypeConfig{
		"inspired-by": {Inverse: "inspired", Cost: ptr(0.8)},
	}
	require.NoError(t, fs.MkdirAll("/s/.qipu", 0o755))
	require.NoError(t, cfg.Save(fs, "/s/.qipu/config.yaml"))

	loaded, err := Load(fs, "/s/.qipu/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("QIPU_LOG_LEVEL", "DEBUG")
	t.Setenv("QIPU_LOG_FORMAT", "json")
	t.Setenv("QIPU_ID_SCHEME", "uuid")
	t.Setenv("QIPU_MAX_HOPS", "2.5")
	t.Setenv("QIPU_SEMANTIC_INVERSION", "off")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "uuid", cfg.IDScheme)
	assert.Equal(t, 2.5, cfg.Traversal.MaxHops)
	assert.False(t, cfg.Traversal.SemanticInversion)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvIgnoresUnparsable(t *testing.T) {
	t.Setenv("QIPU_MAX_HOPS", "lots")
	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, 3.0, cfg.Traversal.MaxHops)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad id scheme", func(c *Config) { c.IDScheme = "sequential" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad ontology mode", func(c *Config) { c.Ontology.Mode = "merge" }},
		{"negative hops", func(c *Config) { c.Traversal.MaxHops = -1 }},
		{"negative cost", func(c *Config) {
			c.Graph.Types = map[string]LinkTypeConfig{"part-of": {Cost: ptr(-0.5)}}
		}},
		{"blank inverse", func(c *Config) {
			c.Ontology.Mode = "extended"
			c.Ontology.LinkTypes = map[string]LinkTypeConfig{"cites": {Inverse: "  "}}
		}},
		{"unknown default type", func(c *Config) { c.DefaultNoteType = "journal" }},
		{"replacement without default type", func(c *Config) {
			c.Ontology.Mode = "replacement"
			c.Ontology.NoteTypes = map[string]NoteTypeConfig{"idea": {}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("replacement with default type", func(t *testing.T) {
		cfg := Default()
		cfg.Ontology.Mode = "replacement"
		cfg.DefaultNoteType = "idea"
		cfg.Ontology.NoteTypes = map[string]NoteTypeConfig{"idea": {}}
		assert.NoError(t, cfg.Validate())
	})
}

func TestBuildOntology(t *testing.T) {
	cfg := Default()
	cfg.Ontology.Mode = "extended"
	cfg.Ontology.NoteTypes = map[string]NoteTypeConfig{"idea": {}}
	cfg.Ontology.LinkTypes = map[string]LinkTypeConfig{
		"inspired-by": {Inverse: "inspired", Cost: ptr(0.8)},
		"part-of":     {Cost: ptr(2.0)},
	}
	cfg.Graph.Types = map[string]LinkTypeConfig{
		"part-of": {Cost: ptr(3.0)},
		"follows": {Cost: ptr(0.25)},
	}

	ont := cfg.BuildOntology()
	assert.Equal(t, ontology.ModeExtended, ont.Mode())
	assert.True(t, ont.IsValidNoteType("idea"))
	assert.True(t, ont.IsValidNoteType("permanent"))
	assert.Equal(t, "inspired", ont.Inverse("inspired-by"))
	assert.Equal(t, 0.8, ont.LinkCost("inspired-by"))
	assert.Equal(t, 2.0, ont.LinkCost("part-of"), "ontology cost beats legacy cost")
	assert.Equal(t, 0.25, ont.LinkCost("follows"), "legacy cost beats standard cost")
	assert.Equal(t, 1.0, ont.LinkCost("supports"))
}

func TestBuildOntologyDefaultModeIgnoresCustomTypes(t *testing.T) {
	cfg := Default()
	cfg.Ontology.LinkTypes = map[string]LinkTypeConfig{"cites": {Inverse: "cited-by"}}
	ont := cfg.BuildOntology()
	assert.False(t, ont.IsValidLinkType("cites"))
}

func ptr(f float64) *float64 { return &f }
