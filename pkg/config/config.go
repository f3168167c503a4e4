// Package config loads qipu store configuration.
//
// Each store keeps its configuration in .qipu/config.yaml. Values from the
// file can be overridden with QIPU_ environment variables, which are read
// after the file so that a shell session can change behaviour without
// editing the store.
//
// Example Usage:
//
//	cfg, err := config.Load(fs, ".qipu/config.yaml")
//	if err != nil {
//		return err
//	}
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//	ont := cfg.BuildOntology()
//
// Environment Variables:
//   - QIPU_LOG_LEVEL=debug|info|warn|error
//   - QIPU_LOG_FORMAT=console|json
//   - QIPU_ID_SCHEME=hash|uuid|timestamp
//   - QIPU_MAX_HOPS=3
//   - QIPU_SEMANTIC_INVERSION=true
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
)

// CurrentVersion is the configuration format written by Default.
const CurrentVersion = 1

// ErrInvalidConfig wraps every configuration problem.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the contents of .qipu/config.yaml.
type Config struct {
	Version         int             `yaml:"version" validate:"gte=1"`
	DefaultNoteType string          `yaml:"default_note_type" validate:"required"`
	IDScheme        string          `yaml:"id_scheme" validate:"oneof=hash uuid timestamp"`
	Graph           GraphConfig     `yaml:"graph,omitempty"`
	Ontology        OntologyConfig  `yaml:"ontology,omitempty"`
	Traversal       TraversalConfig `yaml:"traversal"`
	Logging         LoggingConfig   `yaml:"logging"`
}

// GraphConfig holds the legacy per-link-type overrides.
type GraphConfig struct {
	Types map[string]LinkTypeConfig `yaml:"types,omitempty" validate:"dive"`
}

// OntologyConfig selects how custom types combine with the standard ones.
type OntologyConfig struct {
	Mode      string                    `yaml:"mode,omitempty" validate:"omitempty,oneof=default extended replacement"`
	NoteTypes map[string]NoteTypeConfig `yaml:"note_types,omitempty"`
	LinkTypes map[string]LinkTypeConfig `yaml:"link_types,omitempty" validate:"dive"`
}

// NoteTypeConfig describes a custom note type.
type NoteTypeConfig struct {
	Description string `yaml:"description,omitempty"`
}

// LinkTypeConfig describes a custom link type or overrides a standard one.
type LinkTypeConfig struct {
	Inverse     string   `yaml:"inverse,omitempty"`
	Cost        *float64 `yaml:"cost,omitempty" validate:"omitempty,gte=0"`
	Description string   `yaml:"description,omitempty"`
}

// TraversalConfig holds traversal defaults used when a command does not
// set them.
type TraversalConfig struct {
	MaxHops           float64 `yaml:"max_hops" validate:"gte=0"`
	SemanticInversion bool    `yaml:"semantic_inversion"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Default returns the configuration written by `qipu init`.
func Default() *Config {
	return &Config{
		Version:         CurrentVersion,
		DefaultNoteType: ontology.NoteFleeting,
		IDScheme:        "hash",
		Ontology:        OntologyConfig{Mode: string(ontology.ModeDefault)},
		Traversal: TraversalConfig{
			MaxHops:           3,
			SemanticInversion: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Parse decodes YAML on top of the defaults, so omitted keys keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Load reads and parses the file at path. A missing file yields Default.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Save writes the configuration to path.
func (c *Config) Save(fs afero.Fs, path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// ApplyEnv overrides values from QIPU_ environment variables.
func (c *Config) ApplyEnv() {
	c.Logging.Level = strings.ToLower(getEnv("QIPU_LOG_LEVEL", c.Logging.Level))
	c.Logging.Format = strings.ToLower(getEnv("QIPU_LOG_FORMAT", c.Logging.Format))
	c.IDScheme = strings.ToLower(getEnv("QIPU_ID_SCHEME", c.IDScheme))
	c.Traversal.MaxHops = getEnvFloat("QIPU_MAX_HOPS", c.Traversal.MaxHops)
	c.Traversal.SemanticInversion = getEnvBool("QIPU_SEMANTIC_INVERSION", c.Traversal.SemanticInversion)
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules that tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	for name, lt := range c.Ontology.LinkTypes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty link type name", ErrInvalidConfig)
		}
		if lt.Inverse != "" && strings.TrimSpace(lt.Inverse) == "" {
			return fmt.Errorf("%w: link type %q has a blank inverse", ErrInvalidConfig, name)
		}
	}
	for name, lt := range c.Graph.Types {
		if lt.Inverse != "" && strings.TrimSpace(lt.Inverse) == "" {
			return fmt.Errorf("%w: link type %q has a blank inverse", ErrInvalidConfig, name)
		}
	}

	if err := c.BuildOntology().ValidateNoteType(c.DefaultNoteType); err != nil {
		return fmt.Errorf("%w: default_note_type: %v", ErrInvalidConfig, err)
	}
	return nil
}

// BuildOntology resolves the configured type universe. A cost set under
// ontology.link_types wins over one set for the same type under graph.types.
func (c *Config) BuildOntology() *ontology.Ontology {
	mode, err := ontology.ParseMode(c.Ontology.Mode)
	if err != nil {
		mode = ontology.ModeDefault
	}

	def := ontology.Definition{
		Mode:      mode,
		LinkTypes: make(map[string]ontology.LinkType, len(c.Ontology.LinkTypes)),
		Legacy:    make(map[string]ontology.LinkType, len(c.Graph.Types)),
	}
	for name := range c.Ontology.NoteTypes {
		def.NoteTypes = append(def.NoteTypes, name)
	}
	custom := make(map[string]LinkTypeConfig, len(c.Ontology.LinkTypes))
	for name, lt := range c.Ontology.LinkTypes {
		custom[strings.ToLower(name)] = lt
		def.LinkTypes[name] = ontology.LinkType{Inverse: strings.TrimSpace(lt.Inverse), Cost: lt.Cost}
	}
	for name, lt := range c.Graph.Types {
		legacy := ontology.LinkType{Inverse: strings.TrimSpace(lt.Inverse), Cost: lt.Cost}
		if over, ok := custom[strings.ToLower(name)]; ok && mode != ontology.ModeDefault && over.Cost != nil {
			legacy.Cost = over.Cost
		}
		def.Legacy[name] = legacy
	}
	return ontology.New(def)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
