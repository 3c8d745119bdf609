package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project gateway configuration file.
const ConfigFileName = ".gatekit.yml"

// Config is the root of the gateway configuration.
type Config struct {
	Version  string                  `yaml:"version"`
	Database DatabaseConfig          `yaml:"database"`
	Entities map[string]EntityConfig `yaml:"entities"`
}

// DatabaseConfig holds connection settings.
type DatabaseConfig struct {
	ConnectionString  string `yaml:"connection_string"`
	MaxConnections    int32  `yaml:"max_connections"`
	MinConnections    int32  `yaml:"min_connections"`
	ConnectionTimeout int    `yaml:"connection_timeout"`
}

// EntityConfig declares one exposed entity.
type EntityConfig struct {
	// Schema is the path to the entity's JSON schema document, relative to
	// the config file.
	Schema string `yaml:"schema"`

	// Relations lists the declared relation field names.
	Relations []string `yaml:"relations"`

	// RelationTargets maps a relation field to "Entity:cardinality",
	// e.g. "Post:many". Omitted relations carry no metadata.
	RelationTargets map[string]string `yaml:"relation_targets"`

	// FileFields lists the file-bearing field names.
	FileFields []string `yaml:"file_fields"`

	Policy   PolicyConfig    `yaml:"policy"`
	RawQuery *RawQueryConfig `yaml:"raw_query"`
}

// PolicyConfig is the YAML shape of a security policy. Absent lists stay
// empty: the policy denies everything not opted in.
type PolicyConfig struct {
	AllowedFilters  []string `yaml:"allowed_filters"`
	AllowedSorts    []string `yaml:"allowed_sorts"`
	AllowedIncludes []string `yaml:"allowed_includes"`
	AllowedSelects  []string `yaml:"allowed_selects"`
	MaxIncludeDepth int      `yaml:"max_include_depth"`
	MaxPageSize     int      `yaml:"max_page_size"`
	MaxNestedDepth  int      `yaml:"max_nested_depth"`
	SoftDelete      bool     `yaml:"soft_delete"`
}

// RawQueryConfig is the YAML shape of a raw-query whitelist.
type RawQueryConfig struct {
	Enabled           bool                      `yaml:"enabled"`
	MaxQueryLength    int                       `yaml:"max_query_length"`
	ParameterizedOnly bool                      `yaml:"parameterized_only"`
	Operations        []string                  `yaml:"operations"`
	Tables            map[string][]string       `yaml:"tables"`
	Joins             map[string]JoinRuleConfig `yaml:"joins"`
	SortColumns       map[string][]string       `yaml:"sort_columns"`
	MaxSortColumns    int                       `yaml:"max_sort_columns"`
	MaxRows           int                       `yaml:"max_rows"`
}

// JoinRuleConfig constrains one joinable table.
type JoinRuleConfig struct {
	Types []string `yaml:"types"`
	With  []string `yaml:"with"`
}

// Loader reads and validates the gateway configuration.
type Loader struct {
	workDir  string
	filePath string
}

// NewLoader creates a loader rooted at workDir.
func NewLoader(workDir string) *Loader {
	return &Loader{
		workDir:  workDir,
		filePath: filepath.Join(workDir, ConfigFileName),
	}
}

// Load reads, parses and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", l.filePath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural requirements of a parsed configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config is missing a version")
	}
	for name, entity := range c.Entities {
		if name == "" {
			return fmt.Errorf("config declares an entity with an empty name")
		}
		for rel, target := range entity.RelationTargets {
			if !containsString(entity.Relations, rel) {
				return fmt.Errorf("entity '%s': relation target declared for unknown relation '%s'", name, rel)
			}
			if target == "" {
				return fmt.Errorf("entity '%s': relation '%s' has an empty target", name, rel)
			}
		}
		if entity.RawQuery != nil && entity.RawQuery.Enabled && len(entity.RawQuery.Operations) == 0 {
			return fmt.Errorf("entity '%s': raw queries enabled but no operations allowed", name)
		}
	}
	return nil
}

// SchemaPath resolves an entity schema path against the config directory.
func (l *Loader) SchemaPath(entity EntityConfig) string {
	if filepath.IsAbs(entity.Schema) {
		return entity.Schema
	}
	return filepath.Join(l.workDir, entity.Schema)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
