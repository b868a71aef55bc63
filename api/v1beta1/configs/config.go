// Package configs provides the decil Configuration document.
package configs

import (
	"fmt"
	"path/filepath"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/decil/api"
	"github.com/macropower/decil/api/v1beta1"
	"github.com/macropower/decil/pkg/classmap"
	"github.com/macropower/decil/pkg/output"
	"github.com/macropower/decil/pkg/te"
	"github.com/macropower/decil/pkg/watch"
	"github.com/macropower/decil/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen -C ../../.. -kind config -o api/v1beta1/configs/configs.v1beta1.json

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	//go:embed configs.v1beta1.json
	schemaJSON []byte

	// ValidKinds contains the valid kind values for configurations.
	ValidKinds = []string{"Configuration"}

	// DefaultValidator validates configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator("/configs.v1beta1.json", schemaJSON)

	// Compile-time interface checks.
	_ v1beta1.Object = (*Config)(nil)
)

// Config is the decil configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	v1beta1.TypeMeta `json:",inline"`

	// Variables are the build variables macro conditions are evaluated with.
	Variables *Variables `json:"variables,omitempty" jsonschema:"title=Variables"`
	// Catalogs selects the macro catalogs to load.
	Catalogs *Catalogs `json:"catalogs,omitempty" jsonschema:"title=Macro Catalogs"`
	// Output configures how statements are grouped into files.
	Output *output.Config `json:"output,omitempty" jsonschema:"title=Output"`
	// Watch configures which file events trigger a re-run in watch mode.
	Watch *watch.Config `json:"watch,omitempty" jsonschema:"title=Watch"`
}

// Variables are build variables. Defaults apply unless a flag detects the
// variable from the input policy, and `--var` overrides both. Variables
// missing from Defaults keep their built-in value.
type Variables struct {
	// Defaults are the variable values used when nothing else sets them.
	Defaults map[string]string `json:"defaults,omitempty" jsonschema:"title=Default Values"`
	// Flags detect variables from the presence of probe rules.
	Flags []classmap.Flag `json:"flags,omitempty" jsonschema:"title=Detected Flags"`
}

// Catalogs selects macro catalogs.
type Catalogs struct {
	// Builtin loads the embedded catalog. Defaults to true.
	Builtin *bool `json:"builtin,omitempty" jsonschema:"title=Use Built-in Catalog"`
	// Paths are additional catalog files, relative to the config file.
	Paths []string `json:"paths,omitempty" jsonschema:"title=Catalog Paths"`
}

// UseBuiltin reports whether the embedded catalog is loaded.
func (c *Catalogs) UseBuiltin() bool {
	return c.Builtin == nil || *c.Builtin
}

// ResolvePaths returns Paths with relative entries joined to base.
func (c *Catalogs) ResolvePaths(base string) []string {
	out := make([]string, 0, len(c.Paths))
	for _, p := range c.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}

		out = append(out, p)
	}

	return out
}

// New creates a [Config] with default values.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.NewTypeMeta("Configuration"),
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults initializes nil fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.Variables == nil {
		c.Variables = &Variables{}
	}

	defaults := DefaultVariables()
	if c.Variables.Defaults == nil {
		c.Variables.Defaults = defaults
	}

	for k, v := range defaults {
		if _, ok := c.Variables.Defaults[k]; !ok {
			c.Variables.Defaults[k] = v
		}
	}

	if c.Variables.Flags == nil {
		c.Variables.Flags = DefaultFlags()
	}

	if c.Catalogs == nil {
		c.Catalogs = &Catalogs{}
	}

	if c.Output == nil {
		c.Output = output.NewConfig()
	} else {
		c.Output.EnsureDefaults()
	}

	if c.Watch == nil {
		c.Watch = watch.NewConfig()
	} else {
		c.Watch.EnsureDefaults()
	}
}

// Validate compiles every expression and probe rule in the configuration.
func (c *Config) Validate() error {
	for _, f := range c.Variables.Flags {
		_, err := te.Parse(f.Rule)
		if err != nil {
			return fmt.Errorf("validate flag %s: %w", f.Name, err)
		}
	}

	err := c.Output.Validate()
	if err != nil {
		return fmt.Errorf("validate output config: %w", err)
	}

	err = c.Watch.Compile()
	if err != nil {
		return fmt.Errorf("validate watch config: %w", err)
	}

	return nil
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the config to YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := yaml.Marshal(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return b, nil
}

// WriteDefault writes the embedded default config.yaml to path.
func WriteDefault(path string, force bool) error {
	err := api.WriteDefaultFile(path, defaultConfigYAML, force, "configuration")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}

// GetPath returns the path to the user configuration file.
func GetPath() string {
	return api.GetConfigPath("config.yaml")
}
