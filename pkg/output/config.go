package output

import (
	"fmt"

	"github.com/macropower/decil/pkg/rule"
)

const (
	// DefaultFallback is the file for statements no group rule matches.
	DefaultFallback = "leftover.te"

	// DefaultGenfsFile is the file genfscon statements are written to.
	DefaultGenfsFile = "genfs_contexts"
)

// DefaultGroups returns the default group rules. They are tried in order:
// device types, file types, attributes, properties, then one file per
// domain.
func DefaultGroups() []*rule.Rule {
	domain, err := rule.NewExpr(`subject != ""`, `domainOf(subject) + ".te"`)
	if err != nil {
		panic(err)
	}

	return []*rule.Rule{
		rule.MustNew(`kind == "type" && "dev_type" in args`, "device.te"),
		rule.MustNew(`kind == "type" && ("file_type" in args || "fs_type" in args)`, "file.te"),
		rule.MustNew(`kind in ["attribute", "expandattribute"]`, "attribute"),
		rule.MustNew(`subject.endsWith("_prop")`, "property.te"),
		domain,
	}
}

// Config configures output grouping.
type Config struct {
	// Groups are tried in order; the first matching rule picks the file.
	Groups []*rule.Rule `json:"groups,omitempty" jsonschema:"title=Group Rules"`
	// Fallback is the file for statements no group matches.
	Fallback string `json:"fallback,omitempty" jsonschema:"title=Fallback File"`
	// GenfsFile is the file genfscon statements are written to.
	GenfsFile string `json:"genfsFile,omitempty" jsonschema:"title=Genfs Contexts File"`
}

// NewConfig returns a [Config] with default values.
func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults sets unset fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.Groups == nil {
		c.Groups = DefaultGroups()
	}

	if c.Fallback == "" {
		c.Fallback = DefaultFallback
	}

	if c.GenfsFile == "" {
		c.GenfsFile = DefaultGenfsFile
	}
}

// Validate compiles the group rules.
func (c *Config) Validate() error {
	for i, g := range c.Groups {
		if g == nil {
			return fmt.Errorf("group %d: %w", i, rule.ErrFile)
		}

		if err := g.Compile(); err != nil {
			return fmt.Errorf("group %d: %w", i, err)
		}
	}

	return nil
}
