// Package catalogs provides the MacroCatalog document type and the
// built-in macro catalog.
package catalogs

import (
	"fmt"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/decil/api"
	"github.com/macropower/decil/api/v1beta1"
	"github.com/macropower/decil/pkg/macro"
	"github.com/macropower/decil/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen -C ../../.. -kind catalog -o api/v1beta1/catalogs/catalogs.v1beta1.json

var (
	//go:embed catalog.yaml
	builtinYAML []byte

	//go:embed catalogs.v1beta1.json
	schemaJSON []byte

	// ValidKinds contains the valid kind values for macro catalogs.
	ValidKinds = []string{"MacroCatalog"}

	// DefaultValidator validates macro catalogs against the JSON schema.
	DefaultValidator = yaml.MustNewValidator("/catalogs.v1beta1.json", schemaJSON)

	// Compile-time interface checks.
	_ v1beta1.Object = (*Catalog)(nil)
)

// Catalog is a MacroCatalog document.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Catalog struct {
	v1beta1.TypeMeta `json:",inline"`

	// PermissionSets are the named permission groups used by macro bodies
	// and folded into input rules.
	PermissionSets []*macro.PermissionSet `json:"permissionSets,omitempty" jsonschema:"title=Permission Sets"`
	// Macros are the macro definitions, in catalog order.
	Macros []*macro.Definition `json:"macros,omitempty" jsonschema:"title=Macros"`
}

// New creates an empty [Catalog].
func New() *Catalog {
	c := &Catalog{
		TypeMeta: v1beta1.NewTypeMeta("MacroCatalog"),
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults drops nil entries left by sparse YAML lists.
func (c *Catalog) EnsureDefaults() {
	c.PermissionSets = compact(c.PermissionSets)
	c.Macros = compact(c.Macros)
}

// Merge appends the permission sets and macros of o to c.
func (c *Catalog) Merge(o *Catalog) {
	c.PermissionSets = append(c.PermissionSets, o.PermissionSets...)
	c.Macros = append(c.Macros, o.Macros...)
}

func (c Catalog) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the catalog to YAML.
func (c Catalog) MarshalYAML() ([]byte, error) {
	type alias Catalog

	b, err := yaml.Marshal(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}

	return b, nil
}

// BuiltinYAML returns the source of the built-in catalog.
func BuiltinYAML() []byte {
	return builtinYAML
}

// WriteBuiltin writes the built-in catalog to path.
func WriteBuiltin(path string, force bool) error {
	err := api.WriteDefaultFile(path, builtinYAML, force, "macro catalog")
	if err != nil {
		return fmt.Errorf("write builtin catalog: %w", err)
	}

	return nil
}

func compact[T any](s []*T) []*T {
	out := s[:0]
	for _, v := range s {
		if v != nil {
			out = append(out, v)
		}
	}

	return out
}
