package yaml

import (
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaGenerator reflects a JSON schema from a Go value, using the doc
// comments of the listed package directories as descriptions.
type SchemaGenerator struct {
	value any
	base  string
	dirs  []string
}

// NewSchemaGenerator creates a [SchemaGenerator]. base is the module path
// and dirs are package directories relative to the module root, which must
// be the working directory.
func NewSchemaGenerator(v any, base string, dirs ...string) *SchemaGenerator {
	return &SchemaGenerator{value: v, base: base, dirs: dirs}
}

// Generate returns the indented JSON schema.
func (g *SchemaGenerator) Generate() ([]byte, error) {
	r := &jsonschema.Reflector{
		Namer: definitionName,
	}

	for _, dir := range g.dirs {
		err := r.AddGoComments(g.base, "./"+dir)
		if err != nil {
			return nil, fmt.Errorf("add go comments from %s: %w", dir, err)
		}
	}

	s := r.Reflect(g.value)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return append(data, '\n'), nil
}

// definitionName qualifies the generic `Config` type name of component
// packages, e.g. output.Config becomes OutputConfig.
func definitionName(t reflect.Type) string {
	name := t.Name()
	if name != "Config" {
		return name
	}

	pkg := path.Base(t.PkgPath())
	if pkg == "configs" || pkg == "." || pkg == "" {
		return name
	}

	return strings.ToUpper(pkg[:1]) + pkg[1:] + name
}
