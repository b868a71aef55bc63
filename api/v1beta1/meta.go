// Package v1beta1 holds the metadata shared by every decil v1beta1 document.
package v1beta1

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// APIVersion is the API version of configuration and macro catalog documents.
const APIVersion = "decil.jacobcolvin.com/v1beta1"

// ValidAPIVersions contains all valid API versions.
var ValidAPIVersions = []string{APIVersion}

// TypeMeta identifies a document.
type TypeMeta struct {
	// APIVersion is the document schema version.
	APIVersion string `json:"apiVersion" jsonschema:"title=API Version"`
	// Kind is the document type, e.g. Configuration or MacroCatalog.
	Kind string `json:"kind" jsonschema:"title=Kind"`
}

// NewTypeMeta returns the [TypeMeta] of a kind at the current [APIVersion].
func NewTypeMeta(kind string) TypeMeta {
	return TypeMeta{APIVersion: APIVersion, Kind: kind}
}

func (tm TypeMeta) GetAPIVersion() string { return tm.APIVersion }

func (tm TypeMeta) GetKind() string { return tm.Kind }

// Object is a decodable document.
type Object interface {
	GetAPIVersion() string
	GetKind() string
	EnsureDefaults()
}

// ExtendSchemaWithEnums restricts the apiVersion and kind properties of jss
// to the given values. It panics if either property is missing.
func ExtendSchemaWithEnums(jss *jsonschema.Schema, apiVersions, kinds []string) {
	restrict(jss, "apiVersion", "API Version", apiVersions)
	restrict(jss, "kind", "Kind", kinds)
}

func restrict(jss *jsonschema.Schema, prop, title string, values []string) {
	s, ok := jss.Properties.Get(prop)
	if !ok {
		panic(fmt.Sprintf("%s property not found in schema", prop))
	}

	for _, v := range values {
		s.OneOf = append(s.OneOf, &jsonschema.Schema{Type: "string", Const: v, Title: title})
	}

	_, _ = jss.Properties.Set(prop, s)
}
