package yaml

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates decoded YAML against a JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the JSON schema in schemaData, registered as url.
func NewValidator(url string, schemaData []byte) (*Validator, error) {
	var doc any

	err := json.Unmarshal(schemaData, &doc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()

	err = c.AddResource(url, doc)
	if err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// MustNewValidator is [NewValidator] for embedded schemas. It panics on
// error.
func MustNewValidator(url string, schemaData []byte) *Validator {
	v, err := NewValidator(url, schemaData)
	if err != nil {
		panic(err)
	}

	return v
}

// Validate returns an [*Error] pointing at the deepest failing value.
func (v *Validator) Validate(data any) error {
	err := v.schema.Validate(data)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("schema validation: %w", err)
	}

	return NewError(verr, WithPath(locationPath(deepestLocation(verr))))
}

// deepestLocation returns the longest instance location among err and its
// causes. The first one wins ties.
func deepestLocation(err *jsonschema.ValidationError) []string {
	loc := err.InstanceLocation

	for _, cause := range err.Causes {
		if l := deepestLocation(cause); len(l) > len(loc) {
			loc = l
		}
	}

	return loc
}

// locationPath converts a JSON instance location to a [yaml.Path]. Numeric
// segments are sequence indexes.
func locationPath(loc []string) *yaml.Path {
	b := NewPathBuilder().Root()

	for _, seg := range loc {
		i, err := strconv.ParseUint(seg, 10, 0)
		if err != nil {
			b = b.Child(seg)
			continue
		}

		b = b.Index(uint(i))
	}

	return b.Build()
}
