// Package config loads YAML documents (configuration and macro catalogs)
// with schema validation and source-annotated errors.
package config
