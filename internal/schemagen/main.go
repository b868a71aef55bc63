// Command schemagen writes the JSON schemas of the decil document types.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/macropower/decil/api/v1beta1/catalogs"
	"github.com/macropower/decil/api/v1beta1/configs"
	"github.com/macropower/decil/pkg/yaml"
)

const modulePath = "github.com/macropower/decil"

func main() {
	var (
		dir     = pflag.StringP("directory", "C", ".", "Module root to run in")
		kind    = pflag.String("kind", "config", "Document kind, one of: [config catalog]")
		outFile = pflag.StringP("output", "o", "schema.json", "Output file for the generated schema")
	)

	pflag.Parse()

	err := run(*dir, *kind, *outFile)
	if err != nil {
		slog.Error("generate schema", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(dir, kind, outFile string) error {
	err := os.Chdir(dir)
	if err != nil {
		return fmt.Errorf("change directory: %w", err)
	}

	var gen *yaml.SchemaGenerator

	switch kind {
	case "config":
		gen = yaml.NewSchemaGenerator(configs.New(), modulePath,
			"api/v1beta1",
			"api/v1beta1/configs",
			"pkg/classmap",
			"pkg/output",
			"pkg/rule",
			"pkg/watch",
		)
	case "catalog":
		gen = yaml.NewSchemaGenerator(catalogs.New(), modulePath,
			"api/v1beta1",
			"api/v1beta1/catalogs",
			"pkg/macro",
		)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}

	data, err := gen.Generate()
	if err != nil {
		return fmt.Errorf("generate JSON schema: %w", err)
	}

	err = os.WriteFile(outFile, data, 0o600)
	if err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}

	return nil
}
