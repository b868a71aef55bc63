package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/term"

	"github.com/macropower/decil/api/v1beta1/catalogs"
	"github.com/macropower/decil/api/v1beta1/configs"
	"github.com/macropower/decil/pkg/config"
)

// configPath returns the --config path, or the default user config path.
func (ra *RootArgs) configPath() string {
	if ra.ConfigPath != "" {
		return ra.ConfigPath
	}

	return configs.GetPath()
}

func coloredErrors() config.LoaderOpt {
	return config.WithColoredErrors(term.IsTerminal(int(os.Stderr.Fd()))) //nolint:gosec // G115: fd fits in int.
}

// loadConfig writes the default configuration if none exists, then loads
// and validates the configuration at path.
func loadConfig(path string) (*configs.Config, error) {
	err := configs.WriteDefault(path, false)
	if err != nil {
		slog.Error("write default config", slog.Any("err", err))
	}

	cl, err := config.NewLoaderFromFile(path, configs.New, configs.DefaultValidator, coloredErrors())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg, err := cl.ValidateAndLoad()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// catalogPaths returns the catalog files to load: extra paths first, then
// the paths from the configuration.
func catalogPaths(cfg *configs.Config, configPath string, extra []string) []string {
	return slices.Concat(extra, cfg.Catalogs.ResolvePaths(filepath.Dir(configPath)))
}

// loadCatalog merges the catalogs at paths, followed by the built-in
// catalog unless it is disabled. Earlier macros win ties in match order.
func loadCatalog(cfg *configs.Config, paths []string) (*catalogs.Catalog, error) {
	cat := catalogs.New()

	for _, path := range paths {
		cl, err := config.NewLoaderFromFile(path, catalogs.New, catalogs.DefaultValidator, coloredErrors())
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", path, err)
		}

		c, err := cl.ValidateAndLoad()
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", path, err)
		}

		cat.Merge(c)
	}

	if cfg.Catalogs.UseBuiltin() {
		c, err := config.NewLoaderFromBytes(catalogs.BuiltinYAML(), catalogs.New, catalogs.DefaultValidator).
			ValidateAndLoad()
		if err != nil {
			return nil, fmt.Errorf("load builtin catalog: %w", err)
		}

		cat.Merge(c)
	}

	slog.Debug("loaded macro catalog",
		slog.Int("permission_sets", len(cat.PermissionSets)),
		slog.Int("macros", len(cat.Macros)),
	)

	return cat, nil
}
