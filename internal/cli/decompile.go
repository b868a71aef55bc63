package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/macropower/decil/api/v1beta1/configs"
	"github.com/macropower/decil/pkg/classmap"
	"github.com/macropower/decil/pkg/decompile"
	"github.com/macropower/decil/pkg/output"
	"github.com/macropower/decil/pkg/watch"
)

const (
	decompileExamples = `  # Print the decompiled policy, grouped by file:
  decil vendor_sepolicy.cil

  # Write the group files to a directory:
  decil plat_sepolicy.cil vendor_sepolicy.cil -o ./sepolicy

  # Order permissions with a classmap and add a vendor catalog:
  decil vendor_sepolicy.cil --classmap ./access_vectors --macros ./vendor_macros.yaml

  # Fail if the directory is not up to date:
  decil vendor_sepolicy.cil -o ./sepolicy --check

  # Override a detected build variable:
  decil vendor_sepolicy.cil --var target_build_variant=user

  # Re-run when an input changes:
  decil vendor_sepolicy.cil -o ./sepolicy --watch`
)

// ErrCheckWithoutOutput is returned when --check is set without --output.
var ErrCheckWithoutOutput = errors.New("--check requires --output")

type DecompileArgs struct {
	*RootArgs

	Vars        map[string]string
	OutputDir   string
	Classmap    string
	Files       []string
	Macros      []string
	Check       bool
	Watch       bool
	WriteConfig bool
	ShowConfig  bool
}

func NewDecompileArgs(rootArgs *RootArgs) *DecompileArgs {
	return &DecompileArgs{
		RootArgs: rootArgs,
	}
}

func (da *DecompileArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&da.OutputDir, "output", "o", "", "Directory to write the group files to")
	cmd.Flags().StringVar(&da.Classmap, "classmap", "", "Path to a classmap for permission ordering")
	cmd.Flags().StringArrayVar(&da.Macros, "macros", nil, "Path to an additional macro catalog (repeatable)")
	cmd.Flags().StringToStringVar(&da.Vars, "var", nil, "Set a build variable, e.g. target_build_variant=user")
	cmd.Flags().BoolVar(&da.Check, "check", false, "Diff against the output directory instead of writing")
	cmd.Flags().BoolVarP(&da.Watch, "watch", "w", false, "Watch the inputs and re-run on changes")
	cmd.Flags().BoolVar(&da.WriteConfig, "write-config", false, "Write the default configuration file and exit")
	cmd.Flags().BoolVar(&da.ShowConfig, "show-config", false, "Print the active configuration and exit")

	must(cmd.MarkFlagDirname("output"))
	must(cmd.MarkFlagFilename("macros", "yaml", "yml"))
	must(cmd.MarkFlagFilename("classmap"))
}

func NewDecompileCmd(da *DecompileArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "decompile [file.cil...]",
		Short:   "Default command, can be used explicitly",
		Example: decompileExamples,
		Args: func(_ *cobra.Command, args []string) error {
			if da.WriteConfig || da.ShowConfig {
				return nil
			}

			if len(args) == 0 {
				return errors.New("requires at least 1 arg, received 0")
			}

			return nil
		},
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
			return []cobra.Completion{"cil"}, cobra.ShellCompDirectiveFilterFileExt
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			da.Files = args

			return runDecompile(cmd, da)
		},
	}
	da.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func runDecompile(cmd *cobra.Command, da *DecompileArgs) error {
	if da.Check && da.OutputDir == "" {
		return ErrCheckWithoutOutput
	}

	configPath := da.configPath()

	if da.WriteConfig {
		return configs.WriteDefault(configPath, false) //nolint:wrapcheck // Already wrapped.
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if da.ShowConfig {
		b, err := cfg.MarshalYAML()
		if err != nil {
			return err //nolint:wrapcheck // Already wrapped.
		}

		_, err = cmd.OutOrStdout().Write(b)
		if err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		return nil
	}

	catalogs := catalogPaths(cfg, configPath, da.Macros)

	run := func(ctx context.Context) error {
		opts, err := da.options(cfg, catalogs)
		if err != nil {
			return err
		}

		res, err := decompile.RunFiles(ctx, opts, da.Files...)
		if err != nil {
			return fmt.Errorf("decompile: %w", err)
		}

		return da.emit(cmd.OutOrStdout(), res.Output)
	}

	ctx := cmd.Context()

	if !da.Watch {
		return run(ctx)
	}

	err = run(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "initial run failed", slog.Any("err", err))
	}

	watched := slices.Concat(da.Files, catalogs)
	if da.Classmap != "" {
		watched = append(watched, da.Classmap)
	}

	w, err := watch.New(cfg.Watch, watched...)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	defer func() {
		err := w.Close()
		if err != nil {
			slog.Error("close watcher", slog.Any("err", err))
		}
	}()

	return w.Run(ctx, run) //nolint:wrapcheck // Returns nil on shutdown.
}

// options loads the catalogs and classmap. It runs for every pass in watch
// mode, so that edits to them are picked up.
func (da *DecompileArgs) options(cfg *configs.Config, catalogPaths []string) (*decompile.Options, error) {
	cat, err := loadCatalog(cfg, catalogPaths)
	if err != nil {
		return nil, err
	}

	var cm *classmap.Classmap
	if da.Classmap != "" {
		cm, err = classmap.Load(da.Classmap)
		if err != nil {
			return nil, fmt.Errorf("load classmap: %w", err)
		}
	}

	return &decompile.Options{
		Classmap:       cm,
		Output:         cfg.Output,
		Defaults:       cfg.Variables.Defaults,
		Overrides:      da.Vars,
		PermissionSets: cat.PermissionSets,
		Macros:         cat.Macros,
		Flags:          cfg.Variables.Flags,
	}, nil
}

func (da *DecompileArgs) emit(w io.Writer, out *output.Output) error {
	switch {
	case da.Check:
		diffs, err := out.Check(da.OutputDir)
		for _, d := range diffs {
			if _, werr := io.WriteString(w, d.Text); werr != nil {
				return fmt.Errorf("write diff: %w", werr)
			}
		}

		return err //nolint:wrapcheck // Sentinel error from output.

	case da.OutputDir != "":
		err := out.Write(da.OutputDir)
		if err != nil {
			return err //nolint:wrapcheck // Already wrapped.
		}

		slog.Info("wrote output",
			slog.String("dir", da.OutputDir),
			slog.Int("files", len(out.Files())),
		)

		return nil
	}

	return out.Print(w) //nolint:wrapcheck // Already wrapped.
}
