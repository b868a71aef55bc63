package cli

import (
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/macropower/decil/api/v1beta1/catalogs"
	"github.com/macropower/decil/pkg/macro"
)

const macrosExamples = `  # List every catalog macro:
  decil macros

  # Find macros by fuzzy name:
  decil macros getprop

  # Show which macros are enabled for user builds:
  decil macros --var target_build_variant=user

  # Write the built-in catalog as a starting point for a vendor catalog:
  decil macros --write-catalog ./vendor_macros.yaml`

type MacrosArgs struct {
	*RootArgs

	Vars         map[string]string
	WriteCatalog string
	Query        string
	Macros       []string
	ShowBody     bool
}

func NewMacrosArgs(rootArgs *RootArgs) *MacrosArgs {
	return &MacrosArgs{
		RootArgs: rootArgs,
	}
}

func (ma *MacrosArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&ma.Macros, "macros", nil, "Path to an additional macro catalog (repeatable)")
	cmd.Flags().StringToStringVar(&ma.Vars, "var", nil, "Set a build variable, e.g. target_build_variant=user")
	cmd.Flags().BoolVar(&ma.ShowBody, "body", false, "Print macro bodies")
	cmd.Flags().StringVar(&ma.WriteCatalog, "write-catalog", "", "Write the built-in catalog to a file and exit")

	must(cmd.MarkFlagFilename("macros", "yaml", "yml"))
	must(cmd.MarkFlagFilename("write-catalog", "yaml", "yml"))
}

func NewMacrosCmd(ma *MacrosArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "macros [query]",
		Short:   "List catalog macros, ranked by a fuzzy query",
		Example: macrosExamples,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				ma.Query = args[0]
			}

			return runMacros(cmd, ma)
		},
	}
	ma.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func runMacros(cmd *cobra.Command, ma *MacrosArgs) error {
	if ma.WriteCatalog != "" {
		return catalogs.WriteBuiltin(ma.WriteCatalog, false) //nolint:wrapcheck // Already wrapped.
	}

	configPath := ma.configPath()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	cat, err := loadCatalog(cfg, catalogPaths(cfg, configPath, ma.Macros))
	if err != nil {
		return err
	}

	vars := maps.Clone(cfg.Variables.Defaults)
	maps.Copy(vars, ma.Vars)

	perms, err := macro.NewPermissionSets(cat.PermissionSets)
	if err != nil {
		return fmt.Errorf("load permission sets: %w", err)
	}

	c, err := macro.New(cmd.Context(), perms, cat.Macros, vars)
	if err != nil {
		return fmt.Errorf("load macros: %w", err)
	}

	enabled := map[*macro.Definition]bool{}
	for _, d := range c.Definitions() {
		enabled[d] = true
	}

	return printMacros(cmd.OutOrStdout(), rankMacros(cat.Macros, ma.Query), enabled, ma.ShowBody)
}

type rankedMacro struct {
	def     *macro.Definition
	matched []int
}

// rankMacros returns defs ordered by fuzzy match against query. All
// definitions are returned in catalog order when query is empty.
func rankMacros(defs []*macro.Definition, query string) []rankedMacro {
	if query == "" {
		out := make([]rankedMacro, 0, len(defs))
		for _, d := range defs {
			out = append(out, rankedMacro{def: d})
		}

		return out
	}

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}

	ranks := fuzzy.Find(query, names)

	out := make([]rankedMacro, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, rankedMacro{def: defs[r.Index], matched: r.MatchedIndexes})
	}

	return out
}

var (
	nameStyle     = lipgloss.NewStyle().Bold(true)
	matchStyle    = nameStyle.Underline(true)
	subtleStyle   = lipgloss.NewStyle().Faint(true)
	disabledStyle = lipgloss.NewStyle().Strikethrough(true)
)

func printMacros(w io.Writer, ranked []rankedMacro, enabled map[*macro.Definition]bool, showBody bool) error {
	var sb strings.Builder

	for _, r := range ranked {
		name := highlight(r.def.Name, r.matched)
		if !enabled[r.def] {
			name = disabledStyle.Render(r.def.Name)
		}

		sb.WriteString(name)

		if r.def.When != "" {
			sb.WriteString(" ")
			sb.WriteString(subtleStyle.Render("when " + r.def.When))
		}

		sb.WriteByte('\n')

		if showBody {
			for line := range strings.Lines(strings.TrimSpace(r.def.Body)) {
				sb.WriteString("    ")
				sb.WriteString(strings.TrimSuffix(line, "\n"))
				sb.WriteByte('\n')
			}
		}
	}

	_, err := io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("write macros: %w", err)
	}

	return nil
}

func highlight(s string, matched []int) string {
	if len(matched) == 0 {
		return nameStyle.Render(s)
	}

	set := make(map[int]bool, len(matched))
	for _, i := range matched {
		set[i] = true
	}

	var sb strings.Builder
	for i, r := range s {
		style := nameStyle
		if set[i] {
			style = matchStyle
		}

		sb.WriteString(style.Render(string(r)))
	}

	return sb.String()
}
