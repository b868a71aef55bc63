package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bindEnvVars sets the flags of cmd from DECIL_<FLAG_NAME> environment
// variables, e.g. DECIL_LOG_LEVEL for --log-level, and adds the variable
// name to each flag's usage. Arguments override the environment, which
// overrides defaults.
//
// Repeatable path flags such as --macros take a list separated by the OS
// path list separator, e.g. DECIL_MACROS=a.yaml:b.yaml.
func bindEnvVars(cmd *cobra.Command) {
	cmd.Flags().VisitAll(bindFlagToEnv)
	cmd.PersistentFlags().VisitAll(bindFlagToEnv)
}

func bindFlagToEnv(flag *pflag.Flag) {
	env := flagToEnvName(flag.Name)

	if !strings.Contains(flag.Usage, env) {
		flag.Usage = fmt.Sprintf("%s ($%s)", flag.Usage, env)
	}

	value, ok := os.LookupEnv(env)
	if !ok || flag.Changed {
		return
	}

	values := []string{value}
	if flag.Value.Type() == "stringArray" {
		values = filepath.SplitList(value)
	}

	for _, v := range values {
		err := flag.Value.Set(v)
		if err != nil {
			// Keep the default rather than fail on a bad environment.
			slog.Error("set flag from environment variable",
				slog.String("flag", flag.Name),
				slog.String("env", env),
				slog.String("value", v),
				slog.Any("err", err),
			)

			return
		}
	}
}

// flagToEnvName returns the environment variable for a flag, e.g.
// "log-level" becomes "DECIL_LOG_LEVEL".
func flagToEnvName(flagName string) string {
	return strings.ToUpper(cmdName + "_" + strings.ReplaceAll(flagName, "-", "_"))
}
