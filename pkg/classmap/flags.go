package classmap

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/macropower/decil/pkg/log"
	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/store"
	"github.com/macropower/decil/pkg/te"
)

// Flag is a build variable whose value shows in the compiled policy: the
// variable is Present when every rule of Rule exists, and Absent otherwise.
type Flag struct {
	// Name is the variable name.
	Name string `json:"name" jsonschema:"title=Name"`
	// Rule is `.te` source for the probe rules.
	Rule string `json:"rule" jsonschema:"title=Probe Rule"`
	// Present is the value when the probe rules exist.
	Present string `json:"present" jsonschema:"title=Value When Present"`
	// Absent is the value when a probe rule is missing.
	Absent string `json:"absent" jsonschema:"title=Value When Absent"`
}

// DetectFlags returns defaults overlaid with the detected value of every
// flag. fold is applied to probe rules so that they compare equal to the
// rules in s; it may be nil.
func DetectFlags(
	ctx context.Context,
	s *store.Store,
	defaults map[string]string,
	flags []Flag,
	fold func(*policy.Rule) *policy.Rule,
) (map[string]string, error) {
	logger := log.WithContext(ctx)

	vars := make(map[string]string, len(defaults)+len(flags))
	maps.Copy(vars, defaults)

	for _, f := range flags {
		rules, err := te.Parse(f.Rule)
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", f.Name, err)
		}

		if len(rules) == 0 {
			return nil, fmt.Errorf("flag %s: %w: no probe rule", f.Name, te.ErrSyntax)
		}

		present := true
		for _, r := range rules {
			if fold != nil {
				r = fold(r)
			}

			if !s.Contains(r) {
				present = false
				break
			}
		}

		if present {
			vars[f.Name] = f.Present
		} else {
			vars[f.Name] = f.Absent
		}

		logger.DebugContext(ctx, "detected variable",
			slog.String("name", f.Name),
			slog.String("value", vars[f.Name]),
		)
	}

	return vars, nil
}
