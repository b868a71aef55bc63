package decompile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/decil/pkg/cil"
	"github.com/macropower/decil/pkg/classmap"
	"github.com/macropower/decil/pkg/log"
	"github.com/macropower/decil/pkg/macro"
	"github.com/macropower/decil/pkg/match"
	"github.com/macropower/decil/pkg/output"
	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/store"
)

// Options configures a run.
type Options struct {
	// Classmap orders permissions in the output. Optional.
	Classmap *classmap.Classmap
	// Output configures file grouping. Defaults apply when nil.
	Output *output.Config
	// Defaults are the build variable values used unless detected.
	Defaults map[string]string
	// Overrides are build variable values that win over detection.
	Overrides map[string]string
	// PermissionSets are folded into input rules and macro templates.
	PermissionSets []*macro.PermissionSet
	// Macros are the catalog macro definitions, in catalog order.
	Macros []*macro.Definition
	// Flags detect build variables from the input.
	Flags []classmap.Flag
}

// Input is one named CIL source.
type Input struct {
	Reader io.Reader
	Name   string
}

// Stats summarizes a run.
type Stats struct {
	Statements int
	Rules      int
	Genfs      int
	Macros     int
	Calls      int
	Leftover   int
	Types      int
	Files      int
}

// Result is the outcome of a run.
type Result struct {
	Output *output.Output
	Vars   map[string]string
	Stats  Stats
}

var tracer = otel.Tracer("decompile")

// RunFiles runs [Run] over the CIL files at paths.
func RunFiles(ctx context.Context, opts *Options, paths ...string) (*Result, error) {
	logger := log.WithContext(ctx)
	inputs := make([]Input, 0, len(paths))

	for _, path := range paths {
		f, err := os.Open(path) //nolint:gosec // G304: input files are user supplied.
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}

		defer func() {
			err := f.Close()
			if err != nil {
				logger.WarnContext(ctx, "close input", slog.String("path", path), slog.Any("err", err))
			}
		}()

		inputs = append(inputs, Input{Name: path, Reader: f})
	}

	return Run(ctx, opts, inputs...)
}

// Run decompiles inputs.
func Run(ctx context.Context, opts *Options, inputs ...Input) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, span := tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.Int("inputs", len(inputs)),
		attribute.Int("macros", len(opts.Macros)),
	))
	defer span.End()

	logger := log.WithContext(ctx)

	res := &Result{}

	normalized, err := normalize(ctx, inputs, &res.Stats)
	if err != nil {
		return nil, err
	}

	perms, err := macro.NewPermissionSets(opts.PermissionSets)
	if err != nil {
		return nil, fmt.Errorf("load permission sets: %w", err)
	}

	s := store.New()
	for _, r := range normalized.Rules {
		s.Insert(perms.Fold(r))
	}

	res.Stats.Rules = s.Len()
	res.Stats.Genfs = len(normalized.Genfs)

	logger.InfoContext(ctx, "loaded policy",
		slog.String("statements", humanize.Comma(int64(res.Stats.Statements))),
		slog.String("rules", humanize.Comma(int64(res.Stats.Rules))),
	)

	res.Vars, err = classmap.DetectFlags(ctx, s, opts.Defaults, opts.Flags, perms.Fold)
	if err != nil {
		return nil, fmt.Errorf("detect variables: %w", err)
	}

	maps.Copy(res.Vars, opts.Overrides)

	catalog, err := macro.New(ctx, perms, opts.Macros, res.Vars)
	if err != nil {
		return nil, fmt.Errorf("load macros: %w", err)
	}

	res.Stats.Macros = len(catalog.Macros())

	matchStats, err := runMatch(ctx, s, catalog)
	if err != nil {
		return nil, err
	}

	res.Stats.Calls = matchStats.Calls

	rules, folded := FoldTypes(s.Rules(), normalized.Types)
	res.Stats.Types = folded
	res.Stats.Leftover = countStatements(rules)

	var ps policy.PermSorter
	if opts.Classmap != nil {
		ps = opts.Classmap
	}

	res.Output, err = output.Build(opts.Output, rules, normalized.Genfs, ps)
	if err != nil {
		return nil, fmt.Errorf("build output: %w", err)
	}

	res.Stats.Files = len(res.Output.Files())

	logger.InfoContext(ctx, "decompiled policy",
		slog.String("macro_calls", humanize.Comma(int64(res.Stats.Calls))),
		slog.String("leftover", humanize.Comma(int64(res.Stats.Leftover))),
		slog.Int("files", res.Stats.Files),
	)

	return res, nil
}

func normalize(ctx context.Context, inputs []Input, stats *Stats) (*cil.Result, error) {
	ctx, span := tracer.Start(ctx, "normalize")
	defer span.End()

	n := cil.NewNormalizer()

	for _, in := range inputs {
		stmts, err := cil.Parse(in.Reader)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%s: %w", in.Name, err)
		}

		stats.Statements += len(stmts)

		for _, stmt := range stmts {
			err := n.Add(ctx, stmt)
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("%s: %w", in.Name, err)
			}
		}
	}

	return n.Result(ctx), nil
}

func runMatch(ctx context.Context, s *store.Store, catalog *macro.Catalog) (match.Stats, error) {
	ctx, span := tracer.Start(ctx, "match", trace.WithAttributes(
		attribute.Int("rules", s.Len()),
	))
	defer span.End()

	stats, err := match.Run(ctx, s, catalog.Macros())
	if err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("match macros: %w", err)
	}

	span.SetAttributes(
		attribute.Int("candidates", stats.Candidates),
		attribute.Int("calls", stats.Calls),
	)

	log.WithContext(ctx).DebugContext(ctx, "matched macros",
		slog.Int("candidates", stats.Candidates),
		slog.Int("resolved", stats.Resolved),
		slog.Int("calls", stats.Calls),
		slog.Int("skipped", stats.Skipped),
	)

	return stats, nil
}

func countStatements(rules []*policy.Rule) int {
	n := 0
	for _, r := range rules {
		if !r.IsMacro() {
			n++
		}
	}

	return n
}
