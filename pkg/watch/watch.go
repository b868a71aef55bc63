package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/decil/pkg/expr"
	"github.com/macropower/decil/pkg/log"
)

// DefaultMatch reloads on content changes and on editors replacing files.
const DefaultMatch = `op.has(fs.WRITE, fs.CREATE, fs.RENAME)`

var environment = sync.OnceValues(func() (*expr.Environment, error) {
	return expr.NewEnvironment(
		cel.Variable("file", cel.StringType),
		cel.Variable("op", cel.IntType),
	)
})

// Config configures which file events trigger a re-run.
type Config struct {
	program cel.Program

	// Match is a CEL expression over `file` (string) and `op` (int) that
	// returns true when the event should trigger a re-run.
	Match string `json:"match,omitempty" jsonschema:"title=Event Filter"`
}

// NewConfig returns a [Config] with default values.
func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults sets unset fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.Match == "" {
		c.Match = DefaultMatch
	}
}

// Compile compiles the match expression.
func (c *Config) Compile() error {
	if c.program != nil {
		return nil
	}

	env, err := environment()
	if err != nil {
		return err
	}

	program, err := env.Compile(c.Match)
	if err != nil {
		return fmt.Errorf("watch match: %w", err)
	}

	c.program = program

	return nil
}

// Matches reports whether an event for file should trigger a re-run.
func (c *Config) Matches(file string, op fsnotify.Op) (bool, error) {
	err := c.Compile()
	if err != nil {
		return false, err
	}

	ok, err := expr.EvalBool(c.program, map[string]any{
		"file": file,
		"op":   int64(op),
	})
	if err != nil {
		return false, fmt.Errorf("watch match: %w", err)
	}

	return ok, nil
}

// Watcher watches a fixed set of files.
type Watcher struct {
	tracer  trace.Tracer
	cfg     *Config
	watcher *fsnotify.Watcher

	// Parent directories are watched so that files replaced by rename are
	// still seen; events are then filtered to the watched files.
	files map[string]struct{}
}

// New creates a [Watcher] for files.
func New(cfg *Config, files ...string) (*Watcher, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	err := cfg.Compile()
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		tracer:  otel.Tracer("watch"),
		cfg:     cfg,
		watcher: fsw,
		files:   make(map[string]struct{}, len(files)),
	}

	dirs := map[string]struct{}{}

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("resolve %s: %w", f, err), w.Close())
		}

		w.files[abs] = struct{}{}

		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}

		err = fsw.Add(dir)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("add path to watcher: %w", err), w.Close())
		}

		dirs[dir] = struct{}{}
	}

	return w, nil
}

// Run calls fn for every matching event until ctx is done. Errors returned
// by fn are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	logger := log.WithContext(ctx)

	logger.InfoContext(ctx, "watching for changes", slog.Int("files", len(w.files)))

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			w.handle(ctx, evt, fn)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			logger.ErrorContext(ctx, "watch", slog.Any("err", err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, evt fsnotify.Event, fn func(ctx context.Context) error) {
	if _, ok := w.files[filepath.Clean(evt.Name)]; !ok {
		return
	}

	logger := log.WithContext(ctx)

	matched, err := w.cfg.Matches(evt.Name, evt.Op)
	if err != nil {
		logger.ErrorContext(ctx, "match file event",
			slog.String("event", evt.String()),
			slog.Any("err", err),
		)

		return
	}

	if !matched {
		logger.DebugContext(ctx, "skipping event", slog.String("event", evt.String()))
		return
	}

	ctx, span := w.tracer.Start(ctx, "rerun", trace.WithAttributes(
		attribute.String("file", evt.Name),
		attribute.String("op", evt.Op.String()),
	))
	defer span.End()

	logger = logger.With(slog.String("file", evt.Name))
	ctx = log.NewContext(ctx, logger)

	logger.InfoContext(ctx, "re-running", slog.String("op", evt.Op.String()))

	err = fn(ctx)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "re-run failed", slog.Any("err", err))
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	if err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}

	return nil
}
