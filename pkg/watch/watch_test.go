package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/pkg/watch"
)

func TestConfig_Matches(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		match string
		file  string
		op    fsnotify.Op
		want  bool
	}{
		"default write": {
			file: "/src/plat_sepolicy.cil",
			op:   fsnotify.Write,
			want: true,
		},
		"default chmod": {
			file: "/src/plat_sepolicy.cil",
			op:   fsnotify.Chmod,
			want: false,
		},
		"default combined ops": {
			file: "/src/plat_sepolicy.cil",
			op:   fsnotify.Chmod | fsnotify.Rename,
			want: true,
		},
		"file filter": {
			match: `pathExt(file) == ".cil" && op.has(fs.WRITE)`,
			file:  "/src/catalog.yaml",
			op:    fsnotify.Write,
			want:  false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := &watch.Config{Match: tc.match}
			cfg.EnsureDefaults()

			got, err := cfg.Matches(tc.file, tc.op)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConfig_CompileError(t *testing.T) {
	t.Parallel()

	cfg := &watch.Config{Match: `op.has()`}
	require.Error(t, cfg.Compile())

	cfg = &watch.Config{Match: `file`}
	_, err := cfg.Matches("a", fsnotify.Write)
	require.Error(t, err)
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	watched := filepath.Join(dir, "vendor_sepolicy.cil")
	other := filepath.Join(dir, "other.cil")

	require.NoError(t, os.WriteFile(watched, []byte("(allow a b (file (read)))\n"), 0o600))
	require.NoError(t, os.WriteFile(other, []byte(""), 0o600))

	w, err := watch.New(nil, watched)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, w.Close())
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runs := make(chan struct{}, 16)
	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			runs <- struct{}{}
			return nil
		})
	}()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(watched, []byte("(allow a b (file (write)))\n"), 0o600))

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for re-run")
	}

	cancel()
	require.NoError(t, <-done)
}
