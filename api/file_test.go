package api_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/api"
)

//nolint:paralleltest // Sets environment variables.
func TestGetConfigPath(t *testing.T) {
	tcs := map[string]struct {
		xdg  string
		home string
		want string
	}{
		"xdg config home": {
			xdg:  "/custom/config",
			home: "/test/home",
			want: "/custom/config/decil/config.yaml",
		},
		"home": {
			home: "/test/home",
			want: "/test/home/.config/decil/config.yaml",
		},
		"temp dir": {
			want: filepath.Join(os.TempDir(), "decil", "config.yaml"), //nolint:usetesting // Must equal the host temp dir.
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", tc.xdg)
			t.Setenv("HOME", tc.home)

			assert.Equal(t, tc.want, api.GetConfigPath("config.yaml"))
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: MacroCatalog\n"), 0o600))

	got, err := api.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kind: MacroCatalog\n", string(got))

	_, err = api.ReadFile(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = api.ReadFile(dir)
	require.ErrorIs(t, err, api.ErrIsDirectory)
}

func TestWriteDefaultFile(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		existing    string
		force       bool
		want        string
		wantBackups int
	}{
		"new file": {
			want: "default",
		},
		"existing file is kept": {
			existing: "custom",
			want:     "custom",
		},
		"existing file is backed up when forced": {
			existing:    "custom",
			force:       true,
			want:        "default",
			wantBackups: 1,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "a", "b", "config.yaml")
			if tc.existing != "" {
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
				require.NoError(t, os.WriteFile(path, []byte(tc.existing), 0o600))
			}

			require.NoError(t, api.WriteDefaultFile(path, []byte("default"), tc.force, "test"))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))

			backups, err := filepath.Glob(path + ".*.old")
			require.NoError(t, err)
			require.Len(t, backups, tc.wantBackups)

			for _, b := range backups {
				data, err := os.ReadFile(b)
				require.NoError(t, err)
				assert.Equal(t, tc.existing, string(data))
			}
		})
	}

	t.Run("directory", func(t *testing.T) {
		t.Parallel()

		err := api.WriteDefaultFile(t.TempDir(), []byte("default"), false, "test")
		require.ErrorIs(t, err, api.ErrIsDirectory)
	})
}
