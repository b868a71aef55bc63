package cli_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacros(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		args      []string
		wantFirst string
		wantLines int
	}{
		"fuzzy query": {
			args:      []string{"getprop"},
			wantFirst: "get_prop",
		},
		"body": {
			args:      []string{"--body", "net_domain"},
			wantFirst: "net_domain",
		},
		"all": {
			args:      []string{},
			wantLines: 37,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			args := append([]string{"macros", "--config", filepath.Join(dir, "config.yaml")}, tc.args...)

			out, err := execute(t, args...)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			if tc.wantFirst != "" {
				assert.True(t, strings.HasPrefix(lines[0], tc.wantFirst), lines[0])
			}

			if tc.wantLines > 0 {
				assert.Len(t, lines, tc.wantLines)
			}
		})
	}
}

func TestMacros_WriteCatalog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vendor_macros.yaml")

	_, err := execute(t, "macros", "--config", filepath.Join(dir, "config.yaml"), "--write-catalog", path)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "kind: MacroCatalog")
}
