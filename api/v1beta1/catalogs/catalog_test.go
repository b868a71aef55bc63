package catalogs_test

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/api/v1beta1/catalogs"
	"github.com/macropower/decil/pkg/config"
	"github.com/macropower/decil/pkg/macro"
)

func loadBuiltin(t *testing.T) *catalogs.Catalog {
	t.Helper()

	cl := config.NewLoaderFromBytes(catalogs.BuiltinYAML(), catalogs.New, catalogs.DefaultValidator)

	c, err := cl.ValidateAndLoad()
	require.NoError(t, err)

	return c
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	c := loadBuiltin(t)

	assert.Equal(t, "MacroCatalog", c.GetKind())
	assert.Len(t, c.Macros, 37)

	perms, err := macro.NewPermissionSets(c.PermissionSets)
	require.NoError(t, err)

	tcs := map[string]struct {
		vars        map[string]string
		wantMacros  int
		wantCap2Set bool
	}{
		"board api level 202404": {
			vars:        map[string]string{"target_board_api_level": "202404"},
			wantMacros:  36,
			wantCap2Set: true,
		},
		"board api level 202304": {
			vars:       map[string]string{"target_board_api_level": "202304"},
			wantMacros: 36,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cat, err := macro.New(t.Context(), perms, c.Macros, tc.vars)
			require.NoError(t, err)

			assert.Len(t, cat.Macros(), tc.wantMacros)

			var wakelock *macro.Definition
			for _, d := range cat.Definitions() {
				if d.Name == "wakelock_use" {
					require.Nil(t, wakelock, "wakelock_use enabled twice")
					wakelock = d
				}
			}

			require.NotNil(t, wakelock)
			assert.Equal(t, tc.wantCap2Set, containsLine(wakelock.Body, "allow $1 self:cap2_userns block_suspend;"))
		})
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	c := catalogs.New()
	c.Merge(&catalogs.Catalog{
		PermissionSets: []*macro.PermissionSet{{Name: "r_vendor_perms", Perms: []string{"read"}}},
		Macros:         []*macro.Definition{{Name: "vendor_macro", Body: "typeattribute $1 vendor;"}},
	})
	c.Merge(loadBuiltin(t))

	assert.Equal(t, "r_vendor_perms", c.PermissionSets[0].Name)
	assert.Equal(t, "vendor_macro", c.Macros[0].Name)
	assert.Len(t, c.Macros, 38)
}

func TestWriteBuiltin(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, catalogs.WriteBuiltin(path, false))

	cl, err := config.NewLoaderFromFile(path, catalogs.New, catalogs.DefaultValidator)
	require.NoError(t, err)

	c, err := cl.ValidateAndLoad()
	require.NoError(t, err)
	assert.Len(t, c.Macros, 37)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input  string
		errMsg string
	}{
		"wrong kind": {
			input: `apiVersion: decil.jacobcolvin.com/v1beta1
kind: Configuration
`,
			errMsg: "kind",
		},
		"macro without body": {
			input: `apiVersion: decil.jacobcolvin.com/v1beta1
kind: MacroCatalog
macros:
  - name: net_domain
`,
			errMsg: "body",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := config.NewLoaderFromBytes([]byte(tc.input), catalogs.New, catalogs.DefaultValidator).Validate()
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func containsLine(body, line string) bool {
	return slices.Contains(strings.Split(body, "\n"), line)
}
