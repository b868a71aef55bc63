package configs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/api/v1beta1/configs"
	"github.com/macropower/decil/pkg/config"
	"github.com/macropower/decil/pkg/output"
	"github.com/macropower/decil/pkg/watch"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := configs.New()

	assert.Equal(t, "decil.jacobcolvin.com/v1beta1", cfg.GetAPIVersion())
	assert.Equal(t, "Configuration", cfg.GetKind())
	assert.Equal(t, configs.DefaultVariables(), cfg.Variables.Defaults)
	assert.Equal(t, configs.DefaultFlags(), cfg.Variables.Flags)
	assert.True(t, cfg.Catalogs.UseBuiltin())
	assert.Equal(t, output.DefaultFallback, cfg.Output.Fallback)
	assert.Equal(t, watch.DefaultMatch, cfg.Watch.Match)
	require.NoError(t, cfg.Validate())
}

func TestConfig_EnsureDefaults_MergesVariables(t *testing.T) {
	t.Parallel()

	cfg := &configs.Config{
		Variables: &configs.Variables{
			Defaults: map[string]string{"target_board_api_level": "202504"},
		},
	}
	cfg.EnsureDefaults()

	assert.Equal(t, "202504", cfg.Variables.Defaults["target_board_api_level"])
	assert.Equal(t, "user", cfg.Variables.Defaults["target_build_variant"])
	assert.Len(t, cfg.Variables.Defaults, len(configs.DefaultVariables()))
}

func TestCatalogs(t *testing.T) {
	t.Parallel()

	off := false
	c := &configs.Catalogs{
		Builtin: &off,
		Paths:   []string{"vendor.yaml", "/etc/decil/extra.yaml"},
	}

	assert.False(t, c.UseBuiltin())
	assert.Equal(t,
		[]string{filepath.Join("/home/me/.config/decil", "vendor.yaml"), "/etc/decil/extra.yaml"},
		c.ResolvePaths("/home/me/.config/decil"),
	)
}

func TestDefaultConfigMatchesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, configs.WriteDefault(path, false))

	cl, err := config.NewLoaderFromFile(path, configs.New, configs.DefaultValidator)
	require.NoError(t, err)

	cfg, err := cl.ValidateAndLoad()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	want := configs.New()
	assert.Equal(t, want.Variables, cfg.Variables)
	assert.Equal(t, want.Output.Fallback, cfg.Output.Fallback)
	assert.Equal(t, want.Output.GenfsFile, cfg.Output.GenfsFile)
	assert.Equal(t, want.Watch.Match, cfg.Watch.Match)

	require.Len(t, cfg.Output.Groups, len(want.Output.Groups))

	for i, g := range cfg.Output.Groups {
		assert.Equal(t, want.Output.Groups[i].Match, g.Match)
		assert.Equal(t, want.Output.Groups[i].File, g.File)
		assert.Equal(t, want.Output.Groups[i].FileExpr, g.FileExpr)
	}
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, configs.WriteDefault(path, false))

	require.NoError(t, os.WriteFile(path, []byte("kind: Configuration\n"), 0o600))

	// Existing files are kept unless forced.
	require.NoError(t, configs.WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kind: Configuration\n", string(data))

	require.NoError(t, configs.WriteDefault(path, true))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kind: Configuration\n\nvariables:")

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(path), "config.yaml.*.old"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfig_MarshalYAML_RoundTrip(t *testing.T) {
	t.Parallel()

	data, err := configs.New().MarshalYAML()
	require.NoError(t, err)

	cfg, err := config.NewLoaderFromBytes(data, configs.New, configs.DefaultValidator).ValidateAndLoad()
	require.NoError(t, err)
	assert.Equal(t, configs.New().Variables, cfg.Variables)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input  string
		errMsg string
	}{
		"bad group expression": {
			input: `apiVersion: decil.jacobcolvin.com/v1beta1
kind: Configuration
output:
  groups:
    - match: 'kind =='
      file: x.te
`,
			errMsg: "validate output config",
		},
		"bad probe rule": {
			input: `apiVersion: decil.jacobcolvin.com/v1beta1
kind: Configuration
variables:
  flags:
    - name: x
      rule: 'allow a b;'
      present: "true"
      absent: "false"
`,
			errMsg: "validate flag x",
		},
		"bad watch expression": {
			input: `apiVersion: decil.jacobcolvin.com/v1beta1
kind: Configuration
watch:
  match: 'op.has()'
`,
			errMsg: "validate watch config",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.NewLoaderFromBytes([]byte(tc.input), configs.New, configs.DefaultValidator).
				ValidateAndLoad()
			require.NoError(t, err)

			err = cfg.Validate()
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}
