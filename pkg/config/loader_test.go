package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/api/v1beta1/configs"
	"github.com/macropower/decil/pkg/config"
	"github.com/macropower/decil/pkg/yaml"
)

const minimal = `apiVersion: decil.jacobcolvin.com/v1beta1
kind: Configuration
`

func TestNewLoaderFromFile(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		setupFile func(t *testing.T) string
		wantErr   bool
	}{
		"valid file": {
			setupFile: func(t *testing.T) string {
				t.Helper()

				return createTempFile(t, minimal)
			},
		},
		"non-existent file": {
			setupFile: func(t *testing.T) string {
				t.Helper()

				return "/non/existent/file.yaml"
			},
			wantErr: true,
		},
		"directory instead of file": {
			setupFile: func(t *testing.T) string {
				t.Helper()

				return t.TempDir()
			},
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := config.NewLoaderFromFile(tc.setupFile(t), configs.New, configs.DefaultValidator)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestLoader_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input  string
		errMsg string
	}{
		"valid config": {
			input: minimal + `output:
  fallback: rest.te
`,
		},
		"invalid yaml": {
			input:  minimal + "variables: [unclosed\n",
			errMsg: "sequence end token ']' not found",
		},
		"missing required fields": {
			input:  "output:\n  fallback: rest.te\n",
			errMsg: "missing properties 'apiVersion', 'kind'",
		},
		"unknown field": {
			input:  minimal + "macros: []\n",
			errMsg: "additional properties 'macros' not allowed",
		},
		"group without match": {
			input: minimal + `output:
  groups:
    - file: all.te
`,
			errMsg: "missing property 'match'",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := config.NewLoaderFromBytes([]byte(tc.input), configs.New, configs.DefaultValidator).Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorContains(t, err, tc.errMsg)

			var yamlErr *yaml.Error
			assert.ErrorAs(t, err, &yamlErr)
		})
	}
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input        string
		errMsg       string
		wantFallback string
	}{
		"defaults applied": {
			input:        minimal,
			wantFallback: "leftover.te",
		},
		"fallback set": {
			input:        minimal + "output:\n  fallback: rest.te\n",
			wantFallback: "rest.te",
		},
		"missing required fields still loads": {
			input:        "output:\n  fallback: rest.te\n",
			wantFallback: "rest.te",
		},
		"invalid yaml": {
			input:  minimal + "variables: [unclosed\n",
			errMsg: "sequence end token ']' not found",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.NewLoaderFromBytes([]byte(tc.input), configs.New, configs.DefaultValidator).Load()
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				assert.Nil(t, cfg)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantFallback, cfg.Output.Fallback)
			assert.NotNil(t, cfg.Watch)
			assert.NotEmpty(t, cfg.Variables.Flags)
		})
	}
}

func TestLoader_WithValidator(t *testing.T) {
	t.Parallel()

	// Unknown fields pass without a validator.
	cl := config.NewLoaderFromBytes([]byte(minimal+"macros: []\n"), configs.New, configs.DefaultValidator,
		config.WithValidator(nil),
	)
	require.NoError(t, cl.Validate())
}

func TestLoader_WithColoredErrors(t *testing.T) {
	t.Parallel()

	cl := config.NewLoaderFromBytes([]byte(minimal+"kind: Other\n"), configs.New, configs.DefaultValidator,
		config.WithColoredErrors(true),
	)

	err := cl.Validate()
	require.Error(t, err)

	var yamlErr *yaml.Error
	require.ErrorAs(t, err, &yamlErr)
	assert.True(t, yamlErr.Colored)
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}
