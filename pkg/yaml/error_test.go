package yaml_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goccyyaml "github.com/goccy/go-yaml"

	"github.com/macropower/decil/pkg/yaml"
)

func mustBuildPath(t *testing.T, parts ...string) *goccyyaml.Path {
	t.Helper()

	pb := yaml.NewPathBuilder().Root()
	for _, p := range parts {
		pb = pb.Child(p)
	}

	return pb.Build()
}

const catalogSource = `apiVersion: decil.jacobcolvin.com/v1beta1
kind: MacroCatalog
macros:
  - name: net_domain
    body: typeattribute $1 netdomain;
`

func TestError_AnnotatesSource(t *testing.T) {
	t.Parallel()

	errTest := errors.New("test error")

	err := yaml.NewError(errTest,
		yaml.WithPath(mustBuildPath(t, "kind")),
		yaml.WithSource([]byte(catalogSource)),
	)

	got := err.Error()
	assert.True(t, strings.HasPrefix(got, "[2:1] test error:"), got)
	assert.Contains(t, got, "kind: MacroCatalog")
	require.ErrorIs(t, err, errTest)
}

func TestError_WithoutSource(t *testing.T) {
	t.Parallel()

	err := yaml.NewError(errors.New("value is required"),
		yaml.WithPath(mustBuildPath(t, "macros")),
	)

	assert.Equal(t, "error at $.macros: value is required", err.Error())
}

func TestDecoder_SyntaxError(t *testing.T) {
	t.Parallel()

	var v any

	err := yaml.NewDecoder(strings.NewReader("macros: [\n  - a\n")).Decode(&v)
	require.Error(t, err)

	var yamlErr *yaml.Error
	require.ErrorAs(t, err, &yamlErr)
	assert.NotNil(t, yamlErr.Token)
}

func TestErrorWrapper_Wrap(t *testing.T) {
	t.Parallel()

	ew := yaml.NewErrorWrapper(yaml.WithSource([]byte(catalogSource)))

	plain := errors.New("plain")
	require.NoError(t, ew.Wrap(nil))
	assert.Same(t, plain, ew.Wrap(plain))

	wrapped := ew.Wrap(yaml.NewError(errors.New("bad kind"),
		yaml.WithPath(mustBuildPath(t, "kind")),
	))

	var yamlErr *yaml.Error
	require.ErrorAs(t, wrapped, &yamlErr)
	assert.Equal(t, []byte(catalogSource), yamlErr.Source)
	assert.Contains(t, wrapped.Error(), "bad kind")
}
