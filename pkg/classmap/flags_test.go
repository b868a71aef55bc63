package classmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/pkg/classmap"
	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/store"
	"github.com/macropower/decil/pkg/te"
)

func TestDetectFlags(t *testing.T) {
	t.Parallel()

	s := store.New()
	for _, r := range te.MustParse(`
allow domain su:fd use;
typeattribute asanwrapper_exec exec_type;
neverallow { domain -coredomain } build_prop:property_service set;
allow domain x:file all_perms;
`) {
		s.Insert(r)
	}

	flags := []classmap.Flag{
		{Name: "target_build_variant", Rule: "allow domain su:fd use;", Present: "userdebug", Absent: "user"},
		{Name: "target_with_asan", Rule: "type asanwrapper_exec, exec_type;", Present: "true", Absent: "false"},
		{
			Name:    "target_treble_sysprop_neverallow",
			Rule:    "neverallow { domain -coredomain } build_prop:property_service set;",
			Present: "true",
			Absent:  "false",
		},
		{Name: "target_full_treble", Rule: "allow domain vendor_file:dir { getattr search };", Present: "true", Absent: "false"},
		{Name: "folded", Rule: "allow domain x:file { read write };", Present: "yes", Absent: "no"},
	}

	fold := func(r *policy.Rule) *policy.Rule {
		if r.Kind() == policy.KindAllow && r.Args().Contains("read") {
			return r.WithArgs(policy.NewSet("all_perms"))
		}

		return r
	}

	vars, err := classmap.DetectFlags(t.Context(), s, map[string]string{
		"mls_num_sens":       "1",
		"target_full_treble": "unset",
	}, flags, fold)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"mls_num_sens":                     "1",
		"target_build_variant":             "userdebug",
		"target_with_asan":                 "true",
		"target_treble_sysprop_neverallow": "true",
		"target_full_treble":               "false",
		"folded":                           "yes",
	}, vars)
}

func TestDetectFlags_BadRule(t *testing.T) {
	t.Parallel()

	_, err := classmap.DetectFlags(t.Context(), store.New(), nil,
		[]classmap.Flag{{Name: "x", Rule: "foo(bar);"}}, nil)
	require.ErrorIs(t, err, te.ErrUnsupportedStatement)

	_, err = classmap.DetectFlags(t.Context(), store.New(), nil,
		[]classmap.Flag{{Name: "x", Rule: "type foo;"}}, nil)
	require.ErrorIs(t, err, te.ErrSyntax)
}
