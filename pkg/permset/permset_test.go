package permset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/pkg/permset"
	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/te"
)

func TestFolder_Fold(t *testing.T) {
	t.Parallel()

	rFile := []string{"getattr", "open", "read", "ioctl", "lock", "map", "watch", "watch_reads"}
	wFile := []string{"open", "append", "write", "lock", "map"}

	folder := permset.NewFolder(
		permset.Set{Name: "r_file_perms", Perms: policy.NewSet(rFile...)},
		permset.Set{Name: "rw_file_perms", Perms: policy.NewSet(append(rFile, wFile...)...)},
		permset.Set{Name: "x_file_perms", Perms: policy.NewSet("getattr", "execute", "execute_no_trans", "map")},
		permset.Set{
			Name:  "no_x_file_perms",
			Perms: policy.NewSet("execute", "execute_no_trans"),
			Kinds: []policy.Kind{policy.KindNeverAllow},
		},
	)

	tests := map[string]struct {
		input string
		want  string
	}{
		"exact set": {
			input: "allow a b:file { getattr open read ioctl lock map watch watch_reads };",
			want:  "allow a b:file r_file_perms;",
		},
		"largest set first": {
			input: "allow a b:file { getattr open read ioctl lock map watch watch_reads append write create };",
			want:  "allow a b:file { create rw_file_perms };",
		},
		"partial set": {
			input: "allow a b:file { read open };",
			want:  "allow a b:file { open read };",
		},
		"neverallow only set": {
			input: "neverallow a b:file { execute execute_no_trans };",
			want:  "neverallow a b:file no_x_file_perms;",
		},
		"neverallow ignores allow sets": {
			input: "neverallow a b:file { getattr open read ioctl lock map watch watch_reads };",
			want:  "neverallow a b:file { getattr ioctl lock map open read watch watch_reads };",
		},
		"dontaudit": {
			input: "dontaudit a b:file { getattr open read ioctl lock map watch watch_reads };",
			want:  "dontaudit a b:file r_file_perms;",
		},
		"other kinds unchanged": {
			input: "typeattribute a domain;",
			want:  "typeattribute a domain;",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rules, err := te.Parse(tc.input)
			require.NoError(t, err)
			require.Len(t, rules, 1)

			assert.Equal(t, tc.want, folder.Fold(rules[0]).String())
		})
	}
}

func TestNewFolder_Order(t *testing.T) {
	t.Parallel()

	folder := permset.NewFolder(
		permset.Set{Name: "b", Perms: policy.NewSet("x")},
		permset.Set{Name: "c", Perms: policy.NewSet("x", "y")},
		permset.Set{Name: "a", Perms: policy.NewSet("y")},
	)

	names := []string{}
	for _, s := range folder.Sets() {
		names = append(names, s.Name)
	}

	assert.Equal(t, []string{"c", "a", "b"}, names)
	assert.Equal(t, permset.DefaultKinds, folder.Sets()[0].Kinds)
}
