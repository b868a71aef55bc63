package match_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/decil/pkg/match"
	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/store"
	"github.com/macropower/decil/pkg/te"
)

type macroDef struct {
	name string
	body string
}

func compile(t *testing.T, defs ...macroDef) []*match.Macro {
	t.Helper()

	out := make([]*match.Macro, 0, len(defs))
	for _, d := range defs {
		rules, err := te.Parse(d.body)
		require.NoError(t, err)

		m, err := match.Compile(d.name, rules)
		require.NoError(t, err)

		out = append(out, m)
	}

	return out
}

func load(t *testing.T, src string) *store.Store {
	t.Helper()

	rules, err := te.Parse(src)
	require.NoError(t, err)

	s := store.New()
	for _, r := range rules {
		s.Insert(r)
	}

	return s
}

// expand substitutes args for the placeholders of body.
func expand(body string, args ...string) string {
	for i := len(args); i > 0; i-- {
		body = strings.ReplaceAll(body, "$"+strconv.Itoa(i), args[i-1])
	}

	return body
}

func rendered(t *testing.T, src string) []string {
	t.Helper()

	out := []string{}
	for _, r := range te.MustParse(src) {
		out = append(out, r.String())
	}

	return out
}

func remaining(s *store.Store) []string {
	out := []string{}
	s.Walk(func(r *policy.Rule) bool {
		out = append(out, r.String())
		return true
	})

	return out
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		macros []macroDef
		input  string
		want   []string
	}{
		"two placeholders": {
			macros: []macroDef{{
				name: "file_read",
				body: "allow $1 $2:file read;\nallow $1 $2:dir search;",
			}},
			input: "allow a b:file read;\nallow a b:dir search;\nallow c d:file read;",
			want:  []string{"allow c d:file read;", "file_read(a, b)"},
		},
		"embedded placeholder": {
			macros: []macroDef{{
				name: "init_daemon_domain",
				body: "type_transition init $1_exec:process $1;\nallow init $1_exec:file execute;",
			}},
			input: "type_transition init foo_exec:process foo;\nallow init foo_exec:file execute;\n" +
				"type_transition init bar_exec:process baz;\nallow init bar_exec:file execute;",
			want: []string{
				"type_transition init bar_exec:process baz;",
				"allow init bar_exec:file execute;",
				"init_daemon_domain(foo)",
			},
		},
		"embedded placeholders try every split": {
			macros: []macroDef{{
				name: "split",
				body: "allow $1 $2_$3:file read;\nallow $2 x:dir search;",
			}},
			input: "allow a foo_bar_baz:file read;\nallow foo x:dir search;",
			want:  []string{"split(a, foo, bar_baz)"},
		},
		"intersection placeholder": {
			macros: []macroDef{{
				name: "both_props",
				body: "allow $1 { $2 && vendor_property_type }:file read;",
			}},
			input: "allow a { system_property_type && vendor_property_type }:file read;\nallow a { system_property_type vendor_property_type }:file read;",
			want:  []string{"allow a { system_property_type vendor_property_type }:file read;", "both_props(a, system_property_type)"},
		},
		"type expression placeholder": {
			macros: []macroDef{{
				name: "no_write",
				body: "neverallow { domain -$1 } $1:file write;",
			}},
			input: "neverallow { domain -a } a:file write;\nneverallow { domain -a } b:file write;",
			want:  []string{"neverallow { domain -a } b:file write;", "no_write(a)"},
		},
		"whole placeholder binds a type expression": {
			macros: []macroDef{{
				name: "reader",
				body: "allow $1 $2:file read;",
			}},
			input: "allow { a b } c:file read;",
			want:  []string{"reader({ a b }, c)"},
		},
		"unordered permissions": {
			macros: []macroDef{{
				name: "set_prop",
				body: "allow $1 $2:property_service set;\nallow $1 $2:file { getattr map open read };",
			}},
			input: "allow a p:property_service set;\nallow a p:file { read open map getattr };",
			want:  []string{"set_prop(a, p)"},
		},
		"strict superset wins": {
			macros: []macroDef{
				{name: "small", body: "allow $1 $2:file read;"},
				{name: "big", body: "allow $1 $2:file read;\nallow $1 $2:dir search;"},
			},
			input: "allow a b:file read;\nallow a b:dir search;",
			want:  []string{"big(a, b)"},
		},
		"fewer arguments win": {
			macros: []macroDef{
				{name: "pair", body: "allow $1 $2:file read;"},
				{name: "self_read", body: "allow $1 $1:file read;"},
			},
			input: "allow a a:file read;",
			want:  []string{"self_read(a)"},
		},
		"earlier macro wins a tie": {
			macros: []macroDef{
				{name: "first", body: "allow $1 b:file read;"},
				{name: "second", body: "allow a $1:file read;"},
			},
			input: "allow a b:file read;",
			want:  []string{"first(a)"},
		},
		"missing template leaves rules": {
			macros: []macroDef{{
				name: "file_read",
				body: "allow $1 $2:file read;\nallow $1 $2:dir search;",
			}},
			input: "allow a b:file read;",
			want:  []string{"allow a b:file read;"},
		},
		"attribute rules consumed twice": {
			macros: []macroDef{
				{name: "left", body: "typeattribute $1 domain;\nallow $1 x:file read;"},
				{name: "right", body: "typeattribute $1 domain;\nallow $1 y:file read;"},
			},
			input: "typeattribute a domain;\nallow a x:file read;\nallow a y:file read;",
			want:  []string{"left(a)", "right(a)"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := load(t, tc.input)

			_, err := match.Run(t.Context(), s, compile(t, tc.macros...))
			require.NoError(t, err)

			assert.Equal(t, tc.want, remaining(s))
		})
	}
}

func TestRun_DoubleRemoval(t *testing.T) {
	t.Parallel()

	s := load(t, "allow a b:file read;\nallow a c:file read;")
	macros := compile(t, macroDef{name: "bc", body: "allow $1 b:file read;\nallow $1 c:file read;"})

	found, err := match.Find(t.Context(), s, macros)
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, s.Remove(te.MustParse("allow a c:file read;")[0]))

	_, err = match.Apply(t.Context(), s, found)
	require.ErrorIs(t, err, match.ErrDoubleRemoval)

	// The failed call changed nothing.
	assert.Equal(t, []string{"allow a b:file read;"}, remaining(s))
}

func TestRun_SharedRules(t *testing.T) {
	t.Parallel()

	const (
		socketConnect = "allow $1 $2_socket:sock_file write;\nallow $1 $3:unix_stream_socket connectto;"
		socketSend    = "allow $1 $2_socket:sock_file write;\nallow $1 $3:unix_dgram_socket sendto;"
		autoTrans     = "allow $1 $2:file { getattr open read execute map };\n" +
			"allow $1 $3:process transition;\n" +
			"allow $3 $2:file { entrypoint open read execute getattr map };\n" +
			"dontaudit $1 $3:process noatsecure;\n" +
			"allow $1 $3:process { siginh rlimitinh };\n" +
			"type_transition $1 $2:process $3;"
	)

	tcs := map[string]struct {
		macros      []macroDef
		input       string
		want        []string
		wantSkipped int
	}{
		"calls of different macros share a rule": {
			macros: []macroDef{
				{name: "unix_socket_connect", body: socketConnect},
				{name: "unix_socket_send", body: socketSend},
			},
			input: expand(socketConnect, "a", "foo", "foo") + "\n" + expand(socketSend, "a", "foo", "foo"),
			want:  []string{"unix_socket_connect(a, foo, foo)", "unix_socket_send(a, foo, foo)"},
		},
		"calls of one macro share rules": {
			macros: []macroDef{{name: "domain_auto_trans", body: autoTrans}},
			input:  expand(autoTrans, "init", "a_exec", "foo") + "\n" + expand(autoTrans, "init", "b_exec", "foo"),
			want:   []string{"domain_auto_trans(init, a_exec, foo)", "domain_auto_trans(init, b_exec, foo)"},
		},
		"partial overlap": {
			macros: []macroDef{
				{name: "bc", body: "allow $1 b:file read;\nallow $1 c:file read;"},
				{name: "cd", body: "allow $1 c:file read;\nallow $1 d:file read;"},
			},
			input: "allow a b:file read;\nallow a c:file read;\nallow a d:file read;",
			want:  []string{"bc(a)", "cd(a)"},
		},
		"call covered by earlier calls is skipped": {
			macros: []macroDef{
				{name: "bc", body: "allow $1 b:file read;\nallow $1 c:file read;"},
				{name: "de", body: "allow $1 d:file read;\nallow $1 e:file read;"},
				{name: "cd", body: "allow $1 c:file read;\nallow $1 d:file read;"},
			},
			input:       "allow a b:file read;\nallow a c:file read;\nallow a d:file read;\nallow a e:file read;",
			want:        []string{"bc(a)", "de(a)"},
			wantSkipped: 1,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := load(t, tc.input)

			stats, err := match.Run(t.Context(), s, compile(t, tc.macros...))
			require.NoError(t, err)

			assert.Equal(t, tc.want, remaining(s))
			assert.Equal(t, tc.wantSkipped, stats.Skipped)
			assert.Equal(t, len(tc.want), stats.Calls)
		})
	}
}

func TestRun_DomainTrans(t *testing.T) {
	t.Parallel()

	const domainTrans = "allow $1 $2:file { getattr open read execute map };\n" +
		"allow $1 $3:process transition;\n" +
		"allow $3 $2:file { entrypoint open read execute getattr map };\n" +
		"dontaudit $1 $3:process noatsecure;\n" +
		"allow $1 $3:process { siginh rlimitinh };"

	s := load(t, expand(domainTrans, "init", "foo_exec_t", "foo_t"))
	macros := compile(t, macroDef{name: "domain_trans", body: domainTrans})

	found, err := match.Find(t.Context(), s, macros)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"init", "foo_exec_t", "foo_t"}, found[0].Binding.Args(3))
	assert.Len(t, found[0].Consumed, 5)

	stats, err := match.Run(t.Context(), s, macros)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Calls)
	assert.Equal(t, []string{"domain_trans(init, foo_exec_t, foo_t)"}, remaining(s))
}

func TestRun_RoundTrip(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		body string
		args []string
	}{
		"get_prop": {
			body: "allow $1 $2:file { getattr open read map };",
			args: []string{"httpd_t", "system_prop_t"},
		},
		"embedded placeholders": {
			body: "type_transition $1 $2_exec:process $2;\nallow $1 $2_exec:file { execute read };\nallow $2 $2_exec:file entrypoint;",
			args: []string{"init", "vendor_foo"},
		},
		"type expression": {
			body: "neverallow { domain -$1 } $2:file write;\nallow $1 $2:file write;",
			args: []string{"foo", "foo_data_file"},
		},
		"set_prop": {
			body: "allow $1 $2:property_service set;\nallow $1 $2:file { getattr open read map };\nallow $1 init:unix_stream_socket connectto;",
			args: []string{"vendor_foo", "vendor_foo_prop"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			src := expand(tc.body, tc.args...)
			s := load(t, src)
			macros := compile(t, macroDef{name: name, body: tc.body})

			found, err := match.Find(t.Context(), s, macros)
			require.NoError(t, err)
			require.Len(t, found, 1)
			assert.Equal(t, tc.args, found[0].Binding.Args(len(tc.args)))

			_, err = match.Run(t.Context(), s, macros)
			require.NoError(t, err)

			require.Equal(t, 1, s.Len())

			// Expanding the call gives back the consumed rules.
			call := s.Rules()[0]
			require.True(t, call.IsMacro())

			args := make([]string, 0, len(call.Parts()))
			for _, p := range call.Parts() {
				args = append(args, p.String())
			}

			assert.ElementsMatch(t, rendered(t, src), rendered(t, expand(tc.body, args...)))
		})
	}
}

func TestRun_PermutationInvariance(t *testing.T) {
	t.Parallel()

	macros := []macroDef{{
		name: "file_read",
		body: "allow $1 $2:file read;\nallow $1 $2:dir search;",
	}}

	a := load(t, "allow x y:dir search;\nallow q r:file read;\nallow x y:file read;")
	b := load(t, "allow x y:file read;\nallow x y:dir search;\nallow q r:file read;")

	_, err := match.Run(t.Context(), a, compile(t, macros...))
	require.NoError(t, err)

	_, err = match.Run(t.Context(), b, compile(t, macros...))
	require.NoError(t, err)

	assert.ElementsMatch(t, remaining(a), remaining(b))
}

func TestFind_Candidates(t *testing.T) {
	t.Parallel()

	s := load(t, "allow a b:file read;\nallow c d:file read;")
	macros := compile(t, macroDef{name: "reader", body: "allow $1 $2:file read;"})

	found, err := match.Find(t.Context(), s, macros)
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "reader(a, b)", found[0].Call().String())
	assert.Equal(t, "reader(c, d)", found[1].Call().String())
	assert.Equal(t, 0, found[0].Order)
	assert.Equal(t, 1, found[1].Order)

	// Matching does not modify the store.
	assert.Equal(t, 2, s.Len())
}

func TestCompile_Empty(t *testing.T) {
	t.Parallel()

	_, err := match.Compile("empty", nil)
	require.ErrorIs(t, err, match.ErrEmptyMacro)
}

func TestCompile_Arity(t *testing.T) {
	t.Parallel()

	macros := compile(t, macroDef{
		name: "m",
		body: "allow $1 $3_exec:file read;\nallow { $2 -x } y:dir search;",
	})

	assert.Equal(t, 3, macros[0].Arity)
}
