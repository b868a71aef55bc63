package output

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/macropower/decil/pkg/policy"
)

// ErrInvalidFile is returned when a group rule names a file outside the
// output directory.
var ErrInvalidFile = errors.New("invalid output file name")

// File is one rendered output file.
type File struct {
	Name  string
	Rules []*policy.Rule
	Data  []byte
}

// Output is the grouped and rendered policy.
type Output struct {
	files []*File
}

// Build groups rules into files and renders them. Rules are assigned with
// the first matching group of cfg; genfs statements go to cfg.GenfsFile in
// their input order. ps orders permissions and may be nil.
func Build(cfg *Config, rules, genfs []*policy.Rule, ps policy.PermSorter) (*Output, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	byName := map[string]*File{}

	for _, r := range rules {
		name, err := fileFor(cfg, r)
		if err != nil {
			return nil, err
		}

		f, ok := byName[name]
		if !ok {
			f = &File{Name: name}
			byName[name] = f
		}

		f.Rules = append(f.Rules, r)
	}

	files := make([]*File, 0, len(byName)+1)
	for _, f := range byName {
		SortRules(f.Rules)
		f.Data = Render(f.Rules, ps)
		files = append(files, f)
	}

	if len(genfs) > 0 {
		if _, ok := byName[cfg.GenfsFile]; ok {
			return nil, fmt.Errorf("%w: %s is used by a group and for genfs statements", ErrInvalidFile, cfg.GenfsFile)
		}

		files = append(files, &File{
			Name:  cfg.GenfsFile,
			Rules: genfs,
			Data:  renderLines(genfs, ps),
		})
	}

	slices.SortFunc(files, func(a, b *File) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return &Output{files: files}, nil
}

// Files returns the rendered files sorted by name.
func (o *Output) Files() []*File {
	return o.files
}

func fileFor(cfg *Config, r *policy.Rule) (string, error) {
	name := cfg.Fallback

	for _, g := range cfg.Groups {
		file, ok, err := g.Evaluate(r)
		if err != nil {
			return "", fmt.Errorf("%s: %w", r, err)
		}

		if ok {
			name = file
			break
		}
	}

	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q for %s", ErrInvalidFile, name, r)
	}

	return name, nil
}

// SortRules orders rules for output: statements before macro calls, then by
// type, parts and arguments.
func SortRules(rules []*policy.Rule) {
	slices.SortStableFunc(rules, compareRules)
}

func compareRules(a, b *policy.Rule) int {
	if a.IsMacro() != b.IsMacro() {
		if a.IsMacro() {
			return 1
		}

		return -1
	}

	if c := cmp.Compare(a.Type(), b.Type()); c != 0 {
		return c
	}

	if c := slices.CompareFunc(a.Parts(), b.Parts(), func(x, y policy.Part) int {
		return cmp.Compare(x.String(), y.String())
	}); c != 0 {
		return c
	}

	return slices.Compare(a.Args().Items(), b.Args().Items())
}

// Render renders sorted rules, with a blank line wherever the statement
// type or macro name changes.
func Render(rules []*policy.Rule, ps policy.PermSorter) []byte {
	var sb strings.Builder

	for i, r := range rules {
		if i > 0 && r.Type() != rules[i-1].Type() {
			sb.WriteByte('\n')
		}

		sb.WriteString(policy.Format(r, ps))
		sb.WriteByte('\n')
	}

	return []byte(sb.String())
}

func renderLines(rules []*policy.Rule, ps policy.PermSorter) []byte {
	var sb strings.Builder

	for _, r := range rules {
		sb.WriteString(policy.Format(r, ps))
		sb.WriteByte('\n')
	}

	return []byte(sb.String())
}
