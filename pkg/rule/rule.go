package rule

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/macropower/decil/pkg/expr"
	"github.com/macropower/decil/pkg/policy"
)

var (
	// ErrFile is returned when a rule names no file, or both a file and a
	// file expression.
	ErrFile = errors.New("exactly one of file and fileExpr must be set")

	// ErrNotCompiled is returned when a rule is evaluated before
	// [Rule.Compile].
	ErrNotCompiled = errors.New("rule is not compiled")

	identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	environment = sync.OnceValues(func() (*expr.Environment, error) {
		return expr.NewEnvironment(
			cel.Variable("kind", cel.StringType),
			cel.Variable("macro", cel.StringType),
			cel.Variable("subject", cel.StringType),
			cel.Variable("parts", cel.ListType(cel.StringType)),
			cel.Variable("args", cel.ListType(cel.StringType)),
		)
	})
)

// Rule selects the output file of the statements its Match expression
// accepts.
//
// Expressions have access to the variables:
//   - `kind` (string): statement keyword, or "macro" for macro calls
//   - `macro` (string): macro name of a macro call, otherwise empty
//   - `subject` (string): first part when it is a plain type name, otherwise empty
//   - `parts` (list<string>): positional parts as written
//   - `args` (list<string>): permissions, attributes or other unordered arguments
//
// Examples:
//   - kind == "type" && "dev_type" in args
//   - kind in ["attribute", "expandattribute"]
//   - subject.endsWith("_prop")
//   - FileExpr: domainOf(subject) + ".te"
type Rule struct {
	matchProgram cel.Program
	fileProgram  cel.Program

	// Match is a CEL expression returning a bool.
	Match string `json:"match" jsonschema:"title=Match Expression"`
	// File is the output file name for matching statements.
	File string `json:"file,omitempty" jsonschema:"title=File Name"`
	// FileExpr is a CEL expression returning the output file name.
	FileExpr string `json:"fileExpr,omitempty" jsonschema:"title=File Name Expression"`
}

// New creates a rule writing statements accepted by match to file.
func New(match, file string) (*Rule, error) {
	r := &Rule{Match: match, File: file}
	if err := r.Compile(); err != nil {
		return nil, err
	}

	return r, nil
}

// NewExpr creates a rule writing statements accepted by match to the file
// named by fileExpr.
func NewExpr(match, fileExpr string) (*Rule, error) {
	r := &Rule{Match: match, FileExpr: fileExpr}
	if err := r.Compile(); err != nil {
		return nil, err
	}

	return r, nil
}

// MustNew creates a new rule and panics if there's an error.
func MustNew(match, file string) *Rule {
	r, err := New(match, file)
	if err != nil {
		panic(err)
	}

	return r
}

// Compile compiles the rule's expressions. It is a no-op for compiled rules.
func (r *Rule) Compile() error {
	if r.matchProgram != nil {
		return nil
	}

	if (r.File == "") == (r.FileExpr == "") {
		return fmt.Errorf("rule %q: %w", r.Match, ErrFile)
	}

	env, err := environment()
	if err != nil {
		return err
	}

	match, err := env.Compile(r.Match)
	if err != nil {
		return fmt.Errorf("rule %q: match: %w", r.Match, err)
	}

	if r.FileExpr != "" {
		r.fileProgram, err = env.Compile(r.FileExpr)
		if err != nil {
			return fmt.Errorf("rule %q: fileExpr: %w", r.Match, err)
		}
	}

	r.matchProgram = match

	return nil
}

// Evaluate returns the output file for pr, and false if the rule does not
// match it.
func (r *Rule) Evaluate(pr *policy.Rule) (string, bool, error) {
	if r.matchProgram == nil {
		return "", false, ErrNotCompiled
	}

	vars := Vars(pr)

	ok, err := expr.EvalBool(r.matchProgram, vars)
	if err != nil {
		return "", false, fmt.Errorf("rule %q: %w", r.Match, err)
	}

	if !ok {
		return "", false, nil
	}

	if r.fileProgram == nil {
		return r.File, true, nil
	}

	file, err := expr.EvalString(r.fileProgram, vars)
	if err != nil {
		return "", false, fmt.Errorf("rule %q: fileExpr: %w", r.Match, err)
	}

	return file, true, nil
}

func (r *Rule) String() string {
	if r.File != "" {
		return fmt.Sprintf("%s: %s", r.File, r.Match)
	}

	return fmt.Sprintf("(%s): %s", r.FileExpr, r.Match)
}

// Vars returns the expression variables describing pr.
func Vars(pr *policy.Rule) map[string]any {
	parts := make([]string, 0, len(pr.Parts()))
	for _, p := range pr.Parts() {
		parts = append(parts, p.String())
	}

	return map[string]any{
		"kind":    pr.Kind().String(),
		"macro":   pr.Macro(),
		"subject": Subject(pr),
		"parts":   parts,
		"args":    append([]string{}, pr.Args().Items()...),
	}
}

// Subject returns the first part of pr when it is a plain type name.
func Subject(pr *policy.Rule) string {
	if len(pr.Parts()) == 0 {
		return ""
	}

	name, ok := pr.Part(0).(policy.Name)
	if !ok || !identRe.MatchString(string(name)) {
		return ""
	}

	return string(name)
}
