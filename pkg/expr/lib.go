package expr

import (
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
)

// domainSuffixes are stripped, in order, by [DomainOf].
var domainSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`_exec$`),
	regexp.MustCompile(`_client$`),
	regexp.MustCompile(`_server$`),
	regexp.MustCompile(`_default$`),
	regexp.MustCompile(`_hwservice$`),
	regexp.MustCompile(`_qti$`),
}

// DomainOf returns the domain a type name belongs to, e.g. `foo` for
// `vendor_foo_exec` and `hal_light` for `hal_light_default`.
func DomainOf(name string) string {
	name = strings.TrimPrefix(name, "vendor_")
	for _, re := range domainSuffixes {
		name = re.ReplaceAllString(name, "")
	}

	return name
}

type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Math(),
		ext.Strings(),
		ext.Lists(),

		cel.Constant("fs.CREATE", types.IntType, types.Int(fsnotify.Create)),
		cel.Constant("fs.REMOVE", types.IntType, types.Int(fsnotify.Remove)),
		cel.Constant("fs.WRITE", types.IntType, types.Int(fsnotify.Write)),
		cel.Constant("fs.RENAME", types.IntType, types.Int(fsnotify.Rename)),
		cel.Constant("fs.CHMOD", types.IntType, types.Int(fsnotify.Chmod)),

		// Example: op.has(fs.CREATE, fs.WRITE).
		cel.Macros(
			cel.ReceiverVarArgMacro("has", hasVarArgMacro),
		),
		cel.Function("@has",
			cel.Overload("@has_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.BoolType,
				cel.BinaryBinding(func(event, flag ref.Val) ref.Val {
					op, ok := toOp(event)
					if !ok {
						return types.NewErr("has: invalid event value")
					}

					mask, ok := toOp(flag)
					if !ok {
						return types.NewErr("has: invalid flag value")
					}

					return types.Bool(op.Has(mask))
				}),
			),
			cel.Overload("@has_int_list_int", []*cel.Type{cel.IntType, cel.ListType(cel.IntType)}, cel.BoolType,
				cel.BinaryBinding(func(event, flags ref.Val) ref.Val {
					op, ok := toOp(event)
					if !ok {
						return types.NewErr("has: invalid event value")
					}

					list, ok := flags.(traits.Lister)
					if !ok {
						return types.NewErr("has: invalid flags list")
					}

					size, ok := list.Size().(types.Int)
					if !ok {
						return types.NewErr("has: invalid flags list size")
					}

					for i := range size {
						mask, ok := toOp(list.Get(i))
						if !ok {
							return types.NewErr("has: invalid flag value in list")
						}

						if op.Has(mask) {
							return types.True
						}
					}

					return types.False
				}),
			),
		),

		// Example: domainOf(subject) + ".te".
		cel.Function("domainOf",
			cel.Overload("domain_of", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(name ref.Val) ref.Val {
					s, ok := name.(types.String)
					if !ok {
						return types.NewErr("domainOf: invalid string value")
					}

					return types.String(DomainOf(string(s)))
				}),
			),
		),

		// Example: pathExt(path) == ".cil".
		cel.Function("pathBase",
			cel.Overload("path_base", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathBase", filepath.Base)),
			),
		),
		cel.Function("pathDir",
			cel.Overload("path_dir", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathDir", filepath.Dir)),
			),
		),
		cel.Function("pathExt",
			cel.Overload("path_ext", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathExt", filepath.Ext)),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func stringFunc(name string, fn func(string) string) func(ref.Val) ref.Val {
	return func(v ref.Val) ref.Val {
		s, ok := v.(types.String)
		if !ok {
			return types.NewErr("%s: invalid string value", name)
		}

		return types.String(fn(string(s)))
	}
}

func toOp(v ref.Val) (fsnotify.Op, bool) {
	i, ok := v.(types.Int)
	if !ok || i < 0 || i > math.MaxUint32 {
		return 0, false
	}

	return fsnotify.Op(i), true
}

//nolint:ireturn // Following CEL's function signature.
func hasVarArgMacro(meh cel.MacroExprFactory, target ast.Expr, args []ast.Expr) (ast.Expr, *cel.Error) {
	switch len(args) {
	case 0:
		return nil, meh.NewError(target.ID(), "has() requires at least one argument")
	case 1:
		return meh.NewCall("@has", target, args[0]), nil
	default:
		return meh.NewCall("@has", target, meh.NewList(args...)), nil
	}
}
