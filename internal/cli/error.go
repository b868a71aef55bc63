package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"

	"github.com/macropower/decil/pkg/output"
)

// ErrorHandler renders command errors for [fang.Execute]. Usage errors get
// a pointer to --help, and a failed --check a pointer to the fix.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	body := lipgloss.NewStyle().MarginLeft(2)

	mustN(fmt.Fprintln(w, styles.ErrorHeader.String()))
	mustN(fmt.Fprintln(w, body.Render(err.Error())))
	mustN(fmt.Fprintln(w))

	var hint []string

	switch {
	case isUsageError(err):
		hint = []string{"Try", styles.Program.Flag.Render("--help"), "for usage."}
	case errors.Is(err, output.ErrOutputDiffers):
		hint = []string{"Run again without", styles.Program.Flag.Render("--check"), "to update the files."}
	default:
		return
	}

	text := styles.ErrorText.UnsetWidth()
	mustN(fmt.Fprintln(w, lipgloss.JoinHorizontal(
		lipgloss.Left,
		text.Render(hint[0]),
		hint[1],
		text.UnsetMargins().UnsetTransform().PaddingLeft(1).Render(hint[2]),
	)))
	mustN(fmt.Fprintln(w))
}

// isUsageError matches the messages of cobra's argument and flag errors,
// which are not typed.
func isUsageError(err error) bool {
	s := err.Error()
	for _, prefix := range []string{
		"flag needs an argument:",
		"unknown flag:",
		"unknown shorthand flag:",
		"unknown command",
		"invalid argument",
		"requires at least",
		"accepts at most",
	} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustN(_ int, err error) {
	must(err)
}
