package cil

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSyntax is returned when CIL text is not a balanced S-expression.
var ErrSyntax = errors.New("cil syntax error")

// Node is either an atom or a list of nodes.
type Node struct {
	Atom string
	List []Node
	Line int
	list bool
}

// NewAtom returns an atom [Node].
func NewAtom(s string) Node {
	return Node{Atom: s}
}

// NewList returns a list [Node].
func NewList(children ...Node) Node {
	return Node{List: children, list: true}
}

// IsList reports whether the node is a list.
func (n Node) IsList() bool {
	return n.list
}

// IsAtom reports whether the node is the atom s.
func (n Node) IsAtom(s string) bool {
	return !n.list && n.Atom == s
}

// Atoms returns the values of a list made only of atoms.
func (n Node) Atoms() ([]string, bool) {
	if !n.list {
		return nil, false
	}

	out := make([]string, 0, len(n.List))
	for _, c := range n.List {
		if c.list {
			return nil, false
		}

		out = append(out, c.Atom)
	}

	return out, true
}

func (n Node) String() string {
	if !n.list {
		return n.Atom
	}

	parts := make([]string, 0, len(n.List))
	for _, c := range n.List {
		parts = append(parts, c.String())
	}

	return "(" + strings.Join(parts, " ") + ")"
}

// Parse reads every top-level statement from r. Comments start with `;` and
// run to the end of the line. Quoted atoms are returned without quotes.
func Parse(r io.Reader) ([]Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read cil: %w", err)
	}

	return ParseString(string(data))
}

// ParseString is [Parse] for an in-memory string.
func ParseString(s string) ([]Node, error) {
	var (
		stack [][]Node
		lines []int
		top   []Node
		line  = 1
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c == '\n':
			line++

		case c == ' ' || c == '\t' || c == '\r':

		case c == ';':
			for i < len(s) && s[i] != '\n' {
				i++
			}

			i--

		case c == '(':
			stack = append(stack, nil)
			lines = append(lines, line)

		case c == ')':
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: line %d: unexpected ')'", ErrSyntax, line)
			}

			n := Node{List: stack[len(stack)-1], Line: lines[len(lines)-1], list: true}
			stack = stack[:len(stack)-1]
			lines = lines[:len(lines)-1]

			if len(stack) == 0 {
				top = append(top, n)
			} else {
				stack[len(stack)-1] = append(stack[len(stack)-1], n)
			}

		case c == '"':
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: line %d: unterminated string", ErrSyntax, line)
			}

			atom := s[i+1 : i+1+end]
			line += strings.Count(atom, "\n")
			i += end + 1

			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: line %d: atom %q outside of a statement", ErrSyntax, line, atom)
			}

			stack[len(stack)-1] = append(stack[len(stack)-1], Node{Atom: atom, Line: line})

		default:
			start := i
			for i < len(s) && !isDelimiter(s[i]) {
				i++
			}

			atom := s[start:i]
			i--

			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: line %d: atom %q outside of a statement", ErrSyntax, line, atom)
			}

			stack[len(stack)-1] = append(stack[len(stack)-1], Node{Atom: atom, Line: line})
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: line %d: unclosed '('", ErrSyntax, lines[len(lines)-1])
	}

	return top, nil
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '(', ')', ';', '"':
		return true
	}

	return false
}
