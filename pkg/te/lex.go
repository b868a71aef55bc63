package te

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPunct
	tokString
)

type token struct {
	text string
	line int
	kind tokenKind
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

func (t token) String() string {
	if t.kind == tokString {
		return fmt.Sprintf("%q", t.text)
	}

	return t.text
}

const punctuation = "{}:;,~()"

// lex splits src into tokens. Comments start with `#`.
func lex(src string) ([]token, error) {
	var (
		toks []token
		line = 1
	)

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '\n':
			line++

		case c == ' ' || c == '\t' || c == '\r':

		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}

			i--

		case strings.IndexByte(punctuation, c) >= 0:
			toks = append(toks, token{text: string(c), line: line, kind: tokPunct})

		case c == '"':
			end := strings.IndexByte(src[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: line %d: unterminated string", ErrSyntax, line)
			}

			toks = append(toks, token{text: src[i+1 : i+1+end], line: line, kind: tokString})
			i += end + 1

		default:
			start := i
			for i < len(src) && !isSpace(src[i]) && src[i] != '"' && src[i] != '#' &&
				strings.IndexByte(punctuation, src[i]) < 0 {
				i++
			}

			toks = append(toks, token{text: src[start:i], line: line, kind: tokWord})
			i--
		}
	}

	return toks, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
