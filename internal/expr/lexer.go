package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokKeyword
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

var keywords = map[string]bool{
	"and":      true,
	"or":       true,
	"not":      true,
	"contains": true,
}

func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++

		case r == '"' || r == '\'':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			tokens = append(tokens, token{kind: tokString, text: string(runes[i+1 : j])})
			i = j + 1

		case r == '=' || r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: string(runes[i : i+2])})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected character %q at position %d", r, i)
			}

		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '-' || runes[j] == '.') {
				j++
			}
			word := string(runes[i:j])
			if keywords[strings.ToLower(word)] {
				tokens = append(tokens, token{kind: tokKeyword, text: word})
			} else {
				tokens = append(tokens, token{kind: tokWord, text: word})
			}
			i = j

		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", r, i)
		}
	}

	return tokens, nil
}
