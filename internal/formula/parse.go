package formula

import (
	"errors"
	"fmt"
	"strings"
)

// Call is a parsed GENERATE formula.
type Call struct {
	Code   string
	Prompt string
	Ref    string
}

var errNotFormula = errors.New("not a GENERATE formula")

// IsFormula reports whether line looks like =GENERATE(...).
func IsFormula(line string) bool {
	s := strings.TrimPrefix(strings.TrimSpace(line), "=")
	return len(s) >= len("GENERATE(") && strings.EqualFold(s[:len("GENERATE(")], "GENERATE(")
}

// Parse reads =GENERATE("code", "prompt"[, Ref]). The first two arguments are
// double-quoted strings ("" escapes a quote); the third is a bare cell
// reference.
func Parse(line string) (Call, error) {
	if !IsFormula(line) {
		return Call{}, errNotFormula
	}
	s := strings.TrimPrefix(strings.TrimSpace(line), "=")
	s = s[len("GENERATE("):]
	if !strings.HasSuffix(s, ")") {
		return Call{}, errors.New("missing closing parenthesis")
	}
	args, err := splitArgs(s[:len(s)-1])
	if err != nil {
		return Call{}, err
	}
	if len(args) < 2 || len(args) > 3 {
		return Call{}, fmt.Errorf("GENERATE takes 2 or 3 arguments, got %d", len(args))
	}

	var c Call
	if c.Code, err = unquote(args[0]); err != nil {
		return Call{}, fmt.Errorf("provider: %w", err)
	}
	if c.Prompt, err = unquote(args[1]); err != nil {
		return Call{}, fmt.Errorf("prompt: %w", err)
	}
	if len(args) == 3 {
		c.Ref = strings.TrimSpace(args[2])
		if strings.HasPrefix(c.Ref, `"`) {
			return Call{}, errors.New("context must be a cell reference")
		}
	}
	return c, nil
}

func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			cur.WriteByte(ch)
			if inQuote && i+1 < len(s) && s[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			inQuote = !inQuote
		case ch == ',' && !inQuote:
			args = append(args, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, errors.New("unterminated string")
	}
	args = append(args, cur.String())
	return args, nil
}

func unquote(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if len(arg) < 2 || arg[0] != '"' || arg[len(arg)-1] != '"' {
		return "", fmt.Errorf("expected a quoted string, got %q", arg)
	}
	return strings.ReplaceAll(arg[1:len(arg)-1], `""`, `"`), nil
}
