// Package rules applies deterministic fixups to transcribed answers.
// Speech recognizers reliably mangle names and jargon; a user-editable
// rules file corrects them before an answer reaches the input field.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Engine applies substitutions loaded from a rules file. A missing or
// empty file yields an identity engine.
type Engine struct {
	rules []rule
}

// NewEngine loads and compiles rules. Each non-comment line is either a
// case-insensitive literal substitution `from => to` or a sed-style
// expression `s/pattern/replacement/flags` (flags: i, g).
func NewEngine(path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return &Engine{}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Engine{}, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	engine := &Engine{}
	for index, raw := range strings.Split(string(contents), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		compiled, err := parseRule(line)
		if err != nil {
			return nil, fmt.Errorf("rules file %q line %d: %w", path, index+1, err)
		}
		engine.rules = append(engine.rules, compiled)
	}
	return engine, nil
}

// Apply transforms text deterministically, one pass per rule in file
// order, and trims surrounding whitespace.
func (e *Engine) Apply(text string) (string, error) {
	result := text
	for _, r := range e.rules {
		result = r.re.ReplaceAllString(result, r.replacement)
	}
	return strings.TrimSpace(result), nil
}

func parseRule(line string) (rule, error) {
	if strings.HasPrefix(line, "s/") {
		return parseRegexRule(line)
	}
	if strings.Contains(line, "=>") {
		return parseLiteralRule(line)
	}
	return rule{}, errors.New("unsupported rule format")
}

func parseLiteralRule(line string) (rule, error) {
	parts := strings.SplitN(line, "=>", 2)
	from := strings.TrimSpace(parts[0])
	to := strings.TrimSpace(parts[1])
	if from == "" {
		return rule{}, errors.New("literal rule source cannot be empty")
	}

	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return rule{}, fmt.Errorf("invalid literal source: %w", err)
	}
	return rule{re: re, replacement: to}, nil
}

func parseRegexRule(line string) (rule, error) {
	parts := splitUnescaped(line[2:], '/')
	if len(parts) < 2 {
		return rule{}, errors.New("invalid substitution expression")
	}
	pattern := parts[0]
	replacement := parts[1]

	flags := ""
	if len(parts) > 2 {
		flags = parts[2]
	}
	prefix := ""
	for _, flag := range flags {
		switch flag {
		case 'i':
			prefix += "i"
		case 'g':
			// All replacements are global; accepted for familiarity.
		default:
			return rule{}, fmt.Errorf("unsupported flag %q", flag)
		}
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return rule{}, fmt.Errorf("invalid pattern: %w", err)
	}
	return rule{re: re, replacement: replacement}, nil
}

func splitUnescaped(input string, delim byte) []string {
	var parts []string
	var builder strings.Builder
	escaped := false
	for i := 0; i < len(input); i++ {
		char := input[i]
		if escaped {
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			builder.WriteByte(char)
			continue
		}
		if char == delim {
			parts = append(parts, builder.String())
			builder.Reset()
			continue
		}
		builder.WriteByte(char)
	}
	parts = append(parts, builder.String())
	return parts
}
