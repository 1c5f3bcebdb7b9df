// Package prompt renders prompt templates with {var} placeholders.
package prompt

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var (
	ErrMissingVariable = errors.New("missing template variable")
	ErrInvalidTemplate = errors.New("invalid template")
)

// Prompt is anything that renders to a single prompt string.
type Prompt interface {
	// Vars returns the variables still needed by Format, sorted.
	Vars() []string
	Format(vars map[string]any) (string, error)
}

type segment struct {
	text     string
	variable bool
}

// Template is a text with {name} placeholders. {{ and }} render as literal braces.
type Template struct {
	text     string
	segments []segment
	partials map[string]any
}

func isVarRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func parse(text string) ([]segment, error) {
	res := []segment{}
	var lit strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '{' && i+1 < len(runes) && runes[i+1] == '{':
			lit.WriteRune('{')
			i++
		case r == '}' && i+1 < len(runes) && runes[i+1] == '}':
			lit.WriteRune('}')
			i++
		case r == '}':
			return nil, errors.Wrapf(ErrInvalidTemplate, "single '}' at %d", i)
		case r == '{':
			end := i + 1
			for end < len(runes) && runes[end] != '}' {
				if !isVarRune(runes[end]) {
					return nil, errors.Wrapf(ErrInvalidTemplate, "invalid character %q in variable at %d", runes[end], end)
				}
				end++
			}
			if end >= len(runes) {
				return nil, errors.Wrapf(ErrInvalidTemplate, "unclosed '{' at %d", i)
			}
			if end == i+1 {
				return nil, errors.Wrapf(ErrInvalidTemplate, "empty variable at %d", i)
			}

			if lit.Len() > 0 {
				res = append(res, segment{text: lit.String()})
				lit.Reset()
			}
			res = append(res, segment{text: string(runes[i+1 : end]), variable: true})
			i = end
		default:
			lit.WriteRune(r)
		}
	}

	if lit.Len() > 0 {
		res = append(res, segment{text: lit.String()})
	}

	return res, nil
}

// NewTemplate parses text.
func NewTemplate(text string) (*Template, error) {
	segments, err := parse(text)
	if err != nil {
		return nil, err
	}

	return &Template{text: text, segments: segments, partials: map[string]any{}}, nil
}

// MustTemplate is like [NewTemplate] but panics on error. Use it for package level templates.
func MustTemplate(text string) *Template {
	tpl, err := NewTemplate(text)
	if err != nil {
		panic(err)
	}

	return tpl
}

// Text returns the source text.
func (t *Template) Text() string {
	return t.text
}

func (t *Template) Vars() []string {
	seen := map[string]struct{}{}
	for _, seg := range t.segments {
		if !seg.variable {
			continue
		}
		if _, ok := t.partials[seg.text]; ok {
			continue
		}
		seen[seg.text] = struct{}{}
	}

	return slices.Sorted(maps.Keys(seen))
}

// Partial returns a copy of the template with vars already bound.
func (t *Template) Partial(vars map[string]any) *Template {
	partials := maps.Clone(t.partials)
	maps.Copy(partials, vars)

	return &Template{text: t.text, segments: t.segments, partials: partials}
}

// Format substitutes every placeholder. Values given here override partial values.
func (t *Template) Format(vars map[string]any) (string, error) {
	var sb strings.Builder
	for _, seg := range t.segments {
		if !seg.variable {
			sb.WriteString(seg.text)

			continue
		}

		value, ok := vars[seg.text]
		if !ok {
			value, ok = t.partials[seg.text]
		}
		if !ok {
			return "", errors.Wrapf(ErrMissingVariable, "%q", seg.text)
		}

		sb.WriteString(ToString(value))
	}

	return sb.String(), nil
}

// ToString renders a template value. String slices are joined with blank lines.
func ToString(value any) string {
	switch v := value.(type) {
	case []string:
		return strings.Join(v, "\n\n")
	case fmt.Stringer:
		return v.String()
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	return s
}

var _ Prompt = (*Template)(nil)
