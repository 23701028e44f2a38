package archive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownPlaceholder = errors.New("unknown placeholder")
	ErrMalformedTemplate  = errors.New("malformed template")
)

// Vars supplies values for {name} placeholders.
type Vars map[string]string

// Expand substitutes every {name} in tmpl from vars.
func Expand(tmpl string, vars Vars) (string, error) {
	var sb strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return "", fmt.Errorf("%w: stray '}' in %q", ErrMalformedTemplate, tmpl)
			}
			sb.WriteString(rest)
			return sb.String(), nil
		}
		if strings.IndexByte(rest[:open], '}') >= 0 {
			return "", fmt.Errorf("%w: stray '}' in %q", ErrMalformedTemplate, tmpl)
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated '{' in %q", ErrMalformedTemplate, tmpl)
		}
		name := rest[open+1 : open+end]
		val, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("%w {%s} in %q", ErrUnknownPlaceholder, name, tmpl)
		}
		sb.WriteString(rest[:open])
		sb.WriteString(val)
		rest = rest[open+end+1:]
	}
}

// Placeholders lists the distinct placeholder names in tmpl.
func Placeholders(tmpl string) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return names, nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated '{' in %q", ErrMalformedTemplate, tmpl)
		}
		name := rest[open+1 : open+end]
		if name == "" || strings.ContainsAny(name, "{") {
			return nil, fmt.Errorf("%w: bad placeholder in %q", ErrMalformedTemplate, tmpl)
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
		rest = rest[open+end+1:]
	}
}
