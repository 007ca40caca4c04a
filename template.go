package main

import (
	"fmt"
	"strings"
)

// TemplateError reports a template that cannot be rendered. It is recoverable:
// the reminder cycle logs it and skips the dispatch, then retries on the next
// tick once the user fixes the template.
type TemplateError struct {
	Template    string
	Placeholder string
	Reason      string
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template error: %s %q in %q", e.Reason, e.Placeholder, e.Template)
	}
	return fmt.Sprintf("template error: %s in %q", e.Reason, e.Template)
}

// RenderTemplate substitutes {fieldName} placeholders from the field map.
// Substitution is name-based, {{ and }} are literal-brace escapes, and an
// unknown field, unclosed brace, or stray } returns a *TemplateError.
func RenderTemplate(tmpl string, fields map[string]string) (string, error) {
	var out strings.Builder
	out.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				out.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", &TemplateError{Template: tmpl, Reason: "unclosed placeholder"}
			}
			name := tmpl[i+1 : i+1+end]
			if name == "" || strings.ContainsAny(name, "{ \t") {
				return "", &TemplateError{Template: tmpl, Placeholder: name, Reason: "malformed placeholder"}
			}
			value, ok := fields[name]
			if !ok {
				return "", &TemplateError{Template: tmpl, Placeholder: name, Reason: "unknown field"}
			}
			out.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				out.WriteByte('}')
				i++
				continue
			}
			return "", &TemplateError{Template: tmpl, Reason: "unmatched closing brace"}
		default:
			out.WriteByte(tmpl[i])
		}
	}

	return out.String(), nil
}

// ValidateTemplate checks that a template renders against the full field set.
// Used by settings validation so broken templates are rejected before they
// reach the reminder cycle.
func ValidateTemplate(tmpl string) error {
	_, err := RenderTemplate(tmpl, Decompose(0).Fields())
	return err
}
