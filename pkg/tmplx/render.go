// Package tmplx substitutes {{ name }} placeholders in email subjects and
// bodies, and renders template previews.
package tmplx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {{ name }} with optional inner whitespace. A
// name is any run without braces, so keys such as "first name", "prénom" or
// "user:name" are placeholders too.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Render replaces every placeholder whose key is present in vars with the
// stringified value. Keys are case-sensitive. Placeholders with no matching
// key are left byte-identical. Substituted values are not re-scanned.
func Render(template string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(template, "{{") {
		return template
	}

	matches := placeholderPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		name := template[m[2]:m[3]]

		value, ok := vars[name]
		if !ok {
			continue
		}
		b.WriteString(template[last:start])
		b.WriteString(Stringify(value))
		last = end
	}
	b.WriteString(template[last:])

	return b.String()
}

// Placeholders lists the placeholder names in template, in order of first
// appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if strings.TrimSpace(m[1]) == "" {
			continue
		}
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Missing lists the placeholder names in template that vars does not define.
func Missing(template string, vars map[string]any) []string {
	var missing []string
	for _, name := range Placeholders(template) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Stringify renders a variable value. Numbers use their shortest decimal
// form; nil renders as the empty string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
