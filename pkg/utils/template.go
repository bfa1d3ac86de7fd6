package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderVars replaces {{key}} placeholders with vars[key]. Unknown keys are left untouched.
func RenderVars(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

// StringVars flattens a JSON-ish map into template variables.
func StringVars(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch x := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = x
		case float64:
			if x == float64(int64(x)) {
				out[k] = fmt.Sprintf("%d", int64(x))
			} else {
				out[k] = fmt.Sprintf("%.2f", x)
			}
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

// FirstName returns the first word of name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
