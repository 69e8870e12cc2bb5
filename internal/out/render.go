package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gustavo/advisor-cli/internal/config"
	"github.com/gustavo/advisor-cli/internal/model"
)

// Render writes the response envelope (or just its data payload with
// --results-only) as indented JSON or line-oriented plain text.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	var payload any
	if settings.ResultsOnly {
		payload = data
	} else if settings.OutputMode == "json" {
		env.Data = data
		payload = env
	} else {
		plain := map[string]any{
			"success":  env.Success,
			"data":     data,
			"warnings": env.Warnings,
			"meta":     env.Meta,
		}
		if env.Error != nil {
			plain["error"] = env.Error
		}
		payload = plain
	}

	if settings.OutputMode == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	return renderPlain(w, normalize(payload))
}

func renderPlain(w io.Writer, data any) error {
	items, ok := data.([]any)
	if !ok {
		line, err := toLine(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}

	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for _, item := range items {
		line, err := toLine(item)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func project(data any, fields []string) any {
	switch t := normalize(data).(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return t
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

// normalize round-trips through JSON so plain rendering and projection see
// maps and slices regardless of the concrete data type.
func normalize(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " "), nil
}
