// Package template renders dynamic stage configuration values against the
// state of a running execution.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Context is the data a configuration template can reference: the run's
// trigger data, the outputs of already-completed stages, the execution id and
// the process environment.
type Context struct {
	ExecutionID string
	TriggerData map[string]any
	Results     map[string]any
}

// NeedsRendering reports whether a string references template syntax. Plain
// values skip the parse entirely.
func NeedsRendering(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderConfig returns a copy of config with every templated string value
// rendered. Non-string and non-templated values pass through untouched.
func RenderConfig(config map[string]any, tctx Context) (map[string]any, error) {
	if len(config) == 0 {
		return config, nil
	}

	out := make(map[string]any, len(config))

	for key, value := range config {
		str, ok := value.(string)
		if !ok || !NeedsRendering(str) {
			out[key] = value

			continue
		}

		rendered, err := RenderWithContext(str, tctx)
		if err != nil {
			return nil, fmt.Errorf("config key %s: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

// RenderWithContext renders one template string against the execution state.
func RenderWithContext(input string, tctx Context) (any, error) {
	data := map[string]any{
		"trigger_data": tctx.TriggerData,
		"results":      tctx.Results,
		"env":          getEnvVars(),
		"execution": map[string]any{
			"id": tctx.ExecutionID,
		},
	}

	return Render(input, data)
}

// Render executes the template string against data. Results that parse as
// JSON, numbers or booleans are returned typed; everything else stays a
// string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
