// Package fieldtable renders FMS field_table files.
//
// Each tracer becomes one TRACER entry. Plain settings are written as
// "key", "value" pairs; a setting given as a table is a method whose "name"
// entry is the method name and whose other entries become "key=value"
// controls on the same line.
package fieldtable

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Marshal renders tracers (tracer name → settings). Tracers named in order
// come first, in that order; the rest follow sorted. Settings and method
// controls are sorted.
func Marshal(tracers map[string]any, order []string) ([]byte, error) {
	names, err := tracerOrder(tracers, order)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, name := range names {
		settings, ok := tracers[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field_table tracer %s: want table, got %T", name, tracers[name])
		}
		lines := []string{fmt.Sprintf(` "TRACER", "atmos_mod", "%s"`, name)}
		for _, key := range sortedKeys(settings) {
			line, err := setting(key, settings[key])
			if err != nil {
				return nil, fmt.Errorf("field_table tracer %s: %w", name, err)
			}
			lines = append(lines, line)
		}
		lines[len(lines)-1] += " /"
		for _, l := range lines {
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

func tracerOrder(tracers map[string]any, order []string) ([]string, error) {
	seen := make(map[string]bool, len(order))
	names := make([]string, 0, len(tracers))
	for _, name := range order {
		if _, ok := tracers[name]; !ok {
			return nil, fmt.Errorf("field_table: tracer %q listed but not defined", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("field_table: tracer %q listed twice", name)
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, name := range sortedKeys(tracers) {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names, nil
}

func setting(key string, v any) (string, error) {
	method, ok := v.(map[string]any)
	if !ok {
		s, err := scalar(v)
		if err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		return fmt.Sprintf(`%11s"%s", "%s"`, "", key, s), nil
	}

	name, ok := method["name"].(string)
	if !ok {
		return "", fmt.Errorf("%s: method table needs a string name", key)
	}
	line := fmt.Sprintf(`%7s"%s", "%s"`, "", key, name)
	for _, k := range sortedKeys(method) {
		if k == "name" {
			continue
		}
		s, err := scalar(method[k])
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", key, k, err)
		}
		line += fmt.Sprintf(`, "%s=%s"`, k, s)
	}
	return line, nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s, nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
