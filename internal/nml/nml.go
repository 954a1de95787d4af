// Package nml reads and renders Fortran namelist files.
//
// Groups and the keys inside them are written in sorted order so the same
// configuration always produces the same file.
package nml

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Marshal renders groups (group name → key → value) as namelist text.
func Marshal(groups map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, groups); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes groups to w.
func Encode(w io.Writer, groups map[string]any) error {
	for _, name := range sortedKeys(groups) {
		members, ok := groups[name].(map[string]any)
		if !ok {
			return fmt.Errorf("namelist group %s: want table, got %T", name, groups[name])
		}
		if _, err := fmt.Fprintf(w, "&%s\n", name); err != nil {
			return err
		}
		for _, key := range sortedKeys(members) {
			v, err := value(members[key])
			if err != nil {
				return fmt.Errorf("namelist %s.%s: %w", name, key, err)
			}
			if _, err := fmt.Fprintf(w, "    %s = %s\n", key, v); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "/\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile renders groups to path.
func WriteFile(path string, groups map[string]any) error {
	data, err := Marshal(groups)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func value(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case Raw:
		return string(x), nil
	case bool:
		if x {
			return ".true.", nil
		}
		return ".false.", nil
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
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			s, err := value(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
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
