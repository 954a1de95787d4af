// Package config loads uwflow's TOML configuration and gives typed access to
// its blocks. Configuration is read once and never mutated afterwards.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/uwflow/uwflow/internal/domain"
)

// Section is a read-only view of one TOML table. The zero value is an empty
// root section.
type Section struct {
	path string
	data map[string]any
}

// KeyError reports a missing key by its dotted path.
type KeyError struct {
	Path string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("config key not found: %s", e.Path)
}

func (e *KeyError) Unwrap() error { return domain.ErrConfigMissing }

// Load reads the config file at path, or r when path is empty.
func Load(path string, r io.Reader) (Section, error) {
	if path == "" {
		if r == nil {
			r = os.Stdin
		}
		return Decode(r)
	}
	f, err := os.Open(path)
	if err != nil {
		return Section{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses TOML from r.
func Decode(r io.Reader) (Section, error) {
	data := make(map[string]any)
	if _, err := toml.NewDecoder(r).Decode(&data); err != nil {
		return Section{}, fmt.Errorf("parse config: %w", err)
	}
	return Section{data: data}, nil
}

// FromMap wraps an already-decoded tree.
func FromMap(m map[string]any) Section {
	return Section{data: m}
}

// Path returns the dotted path of this section ("" for the root).
func (s Section) Path() string { return s.path }

func (s Section) join(key string) string {
	if s.path == "" {
		return key
	}
	return s.path + "." + key
}

// Has reports whether key is present.
func (s Section) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

// Keys returns the keys of this section in sorted order.
func (s Section) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the raw value at key.
func (s Section) Value(key string) (any, error) {
	v, ok := s.data[key]
	if !ok {
		return nil, &KeyError{Path: s.join(key)}
	}
	return v, nil
}

// Section returns the sub-table at key.
func (s Section) Section(key string) (Section, error) {
	v, err := s.Value(key)
	if err != nil {
		return Section{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Section{}, typeError(s.join(key), "table", v)
	}
	return Section{path: s.join(key), data: m}, nil
}

// OptSection returns the sub-table at key, or an empty section if absent.
func (s Section) OptSection(key string) (Section, error) {
	if !s.Has(key) {
		return Section{path: s.join(key), data: map[string]any{}}, nil
	}
	return s.Section(key)
}

// String returns the string at key.
func (s Section) String(key string) (string, error) {
	v, err := s.Value(key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", typeError(s.join(key), "string", v)
	}
	return str, nil
}

// StringOr returns the string at key, or def when the key is absent.
func (s Section) StringOr(key, def string) (string, error) {
	if !s.Has(key) {
		return def, nil
	}
	return s.String(key)
}

// Int returns the integer at key.
func (s Section) Int(key string) (int, error) {
	v, err := s.Value(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, typeError(s.join(key), "integer", v)
	}
}

// IntOr returns the integer at key, or def when the key is absent.
func (s Section) IntOr(key string, def int) (int, error) {
	if !s.Has(key) {
		return def, nil
	}
	return s.Int(key)
}

// Float returns the number at key; integers are widened.
func (s Section) Float(key string) (float64, error) {
	v, err := s.Value(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, typeError(s.join(key), "number", v)
	}
}

// Bool returns the boolean at key.
func (s Section) Bool(key string) (bool, error) {
	v, err := s.Value(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeError(s.join(key), "boolean", v)
	}
	return b, nil
}

// Strings returns the array of strings at key; absent means nil.
func (s Section) Strings(key string) ([]string, error) {
	if !s.Has(key) {
		return nil, nil
	}
	v := s.data[key]
	switch arr := v.(type) {
	case []string:
		return append([]string(nil), arr...), nil
	case []any:
		out := make([]string, 0, len(arr))
		for i, item := range arr {
			str, ok := item.(string)
			if !ok {
				return nil, typeError(fmt.Sprintf("%s[%d]", s.join(key), i), "string", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, typeError(s.join(key), "array", v)
	}
}

// StringMap returns the table at key as string pairs (e.g. destination →
// source maps); absent means empty.
func (s Section) StringMap(key string) (map[string]string, error) {
	sec, err := s.OptSection(key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(sec.data))
	for k, v := range sec.data {
		str, ok := v.(string)
		if !ok {
			return nil, typeError(sec.join(k), "string", v)
		}
		out[k] = str
	}
	return out, nil
}

// Map returns a shallow copy of the section's tree.
func (s Section) Map() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Format renders a scalar config value the way it appears in generated
// input files: integral floats keep a trailing ".0".
func Format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprint(x)
	}
}

func typeError(path, want string, got any) error {
	return fmt.Errorf("%w: %s: want %s, got %T", domain.ErrConfigType, path, want, got)
}

// ─── Home Directory ─────────────────────────────────────────────────────────

// Home returns the uwflow data directory ($UWFLOW_HOME or ~/.uwflow).
func Home() string {
	if env := os.Getenv("UWFLOW_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".uwflow")
}
