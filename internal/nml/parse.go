package nml

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Raw is a value written verbatim, such as a repeat count ("3*0.0") read
// from a base namelist.
type Raw string

// ReadFile parses the namelist file at path.
func ReadFile(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	groups, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return groups, nil
}

// Parse reads namelist text into groups (group name → key → value). Group
// and key names are lower-cased. Values become string, bool, int64 or
// float64 where they parse as such and Raw otherwise; several values for one
// key become []any.
func Parse(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	toks, err := tokenize(string(data))
	if err != nil {
		return nil, err
	}

	groups := map[string]any{}
	var (
		group map[string]any
		name  string
		key   string
		vals  []any
	)
	flush := func() {
		if key != "" {
			if len(vals) == 1 {
				group[key] = vals[0]
			} else {
				group[key] = vals
			}
		}
		key, vals = "", nil
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case group == nil:
			if t.kind != tokGroup {
				return nil, fmt.Errorf("namelist: expected &group, got %q", t.text)
			}
			name, group = strings.ToLower(t.text), map[string]any{}
		case t.kind == tokEnd:
			flush()
			groups[name] = group
			group = nil
		case t.kind == tokComma:
		case t.kind == tokWord && i+1 < len(toks) && toks[i+1].kind == tokEquals:
			flush()
			key = strings.ToLower(t.text)
			i++
		case t.kind == tokEquals || t.kind == tokGroup:
			return nil, fmt.Errorf("namelist group %s: unexpected %q", name, t.text)
		case key == "":
			return nil, fmt.Errorf("namelist group %s: value %q without a key", name, t.text)
		default:
			vals = append(vals, t.value())
		}
	}
	if group != nil {
		return nil, fmt.Errorf("namelist group %s: missing closing /", name)
	}
	return groups, nil
}

// Merge overlays updates on base. Group and key names match
// case-insensitively; the base spelling is kept for matched names.
func Merge(base, updates map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(base)+len(updates))
	for name, g := range base {
		members, ok := g.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("namelist group %s: want table, got %T", name, g)
		}
		cp := make(map[string]any, len(members))
		for k, v := range members {
			cp[k] = v
		}
		out[name] = cp
	}
	for _, name := range sortedKeys(updates) {
		members, ok := updates[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("namelist group %s: want table, got %T", name, updates[name])
		}
		target, ok := out[fold(out, name)].(map[string]any)
		if !ok {
			target = map[string]any{}
			out[name] = target
		}
		for _, k := range sortedKeys(members) {
			target[fold(target, k)] = members[k]
		}
	}
	return out, nil
}

// fold returns the key in m equal to name under case folding, or name.
func fold(m map[string]any, name string) string {
	if _, ok := m[name]; ok {
		return name
	}
	for k := range m {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return name
}

// ─── Tokenizer ──────────────────────────────────────────────────────────────

type tokKind int

const (
	tokGroup tokKind = iota
	tokEnd
	tokEquals
	tokComma
	tokString
	tokWord
)

type token struct {
	kind tokKind
	text string
}

func (t token) value() any {
	if t.kind == tokString {
		return t.text
	}
	lower := strings.ToLower(t.text)
	switch lower {
	case ".true.", ".t.", "t":
		return true
	case ".false.", ".f.", "f":
		return false
	}
	if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
		return n
	}
	if c := t.text[0]; c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
		if f, err := strconv.ParseFloat(strings.NewReplacer("d", "e", "D", "e").Replace(t.text), 64); err == nil {
			return f
		}
	}
	return Raw(t.text)
}

func tokenize(s string) ([]token, error) {
	var toks []token
	r := []rune(s)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '!':
			for i < len(r) && r[i] != '\n' {
				i++
			}
		case c == '&' || c == '$':
			j := i + 1
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_') {
				j++
			}
			word := string(r[i+1 : j])
			if word == "" {
				return nil, fmt.Errorf("namelist: empty group name at offset %d", i)
			}
			if strings.EqualFold(word, "end") {
				toks = append(toks, token{kind: tokEnd, text: string(r[i:j])})
			} else {
				toks = append(toks, token{kind: tokGroup, text: word})
			}
			i = j
		case c == '/':
			toks = append(toks, token{kind: tokEnd, text: "/"})
			i++
		case c == '=':
			toks = append(toks, token{kind: tokEquals, text: "="})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ","})
			i++
		case c == '\'' || c == '"':
			var b strings.Builder
			j := i + 1
			for {
				if j >= len(r) {
					return nil, fmt.Errorf("namelist: unterminated string at offset %d", i)
				}
				if r[j] == c {
					if j+1 < len(r) && r[j+1] == c {
						b.WriteRune(c)
						j += 2
						continue
					}
					break
				}
				b.WriteRune(r[j])
				j++
			}
			toks = append(toks, token{kind: tokString, text: b.String()})
			i = j + 1
		default:
			j, depth := i, 0
			for j < len(r) {
				d := r[j]
				if d == '(' {
					depth++
				} else if d == ')' {
					depth--
				} else if depth == 0 && (unicode.IsSpace(d) || strings.ContainsRune(",=/!&", d)) {
					break
				}
				j++
			}
			toks = append(toks, token{kind: tokWord, text: string(r[i:j])})
			i = j
		}
	}
	return toks, nil
}
