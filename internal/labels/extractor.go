// Package labels extracts "Label: value" fields from free text.
//
// Extraction policy is data: each Field lists the label aliases that may carry
// its value, in precedence order. A label matches case-insensitively anywhere
// in the text and its value runs to the end of that line. When the label ends
// its line the value is taken from the next one, unless that line is itself a
// label.
package labels

import (
	"fmt"
	"regexp"
	"strings"
)

// Field describes one semantic field and the labels that can carry it.
type Field struct {
	Name    string
	Aliases []string
}

type compiledField struct {
	name     string
	patterns []*regexp.Regexp
}

// labelLine recognizes a "Label:" line so an empty label does not borrow it.
var labelLine = regexp.MustCompile(`^\p{L}[\p{L}\s()/&.'-]*:`)

// Extractor resolves a fixed set of fields against free text.
type Extractor struct {
	fields []compiledField
	index  map[string]int
}

// New compiles the fields into an Extractor.
func New(fields ...Field) (*Extractor, error) {
	e := &Extractor{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("field name is required")
		}
		if _, dup := e.index[name]; dup {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		if len(f.Aliases) == 0 {
			return nil, fmt.Errorf("field %q has no aliases", name)
		}
		cf := compiledField{name: name}
		for _, alias := range f.Aliases {
			re, err := compileAlias(alias)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			cf.patterns = append(cf.patterns, re)
		}
		e.index[name] = len(e.fields)
		e.fields = append(e.fields, cf)
	}
	return e, nil
}

// MustNew is New for static field tables.
func MustNew(fields ...Field) *Extractor {
	e, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return e
}

// Lookup returns the value of the named field, trying aliases in order.
// Blank values do not count as a match.
func (e *Extractor) Lookup(text, name string) (string, bool) {
	i, ok := e.index[name]
	if !ok || text == "" {
		return "", false
	}
	for _, re := range e.fields[i].patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		gap, v := m[1], strings.TrimSpace(m[2])
		if strings.ContainsAny(gap, "\r\n") && labelLine.MatchString(v) {
			continue
		}
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// Extract resolves every field. Fields without a match are absent from the map.
func (e *Extractor) Extract(text string) map[string]string {
	out := make(map[string]string, len(e.fields))
	for _, f := range e.fields {
		if v, ok := e.Lookup(text, f.name); ok {
			out[f.name] = v
		}
	}
	return out
}

// Fields lists the field names in declaration order.
func (e *Extractor) Fields() []string {
	names := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		names = append(names, f.name)
	}
	return names
}

func compileAlias(alias string) (*regexp.Regexp, error) {
	words := strings.Fields(alias)
	if len(words) == 0 {
		return nil, fmt.Errorf("empty alias")
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	pattern := `(?i)\b` + strings.Join(words, `\s*`) + `[ \t]*:(\s*)([^\r\n]+)`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile alias %q: %w", alias, err)
	}
	return re, nil
}
