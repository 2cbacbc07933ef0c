// Package pid encodes and decodes hierarchical Place Identifiers.
//
// A PID is the country code followed by one segment per administrative level,
// joined by the table delimiter, e.g. "JP-13-113-01". The number of levels and
// each level's charset come from the per-country schema table. The codec is
// pure and safe for concurrent use.
package pid

import (
	"fmt"
	"strings"
	"sync"

	dErrors "pidgate/pkg/domain-errors"
)

// Segment is one typed component of a PID.
type Segment struct {
	Level string `json:"level"`
	Value string `json:"value"`
}

// MalformedPIDError reports a PID that violates its country's schema.
type MalformedPIDError struct {
	PID    string
	Reason string
}

func (e *MalformedPIDError) Error() string {
	return fmt.Sprintf("malformed PID %q: %s", e.PID, e.Reason)
}

// DomainCode implements domainerrors.Coder.
func (e *MalformedPIDError) DomainCode() dErrors.Code { return dErrors.CodeMalformedPID }

func malformed(pid, format string, args ...any) error {
	return &MalformedPIDError{PID: pid, Reason: fmt.Sprintf(format, args...)}
}

// Codec encodes and decodes PIDs against a schema table.
type Codec struct {
	table *SchemaTable
}

// NewCodec builds a codec over table.
func NewCodec(table *SchemaTable) *Codec {
	return &Codec{table: table}
}

var (
	defaultOnce  sync.Once
	defaultCodec *Codec
)

// Default returns a codec over the built-in schema table.
func Default() *Codec {
	defaultOnce.Do(func() {
		table, err := ParseSchemaTable(defaultSchemas)
		if err != nil {
			panic(fmt.Sprintf("built-in PID schema table: %v", err))
		}
		defaultCodec = NewCodec(table)
	})
	return defaultCodec
}

// Table exposes the underlying schema table.
func (c *Codec) Table() *SchemaTable { return c.table }

// Schema returns the schema for a country.
func (c *Codec) Schema(country string) (Schema, bool) {
	return c.table.Lookup(country)
}

// Encode validates segments against the country schema and joins them.
// Level names must match the schema; the first segment is the country.
func (c *Codec) Encode(segments []Segment) (string, error) {
	if len(segments) == 0 {
		return "", malformed("", "no segments")
	}
	values := make([]string, len(segments))
	for i, s := range segments {
		values[i] = s.Value
	}
	joined := strings.Join(values, c.table.Delimiter)

	if segments[0].Level != LevelCountry {
		return "", malformed(joined, "first segment must be %q, got %q", LevelCountry, segments[0].Level)
	}
	schema, ok := c.table.Lookup(segments[0].Value)
	if !ok {
		return "", malformed(joined, "unknown country %q", segments[0].Value)
	}
	names := schema.LevelNames()
	if len(segments) != len(names) {
		return "", malformed(joined, "expected %d segments for %s, got %d", len(names), schema.Country, len(segments))
	}
	for i, s := range segments {
		if s.Level != names[i] {
			return "", malformed(joined, "segment %d must be level %q, got %q", i, names[i], s.Level)
		}
		if strings.Contains(s.Value, c.table.Delimiter) {
			return "", malformed(joined, "segment %q contains the delimiter", s.Level)
		}
	}
	if err := c.ValidateStructure(joined, schema); err != nil {
		return "", err
	}
	return joined, nil
}

// Decode splits a PID into typed segments, failing with MalformedPIDError
// when the segment count or any segment format violates the country schema.
func (c *Codec) Decode(pid string) ([]Segment, error) {
	if pid == "" {
		return nil, malformed(pid, "empty PID")
	}
	country, _, _ := strings.Cut(pid, c.table.Delimiter)
	schema, ok := c.table.Lookup(country)
	if !ok {
		return nil, malformed(pid, "unknown country %q", country)
	}
	if err := c.ValidateStructure(pid, schema); err != nil {
		return nil, err
	}
	values := strings.Split(pid, c.table.Delimiter)
	names := schema.LevelNames()
	segments := make([]Segment, len(values))
	for i, v := range values {
		segments[i] = Segment{Level: names[i], Value: v}
	}
	return segments, nil
}

// ValidateStructure checks that pid has exactly schema.Depth() segments, that
// the first is the schema's country and that every level matches its rule.
func (c *Codec) ValidateStructure(pid string, schema Schema) error {
	values := strings.Split(pid, c.table.Delimiter)
	if len(values) != schema.Depth() {
		return malformed(pid, "expected %d segments for %s, got %d", schema.Depth(), schema.Country, len(values))
	}
	if values[0] != schema.Country {
		return malformed(pid, "country %q does not match schema %q", values[0], schema.Country)
	}
	for i, lvl := range schema.Levels {
		if !lvl.Matches(values[i+1]) {
			return malformed(pid, "segment %q=%q does not match %s", lvl.Name, values[i+1], lvl.Pattern)
		}
	}
	return nil
}

// LevelValidity returns one bit per segment saying whether the value satisfies
// its level's format rule. It never fails; mismatched depth yields false bits.
func LevelValidity(segments []Segment, schema Schema) []bool {
	bits := make([]bool, len(segments))
	for i, s := range segments {
		switch {
		case i == 0:
			bits[i] = s.Value == schema.Country
		case i-1 < len(schema.Levels):
			bits[i] = schema.Levels[i-1].Matches(s.Value)
		}
	}
	return bits
}

// Country returns the country code prefix of a PID without validating the rest.
func (c *Codec) Country(pid string) string {
	country, _, _ := strings.Cut(pid, c.table.Delimiter)
	return country
}

// Equal reports whether two decoded PIDs have identical segments.
func Equal(a, b []Segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
