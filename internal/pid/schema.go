package pid

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed schemas.yaml
var defaultSchemas []byte

// LevelCountry is the name of the first segment of every PID.
const LevelCountry = "country"

var countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)

// LevelRule constrains one hierarchy level below the country.
type LevelRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Matches reports whether value satisfies the level's charset and length.
func (l LevelRule) Matches(value string) bool {
	return l.re != nil && l.re.MatchString(value)
}

// Schema is the layout of PIDs for one country.
type Schema struct {
	Country string      `yaml:"-"`
	Name    string      `yaml:"name"`
	Levels  []LevelRule `yaml:"levels"`
}

// Depth is the number of segments, including the country code.
func (s Schema) Depth() int {
	return len(s.Levels) + 1
}

// LevelNames lists segment level names in order, starting with the country.
func (s Schema) LevelNames() []string {
	names := make([]string, 0, s.Depth())
	names = append(names, LevelCountry)
	for _, l := range s.Levels {
		names = append(names, l.Name)
	}
	return names
}

// SchemaTable maps country codes to schemas.
type SchemaTable struct {
	Delimiter string             `yaml:"delimiter"`
	Countries map[string]*Schema `yaml:"countries"`
}

// Lookup returns the schema for a country code.
func (t *SchemaTable) Lookup(country string) (Schema, bool) {
	s, ok := t.Countries[country]
	if !ok {
		return Schema{}, false
	}
	return *s, true
}

// CountryCodes returns the configured countries in sorted order.
func (t *SchemaTable) CountryCodes() []string {
	codes := make([]string, 0, len(t.Countries))
	for c := range t.Countries {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// ParseSchemaTable loads and compiles a YAML schema table.
func ParseSchemaTable(data []byte) (*SchemaTable, error) {
	var table SchemaTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse schema table: %w", err)
	}
	if len(table.Delimiter) != 1 {
		return nil, fmt.Errorf("schema delimiter must be a single character, got %q", table.Delimiter)
	}
	if len(table.Countries) == 0 {
		return nil, fmt.Errorf("schema table has no countries")
	}
	for code, s := range table.Countries {
		if !countryPattern.MatchString(code) {
			return nil, fmt.Errorf("invalid country code %q", code)
		}
		if len(s.Levels) == 0 {
			return nil, fmt.Errorf("country %s: at least one level is required", code)
		}
		s.Country = code
		seen := map[string]struct{}{LevelCountry: {}}
		for i := range s.Levels {
			lvl := &s.Levels[i]
			if _, dup := seen[lvl.Name]; dup || lvl.Name == "" {
				return nil, fmt.Errorf("country %s: level %d has empty or duplicate name %q", code, i+1, lvl.Name)
			}
			seen[lvl.Name] = struct{}{}
			re, err := regexp.Compile(lvl.Pattern)
			if err != nil {
				return nil, fmt.Errorf("country %s level %s: %w", code, lvl.Name, err)
			}
			lvl.re = re
		}
	}
	return &table, nil
}

// LoadSchemaTable reads a schema table from disk, or the built-in table when path is empty.
func LoadSchemaTable(path string) (*SchemaTable, error) {
	if path == "" {
		return ParseSchemaTable(defaultSchemas)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema table: %w", err)
	}
	return ParseSchemaTable(data)
}
