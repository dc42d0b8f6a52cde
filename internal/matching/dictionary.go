package matching

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed dictionary.yaml
var defaultDictionary []byte

// CanonicalFields are the procedure columns reconciliation is allowed to fill.
var CanonicalFields = []string{
	"invoice_no",
	"invoice_date",
	"amount",
	"currency",
	"shipper",
	"package",
	"piece",
	"kg",
	"arrival_date",
	"awb_number",
	"carrier",
	"customs",
	"import_dec_number",
	"import_dec_date",
	"usdtl_rate",
	"color",
}

var canonicalSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(CanonicalFields))
	for _, f := range CanonicalFields {
		m[f] = struct{}{}
	}
	return m
}()

func IsCanonical(field string) bool {
	_, ok := canonicalSet[field]
	return ok
}

type dictionaryFile struct {
	Fields     map[string][]string `yaml:"fields"`
	Positional map[int]string      `yaml:"positional"`
	Dates      []string            `yaml:"dates"`
}

type Dictionary struct {
	aliases    map[string]string
	positional map[int]string
	dates      map[string]struct{}
}

// DefaultDictionary returns the embedded alias dictionary.
func DefaultDictionary() (*Dictionary, error) {
	d := newDictionary()
	if err := d.merge(defaultDictionary, true); err != nil {
		return nil, fmt.Errorf("default dictionary: %w", err)
	}
	return d, nil
}

// LoadDictionary reads the embedded dictionary and layers the file at path
// on top of it. An empty path means defaults only. Positional entries in the
// file replace the default positional map as a whole.
func LoadDictionary(path string) (*Dictionary, error) {
	d, err := DefaultDictionary()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return d, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	if err := d.merge(raw, false); err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}
	return d, nil
}

func newDictionary() *Dictionary {
	return &Dictionary{
		aliases:    make(map[string]string),
		positional: make(map[int]string),
		dates:      make(map[string]struct{}),
	}
}

func (d *Dictionary) merge(raw []byte, base bool) error {
	var f dictionaryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}

	fields := make([]string, 0, len(f.Fields))
	for field := range f.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if !IsCanonical(field) {
			return fmt.Errorf("unknown field %q", field)
		}
		// the canonical name itself is always an alias
		d.aliases[NormalizeHeader(field)] = field
		for _, alias := range f.Fields[field] {
			key := NormalizeHeader(alias)
			if key == "" {
				continue
			}
			d.aliases[key] = field
		}
	}

	if len(f.Positional) > 0 || base {
		positional := make(map[int]string, len(f.Positional))
		for idx, field := range f.Positional {
			if idx < 0 {
				return fmt.Errorf("negative column position %d", idx)
			}
			if !IsCanonical(field) {
				return fmt.Errorf("unknown positional field %q", field)
			}
			positional[idx] = field
		}
		d.positional = positional
	}

	for _, field := range f.Dates {
		if !IsCanonical(field) {
			return fmt.Errorf("unknown date field %q", field)
		}
		d.dates[field] = struct{}{}
	}
	return nil
}

// Lookup maps a raw header to its canonical field.
func (d *Dictionary) Lookup(header string) (string, bool) {
	key := NormalizeHeader(header)
	if key == "" {
		return "", false
	}
	field, ok := d.aliases[key]
	return field, ok
}

func (d *Dictionary) IsDateField(field string) bool {
	_, ok := d.dates[field]
	return ok
}

// Columns maps canonical fields to zero-based column indexes.
type Columns map[string]int

func (c Columns) Has(field string) bool {
	_, ok := c[field]
	return ok
}

// Value returns the trimmed cell for field in row, or "" when the column is
// unmapped or the row is short.
func (c Columns) Value(row []string, field string) string {
	idx, ok := c[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return trimCell(row[idx])
}

// ResolveColumns applies positional overrides first, then fills fields that
// are still unset from header names. A column claimed by a positional
// override is not reused by name.
func (d *Dictionary) ResolveColumns(headers []string) Columns {
	cols := make(Columns)
	taken := make(map[int]bool)

	positions := make([]int, 0, len(d.positional))
	for idx := range d.positional {
		positions = append(positions, idx)
	}
	sort.Ints(positions)

	for _, idx := range positions {
		if idx >= len(headers) {
			continue
		}
		field := d.positional[idx]
		if cols.Has(field) {
			continue
		}
		cols[field] = idx
		taken[idx] = true
	}

	for idx, h := range headers {
		if taken[idx] {
			continue
		}
		field, ok := d.Lookup(h)
		if !ok || cols.Has(field) {
			continue
		}
		cols[field] = idx
		taken[idx] = true
	}
	return cols
}
