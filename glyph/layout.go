package glyph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownVariant is returned for a layout variant name with no definition.
var ErrUnknownVariant = errors.New("glyph: unknown variant")

// Row places one field on the card.
type Row struct {
	Y    float64 `yaml:"y"`
	Size string  `yaml:"size"`
}

// VariantDef is the YAML definition of a card layout.
type VariantDef struct {
	Indent float64        `yaml:"indent"`
	Rows   map[string]Row `yaml:"rows"`

	// Template names a raw program in the template directory that is
	// emitted after the composed header. Empty means none.
	Template string `yaml:"template"`

	// Footer is raw program text emitted after the last field.
	Footer string `yaml:"footer"`
}

// LayoutFile is the on-disk layout table.
type LayoutFile struct {
	Fonts    map[string]Spacing    `yaml:"fonts"`
	Variants map[string]VariantDef `yaml:"variants"`
}

// Variant is a loaded layout.
type Variant struct {
	Name string
	VariantDef

	Header string
}

func stdRows() map[string]Row {
	return map[string]Row{
		"title":     {Y: 35, Size: "2.5"},
		"name":      {Y: 31, Size: "4"},
		"division":  {Y: 27, Size: "2.5"},
		"job_title": {Y: 24, Size: "2.5"},
		"phone":     {Y: 17, Size: "2.5"},
		"fax":       {Y: 14, Size: "2.5"},
		"mail":      {Y: 10, Size: "2.5"},
	}
}

func icpsRows() map[string]Row {
	return map[string]Row{
		"name":      {Y: 20, Size: "4"},
		"division":  {Y: 10, Size: "2.5"},
		"job_title": {Y: 10, Size: "2.5"},
	}
}

// DefaultLayoutFile returns the built-in font spacing and card layouts.
func DefaultLayoutFile() LayoutFile {
	lf := LayoutFile{
		Fonts: map[string]Spacing{
			"4":   {Space: 1.5, Kerning: 0.4},
			"2.5": {Space: 0.962, Kerning: 0.267},
		},
		Variants: map[string]VariantDef{
			"hs":    {Indent: 5, Rows: stdRows()},
			"blank": {Indent: 5, Rows: stdRows()},
			"hs-simple": {Indent: 5, Rows: map[string]Row{
				"title":    {Y: 41.1, Size: "2.5"},
				"name":     {Y: 20, Size: "4"},
				"division": {Y: 40.5, Size: "4"},
			}},
			"zdin": {Indent: 1.3, Rows: map[string]Row{
				"name":      {Y: 48, Size: "4"},
				"job_title": {Y: 44, Size: "2.5"},
				"phone":     {Y: 9.8, Size: "2.5"},
				"mail":      {Y: 6.3, Size: "2.5"},
			}},
			"icps2025":      {Indent: 5, Rows: icpsRows()},
			"icps2025V2":    {Indent: 5, Rows: icpsRows()},
			"icps2025Blank": {Indent: 5, Rows: icpsRows()},
			"icps2025Logo":  {Indent: 5, Rows: icpsRows()},
		},
	}
	for name, def := range lf.Variants {
		def.Template = name + Ext
		lf.Variants[name] = def
	}
	return lf
}

// LoadLayouts reads a YAML layout table and merges it over the defaults.
// A missing file yields the defaults.
func LoadLayouts(path string) (LayoutFile, error) {
	lf := DefaultLayoutFile()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return lf, nil
	}
	if err != nil {
		return lf, fmt.Errorf("glyph: load layouts: %w", err)
	}

	var file LayoutFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return lf, fmt.Errorf("glyph: parse layouts: %w", err)
	}
	for size, sp := range file.Fonts {
		lf.Fonts[size] = sp
	}
	for name, def := range file.Variants {
		lf.Variants[name] = def
	}
	return lf, nil
}

// Layouts resolves variant names, loading each template on first use.
type Layouts struct {
	dir  string
	defs map[string]VariantDef

	mx     sync.Mutex
	loaded map[string]*Variant
}

// NewLayouts creates a resolver reading templates from dir.
func NewLayouts(dir string, defs map[string]VariantDef) *Layouts {
	return &Layouts{
		dir:    dir,
		defs:   defs,
		loaded: make(map[string]*Variant),
	}
}

// Names lists the defined variants.
func (l *Layouts) Names() []string {
	names := make([]string, 0, len(l.defs))
	for n := range l.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Variant returns the named layout. The result is cached and must not be
// modified.
func (l *Layouts) Variant(name string) (*Variant, error) {
	l.mx.Lock()
	defer l.mx.Unlock()

	if v, ok := l.loaded[name]; ok {
		return v, nil
	}
	def, ok := l.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownVariant, name, strings.Join(l.Names(), ", "))
	}

	v := &Variant{Name: name, VariantDef: def}
	if def.Template != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, filepath.Base(def.Template)))
		if err != nil {
			return nil, fmt.Errorf("glyph: variant %s: %w", name, err)
		}
		v.Header = string(data)
	}
	l.loaded[name] = v
	return v, nil
}
