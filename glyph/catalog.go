package glyph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mastercactapus/lasercard/gcode"
)

// Ext is the file extension of glyph and template programs.
const Ext = ".gc"

// Spacing holds the per-font-size constants used between glyphs.
type Spacing struct {
	Space   float64 `yaml:"space"`
	Kerning float64 `yaml:"kerning"`
}

// Glyph is a pre-authored program drawing one character.
type Glyph struct {
	Name    string
	Program string
	Metrics
}

// Font is the set of glyphs authored for one font size.
type Font struct {
	Size string
	Spacing

	glyphs map[string]Glyph
}

// Catalog is the immutable table of fonts, keyed by font size.
type Catalog struct {
	fonts map[string]*Font
}

var aliases = map[rune]string{
	'.':  "dot",
	'/':  "slash",
	'\\': "backslash",
}

// GlyphName returns the file name (without extension) used for r.
func GlyphName(r rune) string {
	if name, ok := aliases[r]; ok {
		return name
	}
	return string(r)
}

// NewFont measures every program and returns the resulting font.
func NewFont(size string, sp Spacing, programs map[string]string) *Font {
	f := &Font{
		Size:    size,
		Spacing: sp,
		glyphs:  make(map[string]Glyph, len(programs)),
	}
	for name, prog := range programs {
		f.glyphs[name] = Glyph{
			Name:    name,
			Program: prog,
			Metrics: Measure(gcode.NewParser(strings.NewReader(prog))),
		}
	}
	return f
}

// Lookup resolves a character to its glyph.
func (f *Font) Lookup(r rune) (Glyph, bool) {
	g, ok := f.glyphs[GlyphName(r)]
	return g, ok
}

func NewCatalog(fonts ...*Font) *Catalog {
	c := &Catalog{fonts: make(map[string]*Font, len(fonts))}
	for _, f := range fonts {
		c.fonts[f.Size] = f
	}
	return c
}

// LoadCatalog reads glyph programs laid out as <dir>/<size>/<name>.gc.
//
// Every sub-directory is a font size. Spacing for sizes missing from sp
// is zero.
func LoadCatalog(dir string, sp map[string]Spacing) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("glyph: load catalog: %w", err)
	}

	var fonts []*Font
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		programs, err := readPrograms(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("glyph: load font %s: %w", e.Name(), err)
		}
		fonts = append(fonts, NewFont(e.Name(), sp[e.Name()], programs))
	}

	return NewCatalog(fonts...), nil
}

func readPrograms(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	programs := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		programs[strings.TrimSuffix(e.Name(), Ext)] = string(data)
	}
	return programs, nil
}

func (c *Catalog) Font(size string) (*Font, bool) {
	f, ok := c.fonts[size]
	return f, ok
}

// Sizes lists the available font sizes.
func (c *Catalog) Sizes() []string {
	sizes := make([]string, 0, len(c.fonts))
	for s := range c.fonts {
		sizes = append(sizes, s)
	}
	sort.Strings(sizes)
	return sizes
}

// Measure returns the metrics of every glyph of a font size, keyed by
// glyph name. It returns nil for an unknown size.
func (c *Catalog) Measure(size string) map[string]Metrics {
	f, ok := c.fonts[size]
	if !ok {
		return nil
	}
	res := make(map[string]Metrics, len(f.glyphs))
	for name, g := range f.glyphs {
		res[name] = g.Metrics
	}
	return res
}
