package glyph

import (
	"fmt"
	"log"
	"strings"

	"github.com/mastercactapus/lasercard/coord"
	"github.com/mastercactapus/lasercard/gcode"
)

// TravelFeed is the feed rate of the unpowered jumps between fields.
const TravelFeed = 5000

const (
	preamble = "G00 G17 G40 G21 G54"
	footer   = "G1 S0\nM5\nM2"
)

// lines removed from the composed body; the preamble and footer carry
// the only copies.
var stripped = map[string]bool{
	"M2":     true,
	"M8":     true,
	"M9":     true,
	preamble: true,
}

// Field is one line of text placed by a variant row of the same name.
type Field struct {
	Name string
	Text string
}

// CardFields are the text fields of a business card, in engraving order.
type CardFields struct {
	Title    string
	Name     string
	Division string
	JobTitle string
	Phone    string
	Fax      string
	Mail     string
}

func (c CardFields) Fields() []Field {
	return []Field{
		{Name: "title", Text: c.Title},
		{Name: "name", Text: c.Name},
		{Name: "division", Text: c.Division},
		{Name: "job_title", Text: c.JobTitle},
		{Name: "phone", Text: c.Phone},
		{Name: "fax", Text: c.Fax},
		{Name: "mail", Text: c.Mail},
	}
}

// Compositor turns text fields into a single laser program.
type Compositor struct {
	catalog *Catalog
	layouts *Layouts
}

func NewCompositor(c *Catalog, l *Layouts) *Compositor {
	return &Compositor{catalog: c, layouts: l}
}

func (c *Compositor) Catalog() *Catalog { return c.catalog }
func (c *Compositor) Layouts() *Layouts { return c.layouts }

func writeBlock(sb *strings.Builder, b gcode.Block) {
	sb.WriteString(b.String())
	sb.WriteByte('\n')
}

func writeRaw(sb *strings.Builder, prog string) {
	if prog == "" {
		return
	}
	sb.WriteString(prog)
	if !strings.HasSuffix(prog, "\n") {
		sb.WriteByte('\n')
	}
}

// jumpTo emits an absolute unpowered move to p and leaves the program
// in relative mode.
func jumpTo(sb *strings.Builder, p coord.Point) {
	writeBlock(sb, gcode.Block{{W: 'G', Arg: 90}})
	writeBlock(sb, gcode.Block{
		{W: 'G', Arg: 1},
		{W: 'X', Arg: p.X},
		{W: 'Y', Arg: p.Y},
		{W: 'F', Arg: TravelFeed},
		{W: 'S', Arg: 0},
	})
	writeBlock(sb, gcode.Block{{W: 'G', Arg: 91}})
}

// Compose renders fields with the named variant. All positions are
// relative to anchor.
//
// Fields that are empty or have no row in the variant are skipped, as are
// characters without a glyph.
func (c *Compositor) Compose(variant string, anchor coord.Point, fields []Field) (string, error) {
	v, err := c.layouts.Variant(variant)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("$H\n")
	jumpTo(&sb, anchor)
	writeRaw(&sb, v.Header)

	for _, f := range fields {
		if f.Text == "" {
			continue
		}
		row, ok := v.Rows[f.Name]
		if !ok {
			continue
		}
		font, ok := c.catalog.Font(row.Size)
		if !ok {
			log.Printf("ERROR: compose %s: no font of size %s", f.Name, row.Size)
			continue
		}

		jumpTo(&sb, anchor)
		writeBlock(&sb, gcode.Block{
			{W: 'G', Arg: 1},
			{W: 'X', Arg: v.Indent},
			{W: 'Y', Arg: row.Y},
			{W: 'S', Arg: 0},
		})
		writeText(&sb, font, f.Text)
	}
	writeRaw(&sb, v.Footer)

	return cleanUp(sb.String()), nil
}

func writeText(sb *strings.Builder, font *Font, text string) {
	var pending float64
	for _, r := range text {
		if r == ' ' {
			pending += font.Space
			continue
		}
		g, ok := font.Lookup(r)
		if !ok {
			log.Printf("ERROR: compose: no glyph %q in font %s", r, font.Size)
			continue
		}
		writeBlock(sb, gcode.Block{
			{W: 'G', Arg: 0},
			{W: 'X', Arg: pending},
			{W: 'Y', Arg: -g.Baseline},
		})
		writeRaw(sb, g.Program)
		writeBlock(sb, gcode.Block{
			{W: 'G', Arg: 0},
			{W: 'X', Arg: g.Advance + font.Kerning},
			{W: 'Y', Arg: g.Baseline},
		})
		pending = 0
	}
}

// cleanUp drops blank and duplicated directives and wraps the body with
// the fixed preamble and footer.
func cleanUp(body string) string {
	var sb strings.Builder
	sb.WriteString(preamble + "\nM4\n")
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		s := strings.TrimSpace(line)
		if s == "" || stripped[s] {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(footer)
	return sb.String()
}

// ComposeCard is Compose for the standard card fields.
func (c *Compositor) ComposeCard(variant string, anchor coord.Point, card CardFields) (string, error) {
	prog, err := c.Compose(variant, anchor, card.Fields())
	if err != nil {
		return "", fmt.Errorf("compose card: %w", err)
	}
	return prog, nil
}
