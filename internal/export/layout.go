package export

import (
	"fmt"
	"regexp"
	"strings"
)

// A4 portrait, millimetres.
const (
	PageWidth  = 210.0
	PageHeight = 297.0
	Margin     = 20.0
	MaxWidth   = PageWidth - 2*Margin

	bodySize   = 11.0
	footerSize = 9.0
	indent     = 5.0
)

var numbered = regexp.MustCompile(`^\d+\. `)

// Measurer reports the rendered width of text in millimetres.
type Measurer interface {
	Width(text string, size float64, bold bool) float64
}

type Line struct {
	X, Y float64
	Text string
	Size float64
	Bold bool
}

type Page struct {
	Lines  []Line
	Footer Line
}

type Layout struct {
	Pages []Page
}

type blockStyle struct {
	size       float64
	bold       bool
	lineHeight float64
	width      float64
	hangIndent float64
	after      float64
}

var (
	styleH1     = blockStyle{size: 16, bold: true, lineHeight: 8, width: MaxWidth, after: 3}
	styleH2     = blockStyle{size: 14, bold: true, lineHeight: 7, width: MaxWidth, after: 3}
	styleH3     = blockStyle{size: 12, bold: true, lineHeight: 6, width: MaxWidth, after: 2}
	styleItem   = blockStyle{size: bodySize, lineHeight: 6, width: MaxWidth - indent, hangIndent: indent}
	stylePara   = blockStyle{size: bodySize, lineHeight: 6, width: MaxWidth}
	styleTitle  = blockStyle{size: 18, bold: true, lineHeight: 10, width: MaxWidth, after: 10}
	bottomLimit = PageHeight - Margin
)

type composer struct {
	m     Measurer
	pages []Page
	y     float64
}

func (c *composer) newPage() {
	c.pages = append(c.pages, Page{})
	c.y = Margin
}

func (c *composer) block(text string, st blockStyle) {
	for i, l := range Wrap(text, st.width, st.size, st.bold, c.m) {
		if c.y+st.lineHeight > bottomLimit {
			c.newPage()
		}
		x := Margin
		if i > 0 {
			x += st.hangIndent
		}
		page := &c.pages[len(c.pages)-1]
		page.Lines = append(page.Lines, Line{X: x, Y: c.y, Text: l, Size: st.size, Bold: st.bold})
		c.y += st.lineHeight
	}
	c.y += st.after
}

// Compose lays out a titled markdown document. It understands #, ## and ###
// headings, - and * bullets, numbered items, blank lines and plain paragraphs.
func Compose(title, content string, m Measurer) Layout {
	c := &composer{m: m}
	c.newPage()
	c.block(title, styleTitle)

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, "\r")
		if c.y > bottomLimit {
			c.newPage()
		}
		if strings.TrimSpace(line) == "" {
			c.y += 5
			continue
		}
		switch {
		case strings.HasPrefix(line, "# "):
			c.block(line[2:], styleH1)
		case strings.HasPrefix(line, "## "):
			c.block(line[3:], styleH2)
		case strings.HasPrefix(line, "### "):
			c.block(line[4:], styleH3)
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			c.block("• "+line[2:], styleItem)
		case numbered.MatchString(line):
			c.block(line, styleItem)
		default:
			c.block(line, stylePara)
		}
	}

	total := len(c.pages)
	for i := range c.pages {
		text := fmt.Sprintf("Page %d of %d", i+1, total)
		w := m.Width(text, footerSize, false)
		c.pages[i].Footer = Line{X: PageWidth/2 - w/2, Y: PageHeight - 10, Text: text, Size: footerSize}
	}
	return Layout{Pages: c.pages}
}

// Wrap breaks text into lines no wider than width, splitting on spaces and
// falling back to character breaks for words that do not fit on their own.
func Wrap(text string, width, size float64, bold bool, m Measurer) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	cur := ""
	for _, word := range words {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if m.Width(candidate, size, bold) <= width {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
			cur = ""
		}
		if m.Width(word, size, bold) <= width {
			cur = word
			continue
		}
		for _, r := range word {
			next := cur + string(r)
			if cur != "" && m.Width(next, size, bold) > width {
				lines = append(lines, cur)
				next = string(r)
			}
			cur = next
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
