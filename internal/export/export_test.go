package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerline/internal/domain"
)

// fixedWidth treats every rune as a fifth of the font size wide.
type fixedWidth struct{}

func (fixedWidth) Width(text string, size float64, _ bool) float64 {
	return float64(utf8.RuneCountInString(text)) * size * 0.2
}

func allLines(l Layout) []Line {
	var out []Line
	for _, p := range l.Pages {
		out = append(out, p.Lines...)
	}
	return out
}

func TestComposeHeadingBeforeParagraph(t *testing.T) {
	l := Compose("Market Research", "# Title\n\nSome paragraph text", fixedWidth{})
	require.Len(t, l.Pages, 1)

	lines := l.Pages[0].Lines
	require.Len(t, lines, 3)
	assert.Equal(t, "Market Research", lines[0].Text)
	assert.Equal(t, 18.0, lines[0].Size)
	assert.Equal(t, Margin, lines[0].Y)

	heading, para := lines[1], lines[2]
	assert.Equal(t, "Title", heading.Text)
	assert.True(t, heading.Bold)
	assert.Equal(t, 16.0, heading.Size)
	assert.Equal(t, 40.0, heading.Y)

	assert.Equal(t, "Some paragraph text", para.Text)
	assert.False(t, para.Bold)
	assert.Equal(t, 11.0, para.Size)
	// heading 8 + 3 after, then a 5mm blank line
	assert.Equal(t, 56.0, para.Y)

	assert.Equal(t, "Page 1 of 1", l.Pages[0].Footer.Text)
	assert.Equal(t, PageHeight-10, l.Pages[0].Footer.Y)
}

func TestComposeOverflowAddsPageAndFooters(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	l := Compose("Long", b.String(), fixedWidth{})
	require.Len(t, l.Pages, 2)
	assert.Equal(t, "Page 1 of 2", l.Pages[0].Footer.Text)
	assert.Equal(t, "Page 2 of 2", l.Pages[1].Footer.Text)

	for _, line := range allLines(l) {
		assert.LessOrEqual(t, line.Y+6, PageHeight-Margin, line.Text)
	}
	assert.Equal(t, Margin, l.Pages[1].Lines[0].Y)
}

func TestComposeListsAndSubheadings(t *testing.T) {
	content := "## Section\n### Sub\n- first\n* second\n1. numbered item"
	lines := Compose("T", content, fixedWidth{}).Pages[0].Lines
	require.Len(t, lines, 6)

	assert.Equal(t, "Section", lines[1].Text)
	assert.Equal(t, 14.0, lines[1].Size)
	assert.Equal(t, "Sub", lines[2].Text)
	assert.Equal(t, 12.0, lines[2].Size)
	assert.Equal(t, "• first", lines[3].Text)
	assert.Equal(t, "• second", lines[4].Text)
	assert.Equal(t, "1. numbered item", lines[5].Text)
	assert.Equal(t, lines[4].Y+6, lines[5].Y)
}

func TestComposeBulletContinuationIsIndented(t *testing.T) {
	long := "- " + strings.Repeat("word ", 60)
	lines := Compose("T", long, fixedWidth{}).Pages[0].Lines
	require.Greater(t, len(lines), 2)
	assert.Equal(t, Margin, lines[1].X)
	assert.Equal(t, Margin+indent, lines[2].X)
	for _, l := range lines[1:] {
		assert.LessOrEqual(t, fixedWidth{}.Width(l.Text, l.Size, l.Bold), MaxWidth-indent)
	}
}

func TestWrapBreaksOverlongWords(t *testing.T) {
	lines := Wrap(strings.Repeat("x", 50), 20, 10, false, fixedWidth{})
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 10)}, lines)
	assert.Equal(t, []string{""}, Wrap("   ", 20, 10, false, fixedWidth{}))
}

func TestRenderPDFWritesFooters(t *testing.T) {
	out, err := renderPDF("Market Research", "# Title\n\nSome paragraph text\n- bullet", false)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Contains(t, string(out), "(Page 1 of 1)")
	assert.Contains(t, string(out), "(Some paragraph text)")

	compressed, err := RenderPDF("Market Research", "# Title")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(compressed, []byte("%PDF-")))
}

func TestSlugAndFilenames(t *testing.T) {
	assert.Equal(t, "acme-co--ltd", Slug("Acme Co. Ltd"))
	assert.Equal(t, "acme-the-big-idea.pdf", DocumentFilename("Acme", "The Big Idea"))
	assert.Equal(t, "my-launch-offer-package.zip", ZipFilename("My Launch"))
	assert.Equal(t, "03-market-research.pdf", EntryName(domain.Document{DocNumber: 3, Title: "Market Research"}))
}

func doc(dt domain.DocType, status string) domain.Document {
	cfg := dt.Config()
	content := "# " + cfg.Title + "\n\nBody"
	return domain.Document{DocType: dt, DocNumber: cfg.Number, Title: cfg.Title, Status: status, Content: &content}
}

func TestRenderProjectZipCompleteOnly(t *testing.T) {
	docs := []domain.Document{
		doc(domain.BigIdea, domain.DocumentComplete),
		doc(domain.MarketResearch, domain.DocumentComplete),
		doc(domain.ValueLadder, domain.DocumentPending),
		doc(domain.AvatarComplete, domain.DocumentComplete),
	}
	out, err := RenderProjectZip(context.Background(), docs)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"03-market-research.pdf",
		"04-complete-customer-avatar.pdf",
		"05-the-big-idea.pdf",
	}, names)
}

func TestRenderProjectZipWithoutCompleteDocs(t *testing.T) {
	_, err := RenderProjectZip(context.Background(), []domain.Document{doc(domain.BigIdea, domain.DocumentPending)})
	assert.ErrorIs(t, err, ErrNoDocuments)
}
