package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSections(t *testing.T) {
	md := "Preamble line.\n\n# Intro\nHello.\n\n## Details\nMore.\n\n```\n# not a heading\n```\n\n#### Deep\nstill details\n\n### Empty\n\n   \n# Last\nbye"

	secs := Sections(md)
	require.Len(t, secs, 4)

	assert.Equal(t, "Intro", secs[0].Heading)
	assert.True(t, strings.HasPrefix(secs[0].Content, "Preamble line."), "preamble is merged into the first section")
	assert.Contains(t, secs[0].Content, "# Intro\nHello.")

	assert.Equal(t, "Details", secs[1].Heading)
	assert.Contains(t, secs[1].Content, "# not a heading")
	assert.Contains(t, secs[1].Content, "#### Deep")

	assert.Equal(t, "Empty", secs[2].Heading)
	assert.Equal(t, "### Empty", secs[2].Content)

	assert.Equal(t, "# Last\nbye", secs[3].Content)
}

func TestSectionsWithoutHeadings(t *testing.T) {
	secs := Sections("just text\n\nand more")
	require.Len(t, secs, 1)
	assert.Empty(t, secs[0].Heading)
	assert.Empty(t, Sections(" \n\n\t"))
}

func TestSplitKeepsSmallSectionsWhole(t *testing.T) {
	s := NewSplitter(8000, 100, 1000)
	chunks := s.Split("# A\nalpha\n\n# B\nbeta")
	assert.Equal(t, []string{"# A\nalpha", "# B\nbeta"}, chunks)
}

func TestSplitWindowsLargeSections(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	body := strings.Repeat(sentence, 40)
	s := NewSplitter(200, 20, 100)

	chunks := s.Split("# Big\n" + body)
	require.Greater(t, len(chunks), 5)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 200, "chunk %d", i)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c, "."), "cut on a sentence boundary: %q", c)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "# Big"))
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	p1 := strings.Repeat("a", 70)
	p2 := strings.Repeat("b", 70)
	s := NewSplitter(100, 0, 100)

	chunks := s.Split(p1 + "\n\n" + p2)
	assert.Equal(t, []string{p1, p2}, chunks)
}

func TestSplitOverlap(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := window(text, 100, 10)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 70)
}

func TestSplitMultibyte(t *testing.T) {
	text := strings.Repeat("数据处理。", 30)
	chunks := window(text, 40, 5)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 40)
		assert.True(t, strings.HasSuffix(c, "。"))
	}
}

func TestComponents(t *testing.T) {
	s := NewSplitter(8000, 100, 20)
	chunk := "# Title\n\nshort one\n\nshort two\n\n" + strings.Repeat("z", 70)

	comps := s.Components(chunk)
	require.Len(t, comps, 6)
	assert.Equal(t, "# Title\n\nshort one", comps[0])
	assert.Equal(t, "short two", comps[1])
	for _, c := range comps[2:] {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 20)
	}
}

func TestNewSplitterClampsOptions(t *testing.T) {
	s := NewSplitter(0, -1, 0)
	assert.Equal(t, 8000, s.MaxChunkSize)
	assert.Equal(t, 0, s.Overlap)
	assert.Equal(t, 8000, s.MaxComponentSize)

	s = NewSplitter(10, 50, 5)
	assert.Equal(t, 9, s.Overlap)
}
