package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMarkdownHeaderBreadcrumbs(t *testing.T) {
	text := "# A\n\nintro text\n\n## B\n\nbody text\n\n### C\n\nleaf text\n"
	chunks := Dispatch(text, ".md", DefaultOptions())
	require.NotEmpty(t, chunks)

	var sawLeaf bool
	for _, c := range chunks {
		if strings.Contains(c.Text, "leaf text") {
			sawLeaf = true
			assert.Equal(t, "A > B > C", c.HeaderContext)
		}
	}
	assert.True(t, sawLeaf)
}

func TestDispatchCodeFunctionBoundary(t *testing.T) {
	text := "package main\n\nfunc Foo() {\n\treturn\n}\n\nfunc Bar() {\n\treturn\n}\n"
	chunks := Dispatch(text, ".go", DefaultOptions())
	require.Len(t, chunks, 3)
	assert.Equal(t, "(top-level)", chunks[0].HeaderContext)
	assert.Equal(t, "Foo", chunks[1].HeaderContext)
	assert.Equal(t, "Bar", chunks[2].HeaderContext)
}

func TestDispatchXMLElementPath(t *testing.T) {
	text := `<root><item>one</item><item>two</item></root>`
	chunks := Dispatch(text, ".xml", DefaultOptions())
	require.Len(t, chunks, 2)
	assert.Equal(t, "root > item", chunks[0].HeaderContext)
	assert.Contains(t, chunks[0].Text, "one")
	assert.Contains(t, chunks[1].Text, "two")
}

func TestDispatchDefaultParagraphs(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"
	chunks := Dispatch(text, ".txt", DefaultOptions())
	require.Len(t, chunks, 3)
	assert.Equal(t, "(paragraph 1)", chunks[0].HeaderContext)
	assert.Equal(t, "(paragraph 2)", chunks[1].HeaderContext)
	assert.Equal(t, "(paragraph 3)", chunks[2].HeaderContext)
}

func TestDispatchIndexesAreContiguous(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"
	chunks := Dispatch(text, ".txt", DefaultOptions())
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestDispatchEmptyTextReturnsNoChunks(t *testing.T) {
	assert.Empty(t, Dispatch("   \n  ", ".md", DefaultOptions()))
}

func TestRefineSlidingWindowNeverSplitsMidWord(t *testing.T) {
	word := strings.Repeat("a", 30)
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString(word)
		sb.WriteString(" ")
	}
	text := sb.String()

	opts := Options{MaxChunkSize: 200, Overlap: 50}
	parts := refine(text, opts)
	require.Greater(t, len(parts), 1)
	for i, p := range parts {
		if i == len(parts)-1 {
			continue
		}
		assert.True(t, strings.HasSuffix(p, " ") || strings.HasSuffix(p, "\n"),
			"window %d ends mid-word: %q", i, p[len(p)-10:])
	}
}

func TestPreviewCollapsesWhitespaceAndTruncates(t *testing.T) {
	text := strings.Repeat("word ", 40)
	p := preview(text)
	assert.LessOrEqual(t, len(p), 100)
	assert.NotContains(t, p, "  ")
}
