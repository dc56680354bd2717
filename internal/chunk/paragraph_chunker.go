package chunk

import (
	"fmt"
	"regexp"
	"strings"
)

// blankLinePattern separates paragraphs: one or more blank lines.
var blankLinePattern = regexp.MustCompile(`\n[ \t]*\n+`)

// splitParagraphs is the default strategy for any extension not otherwise
// dispatched: split on blank-line paragraphs, headerContext = "(paragraph N)".
func splitParagraphs(text string) []section {
	parts := blankLinePattern.Split(text, -1)

	var sections []section
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		n++
		sections = append(sections, section{text: p, headerContext: fmt.Sprintf("(paragraph %d)", n)})
	}
	if len(sections) == 0 {
		return []section{{text: text, headerContext: "(paragraph 1)"}}
	}
	return sections
}
