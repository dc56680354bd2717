package chunk

import (
	"regexp"
	"strings"
)

// atxHeaderPattern matches ATX-style markdown headers: # Title, ## Title, ...
var atxHeaderPattern = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t]*$`)

// headerFrame is one entry in the header stack used to build breadcrumbs.
type headerFrame struct {
	level int
	title string
}

// splitMarkdown splits on ATX headers, maintaining a stack of (level,
// title) so each section's headerContext is its ancestor titles joined by
// " > ", per spec.md §4.4.
func splitMarkdown(text string) []section {
	matches := atxHeaderPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []section{{text: text, headerContext: "(top-level)"}}
	}

	var sections []section
	var stack []headerFrame

	if matches[0][0] > 0 {
		lead := strings.TrimSpace(text[:matches[0][0]])
		if lead != "" {
			sections = append(sections, section{text: lead, headerContext: "(top-level)"})
		}
	}

	for i, m := range matches {
		level := len(text[m[2]:m[3]])
		title := strings.TrimSpace(text[m[4]:m[5]])

		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, headerFrame{level: level, title: title})

		bodyStart := m[1]
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := strings.TrimSpace(text[bodyStart:bodyEnd])

		titles := make([]string, len(stack))
		for j, f := range stack {
			titles[j] = f.title
		}
		sections = append(sections, section{
			text:          title + "\n\n" + body,
			headerContext: strings.Join(titles, " > "),
		})
	}
	return sections
}
