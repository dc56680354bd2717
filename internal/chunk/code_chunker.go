package chunk

import (
	"regexp"
)

// funcBoundaryPattern matches a top-level function or class/struct/type
// definition line across the languages spec.md §4.4 names. It's
// deliberately line-anchored and indentation-free rather than a full
// per-language grammar — spec.md §9 trades AST precision for a single
// regex-driven dispatch table.
var funcBoundaryPattern = regexp.MustCompile(`(?m)^(func |def |class |function |fn |public |private |protected )[^\n]*`)

// funcNamePattern pulls a bare identifier out of a matched boundary line.
var funcNamePattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*[\(:{]`)

// splitCode splits on top-level function/class boundaries; each section's
// headerContext is the function/class name, or "(top-level)" for code that
// precedes the first boundary or has none at all.
func splitCode(text string) []section {
	matches := funcBoundaryPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []section{{text: text, headerContext: "(top-level)"}}
	}

	var sections []section
	if matches[0][0] > 0 {
		sections = append(sections, section{text: text[:matches[0][0]], headerContext: "(top-level)"})
	}

	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := text[m[0]:end]
		sections = append(sections, section{text: body, headerContext: functionName(body)})
	}
	return sections
}

// functionName extracts the identifier following a def/func/class keyword;
// falls back to "(top-level)" when none can be found.
func functionName(boundary string) string {
	loc := funcNamePattern.FindStringSubmatchIndex(boundary)
	if loc == nil {
		return "(top-level)"
	}
	return boundary[loc[2]:loc[3]]
}
