package chunk

import (
	"encoding/xml"
	"strings"
)

// splitXML splits on top-level child elements of the document's root,
// using headerContext as the element path (e.g. "root > item").
func splitXML(text string) []section {
	decoder := xml.NewDecoder(strings.NewReader(text))

	var path []string
	var sections []section
	var rootName string
	var depth int
	var childStart int64
	inChild := false

	for {
		offset := decoder.InputOffset()
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				rootName = t.Name.Local
				path = []string{rootName}
				continue
			}
			if depth == 2 && !inChild {
				inChild = true
				childStart = offset
				path = []string{rootName, t.Name.Local}
			}
		case xml.EndElement:
			if depth == 2 && inChild {
				end := decoder.InputOffset()
				sections = append(sections, section{
					text:          strings.TrimSpace(text[childStart:end]),
					headerContext: strings.Join(path, " > "),
				})
				inChild = false
			}
			depth--
		}
	}

	if len(sections) == 0 {
		return []section{{text: text, headerContext: "(top-level)"}}
	}
	return sections
}
