package chunk

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// codeExtensions lists extensions routed to the function/class-boundary
// splitter. Grounded on the teacher's per-language chunker registry, but
// implemented here as one regex-driven splitter rather than a subclass per
// language — composition over inheritance (spec.md §9).
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".rb": true, ".rs": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cs": true, ".php": true, ".ps1": true, ".sh": true,
}

// Dispatch splits text into ordered chunks according to the primary
// strategy selected by fileExtension, then refines each resulting section
// with a sliding window so nothing exceeds opts.MaxChunkSize.
func Dispatch(text string, fileExtension string, opts Options) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ext := strings.ToLower(fileExtension)
	var sections []section
	switch {
	case ext == ".md" || ext == ".markdown" || ext == ".mdx":
		sections = splitMarkdown(text)
	case codeExtensions[ext]:
		sections = splitCode(text)
	case ext == ".xml":
		sections = splitXML(text)
	default:
		sections = splitParagraphs(text)
	}

	now := time.Now().UTC()
	var chunks []Chunk
	index := 0
	for _, sec := range sections {
		for _, refined := range refine(sec.text, opts) {
			if strings.TrimSpace(refined) == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:          refined,
				HeaderContext: sec.headerContext,
				Index:         index,
				TextPreview:   preview(refined),
				CreatedAt:     now,
			})
			index++
		}
	}
	return chunks
}

// DispatchFile is a convenience wrapper that derives the extension from a
// file name, for callers that only have a path on hand.
func DispatchFile(text, fileName string, opts Options) []Chunk {
	return Dispatch(text, filepath.Ext(fileName), opts)
}

// sentenceEnders are the characters that may terminate a backed-up
// window per spec.md §4.4.
var sentenceEnders = []string{".", "?", "!", "\n\n"}

// refine applies the sliding-window split described in spec.md §4.4: a
// section at or under MaxChunkSize is emitted as-is; a longer one is
// walked in windows of MaxChunkSize with step MaxChunkSize-Overlap, each
// window backed up to the nearest sentence boundary within its last 20%,
// falling back to the nearest whitespace, and never splitting mid-word.
func refine(text string, opts Options) []string {
	if len(text) <= opts.MaxChunkSize {
		return []string{text}
	}

	step := opts.MaxChunkSize - opts.Overlap
	if step <= 0 {
		step = opts.MaxChunkSize
	}

	var out []string
	start := 0
	for start < len(text) {
		end := start + opts.MaxChunkSize
		if end >= len(text) {
			out = append(out, text[start:])
			break
		}
		end = backUpToBoundary(text, start, end)
		if end <= start {
			end = start + opts.MaxChunkSize
			if end > len(text) {
				end = len(text)
			}
		}
		out = append(out, text[start:end])
		start += step
		if start >= len(text) {
			break
		}
	}
	return out
}

// backUpToBoundary searches backward from end, within the last 20% of the
// [start,end) window, for a sentence-ending character; failing that, the
// nearest whitespace anywhere in the window; failing that (a window with no
// whitespace at all), returns end unchanged, the only case that cuts a word.
func backUpToBoundary(text string, start, end int) int {
	windowLen := end - start
	searchFloor := end - windowLen/5
	if searchFloor < start {
		searchFloor = start
	}

	for i := end - 1; i >= searchFloor; i-- {
		for _, ender := range sentenceEnders {
			n := len(ender)
			if i+n <= len(text) && text[i:i+n] == ender {
				return i + n
			}
		}
	}
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(rune(text[i])) {
			return i + 1
		}
	}
	return end
}

// preview collapses whitespace and truncates to 100 characters.
func preview(text string) string {
	fields := strings.Fields(text)
	collapsed := strings.Join(fields, " ")
	if len(collapsed) <= 100 {
		return collapsed
	}
	return collapsed[:100]
}
