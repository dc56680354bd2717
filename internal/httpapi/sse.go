package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeSSEData writes one `data: <json>\n\n` frame. Grounded on
// entrepeneur4lyf-codeforge/internal/api/sse_handlers.go's
// writeSSEEvent, narrowed to the data-only framing spec.md §4.7 uses (no
// `event:`/`id:` lines).
func writeSSEData(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
