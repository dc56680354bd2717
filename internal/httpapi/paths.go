package httpapi

import (
	"path/filepath"
	"strings"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

// denyPrefixes are the system directories spec.md §6 says POST /api/queue
// must reject outright, regardless of platform.
var denyPrefixes = []string{
	`c:\windows`,
	`c:\program files`,
	"/etc",
	"/var",
}

// validateQueuePath enforces spec.md §6's POST /api/queue path rules: must
// be absolute, must not contain a ".." traversal segment, and must not
// fall under a denied system directory.
func validateQueuePath(path string) error {
	if path == "" {
		return apperr.InputValidation("path must not be empty", nil)
	}
	if !filepath.IsAbs(path) {
		return apperr.InputValidation("path must be absolute", nil)
	}

	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return apperr.InputValidation("path must not contain \"..\"", nil)
		}
	}

	lower := strings.ToLower(path)
	for _, deny := range denyPrefixes {
		if strings.HasPrefix(lower, deny) {
			return apperr.InputValidation("path falls under a denied system directory", nil)
		}
	}
	return nil
}
