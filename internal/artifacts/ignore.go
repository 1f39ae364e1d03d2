package artifacts

import (
	"path"
	"strings"
)

// ignored reports whether file matches any pattern. Patterns with a slash
// match the full repo-relative path; others also match the base name.
func ignored(file string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, file); ok {
			return true
		}
		if strings.Contains(p, "/") {
			continue
		}
		if ok, _ := path.Match(p, path.Base(file)); ok {
			return true
		}
	}
	return false
}
