package store

import (
	"regexp"
	"strings"
)

var (
	unsafeRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	repeatRE = regexp.MustCompile(`_+`)
)

// SanitizePathComponent returns a filesystem-safe name: letters, digits,
// dot, dash, underscore. Any other character is replaced with an
// underscore. Collapses repeats and trims separator chars from the ends. An
// empty result falls back to "item" so an archive path component never
// vanishes.
func SanitizePathComponent(value string) string {
	value = strings.TrimSpace(value)
	value = unsafeRE.ReplaceAllString(value, "_")
	value = repeatRE.ReplaceAllString(value, "_")
	value = strings.Trim(value, "._-")
	if value == "" {
		return "item"
	}
	return value
}
