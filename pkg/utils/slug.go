package utils

import (
	"regexp"
	"strings"
)

var slugInvalid = regexp.MustCompile("[^a-z0-9]+")

// Slugify turns a display name into a url-safe identifier.
func Slugify(s string) string {
	s = slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}
