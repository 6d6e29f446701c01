package bill

import (
	"regexp"
	"strings"
)

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9\-\s]`)
	slugSpaces   = regexp.MustCompile(`\s+`)
	slugDashRuns = regexp.MustCompile(`-+`)
)

// maxSlugTitleChars caps how much of the title goes into a slug.
const maxSlugTitleChars = 64

// DefaultSlug derives a URL-safe slug from legislation number, title and version.
func DefaultSlug(legisNum, title, version string) string {
	if r := []rune(title); len(r) > maxSlugTitleChars {
		title = string(r[:maxSlugTitleChars])
	}
	s := strings.ToLower(legisNum + "-" + title + "-" + version)
	s = strings.ReplaceAll(s, ".", "-")
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
