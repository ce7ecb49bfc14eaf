package database

import (
	"fmt"
	"regexp"
	"strings"
)

const fallbackSlug = "app"

var (
	slugInvalidChars = regexp.MustCompile(`[^\w\s-]`)
	slugSeparators   = regexp.MustCompile(`[\s_-]+`)
)

// GenerateSlug converts text into a url friendly slug, e.g. "My Cool App!" -> "my-cool-app".
func GenerateSlug(text string) string {
	slug := strings.TrimSpace(strings.ToLower(text))
	slug = slugInvalidChars.ReplaceAllString(slug, "")
	slug = slugSeparators.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// EnsureUniqueSlug appends -1, -2, ... to base until it does not collide with any
// of the existing slugs.
func EnsureUniqueSlug(base string, existing []string) string {
	if base == "" {
		base = fallbackSlug
	}

	taken := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		taken[s] = struct{}{}
	}

	slug := base
	for counter := 1; ; counter++ {
		if _, ok := taken[slug]; !ok {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}
