package feed

import (
	"net/url"
	"strings"
)

// DefaultSearchBase is the live search endpoint.
const DefaultSearchBase = "https://x.com/search"

// SearchURL builds the live-search URL for the given tags. A single tag is
// queried directly; several are grouped and OR-ed.
func SearchURL(base string, tags []string) string {
	if base == "" {
		base = DefaultSearchBase
	}
	if len(tags) == 0 {
		tags = []string{"animaymg"}
	}
	if len(tags) == 1 {
		return base + "?q=%23" + escapeTag(tags[0]) + "&f=live"
	}
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, "(%23"+escapeTag(tag)+")")
	}
	return base + "?q=" + strings.Join(parts, "%20OR%20") + "&f=live"
}

// escapeTag percent-encodes a tag for the q parameter, spaces as %20.
func escapeTag(tag string) string {
	return strings.ReplaceAll(url.QueryEscape(tag), "+", "%20")
}
