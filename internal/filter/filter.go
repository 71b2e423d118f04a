// Package filter turns scraped candidates into dispatch payloads.
//
// Every function here is pure: the only state consulted is the hashtag list,
// the length ceiling and the caller-supplied seen set.
package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/tagrelay/internal/relay"
)

// Ellipsis is appended to truncated content.
const Ellipsis = "…"

// Reason explains the outcome of Apply.
type Reason string

// Apply outcomes.
const (
	Accepted    Reason = "accepted"
	RejectNoID  Reason = "no-id"
	RejectSeen  Reason = "seen"
	RejectNoTag Reason = "no-tag"
	RejectEmpty Reason = "empty"
)

// space covers ASCII and Unicode separators, including the ideographic space.
const space = `\s\p{Z}\x{0B}\x{FEFF}`

var (
	urlPattern     = regexp.MustCompile(`https?://[^` + space + `]+`)
	hashtagPattern = regexp.MustCompile(`[＃#][\p{L}\p{N}_]+`)
	spacePattern   = regexp.MustCompile(`[` + space + `]+`)
)

// Filter applies hashtag matching, normalization and truncation.
type Filter struct {
	tags   []*regexp.Regexp
	maxLen int
}

// New compiles one matcher per hashtag. maxLen <= 0 disables truncation.
func New(hashtags []string, maxLen int) *Filter {
	f := &Filter{maxLen: maxLen}
	for _, tag := range hashtags {
		tag = strings.TrimLeft(strings.TrimSpace(tag), "#＃")
		if tag == "" {
			continue
		}
		f.tags = append(f.tags, regexp.MustCompile(`(?i)[＃#]`+regexp.QuoteMeta(tag)+`(?:[^\p{L}\p{N}_]|$)`))
	}
	return f
}

// Matches reports whether text carries at least one configured hashtag.
// The tag must not continue into further letters, digits or underscores.
func (f *Filter) Matches(text string) bool {
	for _, re := range f.tags {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Apply runs the candidate through the rejection steps in order and builds the
// payload for accepted items.
func (f *Filter) Apply(c relay.Candidate, seen relay.SeenSet) (relay.Payload, Reason) {
	if c.ID == "" {
		return relay.Payload{}, RejectNoID
	}
	if seen != nil && seen.Has(c.ID) {
		return relay.Payload{}, RejectSeen
	}
	if !f.Matches(c.Text) {
		return relay.Payload{}, RejectNoTag
	}
	content := Normalize(c.Text)
	if content == "" {
		return relay.Payload{}, RejectEmpty
	}
	content = Truncate(content, f.maxLen)

	p := relay.Payload{ID: c.ID, Content: content, AvatarURL: c.AvatarURL}
	if c.Handle != "" {
		p.Handle = "@" + c.Handle
	}
	p.Username = c.DisplayName
	if p.Username == "" {
		p.Username = p.Handle
	}
	return p, Accepted
}

// Normalize strips URLs and hashtag tokens, collapses whitespace and trims.
// Stripping repeats until stable so the result is a fixed point.
func Normalize(text string) string {
	for {
		next := hashtagPattern.ReplaceAllString(urlPattern.ReplaceAllString(text, ""), "")
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// Truncate cuts s to maxLen characters plus Ellipsis when it is longer.
// maxLen <= 0 leaves s untouched.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + Ellipsis
}
