package feed

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tagrelay/internal/relay"
)

var statusLink = regexp.MustCompile(`^/([^/]+)/status/(\d+)`)

// loginHints are body substrings that suggest the page is a login wall.
var loginHints = []string{"Log in", "ログイン"}

// ParseSnapshot extracts the rendered posts from a page snapshot in document
// order. Posts without text are dropped; absent fields stay empty.
func ParseSnapshot(html string) (relay.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return relay.Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}

	snap := relay.Snapshot{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		if c, ok := parseArticle(article); ok {
			snap.Candidates = append(snap.Candidates, c)
		}
	})

	body := doc.Find("body").Text()
	for _, hint := range loginHints {
		if strings.Contains(body, hint) {
			snap.LoginWall = true
			break
		}
	}
	return snap, nil
}

func parseArticle(article *goquery.Selection) (relay.Candidate, bool) {
	text := article.Find(`[data-testid="tweetText"]`).First().Text()
	if text == "" {
		return relay.Candidate{}, false
	}
	c := relay.Candidate{Text: text}

	href, _ := article.Find(`a[href*="/status/"]`).First().Attr("href")
	if m := statusLink.FindStringSubmatch(href); m != nil {
		c.Handle = m[1]
		c.ID = m[2]
	}

	c.DisplayName = article.Find(`div[data-testid="User-Name"] span`).First().Text()

	avatar := article.Find(`img[src*="profile_images"]`).First()
	if avatar.Length() == 0 {
		avatar = article.Find(`div[data-testid="User-Avatar"] img`).First()
	}
	c.AvatarURL, _ = avatar.Attr("src")
	return c, true
}
