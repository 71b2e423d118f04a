// Package feed owns the browser session that renders the hashtag search page
// and turns its DOM into candidates.
//
// The chromedp session is long-lived: one browser, one tab, reused across
// polls and rebuilt from scratch when any layer of it dies. Extraction runs on
// an HTML snapshot with goquery so it can be tested without a browser.
package feed
