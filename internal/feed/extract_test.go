package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tagrelay/internal/relay"
)

const timelineHTML = `<!doctype html><html><head><title>#foo - Search / X</title></head><body>
<article>
  <div data-testid="User-Avatar"><img src="https://pbs.twimg.com/profile_images/1/a_normal.jpg"></div>
  <div data-testid="User-Name"><span>Alice</span><span>@alice</span></div>
  <a href="/alice/status/1001">3m</a>
  <div data-testid="tweetText"><span>hello </span><a href="/hashtag/foo">#foo</a><span> world</span></div>
</article>
<article>
  <div data-testid="User-Avatar"><img src="https://pbs.twimg.com/other.jpg"></div>
  <a href="/bob/status/1002/analytics">5m</a>
  <div data-testid="tweetText">second #foo</div>
</article>
<article>
  <div data-testid="tweetText">no link here #foo</div>
</article>
<article>
  <a href="/carol/status/1004">promo</a>
</article>
</body></html>`

func TestParseSnapshot(t *testing.T) {
	t.Parallel()

	snap, err := ParseSnapshot(timelineHTML)
	require.NoError(t, err)
	assert.Equal(t, "#foo - Search / X", snap.Title)
	assert.False(t, snap.LoginWall)
	require.Len(t, snap.Candidates, 3)

	assert.Equal(t, relay.Candidate{
		ID:          "1001",
		Text:        "hello #foo world",
		Handle:      "alice",
		DisplayName: "Alice",
		AvatarURL:   "https://pbs.twimg.com/profile_images/1/a_normal.jpg",
	}, snap.Candidates[0])

	assert.Equal(t, "1002", snap.Candidates[1].ID)
	assert.Equal(t, "bob", snap.Candidates[1].Handle)
	assert.Empty(t, snap.Candidates[1].DisplayName)
	assert.Equal(t, "https://pbs.twimg.com/other.jpg", snap.Candidates[1].AvatarURL)

	assert.Empty(t, snap.Candidates[2].ID)
	assert.Empty(t, snap.Candidates[2].Handle)
}

func TestParseSnapshotLoginWall(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"Log in to X", "ログインしてください"} {
		snap, err := ParseSnapshot("<html><head><title>X</title></head><body><div>" + body + "</div></body></html>")
		require.NoError(t, err)
		assert.Empty(t, snap.Candidates)
		assert.True(t, snap.LoginWall, body)
	}
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://x.com/search?q=%23foo&f=live", SearchURL("", []string{"foo"}))
	assert.Equal(t, "https://x.com/search?q=(%23a)%20OR%20(%23b)&f=live", SearchURL(DefaultSearchBase, []string{"a", "b"}))
	assert.Equal(t, "http://local/search?q=%23animaymg&f=live", SearchURL("http://local/search", nil))
	assert.Equal(t, "https://x.com/search?q=%23%E3%82%A2%E3%83%8B%E3%83%A1&f=live", SearchURL("", []string{"アニメ"}))
	assert.Equal(t, "https://x.com/search?q=%23a%20b&f=live", SearchURL("", []string{"a b"}))
	assert.Equal(t, "https://x.com/search?q=(%23c%2B%2B)%20OR%20(%23x%26y%3D1)&f=live", SearchURL("", []string{"c++", "x&y=1"}))
}
