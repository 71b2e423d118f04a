package filter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tagrelay/internal/relay"
)

type seenSet map[string]bool

func (s seenSet) Has(id string) bool { return s[id] }

func TestApplyScenario(t *testing.T) {
	t.Parallel()

	f := New([]string{"foo"}, 0)
	got, reason := f.Apply(relay.Candidate{ID: "1", Text: "hello #foo world", Handle: "alice"}, seenSet{})
	require.Equal(t, Accepted, reason)
	assert.Equal(t, relay.Payload{ID: "1", Content: "hello world", Username: "@alice", Handle: "@alice"}, got)

	_, reason = f.Apply(relay.Candidate{ID: "1", Text: "hello #foo world", Handle: "alice"}, seenSet{"1": true})
	assert.Equal(t, RejectSeen, reason)
}

func TestApplyRejections(t *testing.T) {
	t.Parallel()

	f := New([]string{"foo", "bar"}, 0)
	tests := []struct {
		name string
		in   relay.Candidate
		want Reason
	}{
		{name: "missing id", in: relay.Candidate{Text: "#foo hi"}, want: RejectNoID},
		{name: "partial tag", in: relay.Candidate{ID: "2", Text: "#foobar hi"}, want: RejectNoTag},
		{name: "no tag", in: relay.Candidate{ID: "3", Text: "foo hi"}, want: RejectNoTag},
		{name: "only tags and urls", in: relay.Candidate{ID: "4", Text: "#foo https://t.co/x #other"}, want: RejectEmpty},
		{name: "second tag matches", in: relay.Candidate{ID: "5", Text: "hi #BAR"}, want: Accepted},
		{name: "full width prefix", in: relay.Candidate{ID: "6", Text: "こんにちは＃Foo"}, want: Accepted},
		{name: "tag before punctuation", in: relay.Candidate{ID: "7", Text: "ok #foo!"}, want: Accepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, reason := f.Apply(tt.in, seenSet{})
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestApplyNeverAcceptsMissingID(t *testing.T) {
	t.Parallel()

	f := New([]string{"foo"}, 5)
	for _, text := range []string{"#foo", "#foo text", "a #foo b https://x.y", ""} {
		p, reason := f.Apply(relay.Candidate{Text: text, Handle: "h"}, nil)
		assert.Equal(t, RejectNoID, reason)
		assert.Equal(t, relay.Payload{}, p)
	}
}

func TestApplyUsernamePrecedence(t *testing.T) {
	t.Parallel()

	f := New([]string{"foo"}, 0)
	p, reason := f.Apply(relay.Candidate{ID: "1", Text: "x #foo", Handle: "alice", DisplayName: "Alice A", AvatarURL: "https://pbs/img.jpg"}, nil)
	require.Equal(t, Accepted, reason)
	assert.Equal(t, "Alice A", p.Username)
	assert.Equal(t, "@alice", p.Handle)
	assert.Equal(t, "https://pbs/img.jpg", p.AvatarURL)

	p, reason = f.Apply(relay.Candidate{ID: "2", Text: "x #foo"}, nil)
	require.Equal(t, Accepted, reason)
	assert.Empty(t, p.Username)
	assert.Empty(t, p.Handle)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "hello #foo world", want: "hello world"},
		{in: "  line1\n\nline2\t\tend  ", want: "line1 line2 end"},
		{in: "see https://example.com/a?b=1 now", want: "see now"},
		{in: "全角＃タグ　と　空白", want: "全角 と 空白"},
		{in: "#a#b#c", want: ""},
		{in: "x #https://t.co/y z", want: "x # z"},
		{in: "\uFEFFbom\u00a0nbsp", want: "bom nbsp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"hello #foo world",
		"https#x://foo.bar baz",
		"a  #b https://c.d\n\n e ＃f_g h",
		"http://a.b#tag tail",
		"#https://x.y",
		"   ",
		"plain",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("あ", 50)
	out := Truncate(long, 10)
	assert.Equal(t, 11, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, Ellipsis))

	assert.Equal(t, long, Truncate(long, 0))
	assert.Equal(t, long, Truncate(long, -3))
	assert.Equal(t, "short", Truncate("short", 5))
}

func TestApplyTruncates(t *testing.T) {
	t.Parallel()

	f := New([]string{"foo"}, 3)
	p, reason := f.Apply(relay.Candidate{ID: "9", Text: "#foo abcdef"}, nil)
	require.Equal(t, Accepted, reason)
	assert.Equal(t, "abc"+Ellipsis, p.Content)
}
