package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id       uint64
	messages [][][]byte
	cur      [][]byte
}

func (f *fakeSubscriber) ID() uint64 { return f.id }

func (f *fakeSubscriber) ReplyMultiBulkHeader(count int) {
	if f.cur != nil {
		f.messages = append(f.messages, f.cur)
	}
	f.cur = make([][]byte, 0, count)
}

func (f *fakeSubscriber) ReplyBulk(value []byte) {
	f.cur = append(f.cur, value)
}

func (f *fakeSubscriber) ReplyNilBulk() {
	f.cur = append(f.cur, nil)
}

func (f *fakeSubscriber) ReplyInteger(n int64) {
	f.cur = append(f.cur, []byte{byte(n)})
}

func (f *fakeSubscriber) flush() {
	if f.cur != nil {
		f.messages = append(f.messages, f.cur)
		f.cur = nil
	}
}

func TestSubscribeReturnsTrueOnlyWhenNew(t *testing.T) {
	h := NewHub()
	c := &fakeSubscriber{id: 1}

	assert.True(t, h.Subscribe(c, "news"))
	assert.False(t, h.Subscribe(c, "news"))
}

func TestUnsubscribeRemovesEmptyChannel(t *testing.T) {
	h := NewHub()
	c := &fakeSubscriber{id: 1}
	h.Subscribe(c, "news")
	h.Unsubscribe(c, "news", false)

	assert.Empty(t, h.Channels(""))
}

func TestPublishDeliversToExactSubscribersBeforePatterns(t *testing.T) {
	h := NewHub()
	exact := &fakeSubscriber{id: 1}
	pat := &fakeSubscriber{id: 2}

	h.Subscribe(exact, "news.sports")
	h.PSubscribe(pat, "news.*")

	n := h.Publish("news.sports", []byte("goal"))
	assert.Equal(t, 2, n)

	exact.flush()
	pat.flush()
	require.Len(t, exact.messages, 1)
	assert.Equal(t, []byte("message"), exact.messages[0][0])
	assert.Equal(t, []byte("news.sports"), exact.messages[0][1])
	assert.Equal(t, []byte("goal"), exact.messages[0][2])

	require.Len(t, pat.messages, 1)
	assert.Equal(t, []byte("pmessage"), pat.messages[0][0])
	assert.Equal(t, []byte("news.*"), pat.messages[0][1])
	assert.Equal(t, []byte("news.sports"), pat.messages[0][2])
}

func TestUnsubscribeAllChannelsAlwaysNotifiesOnce(t *testing.T) {
	h := NewHub()
	c := &fakeSubscriber{id: 1}

	h.UnsubscribeAllChannels(c, true)
	c.flush()
	require.Len(t, c.messages, 1)
	assert.Equal(t, []byte("unsubscribe"), c.messages[0][0])
	assert.Nil(t, c.messages[0][1])
}

func TestNumSubAndNumPat(t *testing.T) {
	h := NewHub()
	a := &fakeSubscriber{id: 1}
	b := &fakeSubscriber{id: 2}
	h.Subscribe(a, "x")
	h.Subscribe(b, "x")
	h.PSubscribe(a, "x*")

	assert.Equal(t, []int{2}, h.NumSub([]string{"x"}))
	assert.Equal(t, 1, h.NumPat())
}

func TestGlobMatchBasics(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"news.*", "news.sports", true},
		{"news.*", "news", false},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]at", "hbat", true},
		{"*", "anything", true},
		{`\*literal`, "*literal", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, globMatch(tc.pattern, tc.s, false), "pattern=%q s=%q", tc.pattern, tc.s)
	}
}
