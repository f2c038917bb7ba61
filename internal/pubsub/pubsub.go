// Package pubsub routes published messages to direct-channel and
// glob-pattern subscribers, bypassing the command/reply pipeline by
// writing straight into each subscriber's output buffer.
package pubsub

import "sync"

// Subscriber is the minimal surface PubSub needs from a connected
// client: identity for map membership and a reply sink for delivery.
type Subscriber interface {
	ID() uint64
	ReplyMultiBulkHeader(count int)
	ReplyBulk(value []byte)
	ReplyNilBulk()
	ReplyInteger(n int64)
}

type patternSub struct {
	client  Subscriber
	pattern string
}

// Hub owns every channel and pattern subscription in the process.
type Hub struct {
	mu sync.Mutex

	channels map[string]map[uint64]Subscriber // channel -> clientID -> client
	clientChannels map[uint64]map[string]struct{}

	patterns       []patternSub
	clientPatterns map[uint64]map[string]struct{}

	// onGaugeChange, if set, is called after every mutation with the
	// current channel and pattern-subscription counts — an optional
	// observability hook, the same pattern reactor.Loop.onIteration
	// and client.Options.OnProtocolError use, keeping this package
	// free of a metrics dependency.
	onGaugeChange func(channels, patterns int)
}

// NewHub returns an empty pub/sub hub.
func NewHub() *Hub {
	return &Hub{
		channels:       make(map[string]map[uint64]Subscriber),
		clientChannels: make(map[uint64]map[string]struct{}),
		clientPatterns: make(map[uint64]map[string]struct{}),
	}
}

// SetOnGaugeChange installs (or clears, with nil) the channel/pattern
// count observability hook.
func (h *Hub) SetOnGaugeChange(fn func(channels, patterns int)) {
	h.mu.Lock()
	h.onGaugeChange = fn
	h.mu.Unlock()
}

func (h *Hub) reportGaugesLocked() (channels, patterns int) {
	return len(h.channels), len(h.patterns)
}

// Subscribe adds client to channel, replying with a three-element
// subscribe confirmation. Returns true only if this is a newly added
// subscription for this client.
func (h *Hub) Subscribe(client Subscriber, channel string) bool {
	h.mu.Lock()
	added := h.addChannelLocked(client, channel)
	total := h.totalSubscriptionsLocked(client.ID())
	channels, patterns := h.reportGaugesLocked()
	onGaugeChange := h.onGaugeChange
	h.mu.Unlock()

	h.replyConfirmation(client, "subscribe", channel, total)
	if onGaugeChange != nil {
		onGaugeChange(channels, patterns)
	}
	return added
}

func (h *Hub) addChannelLocked(client Subscriber, channel string) bool {
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[uint64]Subscriber)
		h.channels[channel] = subs
	}
	if _, already := subs[client.ID()]; already {
		return false
	}
	subs[client.ID()] = client

	chans, ok := h.clientChannels[client.ID()]
	if !ok {
		chans = make(map[string]struct{})
		h.clientChannels[client.ID()] = chans
	}
	chans[channel] = struct{}{}
	return true
}

// Unsubscribe removes client from channel. If the channel's subscriber
// list becomes empty the entry is removed entirely. When notify is
// true a confirmation reply is pushed (even when the client wasn't
// subscribed — with a nil channel name, per the always-respond rule).
func (h *Hub) Unsubscribe(client Subscriber, channel string, notify bool) {
	h.mu.Lock()
	removed := h.removeChannelLocked(client, channel)
	total := h.totalSubscriptionsLocked(client.ID())
	channels, patterns := h.reportGaugesLocked()
	onGaugeChange := h.onGaugeChange
	h.mu.Unlock()

	if onGaugeChange != nil {
		onGaugeChange(channels, patterns)
	}
	if !notify {
		return
	}
	if removed {
		h.replyConfirmation(client, "unsubscribe", channel, total)
	} else {
		h.replyConfirmationNilChannel(client, "unsubscribe", total)
	}
}

func (h *Hub) removeChannelLocked(client Subscriber, channel string) bool {
	subs, ok := h.channels[channel]
	if !ok {
		return false
	}
	if _, ok := subs[client.ID()]; !ok {
		return false
	}
	delete(subs, client.ID())
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	if chans, ok := h.clientChannels[client.ID()]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(h.clientChannels, client.ID())
		}
	}
	return true
}

// UnsubscribeAllChannels drops every channel subscription for client,
// always sending at least one confirmation (nil channel) if it had none.
func (h *Hub) UnsubscribeAllChannels(client Subscriber, notify bool) {
	h.mu.Lock()
	chans := h.clientChannels[client.ID()]
	names := make([]string, 0, len(chans))
	for ch := range chans {
		names = append(names, ch)
	}
	h.mu.Unlock()

	if len(names) == 0 {
		if notify {
			h.mu.Lock()
			total := h.totalSubscriptionsLocked(client.ID())
			h.mu.Unlock()
			h.replyConfirmationNilChannel(client, "unsubscribe", total)
		}
		return
	}
	for _, ch := range names {
		h.Unsubscribe(client, ch, notify)
	}
}

// PSubscribe adds client to pattern, replying with a three-element
// psubscribe confirmation.
func (h *Hub) PSubscribe(client Subscriber, pattern string) bool {
	h.mu.Lock()

	pats, ok := h.clientPatterns[client.ID()]
	if !ok {
		pats = make(map[string]struct{})
		h.clientPatterns[client.ID()] = pats
	}
	if _, already := pats[pattern]; already {
		total := h.totalSubscriptionsLocked(client.ID())
		h.mu.Unlock()
		h.replyConfirmation(client, "psubscribe", pattern, total)
		return false
	}
	pats[pattern] = struct{}{}
	h.patterns = append(h.patterns, patternSub{client: client, pattern: pattern})

	total := h.totalSubscriptionsLocked(client.ID())
	channels, patterns := h.reportGaugesLocked()
	onGaugeChange := h.onGaugeChange
	h.mu.Unlock()

	h.replyConfirmation(client, "psubscribe", pattern, total)
	if onGaugeChange != nil {
		onGaugeChange(channels, patterns)
	}
	return true
}

// PUnsubscribe removes client's subscription to pattern.
func (h *Hub) PUnsubscribe(client Subscriber, pattern string, notify bool) {
	h.mu.Lock()
	removed := h.removePatternLocked(client, pattern)
	total := h.totalSubscriptionsLocked(client.ID())
	channels, patterns := h.reportGaugesLocked()
	onGaugeChange := h.onGaugeChange
	h.mu.Unlock()

	if onGaugeChange != nil {
		onGaugeChange(channels, patterns)
	}
	if !notify {
		return
	}
	if removed {
		h.replyConfirmation(client, "punsubscribe", pattern, total)
	} else {
		h.replyConfirmationNilChannel(client, "punsubscribe", total)
	}
}

func (h *Hub) removePatternLocked(client Subscriber, pattern string) bool {
	pats, ok := h.clientPatterns[client.ID()]
	if !ok {
		return false
	}
	if _, ok := pats[pattern]; !ok {
		return false
	}
	delete(pats, pattern)
	if len(pats) == 0 {
		delete(h.clientPatterns, client.ID())
	}
	for i, ps := range h.patterns {
		if ps.client.ID() == client.ID() && ps.pattern == pattern {
			h.patterns = append(h.patterns[:i], h.patterns[i+1:]...)
			break
		}
	}
	return true
}

// UnsubscribeAllPatterns drops every pattern subscription for client.
func (h *Hub) UnsubscribeAllPatterns(client Subscriber, notify bool) {
	h.mu.Lock()
	pats := h.clientPatterns[client.ID()]
	names := make([]string, 0, len(pats))
	for p := range pats {
		names = append(names, p)
	}
	h.mu.Unlock()

	if len(names) == 0 {
		if notify {
			h.mu.Lock()
			total := h.totalSubscriptionsLocked(client.ID())
			h.mu.Unlock()
			h.replyConfirmationNilChannel(client, "punsubscribe", total)
		}
		return
	}
	for _, p := range names {
		h.PUnsubscribe(client, p, notify)
	}
}

// Publish delivers message to every exact-channel subscriber (as a
// three-element "message" reply) and then, in registration order, to
// every pattern subscriber whose pattern glob-matches channel (as a
// four-element "pmessage" reply). Exact subscribers always see the
// message before pattern subscribers. Returns the total receiver count.
func (h *Hub) Publish(channel string, message []byte) int {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.channels[channel]))
	for _, c := range h.channels[channel] {
		subs = append(subs, c)
	}
	matched := make([]patternSub, 0)
	for _, ps := range h.patterns {
		if globMatch(ps.pattern, channel, false) {
			matched = append(matched, ps)
		}
	}
	h.mu.Unlock()

	for _, c := range subs {
		c.ReplyMultiBulkHeader(3)
		c.ReplyBulk([]byte("message"))
		c.ReplyBulk([]byte(channel))
		c.ReplyBulk(message)
	}
	for _, ps := range matched {
		ps.client.ReplyMultiBulkHeader(4)
		ps.client.ReplyBulk([]byte("pmessage"))
		ps.client.ReplyBulk([]byte(ps.pattern))
		ps.client.ReplyBulk([]byte(channel))
		ps.client.ReplyBulk(message)
	}
	return len(subs) + len(matched)
}

// Channels returns every channel with at least one subscriber, or
// only those matching pattern when non-empty.
func (h *Hub) Channels(pattern string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.channels))
	for ch := range h.channels {
		if pattern == "" || globMatch(pattern, ch, false) {
			out = append(out, ch)
		}
	}
	return out
}

// NumSub returns the subscriber count for each requested channel, in order.
func (h *Hub) NumSub(channels []string) []int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]int, len(channels))
	for i, ch := range channels {
		out[i] = len(h.channels[ch])
	}
	return out
}

// NumPat returns the total number of active pattern subscriptions.
func (h *Hub) NumPat() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.patterns)
}

func (h *Hub) totalSubscriptionsLocked(clientID uint64) int {
	return len(h.clientChannels[clientID]) + len(h.clientPatterns[clientID])
}

func (h *Hub) replyConfirmation(client Subscriber, kind, name string, total int) {
	client.ReplyMultiBulkHeader(3)
	client.ReplyBulk([]byte(kind))
	client.ReplyBulk([]byte(name))
	client.ReplyInteger(int64(total))
}

func (h *Hub) replyConfirmationNilChannel(client Subscriber, kind string, total int) {
	client.ReplyMultiBulkHeader(3)
	client.ReplyBulk([]byte(kind))
	client.ReplyNilBulk()
	client.ReplyInteger(int64(total))
}
