package discord

import (
	"context"
	"time"
)

// defaultDelayMS is the inter-request sleep when FetchOptions.DelayMS
// is unset — spec.md §4.B.
const defaultDelayMS = 100

// pageSize is the maximum messages returned by one underlying request.
const pageSize = 100

// MessageIterator lazily pages through a channel's message history.
// A pull-based iterator (rather than a callback or channel of
// messages) so the caller — the Drive scrape pass — can stop
// cleanly on ctx cancellation between pages without leaking a
// goroutine, per spec.md §9's guidance on cooperative cancellation.
type MessageIterator struct {
	ctx     context.Context
	svc     ChatService
	sess    Session
	channel string

	after  string
	before string
	limit  int
	delay  time.Duration

	buf       []Message
	cur       Message
	fetched   int
	firstPage bool
	exhausted bool
	err       error
}

// NewMessageIterator starts a lazy, finite sequence of messages for
// channel. When opts.After is set (incremental mode), paging starts
// there and moves forward; otherwise paging starts from newest and
// moves backward via opts.Before, updated to the oldest id of each
// batch.
func NewMessageIterator(ctx context.Context, svc ChatService, sess Session, channelID string, opts FetchOptions) *MessageIterator {
	delayMS := opts.DelayMS
	if delayMS <= 0 {
		delayMS = defaultDelayMS
	}
	return &MessageIterator{
		ctx:       ctx,
		svc:       svc,
		sess:      sess,
		channel:   channelID,
		after:     opts.After,
		before:    opts.Before,
		limit:     opts.Limit,
		delay:     time.Duration(delayMS) * time.Millisecond,
		firstPage: true,
	}
}

// Next advances to the next message and reports whether one is
// available. Callers must check Err after Next returns false.
func (it *MessageIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.limit > 0 && it.fetched >= it.limit {
		return false
	}
	if len(it.buf) == 0 {
		if it.exhausted {
			return false
		}
		if !it.fetchPage() {
			return false
		}
		if len(it.buf) == 0 {
			return false
		}
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	it.fetched++
	return true
}

// fetchPage retrieves one page and appends to buf, reporting whether
// it succeeded (an empty or short page still counts as success; it
// also marks the iterator exhausted).
func (it *MessageIterator) fetchPage() bool {
	select {
	case <-it.ctx.Done():
		it.err = it.ctx.Err()
		return false
	default:
	}

	if !it.firstPage && it.delay > 0 {
		select {
		case <-it.ctx.Done():
			it.err = it.ctx.Err()
			return false
		case <-time.After(it.delay):
		}
	}
	it.firstPage = false

	opts := FetchOptions{After: it.after, Before: it.before, Limit: pageSize}
	page, err := it.svc.FetchMessages(it.ctx, it.sess, it.channel, opts)
	if err != nil {
		it.err = err
		return false
	}

	if len(page) < pageSize {
		it.exhausted = true
	}
	if len(page) == 0 {
		return true
	}

	it.buf = append(it.buf, page...)

	oldest := page[len(page)-1]
	if it.after != "" {
		newest := page[0]
		it.after = newest.ID
	} else {
		it.before = oldest.ID
	}
	return true
}

// Message returns the message Next most recently advanced to.
func (it *MessageIterator) Message() Message { return it.cur }

// Err returns the error, if any, that stopped iteration early. A
// natural end of history (empty/short final page, or Limit reached)
// reports nil.
func (it *MessageIterator) Err() error { return it.err }
