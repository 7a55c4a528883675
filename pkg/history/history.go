// Package history reads a channel's message log as a lazy, restartable
// sequence. Pages are fetched on demand through the governed client, so
// abandoning a scan mid-way costs nothing further.
package history

import (
	"context"

	"chatdb/pkg/remote"
	"chatdb/pkg/telemetry"
)

// Scanner iterates a channel oldest to newest from a cursor. The zero
// cursor starts at the head of the log. Each page hits the remote source,
// so yielded content always reflects the latest edits; deleted messages are
// simply absent.
//
//	sc := history.Scan(api, ch, "", 0)
//	for sc.Next(ctx) {
//		msg := sc.Message()
//		...
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	api      remote.API
	channel  remote.ChannelID
	cursor   remote.MessageID
	pageSize int

	buf  []remote.Message
	idx  int
	cur  remote.Message
	done bool
	err  error
}

// Scan starts a scan of channel from the given cursor; pageSize of 0 uses
// the platform cap.
func Scan(api remote.API, channel remote.ChannelID, from remote.MessageID, pageSize int) *Scanner {
	if pageSize <= 0 || pageSize > remote.MaxPageSize {
		pageSize = remote.MaxPageSize
	}
	return &Scanner{api: api, channel: channel, cursor: from, pageSize: pageSize}
}

// Next advances to the next message, fetching a page when the buffer is
// drained. It returns false at end of log, on error, or when ctx is done;
// check Err afterwards.
func (s *Scanner) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if s.idx >= len(s.buf) {
		if s.done {
			return false
		}
		page, err := s.api.ListMessages(ctx, s.channel, s.cursor, s.pageSize)
		if err != nil {
			s.err = err
			return false
		}
		telemetry.ScanPages.Inc()
		if len(page) < s.pageSize {
			// short page: end of log once buffered messages are consumed
			s.done = true
		}
		if len(page) == 0 {
			return false
		}
		s.buf = page
		s.idx = 0
	}
	s.cur = s.buf[s.idx]
	s.idx++
	s.cursor = s.cur.ID
	return true
}

// Message returns the message yielded by the last successful Next.
func (s *Scanner) Message() remote.Message {
	return s.cur
}

// Err reports the first error encountered, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Cursor returns the position after the last yielded message. It can be
// persisted and passed back to Scan to resume.
func (s *Scanner) Cursor() remote.MessageID {
	return s.cursor
}
