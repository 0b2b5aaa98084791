// Package streamparser splits a possibly-chunked byte stream into NDJSON
// records and decodes each into a streamevents.Event, per spec §4.1.
package streamparser

import (
	"bytes"

	"github.com/shaharia-lab/acp-runtime/internal/streamevents"
)

// MaxLineBytes is the safety cap on a single NDJSON line. Lines longer than
// this produce an Error event and are dropped rather than buffered without
// bound.
const MaxLineBytes = 4 * 1024 * 1024

// Parser is a reentrant-per-stream, non-restartable NDJSON decoder. It is
// not safe to share a single Parser between two streams.
type Parser struct {
	buf      []byte
	overflow bool // true while skipping the remainder of an over-long line
}

// New returns a Parser ready to accept chunks via Feed.
func New() *Parser {
	return &Parser{}
}

// Feed appends chunk to the internal buffer, extracts every complete line it
// now contains, and returns the Events decoded from those lines in stream
// order. A trailing partial line (no terminating '\n' yet) is retained for
// the next call. One malformed line never corrupts the lines around it.
func (p *Parser) Feed(chunk []byte) []streamevents.Event {
	p.buf = append(p.buf, chunk...)

	var events []streamevents.Event
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			if len(p.buf) > MaxLineBytes {
				// No newline yet but already over the cap: drop what we have
				// and keep discarding until the next newline.
				p.buf = p.buf[:0]
				p.overflow = true
				events = append(events, oversizedLineEvent())
			}
			break
		}

		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]

		if p.overflow {
			p.overflow = false
			continue // this line is the tail of the discarded oversized one
		}

		if len(line) > MaxLineBytes {
			events = append(events, oversizedLineEvent())
			continue
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		events = append(events, streamevents.Decode(line)...)
	}
	return events
}

func oversizedLineEvent() streamevents.Event {
	return streamevents.Event{
		Kind: streamevents.KindError,
		Error: &streamevents.ErrorDetail{
			Detail: "line exceeded 4 MiB safety cap",
		},
	}
}
