// Package stream decodes the backend's incremental response protocol and folds it into growing
// turn snapshots.
//
// The backend answers a chat turn with a long-lived one-directional stream of text lines. Each
// actionable line carries a "data: " prefix followed by a record-like payload; the payload uses
// single-quoted strings and capitalized boolean literals rather than strict JSON, so it is
// normalized before structural parsing. The literal payload "[DONE]" terminates the stream.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Event is one decoded frame of the incremental response protocol. A single well-formed frame may
// carry several facets at once (conversation id, content fragment, title); consumers must apply
// the facets of one event together.
type Event struct {
	// ChatID is non-nil when the frame carries a conversation id assignment.
	ChatID *string
	// IsNew reports whether the assigned conversation was created by this turn. Only meaningful
	// when ChatID is non-nil.
	IsNew bool
	// Content is non-nil when the frame carries a fragment of assistant text.
	Content *string
	// Title is non-nil when the frame carries a chat title.
	Title *string

	// Malformed holds the raw payload of a frame that could not be decoded. All other fields are
	// zero when it is set.
	Malformed string
}

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// payloadNormalizer rewrites the backend's record syntax into strict JSON: the backend emits
// single-quoted strings and Python-style boolean literals. A payload the rewrite cannot repair is
// reported as a malformed frame by the decoder, never as an error.
var payloadNormalizer = strings.NewReplacer("'", `"`, "True", "true", "False", "false")

type framePayload struct {
	ChatID  *string `json:"chat_id"`
	IsNew   bool    `json:"is_new"`
	Content *string `json:"content"`
	Title   *string `json:"title"`
}

// Events decodes the byte stream r into a lazy sequence of frames. The sequence ends without an
// error when the done sentinel is seen; a read failure or an end of stream before the sentinel
// yields a single transport error and stops. Lines without the data prefix are ignored, and a
// trailing fragment without its line terminator is never parsed. The returned sequence reads r
// sequentially and must not be consumed from two call sites.
func Events(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					yield(Event{}, fmt.Errorf("stream ended before done sentinel: %w", io.ErrUnexpectedEOF))
					return
				}
				yield(Event{}, fmt.Errorf("error reading stream: %w", err))
				return
			}

			payload, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), dataPrefix)
			if !ok {
				continue
			}
			if payload == doneSentinel {
				return
			}

			ev, ok := decodePayload(payload)
			if !ok {
				ev = Event{Malformed: payload}
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func decodePayload(payload string) (Event, bool) {
	var f framePayload
	if err := json.Unmarshal([]byte(payloadNormalizer.Replace(payload)), &f); err != nil {
		return Event{}, false
	}
	return Event{
		ChatID:  f.ChatID,
		IsNew:   f.IsNew,
		Content: f.Content,
		Title:   f.Title,
	}, true
}
