package stream_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pencroft/chat-web-ui/internal/stream"
)

// oneByteReader forces the decoder to see arbitrary fragmentation of the byte stream.
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

// failingReader serves a prefix and then fails with the given error.
type failingReader struct {
	data string
	err  error
	pos  int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, f.err
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func collect(t *testing.T, r io.Reader) ([]stream.Event, error) {
	t.Helper()

	var events []stream.Event
	for ev, err := range stream.Events(r) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func strptr(s string) *string { return &s }

func TestEvents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []stream.Event
	}{
		{
			name: "Full turn",
			input: "data: {'chat_id': 'chat-7', 'is_new': True}\n\n" +
				"data: {'content': 'Hello'}\n\n" +
				"data: {'content': ', world'}\n\n" +
				"data: {'title': 'Greeting'}\n\n" +
				"data: [DONE]\n\n",
			want: []stream.Event{
				{ChatID: strptr("chat-7"), IsNew: true},
				{Content: strptr("Hello")},
				{Content: strptr(", world")},
				{Title: strptr("Greeting")},
			},
		},
		{
			name: "Existing conversation",
			input: "data: {'chat_id': 'chat-7', 'is_new': False}\n" +
				"data: {'content': 'hi'}\n" +
				"data: [DONE]\n",
			want: []stream.Event{
				{ChatID: strptr("chat-7"), IsNew: false},
				{Content: strptr("hi")},
			},
		},
		{
			name: "Lines without data prefix are ignored",
			input: ": keep-alive\n" +
				"event: noise\n" +
				"\n" +
				"data: {'content': 'a'}\n" +
				"data: [DONE]\n",
			want: []stream.Event{
				{Content: strptr("a")},
			},
		},
		{
			name: "Malformed payload is reported not dropped",
			input: "data: {'content': 'a'}\n" +
				"data: {broken\n" +
				"data: {'content': 'b'}\n" +
				"data: [DONE]\n",
			want: []stream.Event{
				{Content: strptr("a")},
				{Malformed: "{broken"},
				{Content: strptr("b")},
			},
		},
		{
			name: "Multi-facet frame stays one event",
			input: "data: {'chat_id': 'c1', 'is_new': True, 'content': 'hey', 'title': 'T'}\n" +
				"data: [DONE]\n",
			want: []stream.Event{
				{ChatID: strptr("c1"), IsNew: true, Content: strptr("hey"), Title: strptr("T")},
			},
		},
		{
			name: "Frames after sentinel are not decoded",
			input: "data: {'content': 'a'}\n" +
				"data: [DONE]\n" +
				"data: {'content': 'late'}\n",
			want: []stream.Event{
				{Content: strptr("a")},
			},
		},
		{
			name: "Carriage returns are stripped",
			input: "data: {'content': 'a'}\r\n" +
				"data: [DONE]\r\n",
			want: []stream.Event{
				{Content: strptr("a")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Events() error = %v", err)
			}
			assertEvents(t, got, tt.want)
		})
	}
}

func TestEventsFragmentedReads(t *testing.T) {
	input := "data: {'chat_id': 'chat-9', 'is_new': False}\n" +
		"data: {'content': 'split across many reads'}\n" +
		"data: [DONE]\n"

	got, err := collect(t, oneByteReader{strings.NewReader(input)})
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	assertEvents(t, got, []stream.Event{
		{ChatID: strptr("chat-9"), IsNew: false},
		{Content: strptr("split across many reads")},
	})
}

func TestEventsEndsWithoutSentinel(t *testing.T) {
	input := "data: {'content': 'partial'}\n" +
		"data: {'content': 'never termin"

	got, err := collect(t, strings.NewReader(input))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Events() error = %v, want io.ErrUnexpectedEOF", err)
	}
	// The unterminated trailing fragment must not surface as an event.
	assertEvents(t, got, []stream.Event{
		{Content: strptr("partial")},
	})
}

func TestEventsReadFailure(t *testing.T) {
	readErr := fmt.Errorf("connection reset")
	r := &failingReader{
		data: "data: {'content': 'before the cut'}\n",
		err:  readErr,
	}

	got, err := collect(t, r)
	if !errors.Is(err, readErr) {
		t.Fatalf("Events() error = %v, want wrapped %v", err, readErr)
	}
	assertEvents(t, got, []stream.Event{
		{Content: strptr("before the cut")},
	})
}

func TestEventsEarlyStop(t *testing.T) {
	input := "data: {'content': 'a'}\n" +
		"data: {'content': 'b'}\n" +
		"data: [DONE]\n"

	var count int
	for range stream.Events(strings.NewReader(input)) {
		count++
		break
	}
	if count != 1 {
		t.Errorf("consumed %d events, want 1", count)
	}
}

func assertEvents(t *testing.T, got, want []stream.Event) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		assertEvent(t, i, got[i], want[i])
	}
}

func assertEvent(t *testing.T, i int, got, want stream.Event) {
	t.Helper()

	if !eqPtr(got.ChatID, want.ChatID) {
		t.Errorf("event %d: ChatID = %v, want %v", i, fmtPtr(got.ChatID), fmtPtr(want.ChatID))
	}
	if got.IsNew != want.IsNew {
		t.Errorf("event %d: IsNew = %v, want %v", i, got.IsNew, want.IsNew)
	}
	if !eqPtr(got.Content, want.Content) {
		t.Errorf("event %d: Content = %v, want %v", i, fmtPtr(got.Content), fmtPtr(want.Content))
	}
	if !eqPtr(got.Title, want.Title) {
		t.Errorf("event %d: Title = %v, want %v", i, fmtPtr(got.Title), fmtPtr(want.Title))
	}
	if got.Malformed != want.Malformed {
		t.Errorf("event %d: Malformed = %q, want %q", i, got.Malformed, want.Malformed)
	}
}

func eqPtr(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func fmtPtr(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%q", *p)
}
