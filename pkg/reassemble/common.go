package reassemble

import (
	"strings"
	"time"
)

// rawEvent is one SSE event as delimited by a blank line, the same
// granularity the teacher SDK's providerutils/streaming.SSEParser
// produces from a full io.Reader — here adapted to an incremental
// Feed(chunk) call pattern instead of reading a whole stream at once.
type rawEvent struct {
	Event string
	Data  string
}

// eventScanner buffers incoming bytes and yields complete events framed
// by "\n\n" or "\r\n\r\n", per spec.md §4.2's event-level protocol.
// Chunk-split JSON across event boundaries must not happen under SSE
// framing; if a chunk ends mid-event, the scanner simply waits for the
// next Feed call to complete it.
type eventScanner struct {
	buf []byte
}

func (s *eventScanner) feed(chunk []byte) []rawEvent {
	s.buf = append(s.buf, chunk...)
	var out []rawEvent
	for {
		idx, delimLen := findDelimiter(s.buf)
		if idx < 0 {
			break
		}
		raw := s.buf[:idx]
		s.buf = s.buf[idx+delimLen:]
		if ev, ok := parseRawEvent(raw); ok {
			out = append(out, ev)
		}
	}
	return out
}

func findDelimiter(buf []byte) (idx, length int) {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\n' && buf[i+1] == '\n' {
			return i, 2
		}
		if i+3 < len(buf) && buf[i] == '\r' && buf[i+1] == '\n' && buf[i+2] == '\r' && buf[i+3] == '\n' {
			return i, 4
		}
	}
	return -1, 0
}

func parseRawEvent(raw []byte) (rawEvent, bool) {
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	var ev rawEvent
	var dataLines []string
	any := false
	for _, line := range lines {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		colon := strings.Index(line, ":")
		if colon == -1 {
			continue
		}
		field := line[:colon]
		value := strings.TrimPrefix(line[colon+1:], " ")
		switch field {
		case "event":
			ev.Event = value
			any = true
		case "data":
			dataLines = append(dataLines, value)
			any = true
		}
	}
	if !any {
		return rawEvent{}, false
	}
	ev.Data = strings.Join(dataLines, "\n")
	return ev, true
}

// boundedBuffer accumulates text up to a byte cap, truncating with an
// ellipsis marker and flagging Exceeded the first time the cap is hit.
// No allocation beyond the cap occurs (spec.md §4.2).
type boundedBuffer struct {
	limit    int
	b        strings.Builder
	exceeded bool
}

const truncationMarker = "...[truncated]"

// Append adds s, respecting the cap. Returns false the moment the cap
// is first exceeded; subsequent calls are no-ops. The dialect machines
// check Exceeded() instead and end the stream; nothing records a
// TokenLimitExceeded error or a Failed state for the Flow.
func (b *boundedBuffer) Append(s string) bool {
	if b.exceeded {
		return false
	}
	if b.b.Len()+len(s) <= b.limit {
		b.b.WriteString(s)
		return true
	}
	remaining := b.limit - b.b.Len()
	if remaining > 0 {
		b.b.WriteString(s[:remaining])
	}
	b.b.WriteString(truncationMarker)
	b.exceeded = true
	return false
}

func (b *boundedBuffer) String() string { return b.b.String() }
func (b *boundedBuffer) Exceeded() bool { return b.exceeded }

// welford incrementally tracks a running mean, used for
// StreamInfo.MeanInterChunkMs (spec.md §4.2: "Welford-style sum is
// sufficient").
type welford struct {
	count int64
	mean  float64
}

func (w *welford) Add(x float64) {
	w.count++
	w.mean += (x - w.mean) / float64(w.count)
}

func (w *welford) Mean() float64 { return w.mean }

// chunkTiming tracks first-chunk latency and mean inter-chunk interval
// given a stream's start time.
type chunkTiming struct {
	start       time.Time
	last        time.Time
	first       *time.Duration
	interArrival welford
	seenAny     bool
}

func newChunkTiming(start time.Time) *chunkTiming {
	return &chunkTiming{start: start}
}

func (t *chunkTiming) Observe(now time.Time) {
	if t.first == nil {
		d := now.Sub(t.start)
		t.first = &d
	} else if t.seenAny {
		t.interArrival.Add(float64(now.Sub(t.last).Milliseconds()))
	}
	t.last = now
	t.seenAny = true
}

func (t *chunkTiming) FirstChunkLatencyMs() *int64 {
	if t.first == nil {
		return nil
	}
	ms := t.first.Milliseconds()
	return &ms
}

func (t *chunkTiming) MeanInterChunkMs() *float64 {
	if t.interArrival.count == 0 {
		return nil
	}
	m := t.interArrival.Mean()
	return &m
}
