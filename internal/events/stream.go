package events

import (
	"sync"

	"escape_bench/internal/domain"
)

// Stream fans progress events out to every subscriber. Publish blocks
// when a subscriber's buffer is full, so no event is ever dropped;
// consumers must drain their channel until it is closed.
type Stream struct {
	mu     sync.RWMutex
	subs   []chan domain.ProgressEvent
	closed bool
	buffer int
}

func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{buffer: buffer}
}

func (s *Stream) Subscribe() <-chan domain.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.ProgressEvent, s.buffer)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Stream) Publish(ev domain.ProgressEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	for _, ch := range s.subs {
		ch <- ev
	}
}

// Close closes every subscriber channel. Publishing after Close is a
// no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
}
