package websocket

import (
	"sync"

	"studentmonitor/pkg/types"
)

// frameSlot is a single-slot mailbox between a producer's read loop and its
// analysis worker. put overwrites an unconsumed frame; take blocks until a
// frame arrives or the slot is closed.
type frameSlot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *types.Frame
	closed bool
}

func newFrameSlot() *frameSlot {
	s := &frameSlot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// put stores frame and reports whether it replaced one the worker never saw
func (s *frameSlot) put(frame *types.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	replaced := s.frame != nil
	s.frame = frame
	s.cond.Signal()
	return replaced
}

// take returns the next frame, or nil once the slot is closed
func (s *frameSlot) take() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.frame == nil && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil
	}

	frame := s.frame
	s.frame = nil
	return frame
}

func (s *frameSlot) close() {
	s.mu.Lock()
	s.closed = true
	s.frame = nil
	s.cond.Broadcast()
	s.mu.Unlock()
}
