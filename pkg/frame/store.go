// Package frame holds the most recent camera frame and fans it out to the
// snapshot, analysis and live feed readers.
package frame

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one uploaded image payload. Data is treated as opaque and is
// never modified after Set.
type Frame struct {
	ID         string
	Seq        uint64
	Data       []byte
	ReceivedAt time.Time
}

// Store is a single-slot, last-write-wins frame holder. The zero value is
// not usable; call NewStore.
type Store struct {
	mu      sync.Mutex
	current *Frame
	seq     uint64
	// changed is closed and replaced on every Set to wake blocked readers.
	changed chan struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{changed: make(chan struct{})}
}

// Set replaces the stored frame. The caller must not modify data afterwards.
func (s *Store) Set(data []byte) Frame {
	f := &Frame{
		ID:         uuid.NewString(),
		Data:       data,
		ReceivedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	f.Seq = s.seq
	s.current = f

	close(s.changed)
	s.changed = make(chan struct{})

	return *f
}

// Get returns the current frame, or false if nothing has been uploaded yet.
func (s *Store) Get() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Frame{}, false
	}
	return *s.current, true
}

// Wait blocks until a frame with a sequence number greater than afterSeq is
// stored or ctx is done. Pass 0 to wait for the first frame.
func (s *Store) Wait(ctx context.Context, afterSeq uint64) (Frame, error) {
	for {
		s.mu.Lock()
		if s.current != nil && s.current.Seq > afterSeq {
			f := *s.current
			s.mu.Unlock()
			return f, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-changed:
		}
	}
}
