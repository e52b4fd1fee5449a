package storage

import "sync/atomic"

// Sequencer provides strictly increasing history ids.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next id.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
