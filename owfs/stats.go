package owfs

import (
	"sync"
	"sync/atomic"

	"github.com/jangala-dev/owgo/errcode"
)

// Stats is a lightweight analogue of the original's /statistics tree
// (ow_write.c's STATLOCK/AVERAGE_IN accounting), supplemented per
// SPEC_FULL.md: atomic counters plus a mutex-guarded per-error-code
// tally, exposed as a read-only snapshot. Presenting these under a
// `/statistics` filesystem path stays out of scope (see Non-goals);
// this is just the counters a collaborator layer could mount there.
type Stats struct {
	Reads      atomic.Int64
	Writes     atomic.Int64
	ReadBytes  atomic.Int64
	WriteBytes atomic.Int64

	mu     sync.Mutex
	errors map[errcode.Code]int64
}

func NewStats() *Stats {
	return &Stats{errors: make(map[errcode.Code]int64)}
}

func (s *Stats) recordRead(n int, err error) {
	s.Reads.Add(1)
	if err == nil {
		s.ReadBytes.Add(int64(n))
		return
	}
	s.recordError(err)
}

func (s *Stats) recordWrite(n int, err error) {
	s.Writes.Add(1)
	if err == nil {
		s.WriteBytes.Add(int64(n))
		return
	}
	s.recordError(err)
}

func (s *Stats) recordError(err error) {
	code := errcode.Of(err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[code]++
}

// Snapshot returns a copy of the per-error-code tally.
func (s *Stats) Snapshot() map[errcode.Code]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[errcode.Code]int64, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}
