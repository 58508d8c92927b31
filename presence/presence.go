// Package presence implements the presence cache and bus router
// (spec.md §4.2): binding an unbound ParsedName to the ConnectionIn
// that actually holds the device, via cache lookup or a speculative
// concurrent probe across every inbound bus.
//
// The fan-out replaces the original's "chain-walking with speculative
// thread spawn" (spec.md §9 REDESIGN FLAGS) with a structured
// probe-every-bus-then-tie-break design, grounded on the errgroup idiom
// in jra3-system-agent's internal/kubernetes/agent/controller.go
// (golang.org/x/sync/errgroup): every bus's probe runs concurrently and
// the fan-out waits for all of them, because which bus answers first is
// not the same question as which bus should win a genuine tie
// (spec.md §4.2, "lowest bus index wins").
package presence

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/errcode"
)

// entry is one presence cache record (spec.md §3, "PresenceEntry").
type entry struct {
	busIndex int
	expires  time.Time
	positive bool
}

// Prober is implemented by anything that can answer "is the device
// with this serial attached?" on one bus: a ROM-MATCH search narrowed
// to the serial (spec.md §4.2, "probe is ROM-MATCH on a bus-level
// search narrowed to the device's serial").
type Prober interface {
	Probe(ctx context.Context, serial uint64) (bool, error)
}

// Cache binds devices to buses and remembers the answer for a bounded
// time (spec.md §3, §4.2).
type Cache struct {
	mu        sync.RWMutex
	entries   map[uint64]entry
	posTTL    time.Duration
	negTTL    time.Duration
	chain     *busdrv.Chain
	probeOf   func(*busdrv.ConnectionIn) Prober
	probeWait time.Duration
}

// New builds a Cache bound to chain. probeOf adapts a ConnectionIn
// into something Probe-able; tests substitute a fake.
func New(chain *busdrv.Chain, posTTL, negTTL, probeWait time.Duration, probeOf func(*busdrv.ConnectionIn) Prober) *Cache {
	return &Cache{
		entries:   make(map[uint64]entry),
		posTTL:    posTTL,
		negTTL:    negTTL,
		chain:     chain,
		probeOf:   probeOf,
		probeWait: probeWait,
	}
}

// Bind resolves serial to a bus index, consulting the cache first and
// falling back to a fan-out probe on a miss (spec.md §4.2 steps 2-4).
func (c *Cache) Bind(ctx context.Context, serial uint64) (int, error) {
	if idx, ok := c.lookup(serial); ok {
		if idx < 0 {
			return 0, errcode.ENODEV
		}
		return idx, nil
	}

	idx, err := c.probeAll(ctx, serial)
	if err != nil {
		c.store(serial, -1, false)
		return 0, errcode.ENODEV
	}
	c.store(serial, idx, true)
	return idx, nil
}

// Invalidate drops any cached entry for serial, forcing the next Bind
// to re-probe.
func (c *Cache) Invalidate(serial uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, serial)
}

func (c *Cache) lookup(serial uint64) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[serial]
	if !ok || time.Now().After(e.expires) {
		return 0, false
	}
	if !e.positive {
		return -1, true
	}
	return e.busIndex, true
}

func (c *Cache) store(serial uint64, busIndex int, positive bool) {
	ttl := c.negTTL
	if positive {
		ttl = c.posTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[serial] = entry{busIndex: busIndex, expires: time.Now().Add(ttl), positive: positive}
}

// probeAll fans a presence probe out across every inbound bus
// concurrently, waits for every probe to settle (or probeWait to
// expire), then applies Tiebreak over every bus that answered
// "present" -- so a tie always resolves to the lowest bus index,
// deterministically, rather than to whichever goroutine's probe
// happened to finish first (spec.md §4.2, "tie-break when multiple
// buses report present: lowest bus index wins"). A per-bus bus-lock
// timeout (ECONNABORTED) is treated as that bus's own failure, never
// as a reason to abort the whole fan-out (spec.md §4.3, "the router
// treats it as a per-bus failure").
func (c *Cache) probeAll(ctx context.Context, serial uint64) (int, error) {
	ins := c.chain.All()
	if len(ins) == 0 {
		return 0, errcode.ENODEV
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.probeWait)
	defer cancel()

	hits := make([]int, len(ins))
	for i := range hits {
		hits[i] = -1
	}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(probeCtx)
	for i, in := range ins {
		i, in := i, in
		g.Go(func() error {
			present, err := c.probeOne(gCtx, in, serial)
			if err != nil || !present {
				return nil // a per-bus miss never aborts its siblings
			}
			mu.Lock()
			hits[i] = in.Index
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	var candidates []int
	for _, idx := range hits {
		if idx >= 0 {
			candidates = append(candidates, idx)
		}
	}
	if len(candidates) == 0 {
		return 0, errcode.ENODEV
	}
	return Tiebreak(candidates), nil
}

// probeOne acquires the bus lock (a failed acquisition is this bus's
// own failure, spec.md §4.3) then runs the ROM-MATCH probe.
func (c *Cache) probeOne(ctx context.Context, in *busdrv.ConnectionIn, serial uint64) (bool, error) {
	timeout, cancel := context.WithTimeout(ctx, c.probeWait)
	defer cancel()
	release, err := in.Lock(ctx, timeout)
	if err != nil {
		return false, err
	}
	defer release()

	p := c.probeOf(in)
	return p.Probe(ctx, serial)
}

// Tiebreak selects the lowest bus index among simultaneous hits
// (spec.md §4.2, "tie-break when multiple buses report present:
// lowest bus index wins"). probeAll calls this directly over every bus
// that answered present once the full fan-out has settled.
func Tiebreak(candidates []int) int {
	if len(candidates) == 0 {
		return -1
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c < best {
			best = c
		}
	}
	return best
}
