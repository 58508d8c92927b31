// Package busdrv holds the ConnectionIn value (one per physical bus)
// and the global inbound chain the router walks (spec.md §3,
// "ConnectionIn", "Global Chain").
package busdrv

import (
	"context"
	"sync"
	"time"

	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/txn"
)

// AdapterType tags the physical transport a ConnectionIn drives.
type AdapterType int

const (
	AdapterUSB AdapterType = iota
	AdapterSerial
	AdapterRemote
)

// OverdriveMode mirrors spec.md §3's use_overdrive_speed enum.
type OverdriveMode int

const (
	SpeedRegular OverdriveMode = iota
	SpeedFlexible
	SpeedOverdrive
)

// ConnectionIn is one physical bus: a transport plus its own lock and
// per-bus flags (spec.md §3). It is created at startup and destroyed
// at shutdown; it is never removed mid-operation (spec.md §1 Non-goals,
// "no support for hot-unplug of buses mid-transaction").
type ConnectionIn struct {
	Index       int
	Type        AdapterType
	AdapterName string
	Driver      txn.Driver

	cfgMu            sync.RWMutex
	ds2404Compliance bool
	overdrive        OverdriveMode

	busMu sync.Mutex

	alive bool
}

func New(index int, typ AdapterType, name string, driver txn.Driver) *ConnectionIn {
	return &ConnectionIn{Index: index, Type: typ, AdapterName: name, Driver: driver, alive: true}
}

// Overdrive reports the bus's current use_overdrive_speed mode
// (spec.md §3), rewritable at runtime through the
// `settings/bus.N.overdrive` leaf (owfs/settings.go).
func (c *ConnectionIn) Overdrive() OverdriveMode {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.overdrive
}

func (c *ConnectionIn) SetOverdrive(m OverdriveMode) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.overdrive = m
}

// DS2404Compliance reports whether extra inter-byte delay for DS2404
// RTC chips is enabled on this bus (spec.md §3), rewritable at runtime
// through the `settings/bus.N.ds2404_compliance` leaf.
func (c *ConnectionIn) DS2404Compliance() bool {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.ds2404Compliance
}

func (c *ConnectionIn) SetDS2404Compliance(v bool) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.ds2404Compliance = v
}

const (
	romMatchCommand          = 0x55
	romSkipCommand           = 0xCC
	romOverdriveMatchCommand = 0x69
	romOverdriveSkipCommand  = 0x3C

	// ds2404ComplianceDelay is the extra settle time DS2404-family RTC
	// chips need between scratchpad writes beyond a bare Delay step
	// (Maxim AN937's "ds2404 compliance" spacing).
	ds2404ComplianceDelay = 2 * time.Millisecond
)

// boundDriver decorates a physical txn.Driver with c's current
// overdrive/ds2404-compliance flags, applied at the wire boundary
// (spec.md §4.4: "the first-byte ROM command may be rewritten per the
// bus's use_overdrive_speed").
type boundDriver struct {
	inner txn.Driver
	conn  *ConnectionIn
}

// BoundDriver returns the txn.Driver handlers should run transactions
// against: c's physical transport, wrapped so Send rewrites the
// ROM-match/skip command byte under overdrive and Delay adds DS2404
// compliance spacing when enabled.
func (c *ConnectionIn) BoundDriver() txn.Driver {
	return &boundDriver{inner: c.Driver, conn: c}
}

func (b *boundDriver) Reset(ctx context.Context) (bool, error) {
	return b.inner.Reset(ctx)
}

func (b *boundDriver) Send(ctx context.Context, out []byte) error {
	if b.conn.Overdrive() == SpeedOverdrive && len(out) > 0 {
		switch out[0] {
		case romMatchCommand, romSkipCommand:
			rewritten := append([]byte(nil), out...)
			if out[0] == romMatchCommand {
				rewritten[0] = romOverdriveMatchCommand
			} else {
				rewritten[0] = romOverdriveSkipCommand
			}
			out = rewritten
		}
	}
	return b.inner.Send(ctx, out)
}

func (b *boundDriver) Recv(ctx context.Context, n int) ([]byte, error) {
	return b.inner.Recv(ctx, n)
}

func (b *boundDriver) Duplex(ctx context.Context, out []byte) ([]byte, error) {
	return b.inner.Duplex(ctx, out)
}

func (b *boundDriver) ProgramPulse(ctx context.Context) error {
	return b.inner.ProgramPulse(ctx)
}

func (b *boundDriver) Delay(ctx context.Context, d time.Duration) {
	if b.conn.DS2404Compliance() {
		d += ds2404ComplianceDelay
	}
	b.inner.Delay(ctx, d)
}

// Lock acquires the bus lock with a deadline (spec.md §4.3, "a bus
// lock acquisition has a configurable deadline; exceeding it yields
// bus-busy"). It returns a release func to call on every exit path.
func (c *ConnectionIn) Lock(ctx context.Context, timeout context.Context) (func(), error) {
	done := make(chan struct{})
	go func() {
		c.busMu.Lock()
		close(done)
	}()
	select {
	case <-done:
		return c.busMu.Unlock, nil
	case <-timeout.Done():
		// The goroutine above still holds (or will hold) the lock
		// eventually; when it does, it immediately unlocks so we never
		// leak a held mutex. The caller never sees that lock.
		go func() {
			<-done
			c.busMu.Unlock()
		}()
		return func() {}, errcode.ECONNABORTED
	case <-ctx.Done():
		go func() {
			<-done
			c.busMu.Unlock()
		}()
		return func() {}, errcode.ETIMEDOUT
	}
}

// Alive reports whether this bus is still part of the active chain
// (always true until shutdown; see Non-goals on hot-unplug).
func (c *ConnectionIn) Alive() bool { return c.alive }

// Chain is the global, registration-ordered list of inbound adapters
// (spec.md §3, "Global Chain"). Built once at startup and thereafter
// immutable (spec.md §5).
type Chain struct {
	mu   sync.RWMutex
	ins  []*ConnectionIn
}

func NewChain() *Chain { return &Chain{} }

// Add registers a new ConnectionIn, assigning it the next index.
func (c *Chain) Add(typ AdapterType, name string, driver txn.Driver) *ConnectionIn {
	c.mu.Lock()
	defer c.mu.Unlock()
	in := New(len(c.ins), typ, name, driver)
	c.ins = append(c.ins, in)
	return in
}

// All returns a snapshot slice of every registered ConnectionIn, in
// registration order.
func (c *Chain) All() []*ConnectionIn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ConnectionIn, len(c.ins))
	copy(out, c.ins)
	return out
}

// ByIndex finds the ConnectionIn with the given bus index, or nil.
func (c *Chain) ByIndex(i int) *ConnectionIn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, in := range c.ins {
		if in.Index == i {
			return in
		}
	}
	return nil
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ins)
}
