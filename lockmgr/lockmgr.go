// Package lockmgr implements the three-level lock manager (spec.md
// §4.3): bus lock, per-device read/write lock, and the simultaneous
// pseudo-device's per-bus broadcast lock, always acquired bus -> device
// -> simultaneous to prevent deadlock.
package lockmgr

import (
	"context"
	"sync"

	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/errcode"
)

// Manager owns the per-device locks; bus locks live on busdrv.ConnectionIn
// itself (spec.md §3, "per-bus lock").
type Manager struct {
	mu          sync.Mutex
	deviceLocks map[uint64]*sync.RWMutex
	simulLocks  map[int]*sync.Mutex
}

func New() *Manager {
	return &Manager{
		deviceLocks: make(map[uint64]*sync.RWMutex),
		simulLocks:  make(map[int]*sync.Mutex),
	}
}

func (m *Manager) deviceLock(serial uint64) *sync.RWMutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.deviceLocks[serial]
	if !ok {
		l = &sync.RWMutex{}
		m.deviceLocks[serial] = l
	}
	return l
}

func (m *Manager) simultaneousLock(busIndex int) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.simulLocks[busIndex]
	if !ok {
		l = &sync.Mutex{}
		m.simulLocks[busIndex] = l
	}
	return l
}

// Release is returned by every Acquire* call and must run on every
// exit path (spec.md §4.3).
type Release func()

// AcquireBus takes the per-bus exclusive lock for the duration of one
// transaction sequence (spec.md §4.3, "exclusive for the duration of
// one transaction sequence").
func AcquireBus(ctx context.Context, in *busdrv.ConnectionIn, deadline context.Context) (Release, error) {
	release, err := in.Lock(ctx, deadline)
	if err != nil {
		return func() {}, err
	}
	return Release(release), nil
}

// AcquireDeviceRead takes the shared device read lock.
func (m *Manager) AcquireDeviceRead(serial uint64) Release {
	l := m.deviceLock(serial)
	l.RLock()
	return Release(l.RUnlock)
}

// AcquireDeviceWrite takes the exclusive device write lock.
func (m *Manager) AcquireDeviceWrite(serial uint64) Release {
	l := m.deviceLock(serial)
	l.Lock()
	return Release(l.Unlock)
}

// AcquireSimultaneous takes the per-bus simultaneous-convert lock,
// held only by the simultaneous pseudo-device while it broadcasts
// (spec.md §4.3).
func (m *Manager) AcquireSimultaneous(busIndex int) Release {
	l := m.simultaneousLock(busIndex)
	l.Lock()
	return Release(l.Unlock)
}

// WithLocks acquires the bus lock, then the device lock, in spec
// order, runs fn, and unwinds every lock regardless of how fn returns
// -- including panics, which are re-raised after the unwind (spec.md
// §4.3, "locks are released on every exit path"). It never takes the
// simultaneous lock; AcquireSimultaneous does that.
func (m *Manager) WithLocks(ctx context.Context, in *busdrv.ConnectionIn, deadline context.Context, serial uint64, write bool, fn func() error) error {
	busRelease, err := AcquireBus(ctx, in, deadline)
	if err != nil {
		return err
	}
	defer busRelease()

	var devRelease Release
	if write {
		devRelease = m.AcquireDeviceWrite(serial)
	} else {
		devRelease = m.AcquireDeviceRead(serial)
	}
	defer devRelease()

	return fn()
}

// ErrBusBusy is a convenience alias for the error AcquireBus/in.Lock
// returns on a deadline miss (spec.md §4.3 calls this "bus-busy").
var ErrBusBusy = errcode.ECONNABORTED
