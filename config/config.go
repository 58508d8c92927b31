// Package config holds CoreConfig, the immutable settings bundle
// built once at startup (spec.md §9 REDESIGN FLAG: "Global readonly,
// indevices, Globals.argv -> collect into a single immutable
// CoreConfig"). No file-format or flag parsing lives here -- that's a
// collaborator-layer concern (spec.md §1 Non-goals); this package only
// describes the shape of the settings the core needs.
package config

import (
	"sync"
	"time"

	"github.com/jangala-dev/owgo/format"
)

// CoreConfig is handed to the dispatcher fully populated; it is never
// mutated after construction (spec.md §5, "Global readonly and
// adapter chain are initialised before thread creation and
// thereafter immutable").
type CoreConfig struct {
	Readonly bool

	CacheSize       int
	CacheTTLStable   time.Duration
	CacheTTLVolatile time.Duration

	PresenceTTLPositive time.Duration
	PresenceTTLNegative time.Duration
	PresenceProbeWait   time.Duration

	BusLockTimeout time.Duration

	// TemperatureUnit is the external scale Temperature/TempGap
	// properties render/parse in (SPEC_FULL.md supplements spec.md
	// §6's configurable-options table with this leaf; internal storage
	// stays Celsius regardless, per format/temperature.go).
	TemperatureUnit format.TempUnit
}

// Default returns sensible defaults matching spec.md §4.7's table
// (stable 15s, volatile 1s) and a conservative bus-lock timeout; the
// collaborator layer overrides any field it cares about.
func Default() CoreConfig {
	return CoreConfig{
		CacheSize:           4096,
		CacheTTLStable:      15 * time.Second,
		CacheTTLVolatile:    time.Second,
		PresenceTTLPositive: 60 * time.Second,
		PresenceTTLNegative: 2 * time.Second,
		PresenceProbeWait:   2 * time.Second,
		BusLockTimeout:      5 * time.Second,
	}
}

// Live wraps the subset of CoreConfig the supplemented settings/
// namespace may rewrite at runtime (spec.md §6's "Configurable
// options" table, minus the global readonly flag, which spec.md §5
// requires stay immutable once threads start: "Global readonly ...
// initialised before thread creation and thereafter immutable"). The
// per-bus overdrive/ds2404_compliance flags live on busdrv.ConnectionIn
// itself instead of here (spec.md §3) -- owfs/settings.go's
// `bus.N.overdrive`/`bus.N.ds2404_compliance` leaves read/write the
// ConnectionIn directly, the same bus instance Send/Delay consult, so
// there is exactly one store for those flags, not a disconnected copy.
type Live struct {
	mu sync.RWMutex

	readonly bool // set once at NewLive, never rewritten

	cacheTTLStable   time.Duration
	cacheTTLVolatile time.Duration
	presenceTTLPos   time.Duration
	presenceTTLNeg   time.Duration
	presenceProbeWait time.Duration
	busLockTimeout   time.Duration
	temperatureUnit  format.TempUnit
}

// NewLive snapshots cfg into a mutable-knob wrapper.
func NewLive(cfg CoreConfig) *Live {
	probeWait := cfg.PresenceProbeWait
	if probeWait <= 0 {
		probeWait = 2 * time.Second
	}
	return &Live{
		readonly:          cfg.Readonly,
		cacheTTLStable:    cfg.CacheTTLStable,
		cacheTTLVolatile:  cfg.CacheTTLVolatile,
		presenceTTLPos:    cfg.PresenceTTLPositive,
		presenceTTLNeg:    cfg.PresenceTTLNegative,
		presenceProbeWait: probeWait,
		busLockTimeout:    cfg.BusLockTimeout,
		temperatureUnit:   cfg.TemperatureUnit,
	}
}

func (l *Live) TemperatureUnit() format.TempUnit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.temperatureUnit
}

func (l *Live) SetTemperatureUnit(u format.TempUnit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.temperatureUnit = u
}

// PresenceProbeWait is the per-probe timeout used by the bus router's
// speculative fan-out (spec.md §4.2).
func (l *Live) PresenceProbeWait() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.presenceProbeWait
}

func (l *Live) Readonly() bool { return l.readonly }

func (l *Live) CacheTTLStable() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cacheTTLStable
}

func (l *Live) SetCacheTTLStable(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheTTLStable = d
}

func (l *Live) CacheTTLVolatile() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cacheTTLVolatile
}

func (l *Live) SetCacheTTLVolatile(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheTTLVolatile = d
}

func (l *Live) PresenceTTLPositive() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.presenceTTLPos
}

func (l *Live) SetPresenceTTLPositive(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.presenceTTLPos = d
}

func (l *Live) PresenceTTLNegative() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.presenceTTLNeg
}

func (l *Live) SetPresenceTTLNegative(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.presenceTTLNeg = d
}

func (l *Live) BusLockTimeout() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.busLockTimeout
}

func (l *Live) SetBusLockTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.busLockTimeout = d
}

