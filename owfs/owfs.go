// Package owfs is the entry dispatcher façade (spec.md §4.8): the
// FS_read / FS_write / FS_dir analogue that parses a path, binds it to
// a bus, consults the property cache, drives the aggregate engine, and
// returns byte counts or a negated POSIX error code (spec.md §6).
package owfs

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/jangala-dev/owgo/aggregate"
	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/config"
	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/devices/simultaneous"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/lockmgr"
	"github.com/jangala-dev/owgo/pathname"
	"github.com/jangala-dev/owgo/presence"
	"github.com/jangala-dev/owgo/propcache"
)

// Dispatcher wires every core package into the four collaborator-facing
// entry points (spec.md §6).
type Dispatcher struct {
	chain    *busdrv.Chain
	presence *presence.Cache
	locks    *lockmgr.Manager
	cache    *propcache.Cache
	live     *config.Live
	stats    *Stats
	log      logr.Logger
}

// New builds a Dispatcher. chain must already hold every configured
// ConnectionIn (spec.md §5: "adapter chain ... initialised before
// thread creation and thereafter immutable" -- additions happen before
// New, never after).
func New(chain *busdrv.Chain, live *config.Live, log logr.Logger) (*Dispatcher, error) {
	cache, err := propcache.New(4096, propcache.TTLs{
		Stable:   live.CacheTTLStable(),
		Volatile: live.CacheTTLVolatile(),
	})
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		chain:    chain,
		presence: presence.New(chain, live.PresenceTTLPositive(), live.PresenceTTLNegative(), live.PresenceProbeWait(), probeOf),
		locks:    lockmgr.New(),
		cache:    cache,
		live:     live,
		stats:    NewStats(),
		log:      log,
	}, nil
}

func (d *Dispatcher) Stats() *Stats { return d.stats }

// Read implements `read(path, out_buf, max, offset) -> n | -errno`
// (spec.md §6), returning the byte count placed into buf.
func (d *Dispatcher) Read(ctx context.Context, path string, buf []byte, offset int) (int, error) {
	n, err := d.read(ctx, path, buf, offset)
	d.stats.recordRead(n, err)
	return n, err
}

func (d *Dispatcher) read(ctx context.Context, path string, buf []byte, offset int) (int, error) {
	name, err := pathname.Parse(path)
	if err != nil {
		return 0, err
	}

	if name.Namespace == pathname.NSSettings {
		return d.readSettings(name, buf, offset)
	}
	if name.Namespace == pathname.NSStructure {
		return d.readStructure(name, buf, offset)
	}
	if name.Simultaneous {
		return 0, errcode.ENOTSUP
	}
	if !name.HasDevice {
		return 0, errcode.EISDIR
	}

	dev, ok := device.Lookup(name.Family)
	if !ok {
		return 0, errcode.ENODEV
	}
	if !name.HasProperty {
		return 0, errcode.EISDIR
	}
	ft, ok := dev.FileType(name.Property)
	if !ok {
		return 0, errcode.ENOENT
	}

	bound, in, err := d.bind(ctx, name)
	if err != nil {
		return 0, err
	}

	key := cacheKey(bound)
	if !bound.Uncached && ft.Change != device.ChangeAlarm {
		if v, hit := d.cache.Get(key); hit {
			return copyOffset(buf, v, offset)
		}
	}

	deadline, cancel := d.busDeadline(ctx)
	defer cancel()

	var text string
	err = d.locks.WithLocks(ctx, in, deadline, bound.SerialID(), false, func() error {
		octx := &device.OpContext{Ctx: ctx, Name: bound, Driver: in.BoundDriver(), Index: bound.Extension, Unit: d.live.TemperatureUnit()}
		var rerr error
		text, rerr = aggregate.Read(octx, bound, ft)
		return rerr
	})
	if err != nil {
		return 0, err
	}

	if !bound.Uncached && ft.Change != device.ChangeAlarm {
		d.cache.Put(key, text, ft.Change)
	}
	return copyOffset(buf, text, offset)
}

// Write implements `write(path, in_buf, len, offset) -> n | -errno`.
func (d *Dispatcher) Write(ctx context.Context, path string, data []byte, offset int) (int, error) {
	n, err := d.write(ctx, path, data, offset)
	d.stats.recordWrite(n, err)
	return n, err
}

func (d *Dispatcher) write(ctx context.Context, path string, data []byte, offset int) (int, error) {
	if d.live.Readonly() {
		return 0, errcode.EROFS
	}

	name, err := pathname.Parse(path)
	if err != nil {
		return 0, err
	}
	if name.Namespace == pathname.NSSettings {
		return d.writeSettings(name, data)
	}
	if name.Namespace == pathname.NSStructure {
		return 0, errcode.EROFS
	}
	if name.Simultaneous {
		return d.writeSimultaneous(ctx, name, data)
	}
	if !name.HasDevice || !name.HasProperty {
		return 0, errcode.EISDIR
	}

	dev, ok := device.Lookup(name.Family)
	if !ok {
		return 0, errcode.ENODEV
	}
	ft, ok := dev.FileType(name.Property)
	if !ok {
		return 0, errcode.ENOENT
	}
	if ft.Write == nil && ft.BulkWrite == nil {
		return 0, errcode.EROFS
	}
	if offset != 0 && ft.Format != format.ASCII && ft.Format != format.Binary {
		return 0, errcode.EADDRNOTAVAIL
	}

	bound, in, err := d.bind(ctx, name)
	if err != nil {
		return 0, err
	}

	key := cacheKey(bound)
	raw := string(data)

	deadline, cancel := d.busDeadline(ctx)
	defer cancel()

	err = d.locks.WithLocks(ctx, in, deadline, bound.SerialID(), true, func() error {
		octx := &device.OpContext{Ctx: ctx, Name: bound, Driver: in.BoundDriver(), Index: bound.Extension, Unit: d.live.TemperatureUnit()}
		return aggregate.Write(octx, bound, ft, raw)
	})
	if err != nil {
		// Cache invalidation on any write error is conservative
		// (spec.md §7): drop whatever was cached for this path.
		d.cache.Invalidate(key)
		return 0, err
	}

	if !bound.Uncached && ft.Change != device.ChangeAlarm {
		d.cache.Put(key, raw, ft.Change)
	}
	return len(data), nil
}

// Presence implements `presence(path) -> bool | -errno`.
func (d *Dispatcher) Presence(ctx context.Context, path string) (bool, error) {
	name, err := pathname.Parse(path)
	if err != nil {
		return false, err
	}
	if !name.HasDevice {
		return false, errcode.EINVAL
	}
	_, _, err = d.bind(ctx, name)
	if err != nil {
		if err == errcode.ENODEV {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Dir implements `dir(path, emit_callback)` (spec.md §4.8): the
// adapter list at root, a device's FileType list, or a property's
// aggregate element expansion.
func (d *Dispatcher) Dir(ctx context.Context, path string, emit func(string)) error {
	name, err := pathname.Parse(path)
	if err != nil {
		return err
	}

	if name.Namespace == pathname.NSSettings {
		if name.HasProperty {
			return errcode.ENOTDIR
		}
		for _, leaf := range settingsLeaves {
			emit(leaf)
		}
		return nil
	}
	if name.Namespace == pathname.NSStructure {
		return d.dirStructure(name, emit)
	}
	if name.Simultaneous {
		if name.HasProperty {
			return errcode.ENOTDIR
		}
		emit(simultaneous.PropertyTemperature)
		return nil
	}

	if !name.HasDevice {
		for _, in := range d.chain.All() {
			emit(in.AdapterName)
		}
		emit("settings")
		emit("structure")
		emit("simultaneous")
		emit("alarm")
		return nil
	}

	dev, ok := device.Lookup(name.Family)
	if !ok {
		return errcode.ENODEV
	}

	if !name.HasProperty {
		for _, ft := range dev.Files {
			emit(ft.Name)
		}
		return nil
	}

	ft, ok := dev.FileType(name.Property)
	if !ok {
		return errcode.ENOENT
	}
	if ft.Aggregate == nil {
		return errcode.ENOTDIR
	}
	for i := 0; i < ft.Aggregate.Elements; i++ {
		emit(elementName(name.Property, i, ft.Aggregate))
	}
	return nil
}

// bind resolves name to its ConnectionIn, parsing/presence steps
// spec.md §4.8 describes (skipping binding entirely for structure
// paths, per spec.md §4.2 step 1).
func (d *Dispatcher) bind(ctx context.Context, name pathname.Name) (pathname.Name, *busdrv.ConnectionIn, error) {
	if name.BoundToBus {
		in := d.chain.ByIndex(name.BusNr)
		if in == nil {
			return name, nil, errcode.ENODEV
		}
		return name, in, nil
	}

	idx, err := d.presence.Bind(ctx, name.SerialID())
	if err != nil {
		return name, nil, err
	}
	in := d.chain.ByIndex(idx)
	if in == nil {
		return name, nil, errcode.ENODEV
	}
	return name.Rebind(idx), in, nil
}

func (d *Dispatcher) busDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.live.BusLockTimeout())
}

func cacheKey(n pathname.Name) string {
	var sb strings.Builder
	sb.WriteString(n.Path)
	if n.BoundToBus {
		sb.WriteString("@bus.")
		sb.WriteString(strconv.Itoa(n.BusNr))
	}
	return sb.String()
}

func copyOffset(buf []byte, text string, offset int) (int, error) {
	if offset < 0 || offset > len(text) {
		return 0, errcode.EADDRNOTAVAIL
	}
	n := copy(buf, text[offset:])
	return n, nil
}

func elementName(prop string, i int, agg *device.Aggregate) string {
	if agg.Index == device.IndexLetters {
		return prop + "." + string(rune('a'+i))
	}
	return prop + "." + strconv.Itoa(i)
}
