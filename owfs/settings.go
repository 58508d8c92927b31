package owfs

import (
	"strconv"
	"strings"
	"time"

	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/pathname"
)

// settings/ exposes the configurable-options table spec.md §6 names,
// routed straight through config.Live (the supplemented settings
// namespace, SPEC_FULL.md). Every leaf is a scalar ASCII value; there
// is no aggregate indexing under settings/.
//
// The cache_ttl.* and presence_ttl.* leaves update config.Live only.
// The property cache and the presence cache keep the TTLs they were
// given when New built the Dispatcher; a later write to these leaves
// changes what the leaf reads back, not the caches' expiry.

const (
	settingCacheTTLStable    = "cache_ttl.stable"
	settingCacheTTLVolatile  = "cache_ttl.volatile"
	settingPresenceTTLPos    = "presence_ttl.pos"
	settingPresenceTTLNeg    = "presence_ttl.neg"
	settingBusLockTimeoutMs  = "bus_lock_timeout_ms"
	// settingTemperatureScale is not named in spec.md §6's table; it
	// supplements it so format.Render/Parse's Temperature/TempGap
	// conversion (spec.md §4.5) has a concrete external unit to read.
	settingTemperatureScale  = "units.temperature_scale"
)

var settingsLeaves = []string{
	settingCacheTTLStable,
	settingCacheTTLVolatile,
	settingPresenceTTLPos,
	settingPresenceTTLNeg,
	settingBusLockTimeoutMs,
	settingTemperatureScale,
}

func (d *Dispatcher) readSettings(name pathname.Name, buf []byte, offset int) (int, error) {
	if !name.HasProperty {
		return 0, errcode.EISDIR
	}

	if bus, prop, ok := splitBusSetting(name.Property); ok {
		text, err := d.readBusSetting(bus, prop)
		if err != nil {
			return 0, err
		}
		return copyOffset(buf, text, offset)
	}

	var text string
	switch name.Property {
	case settingCacheTTLStable:
		text = durationMs(d.live.CacheTTLStable())
	case settingCacheTTLVolatile:
		text = durationMs(d.live.CacheTTLVolatile())
	case settingPresenceTTLPos:
		text = durationMs(d.live.PresenceTTLPositive())
	case settingPresenceTTLNeg:
		text = durationMs(d.live.PresenceTTLNegative())
	case settingBusLockTimeoutMs:
		text = durationMs(d.live.BusLockTimeout())
	case settingTemperatureScale:
		text = tempUnitName(d.live.TemperatureUnit())
	default:
		return 0, errcode.ENOENT
	}
	return copyOffset(buf, text, offset)
}

func (d *Dispatcher) writeSettings(name pathname.Name, data []byte) (int, error) {
	if !name.HasProperty {
		return 0, errcode.EISDIR
	}

	if bus, prop, ok := splitBusSetting(name.Property); ok {
		if err := d.writeBusSetting(bus, prop, string(data)); err != nil {
			return 0, err
		}
		return len(data), nil
	}

	if name.Property == settingTemperatureScale {
		u, ok := parseTempUnitName(string(data))
		if !ok {
			return 0, errcode.EINVAL
		}
		d.live.SetTemperatureUnit(u)
		return len(data), nil
	}

	ms, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || ms < 0 {
		return 0, errcode.EINVAL
	}
	dur := time.Duration(ms) * time.Millisecond

	switch name.Property {
	case settingCacheTTLStable:
		d.live.SetCacheTTLStable(dur)
	case settingCacheTTLVolatile:
		d.live.SetCacheTTLVolatile(dur)
	case settingPresenceTTLPos:
		d.live.SetPresenceTTLPositive(dur)
	case settingPresenceTTLNeg:
		d.live.SetPresenceTTLNegative(dur)
	case settingBusLockTimeoutMs:
		d.live.SetBusLockTimeout(dur)
	default:
		return 0, errcode.ENOENT
	}
	return len(data), nil
}

// splitBusSetting recognises "bus.N.overdrive" / "bus.N.ds2404_compliance".
func splitBusSetting(prop string) (bus int, leaf string, ok bool) {
	if !strings.HasPrefix(prop, "bus.") {
		return 0, "", false
	}
	rest := prop[len("bus."):]
	idx := strings.IndexByte(rest, '.')
	if idx < 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(rest[:idx])
	if err != nil {
		return 0, "", false
	}
	return n, rest[idx+1:], true
}

// readBusSetting/writeBusSetting read/write busdrv.ConnectionIn's own
// Overdrive/DS2404Compliance flags directly -- the same instance
// BoundDriver's Send/Delay consult, so there is exactly one live store
// for these flags (see busdrv.ConnectionIn.BoundDriver).
func (d *Dispatcher) readBusSetting(bus int, leaf string) (string, error) {
	in := d.chain.ByIndex(bus)
	if in == nil {
		return "", errcode.ENOENT
	}
	switch leaf {
	case "overdrive":
		return strconv.Itoa(int(in.Overdrive())), nil
	case "ds2404_compliance":
		if in.DS2404Compliance() {
			return "1", nil
		}
		return "0", nil
	default:
		return "", errcode.ENOENT
	}
}

func (d *Dispatcher) writeBusSetting(bus int, leaf, raw string) error {
	in := d.chain.ByIndex(bus)
	if in == nil {
		return errcode.ENOENT
	}
	raw = strings.TrimSpace(raw)
	switch leaf {
	case "overdrive":
		v, err := strconv.Atoi(raw)
		if err != nil || v < int(busdrv.SpeedRegular) || v > int(busdrv.SpeedOverdrive) {
			return errcode.EINVAL
		}
		in.SetOverdrive(busdrv.OverdriveMode(v))
	case "ds2404_compliance":
		v, err := strconv.Atoi(raw)
		if err != nil {
			return errcode.EINVAL
		}
		in.SetDS2404Compliance(v != 0)
	default:
		return errcode.ENOENT
	}
	return nil
}

func durationMs(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func tempUnitName(u format.TempUnit) string {
	switch u {
	case format.Fahrenheit:
		return "fahrenheit"
	case format.Kelvin:
		return "kelvin"
	default:
		return "celsius"
	}
}

func parseTempUnitName(s string) (format.TempUnit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "celsius", "c":
		return format.Celsius, true
	case "fahrenheit", "f":
		return format.Fahrenheit, true
	case "kelvin", "k":
		return format.Kelvin, true
	default:
		return format.Celsius, false
	}
}
