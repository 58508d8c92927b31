// Package simultaneous implements the simultaneous pseudo-device
// (spec.md §4.3, "a pseudo-device broadcasting convert-now to all
// temperature sensors on a bus"): a Skip-ROM broadcast of the DS18B20
// Convert T command, rather than a ROM-matched single-device
// transaction. This package takes no locks itself; its broadcast, run
// by owfs.Dispatcher's simultaneous write path, is the only operation
// that takes the per-bus simultaneous-convert lock (spec.md §3).
package simultaneous

import (
	"context"
	"time"

	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/txn"
)

const (
	cmdSkipROM   = 0xCC
	cmdConvertT  = 0x44
	convertDelay = 750 * time.Millisecond
)

// PropertyTemperature is the one broadcastable conversion target this
// pseudo-device exposes (spec.md's Non-goals scope this to temperature;
// voltage/current conversion stays out, matching the distilled spec).
const PropertyTemperature = "temperature"

// ConvertTemperature broadcasts Convert T to every device on driver's
// bus (Skip ROM, not a specific device address) and waits out the
// conversion window before returning, so a caller's next per-device
// read sees a completed conversion.
func ConvertTemperature(ctx context.Context, driver txn.Driver) error {
	program := txn.Program{
		txn.Start(false),
		txn.Match([]byte{cmdSkipROM, cmdConvertT}),
		txn.Delay(convertDelay),
		txn.End(),
	}
	return txn.Run(ctx, driver, program)
}

// Convert dispatches on property name; unknown properties are
// errcode.ENOENT (spec.md §4.8, "missing filetype ... treat as
// directory" doesn't apply here since this pseudo-device has no
// directory semantics of its own).
func Convert(ctx context.Context, driver txn.Driver, property string) error {
	switch property {
	case PropertyTemperature:
		return ConvertTemperature(ctx, driver)
	default:
		return errcode.ENOENT
	}
}
