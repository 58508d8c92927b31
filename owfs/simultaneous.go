package owfs

import (
	"context"

	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/devices/simultaneous"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/lockmgr"
	"github.com/jangala-dev/owgo/pathname"
)

// writeSimultaneous broadcasts a convert-now command (spec.md §4.3):
// on the bound bus if the path carried a bus.N restriction, or every
// bus in the chain otherwise. The per-bus simultaneous lock, not the
// per-device lock, guards the broadcast -- there is no single device
// to address.
func (d *Dispatcher) writeSimultaneous(ctx context.Context, name pathname.Name, data []byte) (int, error) {
	if !name.HasProperty {
		return 0, errcode.EISDIR
	}

	var targets []*busdrv.ConnectionIn
	if name.BoundToBus {
		in := d.chain.ByIndex(name.BusNr)
		if in == nil {
			return 0, errcode.ENODEV
		}
		targets = []*busdrv.ConnectionIn{in}
	} else {
		targets = d.chain.All()
	}

	deadline, cancel := d.busDeadline(ctx)
	defer cancel()

	for _, in := range targets {
		release, err := lockmgr.AcquireBus(ctx, in, deadline)
		if err != nil {
			return 0, err
		}
		unlockSimul := d.locks.AcquireSimultaneous(in.Index)
		err = simultaneous.Convert(ctx, in.BoundDriver(), name.Property)
		unlockSimul()
		release()
		if err != nil {
			return 0, err
		}
	}
	return len(data), nil
}
