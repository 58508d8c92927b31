package owfs

import (
	"context"
	"errors"

	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/pathname"
	"github.com/jangala-dev/owgo/presence"
	"github.com/jangala-dev/owgo/txn"
)

// romProbe adapts one busdrv.ConnectionIn into a presence.Prober: a
// ROM-MATCH addressed at the target serial (spec.md §4.2, "the probe
// is ROM-MATCH on a bus-level search narrowed to the device's
// serial"). A reset with no presence pulse is a clean absence, not an
// error; any other transport failure propagates so the router can
// treat it as this bus's own failure (spec.md §4.3).
type romProbe struct {
	in *busdrv.ConnectionIn
}

func (p romProbe) Probe(ctx context.Context, serial uint64) (bool, error) {
	rom := romBytes(serial)
	var present bool

	program := txn.Program{
		txn.Start(true),
		txn.Match(append([]byte{0x55}, rom[:]...)),
		txn.End(),
	}

	err := txn.Run(ctx, p.in.BoundDriver(), program)
	if err == nil {
		present = true
	}
	return present, filterAbsence(err)
}

// filterAbsence turns the interpreter's ENODEV (no presence pulse)
// into a clean "not present, no error" result; every other error is a
// genuine transport failure.
func filterAbsence(err error) error {
	if err == nil || errors.Is(err, errcode.ENODEV) {
		return nil
	}
	return err
}

// romBytes renders a packed family+serial key back into the full
// 8-byte ROM (family, 6 serial bytes, CRC-8), the inverse of
// pathname.Name.SerialID plus the trailing CRC the wire expects.
func romBytes(id uint64) [8]byte {
	family, serial := pathname.SplitSerialID(id)
	var rom [8]byte
	rom[0] = family
	copy(rom[1:7], serial[:])
	rom[7] = crc8(rom[:7])
	return rom
}

func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		d := b
		for i := 0; i < 8; i++ {
			mix := (crc ^ d) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			d >>= 1
		}
	}
	return crc
}

func probeOf(in *busdrv.ConnectionIn) presence.Prober { return romProbe{in: in} }
