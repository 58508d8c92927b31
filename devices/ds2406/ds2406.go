// Package ds2406 implements the DS2406 1-Wire dual addressable switch
// (family 0x12): two PIO channels exposed as a single bitfield
// aggregate property, "sensed" (spec.md §3, bitfield Storage example).
//
// original_source doesn't carry this chip's driver (only DS2890's is
// in the retained set), so the Channel Access (0xF5) / Write Status
// (0x5A) command framing here follows the DS2406 datasheet's general
// shape rather than a line-by-line port; it is simplified to a
// single-byte status/control exchange (no CRC16 channel-info byte),
// enough to exercise the bitfield storage path end to end.
package ds2406

import (
	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/txn"
)

const family = 0x12

const (
	cmdChannelAccess = 0xF5
	cmdWriteStatus   = 0x5A

	channelAccessControl = 0xE0 // both channels, no CRC, latch read
)

func init() {
	device.Register(&device.Device{
		Family: family,
		Name:   "DS2406",
		Class:  device.ClassChip,
		Files: []device.FileType{
			{
				Name:       "sensed",
				NominalLen: 1,
				Aggregate:  &device.Aggregate{Elements: 2, Index: device.IndexLetters, Storage: device.StorageBitfield},
				Format:     format.Bitfield,
				Change:     device.ChangeVolatile,
				BulkRead:   bulkRead,
				BulkWrite:  bulkWrite,
			},
		},
	})
}

func matchROM(ctx *device.OpContext) []byte {
	rom := ctx.RomID()
	return append([]byte{0x55}, rom...)
}

func bulkRead(ctx *device.OpContext) (format.Value, error) {
	var status []byte
	program := txn.Program{
		txn.Start(true),
		txn.Match(matchROM(ctx)),
		txn.Match([]byte{cmdChannelAccess, channelAccessControl}),
		txn.Read(&status, 1),
		txn.End(),
	}
	if err := ctx.Run(program); err != nil {
		return format.Value{}, err
	}
	// Bits 0 and 2 carry PIO A / PIO B state on a real channel-info
	// byte; packed here as bits 0 and 1 of the two-element bitfield.
	var packed uint64
	if status[0]&0x01 != 0 {
		packed |= 1 << 0
	}
	if status[0]&0x04 != 0 {
		packed |= 1 << 1
	}
	return format.Value{UInt: packed}, nil
}

func bulkWrite(ctx *device.OpContext, v format.Value) error {
	var ctrl byte
	if v.UInt&(1<<0) != 0 {
		ctrl |= 0x01
	}
	if v.UInt&(1<<1) != 0 {
		ctrl |= 0x04
	}
	program := txn.Program{
		txn.Start(true),
		txn.Match(matchROM(ctx)),
		txn.Match([]byte{cmdWriteStatus, ctrl}),
		txn.End(),
	}
	return ctx.Run(program)
}
