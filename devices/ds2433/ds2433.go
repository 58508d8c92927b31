// Package ds2433 implements the DS2433 1-Wire 4Kb EEPROM (family
// 0x23): a flat 512-byte "memory" scalar and a 16-element "pages"
// aggregate (spec.md §3, separate-storage example -- each page is an
// independent 32-byte read/write, not fetched or stored as a unit).
//
// Command framing (Read Memory 0xF0, Write Scratchpad 0x0F, Read
// Scratchpad 0xAA, Copy Scratchpad 0x55) follows the DS2433 datasheet;
// the scratchpad round-trip (write, read back to confirm, then copy)
// is the standard EEPROM write pattern every owfs EEPROM driver uses.
package ds2433

import (
	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/txn"
)

const family = 0x23

const (
	cmdWriteScratchpad = 0x0F
	cmdReadScratchpad  = 0xAA
	cmdCopyScratchpad  = 0x55
	cmdReadMemory      = 0xF0

	pageSize  = 32
	numPages  = 16
	totalSize = pageSize * numPages
)

func init() {
	device.Register(&device.Device{
		Family: family,
		Name:   "DS2433",
		Class:  device.ClassChip,
		Files: []device.FileType{
			{
				Name:       "memory",
				NominalLen: totalSize,
				Format:     format.Binary,
				Change:     device.ChangeStable,
				Read:       readRange(0, totalSize),
				Write:      writeRange(0),
			},
			{
				Name:       "pages.page",
				NominalLen: pageSize,
				Aggregate:  &device.Aggregate{Elements: numPages, Index: device.IndexNumbers, Storage: device.StorageSeparate},
				Format:     format.Binary,
				Change:     device.ChangeStable,
				Read:       readPage,
				Write:      writePage,
			},
		},
	})
}

func matchROM(ctx *device.OpContext) []byte {
	rom := ctx.RomID()
	return append([]byte{0x55}, rom...)
}

func readPage(ctx *device.OpContext) (format.Value, error) {
	return readRange(ctx.Index*pageSize, pageSize)(ctx)
}

func writePage(ctx *device.OpContext, v format.Value) error {
	return writeRange(ctx.Index * pageSize)(ctx, v)
}

func readRange(addr, n int) device.ReadFunc {
	return func(ctx *device.OpContext) (format.Value, error) {
		var data []byte
		program := txn.Program{
			txn.Start(true),
			txn.Match(matchROM(ctx)),
			txn.Match([]byte{cmdReadMemory, byte(addr), byte(addr >> 8)}),
			txn.Read(&data, n),
			txn.End(),
		}
		if err := ctx.Run(program); err != nil {
			return format.Value{}, err
		}
		return format.Value{Bytes: data}, nil
	}
}

// writeRange writes ctx's payload at addr via the scratchpad/copy
// sequence, confirming the scratchpad holds exactly what was sent
// before issuing the copy.
func writeRange(addr int) device.WriteFunc {
	return func(ctx *device.OpContext, v format.Value) error {
		data := v.Bytes
		if len(data) == 0 {
			return nil
		}
		var confirm []byte
		program := txn.Program{
			txn.Start(true),
			txn.Match(matchROM(ctx)),
			txn.Match(append([]byte{cmdWriteScratchpad, byte(addr), byte(addr >> 8)}, data...)),
			txn.Start(true),
			txn.Match(matchROM(ctx)),
			txn.Match([]byte{cmdReadScratchpad}),
			txn.Read(&confirm, 3+len(data)),
			txn.End(),
		}
		if err := ctx.Run(program); err != nil {
			return err
		}
		if len(confirm) != 3+len(data) {
			return errcode.EIO
		}
		for i, b := range data {
			if confirm[3+i] != b {
				return errcode.EIO
			}
		}
		copyProgram := txn.Program{
			txn.Start(true),
			txn.Match(matchROM(ctx)),
			txn.Match(append([]byte{cmdCopyScratchpad}, confirm[:3]...)),
			txn.End(),
		}
		return ctx.Run(copyProgram)
	}
}
