// Package ds2890 implements the DS2890 1-Wire digital potentiometer
// (family 0x2C): a single 256-position wiper and an on/off charge
// pump, both scalar (non-aggregate) properties.
//
// Transaction sequences are grounded directly on the original owfs
// driver (original_source/module/owlib/src/c/ow_2890.c, OW_r_wiper /
// OW_w_wiper / OW_r_cp / OW_w_cp): write-wiper sends the select
// command 0x0F plus the target position, reads back the position the
// chip actually latched, and confirms with a 0x96 terminate; charge
// pump follows the same select/confirm pattern with command 0x55 and
// on/off bytes 0x4C/0x0C.
package ds2890

import (
	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/txn"
)

const family = 0x2C

const (
	cmdWiperSelect  = 0x0F
	cmdCPSelect     = 0x55
	cmdReadPosition = 0xF0
	cmdReadCP       = 0xAA
	cmdTerminate    = 0x96

	cpOn  = 0x4C
	cpOff = 0x0C
)

func init() {
	device.Register(&device.Device{
		Family: family,
		Name:   "DS2890",
		Class:  device.ClassChip,
		Files: []device.FileType{
			{
				Name:       "chargepump",
				NominalLen: 1,
				Format:     format.YesNo,
				Change:     device.ChangeStable,
				Read:       readChargePump,
				Write:      writeChargePump,
			},
			{
				Name:       "wiper",
				NominalLen: 3,
				Format:     format.Unsigned,
				Change:     device.ChangeStable,
				Read:       readWiper,
				Write:      writeWiper,
			},
		},
	})
}

func writeWiper(ctx *device.OpContext, v format.Value) error {
	pos := v.UInt
	if pos > 255 {
		pos = 255
	}
	var resp []byte
	program := txn.Program{
		txn.Start(true),
		txn.Match(matchROM(ctx)),
		txn.Match([]byte{cmdWiperSelect, byte(pos)}),
		txn.Read(&resp, 1),
		txn.Match([]byte{cmdTerminate}),
		txn.End(),
	}
	if err := ctx.Run(program); err != nil {
		return err
	}
	if len(resp) != 1 || resp[0] != byte(pos) {
		return errcode.EIO
	}
	return nil
}

func readWiper(ctx *device.OpContext) (format.Value, error) {
	var resp []byte
	program := txn.Program{
		txn.Start(true),
		txn.Match(matchROM(ctx)),
		txn.Match([]byte{cmdReadPosition}),
		txn.Read(&resp, 2),
		txn.End(),
	}
	if err := ctx.Run(program); err != nil {
		return format.Value{}, err
	}
	if len(resp) != 2 {
		return format.Value{}, errcode.EIO
	}
	return format.Value{UInt: uint64(resp[1])}, nil
}

func writeChargePump(ctx *device.OpContext, v format.Value) error {
	onByte := byte(cpOff)
	if v.Bool {
		onByte = cpOn
	}
	var resp []byte
	program := txn.Program{
		txn.Start(true),
		txn.Match(matchROM(ctx)),
		txn.Match([]byte{cmdCPSelect, onByte}),
		txn.Read(&resp, 1),
		txn.Match([]byte{cmdTerminate}),
		txn.End(),
	}
	if err := ctx.Run(program); err != nil {
		return err
	}
	if len(resp) != 1 || resp[0] != onByte {
		return errcode.EIO
	}
	return nil
}

func readChargePump(ctx *device.OpContext) (format.Value, error) {
	var resp []byte
	program := txn.Program{
		txn.Start(true),
		txn.Match(matchROM(ctx)),
		txn.Match([]byte{cmdReadCP}),
		txn.Read(&resp, 2),
		txn.End(),
	}
	if err := ctx.Run(program); err != nil {
		return format.Value{}, err
	}
	if len(resp) != 2 {
		return format.Value{}, errcode.EIO
	}
	return format.Value{Bool: resp[1]&0x40 != 0}, nil
}

func matchROM(ctx *device.OpContext) []byte {
	rom := ctx.RomID()
	return append([]byte{0x55}, rom...)
}
