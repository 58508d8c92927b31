// Package ds18b20 implements the DS18B20 1-Wire digital thermometer
// (family 0x28): a single read-only temperature property, plus the
// alarm trip-point pair (templow/temphigh) stored in the scratchpad.
//
// The convert/read-scratchpad/CRC sequence follows the DS18B20
// datasheet's standard command set (Convert T = 0x44, Read Scratchpad
// = 0xBE, Write Scratchpad = 0x4E), expressed through the transaction
// DSL the way ds2890 addresses its chip (ROM-match, then command).
// The chip needs up to 750ms to complete a 12-bit conversion; Delay
// blocks for that before reading the scratchpad back.
package ds18b20

import (
	"time"

	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/txn"
)

const family = 0x28

const (
	cmdConvertT        = 0x44
	cmdReadScratchpad  = 0xBE
	cmdWriteScratchpad = 0x4E

	convertDelay = 750 * time.Millisecond
)

func init() {
	device.Register(&device.Device{
		Family: family,
		Name:   "DS18B20",
		Class:  device.ClassChip,
		Files: []device.FileType{
			{
				Name:       "temperature",
				NominalLen: 7,
				Format:     format.Temperature,
				Change:     device.ChangeVolatile,
				Read:       readTemperature,
			},
			{
				Name:       "templow",
				NominalLen: 7,
				Format:     format.TempGap,
				Change:     device.ChangeStable,
				Read:       readTripPoint(4),
				Write:      writeTripPoint(4),
			},
			{
				Name:       "temphigh",
				NominalLen: 7,
				Format:     format.TempGap,
				Change:     device.ChangeStable,
				Read:       readTripPoint(3),
				Write:      writeTripPoint(3),
			},
		},
	})
}

func matchROM(ctx *device.OpContext) []byte {
	rom := ctx.RomID()
	return append([]byte{0x55}, rom...)
}

// readScratchpad returns the 9-byte scratchpad, CRC-validated.
func readScratchpad(ctx *device.OpContext, convert bool) ([]byte, error) {
	program := txn.Program{
		txn.Start(true),
		txn.Match(matchROM(ctx)),
	}
	if convert {
		program = append(program, txn.Match([]byte{cmdConvertT}), txn.Delay(convertDelay), txn.Start(true), txn.Match(matchROM(ctx)))
	}
	var pad []byte
	program = append(program,
		txn.Match([]byte{cmdReadScratchpad}),
		txn.Read(&pad, 9),
		txn.CRC8(&pad, 9),
		txn.End(),
	)
	if err := ctx.Run(program); err != nil {
		return nil, err
	}
	return pad, nil
}

func readTemperature(ctx *device.OpContext) (format.Value, error) {
	pad, err := readScratchpad(ctx, true)
	if err != nil {
		return format.Value{}, err
	}
	raw := int16(pad[0]) | int16(pad[1])<<8
	return format.Value{Float: float64(raw) / 16.0}, nil
}

// readTripPoint reads byte index i (3 = TH, 4 = TL) of the scratchpad
// as a whole-degree signed value.
func readTripPoint(i int) device.ReadFunc {
	return func(ctx *device.OpContext) (format.Value, error) {
		pad, err := readScratchpad(ctx, false)
		if err != nil {
			return format.Value{}, err
		}
		if len(pad) <= i {
			return format.Value{}, errcode.EIO
		}
		return format.Value{Float: float64(int8(pad[i]))}, nil
	}
}

func writeTripPoint(i int) device.WriteFunc {
	return func(ctx *device.OpContext, v format.Value) error {
		pad, err := readScratchpad(ctx, false)
		if err != nil {
			return err
		}
		if len(pad) < 5 {
			return errcode.EIO
		}
		th, tl := pad[3], pad[4]
		if i == 3 {
			th = byte(int8(v.Float))
		} else {
			tl = byte(int8(v.Float))
		}
		program := txn.Program{
			txn.Start(true),
			txn.Match(matchROM(ctx)),
			txn.Match([]byte{cmdWriteScratchpad, th, tl}),
			txn.End(),
		}
		return ctx.Run(program)
	}
}
