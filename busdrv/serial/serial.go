// Package serial drives a passive serial 1-Wire adapter (DS9097-style:
// the bus is bit-banged over RS-232 line levels, one UART byte per
// 1-Wire bit/byte depending on mode) via go.bug.st/serial.
//
// Grounded on the seedhammer-seedhammer manifest go.mod, which carries
// go.bug.st/serial.
package serial

import (
	"context"
	"time"

	"github.com/jangala-dev/owgo/errcode"
	"go.bug.st/serial"
)

// Passive adapters reproduce the "reset" pulse by sending a single
// low-baud-rate byte and looking at the bounced-back presence bits,
// and reproduce "send/recv" byte-for-byte at 1-Wire standard speed by
// writing one UART byte per 1-Wire bit.
const (
	resetBaud  = 9600
	normalBaud = 115200
)

// Driver implements txn.Driver over one serial port.
type Driver struct {
	port serial.Port
}

func Open(device string) (*Driver, error) {
	mode := &serial.Mode{BaudRate: normalBaud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, errcode.Wrap("serial.Open", errcode.ENODEV, err)
	}
	return &Driver{port: p}, nil
}

func (d *Driver) Close() error { return d.port.Close() }

func (d *Driver) setBaud(baud int) error {
	return d.port.SetMode(&serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
}

func (d *Driver) Reset(ctx context.Context) (bool, error) {
	if err := d.setBaud(resetBaud); err != nil {
		return false, errcode.Wrap("serial.Reset", errcode.EIO, err)
	}
	defer d.setBaud(normalBaud)

	if _, err := d.port.Write([]byte{0xF0}); err != nil {
		return false, errcode.Wrap("serial.Reset", errcode.EIO, err)
	}
	echo := make([]byte, 1)
	n, err := d.port.Read(echo)
	if err != nil || n != 1 {
		return false, errcode.Wrap("serial.Reset", errcode.EIO, err)
	}
	// A presence pulse pulls the echoed byte down from 0xF0.
	return echo[0] != 0xF0, nil
}

func (d *Driver) bitEncode(out []byte) []byte {
	wire := make([]byte, 0, len(out)*8)
	for _, b := range out {
		for i := 0; i < 8; i++ {
			if b&(1<<uint(i)) != 0 {
				wire = append(wire, 0xFF)
			} else {
				wire = append(wire, 0x00)
			}
		}
	}
	return wire
}

func (d *Driver) bitDecode(wire []byte) []byte {
	out := make([]byte, len(wire)/8)
	for i := range out {
		var b byte
		for j := 0; j < 8; j++ {
			if wire[i*8+j] == 0xFF {
				b |= 1 << uint(j)
			}
		}
		out[i] = b
	}
	return out
}

func (d *Driver) Send(ctx context.Context, out []byte) error {
	wire := d.bitEncode(out)
	if _, err := d.port.Write(wire); err != nil {
		return errcode.Wrap("serial.Send", errcode.EIO, err)
	}
	echo := make([]byte, len(wire))
	if _, err := readFull(d.port, echo); err != nil {
		return errcode.Wrap("serial.Send", errcode.EIO, err)
	}
	return nil
}

func (d *Driver) Recv(ctx context.Context, n int) ([]byte, error) {
	// 1-Wire reads are driven by the master sending 0xFF bits and
	// sampling the echo, so a "read" is a duplex transfer with an
	// all-ones probe.
	probe := make([]byte, n)
	for i := range probe {
		probe[i] = 0xFF
	}
	return d.Duplex(ctx, probe)
}

func (d *Driver) Duplex(ctx context.Context, out []byte) ([]byte, error) {
	wire := d.bitEncode(out)
	if _, err := d.port.Write(wire); err != nil {
		return nil, errcode.Wrap("serial.Duplex", errcode.EIO, err)
	}
	echo := make([]byte, len(wire))
	if _, err := readFull(d.port, echo); err != nil {
		return nil, errcode.Wrap("serial.Duplex", errcode.EIO, err)
	}
	return d.bitDecode(echo), nil
}

func (d *Driver) ProgramPulse(ctx context.Context) error {
	// Passive serial adapters have no 12V supply.
	return errcode.ENOTSUP
}

func (d *Driver) Delay(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func readFull(p serial.Port, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := p.Read(buf[read:])
		if err != nil {
			return read, err
		}
		if n == 0 {
			break
		}
		read += n
	}
	return read, nil
}
