// Package txn implements the transaction DSL interpreter that device
// drivers use to describe 1-Wire wire sequences (spec.md §4.4).
//
// A Step is a closed sum type (the teacher's registry.Builder interface
// pattern generalised to a private marker method) rather than the
// original's sentinel-terminated C array (spec.md §9 REDESIGN FLAG).
package txn

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jangala-dev/owgo/errcode"
)

// Driver is the thin interface each physical adapter type (USB, serial,
// remote-proxied) implements to execute one Step against its transport.
type Driver interface {
	// Reset pulses the bus and reports whether a presence pulse was seen.
	Reset(ctx context.Context) (present bool, err error)
	// Send writes out bytes (Match), possibly rewriting the first byte
	// for overdrive/alarm addressing per the driver's own speed mode.
	Send(ctx context.Context, out []byte) error
	// Recv reads n bytes.
	Recv(ctx context.Context, n int) ([]byte, error)
	// Duplex performs a simultaneous write/read (Modify) of equal length.
	Duplex(ctx context.Context, out []byte) (in []byte, err error)
	// ProgramPulse issues a 12V EPROM program pulse; returns
	// errcode.ENOTSUP if the adapter lacks the capability.
	ProgramPulse(ctx context.Context) error
	// Delay blocks for the given duration (used for ds2404 compliance
	// and other inter-byte spacing).
	Delay(ctx context.Context, d time.Duration)
}

// Step is one instruction in a transaction program.
type Step interface {
	step()
}

type stepStart struct{ checkPresence bool }
type stepEnd struct{}
type stepMatch struct{ out []byte }
type stepRead struct {
	into *[]byte
	n    int
}
type stepModify struct {
	out  []byte
	into *[]byte
}
type stepDelay struct{ d time.Duration }
type stepProgramPulse struct{}
type stepCRC8 struct {
	window *[]byte
	n      int
}
type stepCRC16 struct {
	window *[]byte
	n      int
}

func (stepStart) step()        {}
func (stepEnd) step()          {}
func (stepMatch) step()        {}
func (stepRead) step()         {}
func (stepModify) step()       {}
func (stepDelay) step()        {}
func (stepProgramPulse) step() {}
func (stepCRC8) step()         {}
func (stepCRC16) step()        {}

// Start begins a transaction. If checkPresence is true, a missing
// presence pulse fails the transaction with errcode.ENODEV.
func Start(checkPresence bool) Step { return stepStart{checkPresence} }

// End finalises the interpreter state.
func End() Step { return stepEnd{} }

// Match emits out, ROM-matching or command bytes.
func Match(out []byte) Step { return stepMatch{out} }

// Read receives n bytes into *into.
func Read(into *[]byte, n int) Step { return stepRead{into, n} }

// Modify performs a duplex transfer of out, storing the response in *into.
func Modify(out []byte, into *[]byte) Step { return stepModify{out, into} }

// Delay blocks for d (ds2404 inter-byte compliance delay, etc).
func Delay(d time.Duration) Step { return stepDelay{d} }

// ProgramPulse issues the 12V EPROM program pulse.
func ProgramPulse() Step { return stepProgramPulse{} }

// CRC8 validates an 8-bit CRC over the trailing n bytes of *window.
func CRC8(window *[]byte, n int) Step { return stepCRC8{window, n} }

// CRC16 validates a 16-bit CRC over the trailing n bytes of *window.
func CRC16(window *[]byte, n int) Step { return stepCRC16{window, n} }

// Program is an ordered sequence of Steps.
type Program []Step

// Run executes program against driver, running the whole sequence up
// to 3 times in all on transient errors (crc-error, bus-busy); not-supported
// and no-device fail immediately (spec.md §4.4 retry policy). Retry
// scheduling follows the pack's cenkalti/backoff/v5 usage (jra3-
// system-agent's intake worker retries its stream dial the same way):
// a zero-delay constant backoff, since the original retry policy never
// waits between attempts -- only the wire reset between Steps does.
func Run(ctx context.Context, d Driver, program Program) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		rerr := runOnce(ctx, d, program)
		if rerr == nil {
			return struct{}{}, nil
		}
		if !errcode.Retryable(errcode.MapTxnErr(rerr)) {
			return struct{}{}, backoff.Permanent(rerr)
		}
		return struct{}{}, rerr
	}, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewConstantBackOff(0)))
	if err != nil && ctx.Err() != nil {
		return errcode.ETIMEDOUT
	}
	return err
}

func runOnce(ctx context.Context, d Driver, program Program) error {
	for _, s := range program {
		select {
		case <-ctx.Done():
			return errcode.ETIMEDOUT
		default:
		}
		if err := execOne(ctx, d, s); err != nil {
			return err
		}
	}
	return nil
}

func execOne(ctx context.Context, d Driver, s Step) error {
	switch st := s.(type) {
	case stepStart:
		present, err := d.Reset(ctx)
		if err != nil {
			return err
		}
		if st.checkPresence && !present {
			return errcode.ENODEV
		}
		return nil
	case stepEnd:
		return nil
	case stepMatch:
		return d.Send(ctx, st.out)
	case stepRead:
		b, err := d.Recv(ctx, st.n)
		if err != nil {
			return err
		}
		*st.into = b
		return nil
	case stepModify:
		b, err := d.Duplex(ctx, st.out)
		if err != nil {
			return err
		}
		*st.into = b
		return nil
	case stepDelay:
		d.Delay(ctx, st.d)
		return nil
	case stepProgramPulse:
		return d.ProgramPulse(ctx)
	case stepCRC8:
		return verifyCRC8(*st.window, st.n)
	case stepCRC16:
		return verifyCRC16(*st.window, st.n)
	default:
		return errcode.EINVAL
	}
}
