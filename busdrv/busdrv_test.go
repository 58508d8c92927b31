package busdrv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/owgo/errcode"
)

// recordingDriver captures every Send/Delay call so the overdrive
// rewrite and ds2404 compliance spacing can be asserted against.
type recordingDriver struct {
	sent   [][]byte
	delays []time.Duration
}

func (r *recordingDriver) Reset(ctx context.Context) (bool, error) { return true, nil }
func (r *recordingDriver) Send(ctx context.Context, out []byte) error {
	r.sent = append(r.sent, out)
	return nil
}
func (r *recordingDriver) Recv(ctx context.Context, n int) ([]byte, error) {
	return make([]byte, n), nil
}
func (r *recordingDriver) Duplex(ctx context.Context, out []byte) ([]byte, error) {
	return make([]byte, len(out)), nil
}
func (r *recordingDriver) ProgramPulse(ctx context.Context) error { return errcode.ENOTSUP }
func (r *recordingDriver) Delay(ctx context.Context, d time.Duration) {
	r.delays = append(r.delays, d)
}

func TestBoundDriver_RegularSpeedSendsRomBytesUnchanged(t *testing.T) {
	rec := &recordingDriver{}
	in := New(0, AdapterUSB, "fake0", rec)
	bd := in.BoundDriver()

	require.NoError(t, bd.Send(context.Background(), []byte{romMatchCommand, 0x01, 0x02}))
	require.Equal(t, []byte{romMatchCommand, 0x01, 0x02}, rec.sent[0])
}

func TestBoundDriver_OverdriveRewritesMatchAndSkipRom(t *testing.T) {
	rec := &recordingDriver{}
	in := New(0, AdapterUSB, "fake0", rec)
	in.SetOverdrive(SpeedOverdrive)
	bd := in.BoundDriver()

	require.NoError(t, bd.Send(context.Background(), []byte{romMatchCommand, 0xAA}))
	require.Equal(t, byte(romOverdriveMatchCommand), rec.sent[0][0])

	require.NoError(t, bd.Send(context.Background(), []byte{romSkipCommand}))
	require.Equal(t, byte(romOverdriveSkipCommand), rec.sent[1][0])

	// A command byte that isn't ROM match/skip passes through untouched.
	require.NoError(t, bd.Send(context.Background(), []byte{0x44}))
	require.Equal(t, byte(0x44), rec.sent[2][0])
}

func TestBoundDriver_DS2404ComplianceAddsDelay(t *testing.T) {
	rec := &recordingDriver{}
	in := New(0, AdapterUSB, "fake0", rec)
	bd := in.BoundDriver()

	bd.Delay(context.Background(), 10*time.Millisecond)
	require.Equal(t, 10*time.Millisecond, rec.delays[0])

	in.SetDS2404Compliance(true)
	bd.Delay(context.Background(), 10*time.Millisecond)
	require.Equal(t, 10*time.Millisecond+ds2404ComplianceDelay, rec.delays[1])
}

func TestConnectionIn_OverdriveAndDS2404ComplianceDefaultToRegular(t *testing.T) {
	in := New(0, AdapterUSB, "fake0", &recordingDriver{})
	require.Equal(t, SpeedRegular, in.Overdrive())
	require.False(t, in.DS2404Compliance())
}
