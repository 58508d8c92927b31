package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/owgo/busdrv"
)

type fakeDriver struct{}

func (fakeDriver) Reset(ctx context.Context) (bool, error)           { return true, nil }
func (fakeDriver) Send(ctx context.Context, out []byte) error        { return nil }
func (fakeDriver) Recv(ctx context.Context, n int) ([]byte, error)   { return make([]byte, n), nil }
func (fakeDriver) Duplex(ctx context.Context, out []byte) ([]byte, error) {
	return make([]byte, len(out)), nil
}
func (fakeDriver) ProgramPulse(ctx context.Context) error          { return nil }
func (fakeDriver) Delay(ctx context.Context, d time.Duration)      {}

// fakeProber reports present only for buses listed in presentOn.
type fakeProber struct {
	busIndex  int
	presentOn map[int]bool
	delay     time.Duration
}

func (p fakeProber) Probe(ctx context.Context, serial uint64) (bool, error) {
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return p.presentOn[p.busIndex], nil
}

func buildChain(n int) *busdrv.Chain {
	chain := busdrv.NewChain()
	for i := 0; i < n; i++ {
		chain.Add(busdrv.AdapterUSB, "fake", fakeDriver{})
	}
	return chain
}

func TestBind_CacheHitSkipsProbe(t *testing.T) {
	chain := buildChain(2)
	probed := 0
	c := New(chain, time.Minute, time.Second, 200*time.Millisecond, func(in *busdrv.ConnectionIn) Prober {
		probed++
		return fakeProber{busIndex: in.Index, presentOn: map[int]bool{0: true}}
	})

	idx, err := c.Bind(context.Background(), 0x1234)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.Equal(t, 2, probed) // both buses probed on the miss

	probed = 0
	idx2, err2 := c.Bind(context.Background(), 0x1234)
	require.NoError(t, err2)
	require.Equal(t, 0, idx2)
	require.Equal(t, 0, probed) // cache hit, no re-probe
}

func TestBind_SolePresentBusWins(t *testing.T) {
	chain := buildChain(3)
	c := New(chain, time.Minute, time.Second, 500*time.Millisecond, func(in *busdrv.ConnectionIn) Prober {
		return fakeProber{busIndex: in.Index, presentOn: map[int]bool{2: true}}
	})

	idx, err := c.Bind(context.Background(), 0xABCD)
	require.NoError(t, err)
	require.Equal(t, 2, idx)
}

// TestBind_TieResolvesToLowestBusIndex arranges a genuine tie (three
// buses all report present) with the higher-indexed buses answering
// first, and asserts the lowest index still wins deterministically
// (spec.md §4.2) -- a race on first-channel-send would instead return
// whichever of bus 1 or 2 happened to finish first.
func TestBind_TieResolvesToLowestBusIndex(t *testing.T) {
	chain := buildChain(3)
	c := New(chain, time.Minute, time.Second, 500*time.Millisecond, func(in *busdrv.ConnectionIn) Prober {
		delay := time.Duration(0)
		if in.Index == 0 {
			delay = 50 * time.Millisecond // the eventual winner answers last
		}
		return fakeProber{busIndex: in.Index, presentOn: map[int]bool{0: true, 1: true, 2: true}, delay: delay}
	})

	idx, err := c.Bind(context.Background(), 0xFEED)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestBind_AllAbsentIsNoDevice(t *testing.T) {
	chain := buildChain(2)
	c := New(chain, time.Minute, 50*time.Millisecond, 200*time.Millisecond, func(in *busdrv.ConnectionIn) Prober {
		return fakeProber{busIndex: in.Index, presentOn: map[int]bool{}}
	})

	_, err := c.Bind(context.Background(), 0xFFFF)
	require.Error(t, err)
}

func TestBind_NegativeCacheShortCircuits(t *testing.T) {
	chain := buildChain(1)
	probed := 0
	c := New(chain, time.Minute, time.Hour, 200*time.Millisecond, func(in *busdrv.ConnectionIn) Prober {
		probed++
		return fakeProber{busIndex: in.Index, presentOn: map[int]bool{}}
	})

	_, err := c.Bind(context.Background(), 0x1)
	require.Error(t, err)
	require.Equal(t, 1, probed)

	probed = 0
	_, err2 := c.Bind(context.Background(), 0x1)
	require.Error(t, err2)
	require.Equal(t, 0, probed) // within negative TTL, no re-probe
}

func TestInvalidate_ForcesReprobe(t *testing.T) {
	chain := buildChain(1)
	probed := 0
	c := New(chain, time.Minute, time.Minute, 200*time.Millisecond, func(in *busdrv.ConnectionIn) Prober {
		probed++
		return fakeProber{busIndex: in.Index, presentOn: map[int]bool{0: true}}
	})

	_, err := c.Bind(context.Background(), 0x9)
	require.NoError(t, err)
	require.Equal(t, 1, probed)

	c.Invalidate(0x9)

	probed = 0
	_, err2 := c.Bind(context.Background(), 0x9)
	require.NoError(t, err2)
	require.Equal(t, 1, probed)
}

func TestTiebreak_LowestIndexWins(t *testing.T) {
	require.Equal(t, 1, Tiebreak([]int{4, 1, 9}))
	require.Equal(t, -1, Tiebreak(nil))
}
