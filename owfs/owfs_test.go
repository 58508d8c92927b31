package owfs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/config"
	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/owlog"
	"github.com/jangala-dev/owgo/pathname"
)

func mustParse(t *testing.T, path string) pathname.Name {
	t.Helper()
	n, err := pathname.Parse(path)
	require.NoError(t, err)
	return n
}

// fakeDriver always reports presence and never touches real wire
// timing -- these tests exercise the dispatcher's own wiring, not the
// transaction interpreter (covered in txn's own tests).
type fakeDriver struct {
	resets int
}

func (f *fakeDriver) Reset(ctx context.Context) (bool, error) {
	f.resets++
	return true, nil
}
func (f *fakeDriver) Send(ctx context.Context, out []byte) error           { return nil }
func (f *fakeDriver) Recv(ctx context.Context, n int) ([]byte, error)      { return make([]byte, n), nil }
func (f *fakeDriver) Duplex(ctx context.Context, out []byte) ([]byte, error) {
	return make([]byte, len(out)), nil
}
func (f *fakeDriver) ProgramPulse(ctx context.Context) error { return errcode.ENOTSUP }
func (f *fakeDriver) Delay(ctx context.Context, d time.Duration) {}

const testFamily = 0xF0

var (
	testStoreMu sync.Mutex
	testStore   string

	registerOnce sync.Once
)

func setTestStore(v string) {
	testStoreMu.Lock()
	defer testStoreMu.Unlock()
	testStore = v
}

func getTestStore() string {
	testStoreMu.Lock()
	defer testStoreMu.Unlock()
	return testStore
}

// registerTestDevice registers the test fixture family exactly once
// per test binary -- device.Register panics on a duplicate family
// code (spec.md §3), so every test in this package shares one
// registration and drives it through the package-level testStore.
func registerTestDevice(t *testing.T) {
	t.Helper()
	registerOnce.Do(func() {
		device.Register(&device.Device{
			Family: testFamily,
			Name:   "testdevice",
			Class:  device.ClassChip,
			Files: []device.FileType{
				{
					Name:       "foo",
					NominalLen: 8,
					Format:     format.ASCII,
					Change:     device.ChangeStable,
					Read: func(ctx *device.OpContext) (format.Value, error) {
						return format.Value{Bytes: []byte(getTestStore())}, nil
					},
					Write: func(ctx *device.OpContext, v format.Value) error {
						setTestStore(string(v.Bytes))
						return nil
					},
				},
				{
					Name:   "readonly",
					Format: format.Integer,
					Change: device.ChangeStatic,
					Read: func(ctx *device.OpContext) (format.Value, error) {
						return format.Value{Int: 42}, nil
					},
				},
				{
					Name:   "faulty",
					Format: format.ASCII,
					Change: device.ChangeStable,
					Read: func(ctx *device.OpContext) (format.Value, error) {
						return format.Value{Bytes: []byte("ok")}, nil
					},
					Write: func(ctx *device.OpContext, v format.Value) error {
						return errcode.EIO
					},
				},
			},
		})
	})
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeDriver) {
	t.Helper()
	drv := &fakeDriver{}
	chain := busdrv.NewChain()
	chain.Add(busdrv.AdapterUSB, "fake0", drv)

	live := config.NewLive(config.Default())
	d, err := New(chain, live, owlog.Discard())
	require.NoError(t, err)
	return d, drv
}

const testPath = "/f0.aabbccddeeff.uncached/foo"

func TestDispatcher_WriteThenRead(t *testing.T) {
	registerTestDevice(t)
	setTestStore("")
	d, _ := newTestDispatcher(t)

	n, err := d.Write(context.Background(), testPath, []byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 32)
	n, err = d.Read(context.Background(), testPath, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestDispatcher_ReadIsCachedAfterFirstHit(t *testing.T) {
	registerTestDevice(t)
	setTestStore("initial")
	d, drv := newTestDispatcher(t)

	// No ".uncached" flag, so the serial carries a valid CRC-8
	// (0x36 over F0 AA BB CC DD EE) and the property cache is used.
	const cachedPath = "/f0.aabbccddee36/foo"

	buf := make([]byte, 32)
	_, err := d.Read(context.Background(), cachedPath, buf, 0)
	require.NoError(t, err)
	resetsAfterFirst := drv.resets

	setTestStore("changed-behind-the-cache")
	n, err := d.Read(context.Background(), cachedPath, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "initial", string(buf[:n]))
	require.Equal(t, resetsAfterFirst, drv.resets, "cached read must not re-hit the wire")
}

func TestDispatcher_WriteErrorInvalidatesCache(t *testing.T) {
	registerTestDevice(t)
	d, _ := newTestDispatcher(t)

	const faultyPath = "/f0.aabbccddeeff.uncached/faulty"
	key := cacheKey(mustParse(t, faultyPath).Rebind(0))
	d.cache.Put(key, "stale-cached-value", device.ChangeStable)

	_, err := d.Write(context.Background(), faultyPath, []byte("new-value"), 0)
	require.ErrorIs(t, err, errcode.EIO)

	_, hit := d.cache.Get(key)
	require.False(t, hit, "a failed write must invalidate whatever was cached for its path")
}

func TestDispatcher_ReadOnlyPropertyRejectsWrite(t *testing.T) {
	registerTestDevice(t)
	d, _ := newTestDispatcher(t)

	_, err := d.Write(context.Background(), "/f0.aabbccddeeff.uncached/readonly", []byte("1"), 0)
	require.ErrorIs(t, err, errcode.EROFS)
}

func TestDispatcher_GlobalReadonlyRejectsAnyWrite(t *testing.T) {
	registerTestDevice(t)
	drv := &fakeDriver{}
	chain := busdrv.NewChain()
	chain.Add(busdrv.AdapterUSB, "fake0", drv)

	cfg := config.Default()
	cfg.Readonly = true
	live := config.NewLive(cfg)
	d, err := New(chain, live, owlog.Discard())
	require.NoError(t, err)

	_, err = d.Write(context.Background(), testPath, []byte("x"), 0)
	require.ErrorIs(t, err, errcode.EROFS)
}

func TestDispatcher_UnknownFamilyIsNoDevice(t *testing.T) {
	d, _ := newTestDispatcher(t)
	buf := make([]byte, 8)
	_, err := d.Read(context.Background(), "/aa.aabbccddeeff.uncached/foo", buf, 0)
	require.ErrorIs(t, err, errcode.ENODEV)
}

func TestDispatcher_PresenceReflectsBindOutcome(t *testing.T) {
	registerTestDevice(t)
	d, _ := newTestDispatcher(t)

	present, err := d.Presence(context.Background(), "/f0.aabbccddeeff.uncached")
	require.NoError(t, err)
	require.True(t, present)
}

func TestDispatcher_DirEnumeratesFileTypes(t *testing.T) {
	registerTestDevice(t)
	d, _ := newTestDispatcher(t)

	var names []string
	err := d.Dir(context.Background(), "/f0.aabbccddeeff.uncached", func(s string) { names = append(names, s) })
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"foo", "readonly", "faulty"}, names)
}

func TestDispatcher_SettingsRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t)

	n, err := d.Write(context.Background(), "/settings/cache_ttl.volatile", []byte("2500"), 0)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 16)
	n, err = d.Read(context.Background(), "/settings/cache_ttl.volatile", buf, 0)
	require.NoError(t, err)
	require.Equal(t, "2500", string(buf[:n]))
	require.Equal(t, 2500*time.Millisecond, d.live.CacheTTLVolatile())
}

func TestDispatcher_StructureDescribesFileType(t *testing.T) {
	registerTestDevice(t)
	d, _ := newTestDispatcher(t)

	buf := make([]byte, 64)
	n, err := d.Read(context.Background(), "/structure/f0/readonly", buf, 0)
	require.NoError(t, err)
	require.Equal(t, "0,integer,ro,static,1", string(buf[:n]))
}
