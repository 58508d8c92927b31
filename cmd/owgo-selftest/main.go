// Command owgo-selftest exercises the owfs Dispatcher against an
// in-memory fake bus: no real USB/serial adapter required. It mirrors
// the teacher's bus self-test harness (a flat list of bool-returning
// checks, PASS/FAIL lines, a final tally) adapted to the core's
// request/response Dispatcher instead of the teacher's pub/sub bus.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jangala-dev/owgo/busdrv"
	"github.com/jangala-dev/owgo/config"
	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/owfs"
	"github.com/jangala-dev/owgo/owlog"
)

const selftestFamily = 0xFE

// fakeDriver answers every transaction without touching real wire
// timing, same shape as owfs's own test fixture.
type fakeDriver struct{}

func (fakeDriver) Reset(ctx context.Context) (bool, error) { return true, nil }
func (fakeDriver) Send(ctx context.Context, out []byte) error { return nil }
func (fakeDriver) Recv(ctx context.Context, n int) ([]byte, error) { return make([]byte, n), nil }
func (fakeDriver) Duplex(ctx context.Context, out []byte) ([]byte, error) {
	return make([]byte, len(out)), nil
}
func (fakeDriver) ProgramPulse(ctx context.Context) error       { return errcode.ENOTSUP }
func (fakeDriver) Delay(ctx context.Context, d time.Duration)   {}

var store string

func registerSelftestDevice() {
	device.Register(&device.Device{
		Family: selftestFamily,
		Name:   "selftest",
		Class:  device.ClassChip,
		Files: []device.FileType{
			{
				Name:       "scratch",
				NominalLen: 16,
				Format:     format.ASCII,
				Change:     device.ChangeStable,
				Read: func(ctx *device.OpContext) (format.Value, error) {
					return format.Value{Bytes: []byte(store)}, nil
				},
				Write: func(ctx *device.OpContext, v format.Value) error {
					store = string(v.Bytes)
					return nil
				},
			},
		},
	})
}

func newDispatcher() *owfs.Dispatcher {
	chain := busdrv.NewChain()
	chain.Add(busdrv.AdapterUSB, "fake0", fakeDriver{})
	live := config.NewLive(config.Default())
	d, err := owfs.New(chain, live, owlog.Discard())
	if err != nil {
		panic(err)
	}
	return d
}

type check struct {
	name string
	fn   func() bool
}

func checkWriteThenRead() bool {
	d := newDispatcher()
	const path = "/fe.aabbccddeeff.uncached/scratch"
	if _, err := d.Write(context.Background(), path, []byte("hello"), 0); err != nil {
		return false
	}
	buf := make([]byte, 16)
	n, err := d.Read(context.Background(), path, buf, 0)
	return err == nil && string(buf[:n]) == "hello"
}

func checkUnknownFamilyIsNoDevice() bool {
	d := newDispatcher()
	buf := make([]byte, 8)
	_, err := d.Read(context.Background(), "/ab.aabbccddeeff.uncached/scratch", buf, 0)
	return err == errcode.ENODEV
}

func checkSettingsRoundTrip() bool {
	d := newDispatcher()
	if _, err := d.Write(context.Background(), "/settings/cache_ttl.volatile", []byte("1500"), 0); err != nil {
		return false
	}
	buf := make([]byte, 16)
	n, err := d.Read(context.Background(), "/settings/cache_ttl.volatile", buf, 0)
	return err == nil && string(buf[:n]) == "1500"
}

func checkSimultaneousBroadcast() bool {
	d := newDispatcher()
	_, err := d.Write(context.Background(), "/simultaneous/temperature", nil, 0)
	return err == nil
}

func checkStructureDescribesFileType() bool {
	d := newDispatcher()
	buf := make([]byte, 64)
	n, err := d.Read(context.Background(), "/structure/fe/scratch", buf, 0)
	return err == nil && string(buf[:n]) == "16,ascii,rw,stable,1"
}

func checkGlobalReadonlyRejectsWrite() bool {
	cfg := config.Default()
	cfg.Readonly = true
	chain := busdrv.NewChain()
	chain.Add(busdrv.AdapterUSB, "fake0", fakeDriver{})
	d, err := owfs.New(chain, config.NewLive(cfg), owlog.Discard())
	if err != nil {
		return false
	}
	_, err = d.Write(context.Background(), "/fe.aabbccddeeff.uncached/scratch", []byte("x"), 0)
	return err == errcode.EROFS
}

func main() {
	registerSelftestDevice()

	checks := []check{
		{"WriteThenRead", checkWriteThenRead},
		{"UnknownFamilyIsNoDevice", checkUnknownFamilyIsNoDevice},
		{"SettingsRoundTrip", checkSettingsRoundTrip},
		{"SimultaneousBroadcast", checkSimultaneousBroadcast},
		{"StructureDescribesFileType", checkStructureDescribesFileType},
		{"GlobalReadonlyRejectsWrite", checkGlobalReadonlyRejectsWrite},
	}

	passed, failed := 0, 0
	fmt.Println("== owgo self-test starting ==")
	for _, c := range checks {
		if c.fn() {
			fmt.Printf("[PASS] %s\n", c.name)
			passed++
		} else {
			fmt.Printf("[FAIL] %s\n", c.name)
			failed++
		}
	}
	fmt.Printf("== done: %d passed, %d failed ==\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
