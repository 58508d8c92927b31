package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/owgo/format"
)

func TestLive_ReadonlyIsImmutable(t *testing.T) {
	l := NewLive(CoreConfig{Readonly: true})
	require.True(t, l.Readonly())
	// No setter exists for readonly; this is the test documenting that
	// invariant (spec.md §5).
}

func TestLive_SettingsRoundTrip(t *testing.T) {
	l := NewLive(Default())
	l.SetBusLockTimeout(250 * time.Millisecond)
	require.Equal(t, 250*time.Millisecond, l.BusLockTimeout())

	l.SetCacheTTLVolatile(2 * time.Second)
	require.Equal(t, 2*time.Second, l.CacheTTLVolatile())
}

func TestLive_TemperatureUnitRoundTrip(t *testing.T) {
	l := NewLive(CoreConfig{TemperatureUnit: format.Fahrenheit})
	require.Equal(t, format.Fahrenheit, l.TemperatureUnit())

	l.SetTemperatureUnit(format.Kelvin)
	require.Equal(t, format.Kelvin, l.TemperatureUnit())
}
