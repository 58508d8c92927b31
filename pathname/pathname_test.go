package pathname

import (
	"testing"

	"github.com/jangala-dev/owgo/errcode"
	"github.com/stretchr/testify/require"
)

const validDevice = "28.AABBCCDDEE53" // CRC-8 of 28 AA BB CC DD EE == 0x53

func TestParse_Root(t *testing.T) {
	n, err := Parse("/")
	require.NoError(t, err)
	require.False(t, n.HasDevice)
	require.Equal(t, NSReal, n.Namespace)
}

func TestParse_Device(t *testing.T) {
	n, err := Parse("/" + validDevice)
	require.NoError(t, err)
	require.True(t, n.HasDevice)
	require.Equal(t, byte(0x28), n.Family)
	require.False(t, n.HasProperty)
}

func TestParse_DeviceProperty(t *testing.T) {
	n, err := Parse("/" + validDevice + "/temperature")
	require.NoError(t, err)
	require.True(t, n.HasProperty)
	require.Equal(t, "temperature", n.Property)
	require.False(t, n.HasExtension)
}

func TestParse_ExtensionForms(t *testing.T) {
	cases := map[string]int{
		"temphigh.2":   2,
		"temphigh.ALL": ExtAll,
		"temphigh.BYTE": ExtByte,
		"temphigh.c":    2,
	}
	for seg, want := range cases {
		n, err := Parse("/" + validDevice + "/" + seg)
		require.NoError(t, err, seg)
		require.True(t, n.HasExtension, seg)
		require.Equal(t, want, n.Extension, seg)
	}
}

func TestParse_BadHexIsEinval(t *testing.T) {
	_, err := Parse("/ZZ.000000000000")
	require.Equal(t, errcode.EINVAL, err)
}

func TestParse_BadCRCIsEinval(t *testing.T) {
	_, err := Parse("/28.AABBCCDDEE00") // wrong trailing CRC byte
	require.Equal(t, errcode.EINVAL, err)
}

func TestParse_UncachedSkipsCRC(t *testing.T) {
	n, err := Parse("/uncached/28.AABBCCDDEE00")
	require.NoError(t, err)
	require.True(t, n.Uncached)
	require.True(t, n.HasDevice)
}

func TestParse_BusRestriction(t *testing.T) {
	n, err := Parse("/bus.1/" + validDevice)
	require.NoError(t, err)
	require.True(t, n.BoundToBus)
	require.Equal(t, 1, n.BusNr)
	require.True(t, n.HasDevice)
}

func TestParse_Namespaces(t *testing.T) {
	tests := map[string]Namespace{
		"/system/configuration/foo":  NSSystem,
		"/statistics/errors/foo":     NSStatistics,
		"/settings/readonly":         NSSettings,
		"/structure/28/temperature":  NSStructure,
	}
	for p, ns := range tests {
		n, err := Parse(p)
		require.NoError(t, err, p)
		require.Equal(t, ns, n.Namespace, p)
	}
}

// TestParse_AlarmAddressesDeviceDirectly confirms `/alarm/<dev>` parses
// to exactly the same device/property addressing as the bare path: this
// repo has no alarm-search bus primitive to narrow against (see
// pathname.go's "alarm" case), so the prefix carries no state of its
// own by the time parsing finishes.
func TestParse_AlarmAddressesDeviceDirectly(t *testing.T) {
	alarm, err := Parse("/alarm/" + validDevice)
	require.NoError(t, err)
	bare, err := Parse("/" + validDevice)
	require.NoError(t, err)
	require.Equal(t, bare.Family, alarm.Family)
	require.Equal(t, bare.Serial, alarm.Serial)
	require.Equal(t, bare.HasDevice, alarm.HasDevice)

	n, err := Parse("/simultaneous/temperature")
	require.NoError(t, err)
	require.True(t, n.Simultaneous)
}

func TestRebind_DoesNotMutateOriginal(t *testing.T) {
	n, err := Parse("/" + validDevice)
	require.NoError(t, err)
	bound := n.Rebind(2)
	require.False(t, n.BoundToBus)
	require.Equal(t, -1, n.BusNr)
	require.True(t, bound.BoundToBus)
	require.Equal(t, 2, bound.BusNr)
}
