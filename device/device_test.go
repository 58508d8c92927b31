package device

import (
	"testing"

	"github.com/jangala-dev/owgo/format"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	reset()
	d := &Device{Family: 0xEE, Name: "test-device", Class: ClassChip, Files: []FileType{
		{Name: "foo", Format: format.Unsigned, Change: ChangeStable},
	}}
	Register(d)

	got, ok := Lookup(0xEE)
	require.True(t, ok)
	require.Same(t, d, got)

	ft, ok := got.FileType("foo")
	require.True(t, ok)
	require.Equal(t, format.Unsigned, ft.Format)

	_, ok = got.FileType("missing")
	require.False(t, ok)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	reset()
	Register(&Device{Family: 0xEE, Name: "a"})
	require.Panics(t, func() {
		Register(&Device{Family: 0xEE, Name: "b"})
	})
}

func TestLookup_UnknownFamilyIsNotAnError(t *testing.T) {
	reset()
	_, ok := Lookup(0x77)
	require.False(t, ok)
}

func TestAggregate_Validate(t *testing.T) {
	require.NoError(t, Aggregate{Elements: 8, Storage: StorageSeparate}.Validate())
	require.Error(t, Aggregate{Elements: 0}.Validate())
	require.Error(t, Aggregate{Elements: 257}.Validate())
	require.Error(t, Aggregate{Elements: 27, Index: IndexLetters}.Validate())
	require.NoError(t, Aggregate{Elements: 26, Index: IndexLetters}.Validate())
}
