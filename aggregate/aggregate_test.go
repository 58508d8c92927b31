package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/pathname"
)

func ctxWithExt(ext int) (*device.OpContext, pathname.Name) {
	name := pathname.Name{Extension: ext}
	return &device.OpContext{}, name
}

// separate storage: a per-element store, exercised through Read/Write
// directly (DS2406-style PIO.0/PIO.1 latches modelled as separate
// booleans, not the bitfield path).
func separateFileType(n int) (*device.FileType, *[]bool) {
	store := make([]bool, n)
	ft := &device.FileType{
		Format:    format.YesNo,
		Aggregate: &device.Aggregate{Elements: n, Storage: device.StorageSeparate},
		Read: func(ctx *device.OpContext) (format.Value, error) {
			return format.Value{Bool: store[ctx.Index]}, nil
		},
		Write: func(ctx *device.OpContext, v format.Value) error {
			store[ctx.Index] = v.Bool
			return nil
		},
	}
	return ft, &store
}

func TestSeparate_SingleElement(t *testing.T) {
	ft, store := separateFileType(3)
	(*store)[1] = true
	ctx, name := ctxWithExt(1)

	got, err := Read(ctx, name, ft)
	require.NoError(t, err)
	require.Equal(t, "1", got)

	ctx2, name2 := ctxWithExt(0)
	require.NoError(t, Write(ctx2, name2, ft, "1"))
	require.True(t, (*store)[0])
}

func TestSeparate_ALLConsistency(t *testing.T) {
	ft, store := separateFileType(3)
	(*store)[0] = true
	(*store)[2] = true
	ctx, name := ctxWithExt(pathname.ExtAll)

	got, err := Read(ctx, name, ft)
	require.NoError(t, err)
	require.Equal(t, "1,0,1", got)

	ctx2, name2 := ctxWithExt(pathname.ExtAll)
	require.NoError(t, Write(ctx2, name2, ft, "0,1,0"))
	require.Equal(t, []bool{false, true, false}, *store)
}

// aggregate storage: DS2433-style memory page, binary format,
// exercising bulk read, bulk write, and read-modify-write of one
// element.
func aggregateFileType(elements, width int) (*device.FileType, *[]byte) {
	page := make([]byte, elements*width)
	ft := &device.FileType{
		Format:     format.Binary,
		NominalLen: width,
		Aggregate:  &device.Aggregate{Elements: elements, Storage: device.StorageAggregate},
		BulkRead: func(ctx *device.OpContext) (format.Value, error) {
			return format.Value{Bytes: append([]byte(nil), page...)}, nil
		},
		BulkWrite: func(ctx *device.OpContext, v format.Value) error {
			copy(page, v.Bytes)
			return nil
		},
	}
	return ft, &page
}

func TestAggregate_BulkReadWrite(t *testing.T) {
	ft, page := aggregateFileType(2, 4)
	ctx, name := ctxWithExt(pathname.ExtAll)

	require.NoError(t, Write(ctx, name, ft, "ABCDEFGH"))
	require.Equal(t, "ABCDEFGH", string(*page))

	ctx2, name2 := ctxWithExt(pathname.ExtAll)
	got, err := Read(ctx2, name2, ft)
	require.NoError(t, err)
	require.Equal(t, "ABCDEFGH", got)
}

func TestAggregate_ReadModifyWrite(t *testing.T) {
	ft, page := aggregateFileType(2, 4)
	copy(*page, "AAAABBBB")

	ctx, name := ctxWithExt(1)
	require.NoError(t, Write(ctx, name, ft, "ZZZZ"))
	require.Equal(t, "AAAAZZZZ", string(*page))

	ctx2, name2 := ctxWithExt(0)
	got, err := Read(ctx2, name2, ft)
	require.NoError(t, err)
	require.Equal(t, "AAAA", got)
}

func TestAggregate_ReadModifyWrite_ReadOnlyWithoutBulkRead(t *testing.T) {
	ft := &device.FileType{
		Format:    format.Binary,
		Aggregate: &device.Aggregate{Elements: 2, Storage: device.StorageAggregate},
		BulkWrite: func(ctx *device.OpContext, v format.Value) error { return nil },
	}
	ctx, name := ctxWithExt(0)
	err := Write(ctx, name, ft, "x")
	require.ErrorIs(t, err, errcode.EROFS)
}

// bitfield storage: DS2406-style dual-PIO latch packed into one byte,
// exercising the ALL/BYTE/per-bit duality (spec.md §8 invariant: "a
// bitfield BYTE write followed by a per-bit read is consistent with
// a per-bit write followed by an ALL read").
func bitfieldFileType(n int) (*device.FileType, *uint64) {
	var packed uint64
	ft := &device.FileType{
		Format:    format.Bitfield,
		Aggregate: &device.Aggregate{Elements: n, Storage: device.StorageBitfield},
		BulkRead: func(ctx *device.OpContext) (format.Value, error) {
			return format.Value{UInt: packed}, nil
		},
		BulkWrite: func(ctx *device.OpContext, v format.Value) error {
			packed = v.UInt
			return nil
		},
	}
	return ft, &packed
}

func TestBitfield_ByteThenPerBitRead(t *testing.T) {
	ft, _ := bitfieldFileType(4)
	ctx, name := ctxWithExt(pathname.ExtByte)
	require.NoError(t, Write(ctx, name, ft, "5")) // 0b0101

	ctx2, name2 := ctxWithExt(0)
	bit0, err := Read(ctx2, name2, ft)
	require.NoError(t, err)
	require.Equal(t, "1", bit0)

	ctx3, name3 := ctxWithExt(1)
	bit1, err := Read(ctx3, name3, ft)
	require.NoError(t, err)
	require.Equal(t, "0", bit1)
}

func TestBitfield_PerBitWriteThenALLRead(t *testing.T) {
	ft, _ := bitfieldFileType(4)

	for i, v := range []string{"1", "0", "1", "0"} {
		ctx, name := ctxWithExt(i)
		require.NoError(t, Write(ctx, name, ft, v))
	}

	ctx, name := ctxWithExt(pathname.ExtAll)
	all, err := Read(ctx, name, ft)
	require.NoError(t, err)
	require.Equal(t, "1,0,1,0", all)
}

func TestBitfield_ALLWriteThenByteRead(t *testing.T) {
	ft, _ := bitfieldFileType(4)

	ctx, name := ctxWithExt(pathname.ExtAll)
	require.NoError(t, Write(ctx, name, ft, "1,1,0,0"))

	ctx2, name2 := ctxWithExt(pathname.ExtByte)
	got, err := Read(ctx2, name2, ft)
	require.NoError(t, err)
	require.Equal(t, "3", got) // 0b0011
}

func TestScalar_WriteOnlyReturnsEROFSOnRead(t *testing.T) {
	ft := &device.FileType{
		Format: format.Unsigned,
		Write:  func(ctx *device.OpContext, v format.Value) error { return nil },
	}
	ctx, name := ctxWithExt(pathname.ExtNone)
	_, err := Read(ctx, name, ft)
	require.ErrorIs(t, err, errcode.EROFS)
}
