// Package aggregate implements the aggregate engine (spec.md §4.6):
// given a bound ParsedName carrying an extension index, a FileType,
// and its Aggregate descriptor, it picks one of separate / all /
// bulk / read-modify-write / bitfield strategies and drives the
// device's Read/Write or BulkRead/BulkWrite handlers accordingly.
//
// Read and Write speak the canonical textual representation (spec.md
// §4.5) at the boundary, the same way the format package's
// Render/RenderArray and Parse/ParseArray do -- so a caller (the
// entry dispatcher) never has to guess whether a given result is a
// single rendered value or an already-joined array.
package aggregate

import (
	"github.com/jangala-dev/owgo/device"
	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/pathname"
)

// Read resolves ft's canonical text value for the extension carried
// by name against ctx, applying the strategy selection of spec.md
// §4.6.
func Read(ctx *device.OpContext, name pathname.Name, ft *device.FileType) (string, error) {
	if ft.Aggregate == nil {
		return readScalar(ctx, ft)
	}
	agg := ft.Aggregate

	switch agg.Storage {
	case device.StorageSeparate:
		return readSeparate(ctx, ft, agg, name.Extension)
	case device.StorageAggregate, device.StorageMixed:
		return readAggregate(ctx, ft, agg, name.Extension)
	case device.StorageBitfield:
		return readBitfield(ctx, ft, agg, name.Extension)
	default:
		return "", errcode.EINVAL
	}
}

// Write parses raw and applies it for the extension carried by name,
// applying the write-side of spec.md §4.6's strategy table (including
// read-modify-write for a single aggregate element).
func Write(ctx *device.OpContext, name pathname.Name, ft *device.FileType, raw string) error {
	if ft.Write == nil && ft.BulkWrite == nil {
		return errcode.EROFS
	}
	if ft.Aggregate == nil {
		return writeScalar(ctx, ft, raw)
	}
	agg := ft.Aggregate

	switch agg.Storage {
	case device.StorageSeparate:
		return writeSeparate(ctx, ft, agg, name.Extension, raw)
	case device.StorageAggregate, device.StorageMixed:
		return writeAggregate(ctx, ft, agg, name.Extension, raw)
	case device.StorageBitfield:
		return writeBitfield(ctx, ft, agg, name.Extension, raw)
	default:
		return errcode.EINVAL
	}
}

func readScalar(ctx *device.OpContext, ft *device.FileType) (string, error) {
	if ft.Read == nil {
		return "", errcode.EROFS
	}
	v, err := ft.Read(ctx)
	if err != nil {
		return "", err
	}
	return format.Render(ft.Format, v, ctx.Unit)
}

func writeScalar(ctx *device.OpContext, ft *device.FileType, raw string) error {
	if ft.Write == nil {
		return errcode.EROFS
	}
	v, err := format.Parse(ft.Format, raw, ctx.Unit)
	if err != nil {
		return err
	}
	return ft.Write(ctx, v)
}

// readSeparate handles extension >= 0 (single element) and ALL
// (iterate and concatenate, spec.md §4.6 bullets 1-2).
func readSeparate(ctx *device.OpContext, ft *device.FileType, agg *device.Aggregate, ext int) (string, error) {
	if ft.Read == nil {
		return "", errcode.EROFS
	}
	if ext >= 0 {
		sub := *ctx
		sub.Index = ext
		v, err := ft.Read(&sub)
		if err != nil {
			return "", err
		}
		return format.Render(ft.Format, v, ctx.Unit)
	}
	if ext != pathname.ExtAll {
		return "", errcode.EINVAL
	}
	vals := make([]format.Value, agg.Elements)
	for i := 0; i < agg.Elements; i++ {
		sub := *ctx
		sub.Index = i
		v, err := ft.Read(&sub)
		if err != nil {
			return "", err
		}
		vals[i] = v
	}
	return format.RenderArray(ft.Format, vals, ft.NominalLen, ctx.Unit)
}

func writeSeparate(ctx *device.OpContext, ft *device.FileType, agg *device.Aggregate, ext int, raw string) error {
	if ft.Write == nil {
		return errcode.EROFS
	}
	if ext >= 0 {
		sub := *ctx
		sub.Index = ext
		v, err := format.Parse(ft.Format, raw, ctx.Unit)
		if err != nil {
			return err
		}
		return ft.Write(&sub, v)
	}
	if ext != pathname.ExtAll {
		return errcode.EINVAL
	}
	vals, err := format.ParseArray(ft.Format, raw, agg.Elements, ft.NominalLen, ctx.Unit)
	if err != nil {
		return err
	}
	for i, elem := range vals {
		sub := *ctx
		sub.Index = i
		if err := ft.Write(&sub, elem); err != nil {
			return err
		}
	}
	return nil
}

func bulkReadFunc(ft *device.FileType) device.ReadFunc {
	if ft.BulkRead != nil {
		return ft.BulkRead
	}
	return ft.Read
}

func bulkWriteFunc(ft *device.FileType) device.WriteFunc {
	if ft.BulkWrite != nil {
		return ft.BulkWrite
	}
	return ft.Write
}

// readAggregate handles one bulk op (ALL) and read-modify-write
// (single element) over a device whose elements are only ever
// fetched or stored together (spec.md §4.6 bullets 3-4). The bulk
// handler exchanges the whole array's canonical text in Value.Bytes,
// mirroring format.RenderArray/ParseArray's own wire convention.
func readAggregate(ctx *device.OpContext, ft *device.FileType, agg *device.Aggregate, ext int) (string, error) {
	bulkRead := bulkReadFunc(ft)
	if bulkRead == nil {
		return "", errcode.EROFS
	}
	sub := *ctx
	sub.Index = pathname.ExtAll
	bulk, err := bulkRead(&sub)
	if err != nil {
		return "", err
	}
	if ext == pathname.ExtAll {
		return string(bulk.Bytes), nil
	}
	if ext < 0 {
		return "", errcode.EINVAL
	}
	vals, err := format.ParseArray(ft.Format, string(bulk.Bytes), agg.Elements, ft.NominalLen, ctx.Unit)
	if err != nil {
		return "", err
	}
	if ext >= len(vals) {
		return "", errcode.ERANGE
	}
	return format.Render(ft.Format, vals[ext], ctx.Unit)
}

func writeAggregate(ctx *device.OpContext, ft *device.FileType, agg *device.Aggregate, ext int, raw string) error {
	bulkWrite := bulkWriteFunc(ft)
	if bulkWrite == nil {
		return errcode.EROFS
	}

	if ext == pathname.ExtAll {
		sub := *ctx
		sub.Index = pathname.ExtAll
		return bulkWrite(&sub, format.Value{Bytes: []byte(raw)})
	}
	if ext < 0 {
		return errcode.EINVAL
	}

	// Mixed storage: a single element goes through the narrower
	// per-element handler when the FileType has one.
	if agg.Storage == device.StorageMixed && ft.Write != nil {
		if ext >= agg.Elements {
			return errcode.ERANGE
		}
		elem, err := format.Parse(ft.Format, raw, ctx.Unit)
		if err != nil {
			return err
		}
		sub := *ctx
		sub.Index = ext
		return ft.Write(&sub, elem)
	}

	// Read-modify-write: the bulk read handler is mandatory here
	// (spec.md §4.6, "fails with read-only if the bulk read handler is
	// absent").
	bulkRead := bulkReadFunc(ft)
	if bulkRead == nil {
		return errcode.EROFS
	}
	sub := *ctx
	sub.Index = pathname.ExtAll
	bulk, err := bulkRead(&sub)
	if err != nil {
		return err
	}
	vals, err := format.ParseArray(ft.Format, string(bulk.Bytes), agg.Elements, ft.NominalLen, ctx.Unit)
	if err != nil {
		return err
	}
	if ext >= len(vals) {
		return errcode.ERANGE
	}
	elem, err := format.Parse(ft.Format, raw, ctx.Unit)
	if err != nil {
		return err
	}
	vals[ext] = elem
	packed, err := format.RenderArray(ft.Format, vals, ft.NominalLen, ctx.Unit)
	if err != nil {
		return err
	}
	sub2 := *ctx
	sub2.Index = pathname.ExtAll
	return bulkWrite(&sub2, format.Value{Bytes: []byte(packed)})
}

// readBitfield: the ALL view is an array of yesno bits, the BYTE view
// is the packed unsigned, a numbered extension is one bit (spec.md
// §4.6 bullet 5). The bulk handler exchanges the packed bits as a
// single unsigned integer in Value.UInt.
func readBitfield(ctx *device.OpContext, ft *device.FileType, agg *device.Aggregate, ext int) (string, error) {
	bulkRead := bulkReadFunc(ft)
	if bulkRead == nil {
		return "", errcode.EROFS
	}
	sub := *ctx
	sub.Index = pathname.ExtAll
	bulk, err := bulkRead(&sub)
	if err != nil {
		return "", err
	}

	switch {
	case ext == pathname.ExtByte:
		return format.Render(format.Unsigned, format.Value{UInt: bulk.UInt}, ctx.Unit)
	case ext == pathname.ExtAll:
		bits := make([]format.Value, agg.Elements)
		for i := range bits {
			bits[i] = format.Value{Bool: bulk.UInt&(1<<uint(i)) != 0}
		}
		return format.RenderArray(format.YesNo, bits, 1, ctx.Unit)
	case ext >= 0 && ext < agg.Elements:
		return format.Render(format.YesNo, format.Value{Bool: bulk.UInt&(1<<uint(ext)) != 0}, ctx.Unit)
	default:
		return "", errcode.ERANGE
	}
}

func writeBitfield(ctx *device.OpContext, ft *device.FileType, agg *device.Aggregate, ext int, raw string) error {
	bulkWrite := bulkWriteFunc(ft)
	if bulkWrite == nil {
		return errcode.EROFS
	}

	if ext == pathname.ExtByte {
		v, err := format.Parse(format.Unsigned, raw, ctx.Unit)
		if err != nil {
			return err
		}
		sub := *ctx
		sub.Index = pathname.ExtAll
		return bulkWrite(&sub, format.Value{UInt: v.UInt})
	}

	bulkRead := bulkReadFunc(ft)
	if bulkRead == nil {
		return errcode.EROFS
	}
	sub := *ctx
	sub.Index = pathname.ExtAll
	bulk, err := bulkRead(&sub)
	if err != nil {
		return err
	}

	switch {
	case ext == pathname.ExtAll:
		bits, err := format.ParseArray(format.YesNo, raw, agg.Elements, 1, ctx.Unit)
		if err != nil {
			return err
		}
		packed := bulk.UInt
		for i, b := range bits {
			if b.Bool {
				packed |= 1 << uint(i)
			} else {
				packed &^= 1 << uint(i)
			}
		}
		sub2 := *ctx
		sub2.Index = pathname.ExtAll
		return bulkWrite(&sub2, format.Value{UInt: packed})
	case ext >= 0 && ext < agg.Elements:
		v, err := format.Parse(format.YesNo, raw, ctx.Unit)
		if err != nil {
			return err
		}
		packed := bulk.UInt
		if v.Bool {
			packed |= 1 << uint(ext)
		} else {
			packed &^= 1 << uint(ext)
		}
		sub2 := *ctx
		sub2.Index = pathname.ExtAll
		return bulkWrite(&sub2, format.Value{UInt: packed})
	default:
		return errcode.ERANGE
	}
}
