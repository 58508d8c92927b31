// Package device holds the static, process-wide registry mapping
// 1-Wire family codes to Device descriptors (spec.md §2.3, §3).
//
// The registry mirrors the teacher's services/hal/internal/core
// builder registry (register-by-name, duplicate-is-a-startup-error,
// RWMutex-guarded lookup) generalised from a string type key to a
// family-code byte key.
package device

import (
	"fmt"
	"sync"

	"github.com/jangala-dev/owgo/errcode"
	"github.com/jangala-dev/owgo/format"
)

// Class distinguishes real chips from interface/pseudo devices
// (spec.md §3, Device.class).
type Class int

const (
	ClassChip Class = iota
	ClassInterface
	ClassPseudo
)

// ChangeClass drives property-cache TTL selection (spec.md §4.7).
type ChangeClass int

const (
	ChangeStatic ChangeClass = iota
	ChangeStable
	ChangeVolatile
	ChangeAlarm
	ChangeDirectory
	ChangeSubdir
)

// Storage describes how an Aggregate's elements are stored on the wire
// (spec.md §3).
type Storage int

const (
	StorageSeparate Storage = iota
	StorageAggregate
	StorageMixed
	StorageBitfield
)

// Indexing selects numeric or lettered element addressing.
type Indexing int

const (
	IndexNumbers Indexing = iota
	IndexLetters
)

// Aggregate describes a property whose value is an ordered tuple of N
// sub-values (spec.md §3, GLOSSARY "Aggregate property").
type Aggregate struct {
	Elements int
	Index    Indexing
	Storage  Storage
}

// Validate enforces the invariants spec.md §3 states: N <= 256;
// letters indexing implies N <= 26.
func (a Aggregate) Validate() error {
	if a.Elements < 1 || a.Elements > 256 {
		return errcode.EINVAL
	}
	if a.Index == IndexLetters && a.Elements > 26 {
		return errcode.EINVAL
	}
	return nil
}

// ReadFunc reads one element (or, for an aggregate read, all elements
// packed into a single call) from the device addressed by ctx.
type ReadFunc func(ctx *OpContext) (format.Value, error)

// WriteFunc writes one element (or all elements for an aggregate
// write) to the device addressed by ctx.
type WriteFunc func(ctx *OpContext, v format.Value) error

// FileType is one property descriptor on a Device (spec.md §3).
//
// Read/Write address a single element (ctx.Index selects which one);
// BulkRead/BulkWrite address every element at once. Storage picks
// which pair the aggregate engine calls (spec.md §4.6): separate uses
// Read/Write only; aggregate and bitfield use BulkRead/BulkWrite,
// falling back to Read/Write (called with ctx.Index == -1) when the
// bulk handler is nil; mixed advertises both and the engine chooses the narrower one for
// writes, the bulk one for reads.
type FileType struct {
	Name       string
	NominalLen int
	Aggregate  *Aggregate // nil for scalar properties
	Format     format.Format
	Change     ChangeClass

	Read  ReadFunc  // nil => write-only (or bulk-only for aggregate/bitfield)
	Write WriteFunc // nil => read-only (or bulk-only for aggregate/bitfield)

	BulkRead  ReadFunc  // nil unless Aggregate.Storage is aggregate/mixed/bitfield
	BulkWrite WriteFunc // nil unless Aggregate.Storage is aggregate/mixed/bitfield

	HandlerData any
}

// Device is a static descriptor: one 1-Wire family code plus its
// ordered FileType list (spec.md §3).
type Device struct {
	Family byte
	Name   string
	Class  Class
	Files  []FileType
}

func (d *Device) FileType(name string) (*FileType, bool) {
	for i := range d.Files {
		if d.Files[i].Name == name {
			return &d.Files[i], true
		}
	}
	return nil, false
}

var (
	mu       sync.RWMutex
	registry = map[byte]*Device{}
)

// Register adds dev to the process-wide registry. Duplicate family
// codes are a startup error (spec.md §3, "Identity is the family
// code; duplicates are a startup error"), surfaced as a panic since
// registration happens at package-init time, before any request can
// be in flight -- mirrors the teacher's core.RegisterBuilder panic.
func Register(dev *Device) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[dev.Family]; exists {
		panic(fmt.Sprintf("device: duplicate family code registered: 0x%02X", dev.Family))
	}
	registry[dev.Family] = dev
}

// Lookup returns the Device for a family code, or (nil, false) if the
// family is unknown. Unknown families on a real path are not a parse
// error (spec.md §4.1); callers decide what that means for their
// operation.
func Lookup(family byte) (*Device, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := registry[family]
	return d, ok
}

// All returns a snapshot of every registered Device, used by dir("/")
// and the structure namespace.
func All() []*Device {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]*Device, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	return out
}

// reset clears the registry; test-only helper so family-code test
// fixtures don't collide across packages in the same binary.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = map[byte]*Device{}
}
