package device

import (
	"context"

	"github.com/jangala-dev/owgo/format"
	"github.com/jangala-dev/owgo/pathname"
	"github.com/jangala-dev/owgo/txn"
)

// OpContext is handed to a FileType's Read/Write handler: everything
// it needs to run a Transaction against the bound bus, without
// reaching back into the dispatcher (spec.md §4.8, "invokes the
// FileType's read handler, which issues a Transaction").
type OpContext struct {
	Ctx    context.Context
	Name   pathname.Name // bound (BoundToBus == true)
	Driver txn.Driver
	// Index is the concrete element index for a per-element
	// read/write, or -1 when the handler is invoked for a bulk
	// (aggregate) operation.
	Index int
	// Unit is the external scale Temperature/TempGap properties are
	// rendered/parsed in (spec.md §4.5, supplemented by the
	// units.temperature_scale setting). Device handlers never see it:
	// they always read/write internal Celsius; the aggregate engine
	// applies it at the format.Render/Parse boundary only.
	Unit format.TempUnit
}

// Run is a convenience wrapper so handlers don't import txn directly
// for the common case.
func (c *OpContext) Run(program txn.Program) error {
	return txn.Run(c.Ctx, c.Driver, program)
}
