// Package errcode carries the POSIX-flavoured error taxonomy the core
// dispatcher surfaces to collaborators (spec.md §7).
package errcode

// Code is a stable, dispatcher-facing error identifier. It is a string
// newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes. Names mirror the POSIX symbols spec.md §6 lists.
const (
	OK Code = "ok"

	// Parse errors - local to the dispatcher, never retried.
	ENOENT  Code = "not_found"
	EINVAL  Code = "bad_format"
	EISDIR  Code = "is_directory"
	ENOTDIR Code = "not_directory"

	// Presence errors - router-level, cached negatively.
	ENODEV Code = "no_device"

	// Transport errors - driver-level. Of these only ECRC is retried
	// (see Retryable); EIO and ETIMEDOUT surface immediately.
	EIO       Code = "io_error"
	ETIMEDOUT Code = "timeout"
	ECRC      Code = "crc_error"

	// Contract errors - immediate, never retried.
	ENOTSUP       Code = "not_supported"
	EROFS         Code = "read_only"
	EADDRNOTAVAIL Code = "invalid_offset"
	ERANGE        Code = "out_of_range"

	// Resource errors.
	ENOMEM       Code = "no_memory"
	ECONNABORTED Code = "bus_busy"

	Error Code = "error" // generic fallback
)

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// Errno returns the negated POSIX errno value FS_read/FS_write/FS_dir
// return on failure (spec.md §6, "n | -errno").
func (c Code) Errno() int {
	switch c {
	case OK:
		return 0
	case ENOENT:
		return -2
	case EIO:
		return -5
	case ENODEV:
		return -19
	case ENOTDIR:
		return -20
	case EISDIR:
		return -21
	case EINVAL:
		return -22
	case ENOMEM:
		return -12
	case EROFS:
		return -30
	case ERANGE:
		return -34
	case ENOTSUP:
		return -95
	case EADDRNOTAVAIL:
		return -99
	case ECONNABORTED:
		return -103
	case ETIMEDOUT:
		return -110
	case ECRC:
		return -5 // surfaces as EIO; CRC is a transport-layer detail
	default:
		return -5
	}
}

// E wraps a Code with operation context and an optional cause, mirroring
// the teacher's errcode.E wrapper.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return e.Op + ": " + e.Msg
	}
	return e.Op + ": " + string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

func Wrap(op string, c Code, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// MapTxnErr maps a transaction-interpreter failure to a Code, the
// transport-layer analogue of the teacher's errcode.MapDriverErr.
func MapTxnErr(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	if e, ok := err.(*E); ok {
		return e.C
	}
	return EIO
}

// Retryable reports whether the transaction interpreter should retry
// the whole sequence (spec.md §4.4 retry policy: up to 3 attempts for
// crc-error/bus-busy; not-supported and no-device are fatal immediately).
func Retryable(c Code) bool {
	switch c {
	case ECRC, ECONNABORTED:
		return true
	default:
		return false
	}
}
