// Package format implements the textual <-> typed value conversion
// layer (spec.md §4.5). Format is a closed sum type dispatched by a
// type switch / array index rather than a per-format function-pointer
// table (spec.md §9 REDESIGN FLAG).
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jangala-dev/owgo/errcode"
)

// Format enumerates the textual encodings spec.md §4.5 names.
type Format int

const (
	YesNo Format = iota
	Integer
	Unsigned
	Bitfield
	Float
	Temperature
	TempGap
	Date
	ASCII
	Binary
)

// Value is a typed property value. Exactly one field is meaningful,
// selected by the Format that produced it; Bytes holds ASCII/Binary
// payloads.
type Value struct {
	Bool  bool
	Int   int64
	UInt  uint64
	Float float64
	Time  time.Time
	Bytes []byte
}

// Render converts a single Value to its canonical textual form. unit
// selects the external scale Temperature/TempGap are rendered in
// (spec.md §4.5: "render after unit conversion"); internal storage is
// always Celsius, so every other format ignores unit.
func Render(f Format, v Value, unit TempUnit) (string, error) {
	switch f {
	case YesNo:
		if v.Bool {
			return "1", nil
		}
		return "0", nil
	case Integer:
		return strconv.FormatInt(v.Int, 10), nil
	case Unsigned, Bitfield:
		return strconv.FormatUint(v.UInt, 10), nil
	case Float:
		return strconv.FormatFloat(v.Float, 'g', -1, 64), nil
	case Temperature:
		return strconv.FormatFloat(ToExternal(v.Float, unit), 'g', -1, 64), nil
	case TempGap:
		return strconv.FormatFloat(GapToExternal(v.Float, unit), 'g', -1, 64), nil
	case Date:
		t := v.Time
		if t.IsZero() {
			t = time.Now()
		}
		return t.Format("Mon Jan 2 15:04:05 2006"), nil
	case ASCII:
		return string(v.Bytes), nil
	case Binary:
		return string(v.Bytes), nil
	default:
		return "", errcode.EINVAL
	}
}

// dateLayouts lists the accepted input layouts: the canonical render
// layout, the shorter %b %d %T %Y form, the render layout with an
// extra space before the day, then %c and %D %T equivalents.
var dateLayouts = []string{
	"Mon Jan 2 15:04:05 2006",
	"Jan 2 15:04:05 2006",
	"Mon Jan  2 15:04:05 2006", // one-digit day padded with a space
	time.ANSIC,
	"01/02/06 15:04:05",
}

// Parse converts textual input to a Value for a scalar (non-array)
// property. unit selects the external scale Temperature/TempGap input
// is read in before being unit-converted to internal Celsius (spec.md
// §4.5). offset handling and length vetting happen in the caller
// (spec.md §4.8 / §4.5 notes on binary/ascii offsets).
func Parse(f Format, s string, unit TempUnit) (Value, error) {
	switch f {
	case YesNo:
		b, err := parseYesNo(s)
		if err != nil {
			return Value{}, err
		}
		return Value{Bool: b}, nil
	case Integer:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, errcode.EINVAL
		}
		return Value{Int: n}, nil
	case Unsigned, Bitfield:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, errcode.EINVAL
		}
		return Value{UInt: n}, nil
	case Float:
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, errcode.EINVAL
		}
		return Value{Float: n}, nil
	case Temperature:
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, errcode.EINVAL
		}
		return Value{Float: ToInternal(n, unit)}, nil
	case TempGap:
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Value{}, errcode.EINVAL
		}
		return Value{Float: GapToInternal(n, unit)}, nil
	case Date:
		if strings.TrimSpace(s) == "" {
			return Value{Time: time.Now()}, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Value{Time: t}, nil
			}
		}
		return Value{}, errcode.EINVAL
	case ASCII, Binary:
		return Value{Bytes: []byte(s)}, nil
	default:
		return Value{}, errcode.EINVAL
	}
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "on":
		return true, nil
	case "0", "no", "off":
		return false, nil
	default:
		return false, errcode.EINVAL
	}
}

// zero returns the default Value used to pad missing trailing array
// elements (spec.md §4.5: "Missing trailing elements on input default
// to 0/0.0/false/now").
func zero(f Format) Value {
	switch f {
	case Date:
		return Value{Time: time.Now()}
	default:
		return Value{}
	}
}

// RenderArray joins elements with "," for every format except Binary,
// which concatenates fixed-width byte runs with no delimiter
// (spec.md §4.5). unit is forwarded to Render for Temperature/TempGap.
func RenderArray(f Format, vs []Value, elementWidth int, unit TempUnit) (string, error) {
	if f == Binary {
		var sb strings.Builder
		for _, v := range vs {
			b := v.Bytes
			if len(b) != elementWidth {
				padded := make([]byte, elementWidth)
				copy(padded, b)
				b = padded
			}
			sb.Write(b)
		}
		return sb.String(), nil
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		s, err := Render(f, v, unit)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ","), nil
}

// ParseArray splits s into n elements per RenderArray's own rule:
// comma-separated for every format except Binary (fixed-width
// concatenation). Missing trailing elements default per zero(f). unit
// is forwarded to Parse for Temperature/TempGap.
func ParseArray(f Format, s string, n, elementWidth int, unit TempUnit) ([]Value, error) {
	out := make([]Value, n)
	if f == Binary {
		b := []byte(s)
		for i := 0; i < n; i++ {
			lo := i * elementWidth
			hi := lo + elementWidth
			if lo >= len(b) {
				out[i] = zero(f)
				continue
			}
			if hi > len(b) {
				hi = len(b)
			}
			chunk := make([]byte, elementWidth)
			copy(chunk, b[lo:hi])
			out[i] = Value{Bytes: chunk}
		}
		return out, nil
	}

	parts := strings.Split(s, ",")
	for i := 0; i < n; i++ {
		if i >= len(parts) || strings.TrimSpace(parts[i]) == "" {
			out[i] = zero(f)
			continue
		}
		v, err := Parse(f, parts[i], unit)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// String is a debug helper, not used on the hot path.
func (f Format) String() string {
	names := [...]string{"yesno", "integer", "unsigned", "bitfield", "float", "temperature", "tempgap", "date", "ascii", "binary"}
	if int(f) < 0 || int(f) >= len(names) {
		return fmt.Sprintf("format(%d)", int(f))
	}
	return names[f]
}
