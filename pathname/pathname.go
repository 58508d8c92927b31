// Package pathname parses and represents the textual 1-Wire path
// grammar (spec.md §4.1) into an immutable Name value.
package pathname

import (
	"strconv"
	"strings"

	"github.com/jangala-dev/owgo/errcode"
)

// Namespace selects which subtree of the façade a Name refers to.
type Namespace int

const (
	NSReal Namespace = iota
	NSSystem
	NSStatistics
	NSSettings
	NSStructure
)

// No-extension / virtual-extension sentinels (spec.md §3, ParsedName.extension).
const (
	ExtNone = -3 // property carries no aggregate extension
	ExtAll  = -1
	ExtByte = -2
)

// Name is the immutable handle produced by Parse. It is never mutated
// in place; Rebind returns a new value (spec.md §9 REDESIGN FLAG on the
// original's shallow-copied, in-place-mutated parsedname).
type Name struct {
	Path string

	Namespace Namespace

	// Device addressing. HasDevice is false for namespace/bus/root paths.
	HasDevice bool
	Family    byte
	Serial    [6]byte // 6 data bytes of the ROM ID, MSB first as parsed

	// Property addressing. HasProperty is false when the path names a
	// device directory only.
	HasProperty  bool
	Property     string
	HasExtension bool
	Extension    int // ExtAll, ExtByte, or a concrete index >= 0

	// Bus binding.
	BusNr      int // -1 if unresolved
	BoundToBus bool

	// Flags.
	Uncached     bool
	Simultaneous bool
}

// Rebind returns a copy of n bound to the given bus index. The
// receiver is left untouched.
func (n Name) Rebind(bus int) Name {
	n.BusNr = bus
	n.BoundToBus = true
	return n
}

// SerialID packs Family (top byte) and the 6 serial bytes into a
// single uint64, suitable as a presence-cache / lock-manager / ROM-
// addressing key: serial numbers are only guaranteed unique within a
// family, so the key must carry both (spec.md GLOSSARY, "ROM ID").
func (n Name) SerialID() uint64 {
	v := uint64(n.Family)
	for _, b := range n.Serial {
		v = v<<8 | uint64(b)
	}
	return v
}

// SplitSerialID is the inverse of SerialID: it recovers the family
// byte and 6 serial bytes from a packed key.
func SplitSerialID(id uint64) (family byte, serial [6]byte) {
	family = byte(id >> 48)
	for i := 5; i >= 0; i-- {
		serial[i] = byte(id)
		id >>= 8
	}
	return family, serial
}

// DeviceKey uniquely identifies a physical device across the whole
// inbound chain: family byte plus 6-byte serial.
type DeviceKey struct {
	Family byte
	Serial [6]byte
}

func (n Name) DeviceKey() DeviceKey { return DeviceKey{Family: n.Family, Serial: n.Serial} }

// crc8 validates a 12-hex-digit ROM ID's trailing CRC-8 byte, per the
// 1-Wire ROM layout (family + 6 data bytes + CRC, spec.md GLOSSARY).
// The polynomial matches txn.crc8 exactly; duplicated here (rather than
// importing txn) to keep pathname a pure, I/O-free leaf package, per
// spec.md §4.1 ("The parser never performs I/O").
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		d := b
		for i := 0; i < 8; i++ {
			mix := (crc ^ d) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			d >>= 1
		}
	}
	return crc
}

func hexByte(s string) (byte, bool) {
	if len(s) != 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// Parse resolves path into a Name, or returns errcode.EINVAL
// (malformed hex, serial length or CRC), per spec.md §4.1. An
// unrecognised first segment is parsed as a device segment, so Parse
// never returns errcode.ENOENT.
func Parse(path string) (Name, error) {
	n := Name{Path: path, BusNr: -1, Extension: ExtNone}

	segs := splitPath(path)
	if len(segs) == 0 {
		return n, nil // root
	}

	i := 0

	// Optional /bus.N/ restriction.
	if rest, busNr, ok := matchBus(segs[i]); ok {
		n.BusNr = busNr
		n.BoundToBus = true
		_ = rest
		i++
		if i >= len(segs) {
			return n, nil
		}
	}

	switch strings.ToLower(segs[i]) {
	case "system":
		n.Namespace = NSSystem
		i++
		return parseNamespaceTail(n, segs, i)
	case "statistics":
		n.Namespace = NSStatistics
		i++
		return parseNamespaceTail(n, segs, i)
	case "settings":
		n.Namespace = NSSettings
		i++
		return parseNamespaceTail(n, segs, i)
	case "structure":
		n.Namespace = NSStructure
		i++
		return parseStructureTail(n, segs, i)
	case "alarm":
		// The reserved `alarm` first-segment parses like a bare device
		// path (spec.md §4.1): this repo has no bus-level device search
		// primitive (Non-goals: "Netlink w1 enumeration"), so there is no
		// alarm-search ROM command to narrow a directory listing against.
		// `/alarm/<dev>/<prop>` addresses the named device directly, same
		// as omitting the prefix (SPEC_FULL.md Non-goals).
		i++
		return parseDeviceTail(n, segs, i)
	case "simultaneous":
		// The simultaneous pseudo-device broadcasts to every device on
		// a bus rather than addressing one by ROM ID, so its tail is a
		// bare property name, not a "<family>.<serial>" segment
		// (spec.md §4.1, "simultaneous" reserved first-segment).
		n.Simultaneous = true
		i++
		return parseNamespaceTail(n, segs, i)
	case "uncached":
		n.Uncached = true
		i++
		if i >= len(segs) {
			return n, nil
		}
		return parseDeviceTail(n, segs, i)
	default:
		return parseDeviceTail(n, segs, i)
	}
}

func parseNamespaceTail(n Name, segs []string, i int) (Name, error) {
	if i >= len(segs) {
		return n, nil
	}
	prop, ext, hasExt, err := splitExtension(segs[i])
	if err != nil {
		return n, err
	}
	n.HasProperty = true
	n.Property = prop
	n.HasExtension = hasExt
	if hasExt {
		n.Extension = ext
	}
	return n, nil
}

// parseStructureTail parses "/structure/<family-hex>/<prop>[.ext]".
// Structure entries describe a device *class* (the FileType list), not
// a bound instance, so no serial or CRC is present (spec.md §4.8,
// "dir(path) enumerates ... the FileType list of a device").
func parseStructureTail(n Name, segs []string, i int) (Name, error) {
	if i >= len(segs) {
		return n, nil
	}
	f, ok := hexByte(segs[i])
	if !ok {
		return n, errcode.EINVAL
	}
	n.HasDevice = true
	n.Family = f
	i++
	if i >= len(segs) {
		return n, nil
	}
	prop, ext, hasExt, err := splitExtension(segs[i])
	if err != nil {
		return n, err
	}
	n.HasProperty = true
	n.Property = prop
	n.HasExtension = hasExt
	if hasExt {
		n.Extension = ext
	}
	return n, nil
}

func parseDeviceTail(n Name, segs []string, i int) (Name, error) {
	if i >= len(segs) {
		return n, nil
	}

	seg := segs[i]
	if strings.EqualFold(seg, "uncached") {
		n.Uncached = true
		i++
		if i >= len(segs) {
			return n, nil
		}
		seg = segs[i]
	}

	fam, serial, uncachedFlag, err := parseDeviceSeg(seg)
	if err != nil {
		return n, err
	}
	n.HasDevice = true
	n.Family = fam
	n.Serial = serial
	if uncachedFlag {
		n.Uncached = true
	}
	i++

	if i >= len(segs) {
		return n, nil
	}
	prop, ext, hasExt, err := splitExtension(segs[i])
	if err != nil {
		return n, err
	}
	n.HasProperty = true
	n.Property = prop
	n.HasExtension = hasExt
	if hasExt {
		n.Extension = ext
	}
	return n, nil
}

// parseDeviceSeg parses "<FF>.<SERIAL12>[.uncached]" case-insensitively.
func parseDeviceSeg(seg string) (fam byte, serial [6]byte, uncached bool, err error) {
	parts := strings.Split(seg, ".")
	if len(parts) < 2 {
		return 0, serial, false, errcode.EINVAL
	}
	famPart := parts[0]
	idPart := parts[1]

	if len(parts) >= 3 && strings.EqualFold(parts[2], "uncached") {
		uncached = true
	}

	f, ok := hexByte(famPart)
	if !ok {
		return 0, serial, false, errcode.EINVAL
	}

	// The id must be exactly 12 hex digits (6 bytes); all 6, the CRC
	// byte included, are kept as Serial.
	if len(idPart) != 12 {
		return 0, serial, false, errcode.EINVAL
	}
	var data [6]byte
	for i := 0; i < 6; i++ {
		b, ok := hexByte(idPart[i*2 : i*2+2])
		if !ok {
			return 0, serial, false, errcode.EINVAL
		}
		data[i] = b
	}

	// Canonical encoding: family byte + 12 hex digits, CRC-8 as the last
	// byte of those 12 digits (spec.md §6). Validate unless the path
	// carries the "uncached" flag.
	if !uncached {
		rom := append([]byte{f}, data[:5]...)
		if crc8(rom) != data[5] {
			return 0, serial, false, errcode.EINVAL
		}
	}

	return f, data, uncached, nil
}

// splitExtension splits "name.ext" into the property name and parsed
// extension (spec.md §4.1: decimal integer, a..z -> 0..25, ALL -> -1,
// BYTE -> -2).
func splitExtension(seg string) (prop string, ext int, has bool, err error) {
	idx := strings.LastIndex(seg, ".")
	if idx < 0 {
		return seg, ExtNone, false, nil
	}
	prop = seg[:idx]
	tail := seg[idx+1:]

	switch strings.ToUpper(tail) {
	case "ALL":
		return prop, ExtAll, true, nil
	case "BYTE":
		return prop, ExtByte, true, nil
	}
	if len(tail) == 1 && tail[0] >= 'a' && tail[0] <= 'z' {
		return prop, int(tail[0] - 'a'), true, nil
	}
	if len(tail) == 1 && tail[0] >= 'A' && tail[0] <= 'Z' {
		return prop, int(tail[0] - 'A'), true, nil
	}
	if v, convErr := strconv.Atoi(tail); convErr == nil && v >= 0 {
		return prop, v, true, nil
	}
	// Not a recognised extension: the whole segment, dots included, is
	// the property name (e.g. "pages.page" or "cache_ttl.volatile").
	// splitExtension never reports an error.
	return seg, ExtNone, false, nil
}

func matchBus(seg string) (rest string, busNr int, ok bool) {
	if !strings.HasPrefix(strings.ToLower(seg), "bus.") {
		return "", -1, false
	}
	n, err := strconv.Atoi(seg[len("bus."):])
	if err != nil || n < 0 {
		return "", -1, false
	}
	return "", n, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
