package txn

import "github.com/jangala-dev/owgo/errcode"

// 1-Wire CRC-8, polynomial x^8 + x^5 + x^4 + 1 (0x8C reflected), as used
// to validate ROM IDs and scratchpad reads. No ecosystem library in the
// examples pack models this exact reflected polynomial, so it is
// hand-rolled as a lookup-free bit loop, matching the teacher's own
// preference for small allocation-free byte routines (x/conv).
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

// verifyCRC8 checks that the last byte of window is the CRC-8 of the
// preceding n-1 bytes.
func verifyCRC8(window []byte, n int) error {
	if n <= 1 || n > len(window) {
		return errcode.EINVAL
	}
	window = window[len(window)-n:]
	got := window[n-1]
	want := crc8(window[:n-1])
	if got != want {
		return errcode.ECRC
	}
	return nil
}

// 1-Wire CRC-16, polynomial x^16 + x^15 + x^2 + 1, used by paged-memory
// devices (e.g. DS2433) for block reads/writes.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		d := uint16(b)
		for i := 0; i < 8; i++ {
			mix := byte((crc ^ d) & 0x01)
			crc >>= 1
			if mix != 0 {
				crc ^= 0xA001
			}
			d >>= 1
		}
	}
	return crc
}

// verifyCRC16 checks that the last 2 bytes of window (little-endian,
// complemented per the 1-Wire convention) validate the preceding n-2 bytes.
func verifyCRC16(window []byte, n int) error {
	if n <= 2 || n > len(window) {
		return errcode.EINVAL
	}
	window = window[len(window)-n:]
	got := uint16(window[n-2]) | uint16(window[n-1])<<8
	want := ^crc16(window[:n-2])
	if got != want {
		return errcode.ECRC
	}
	return nil
}
