// Package remote implements the network-proxied adapter: an inbound
// bus whose "wire pulses" are actually RPCs to a remote owgo instance
// (spec.md §6, "Remote bus wire format"). The Client methods below
// issue those RPCs directly, never through txn.Program. owfs.Dispatcher
// does not call them: it runs every ConnectionIn, whatever its Type,
// through the local lockmgr/aggregate/txn pipeline.
package remote

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/jangala-dev/owgo/errcode"
)

// Opcode matches spec.md §6 exactly.
type Opcode uint32

const (
	OpRead    Opcode = 2
	OpWrite   Opcode = 3
	OpDir     Opcode = 4
	OpPresent Opcode = 6
	OpDirAll  Opcode = 7
	OpGet     Opcode = 8
)

// frame header: opcode(4) path-len(4) size(4) offset(4) payload-len(4)
const headerLen = 20

// Client is one outbound connection to a remote owgo bus proxy.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errcode.Wrap("remote.Dial", errcode.ECONNABORTED, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) roundTrip(op Opcode, path string, size, offset int32, payload []byte) (status int32, respSize int32, respPayload []byte, err error) {
	hdr := make([]byte, headerLen)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(op))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(path)))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(size))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(offset))
	binary.BigEndian.PutUint32(hdr[16:20], uint32(len(payload)))

	if _, err := c.conn.Write(hdr); err != nil {
		return 0, 0, nil, errcode.Wrap("remote.roundTrip", errcode.EIO, err)
	}
	if _, err := io.WriteString(c.conn, path); err != nil {
		return 0, 0, nil, errcode.Wrap("remote.roundTrip", errcode.EIO, err)
	}
	if len(payload) > 0 {
		if _, err := c.conn.Write(payload); err != nil {
			return 0, 0, nil, errcode.Wrap("remote.roundTrip", errcode.EIO, err)
		}
	}

	respHdr := make([]byte, 8)
	if _, err := io.ReadFull(c.r, respHdr); err != nil {
		return 0, 0, nil, errcode.Wrap("remote.roundTrip", errcode.EIO, err)
	}
	status = int32(binary.BigEndian.Uint32(respHdr[0:4]))
	respSize = int32(binary.BigEndian.Uint32(respHdr[4:8]))
	if respSize > 0 {
		respPayload = make([]byte, respSize)
		if _, err := io.ReadFull(c.r, respPayload); err != nil {
			return status, respSize, nil, errcode.Wrap("remote.roundTrip", errcode.EIO, err)
		}
	}
	return status, respSize, respPayload, nil
}

// Read issues opcode READ for path, mirroring FS_read's signature
// (spec.md §6).
func (c *Client) Read(path string, size, offset int32) ([]byte, error) {
	status, _, payload, err := c.roundTrip(OpRead, path, size, offset, nil)
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, statusCode(status)
	}
	return payload, nil
}

// Write issues opcode WRITE for path.
func (c *Client) Write(path string, data []byte, offset int32) (int, error) {
	status, respSize, _, err := c.roundTrip(OpWrite, path, int32(len(data)), offset, data)
	if err != nil {
		return 0, err
	}
	if status != 0 {
		return 0, statusCode(status)
	}
	return int(respSize), nil
}

// Dir issues opcode DIR, returning the newline-joined child list the
// remote side renders.
func (c *Client) Dir(path string) ([]string, error) {
	status, _, payload, err := c.roundTrip(OpDir, path, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, statusCode(status)
	}
	return splitLines(payload), nil
}

// Present issues opcode PRESENT.
func (c *Client) Present(path string) (bool, error) {
	status, _, _, err := c.roundTrip(OpPresent, path, 0, 0, nil)
	if err != nil {
		return false, err
	}
	return status == 0, nil
}

func splitLines(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}

// statusCode maps a remote POSIX errno (negative) back to our Code
// taxonomy; unrecognised codes fall back to a generic I/O error.
func statusCode(status int32) errcode.Code {
	switch status {
	case -2:
		return errcode.ENOENT
	case -5:
		return errcode.EIO
	case -19:
		return errcode.ENODEV
	case -22:
		return errcode.EINVAL
	case -30:
		return errcode.EROFS
	case -95:
		return errcode.ENOTSUP
	case -110:
		return errcode.ETIMEDOUT
	default:
		return errcode.Error
	}
}
