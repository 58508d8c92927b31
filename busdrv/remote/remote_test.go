package remote

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jangala-dev/owgo/errcode"
	"github.com/stretchr/testify/require"
)

// fakeServer answers exactly one request using the wire format this
// package speaks, so the test never needs a real owgo remote instance.
func fakeServer(t *testing.T, conn net.Conn, status int32, payload []byte) {
	t.Helper()
	hdr := make([]byte, headerLen)
	_, err := io.ReadFull(conn, hdr)
	require.NoError(t, err)
	pathLen := binary.BigEndian.Uint32(hdr[4:8])
	payloadLen := binary.BigEndian.Uint32(hdr[16:20])
	if pathLen > 0 {
		_, err := io.ReadFull(conn, make([]byte, pathLen))
		require.NoError(t, err)
	}
	if payloadLen > 0 {
		_, err := io.ReadFull(conn, make([]byte, payloadLen))
		require.NoError(t, err)
	}

	resp := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(resp[0:4], uint32(status))
	binary.BigEndian.PutUint32(resp[4:8], uint32(len(payload)))
	copy(resp[8:], payload)
	_, err = conn.Write(resp)
	require.NoError(t, err)
}

func newPipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	return &Client{conn: client, r: bufio.NewReader(client)}, server
}

func TestClient_ReadSuccess(t *testing.T) {
	c, server := newPipeClient(t)
	defer server.Close()

	go fakeServer(t, server, 0, []byte("23.8"))

	got, err := c.Read("/10.AABBCCDDEEFF/temperature", 32, 0)
	require.NoError(t, err)
	require.Equal(t, "23.8", string(got))
}

func TestClient_ReadErrnoMapsToCode(t *testing.T) {
	c, server := newPipeClient(t)
	defer server.Close()

	go fakeServer(t, server, -2, nil)

	_, err := c.Read("/missing", 32, 0)
	require.ErrorIs(t, err, errcode.ENOENT)
}

func TestClient_DirSplitsLines(t *testing.T) {
	c, server := newPipeClient(t)
	defer server.Close()

	go fakeServer(t, server, 0, []byte("10.AABBCCDDEEFF\n28.1122334455FF\n"))

	names, err := c.Dir("/")
	require.NoError(t, err)
	require.Equal(t, []string{"10.AABBCCDDEEFF", "28.1122334455FF"}, names)
}

func TestClient_PresentFalseOnNoDevice(t *testing.T) {
	c, server := newPipeClient(t)
	defer server.Close()

	go fakeServer(t, server, -19, nil)

	ok, err := c.Present("/10.AABBCCDDEEFF")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClient_WriteReturnsBytesWritten(t *testing.T) {
	c, server := newPipeClient(t)
	defer server.Close()

	respHdr := make([]byte, 8)
	go func() {
		hdr := make([]byte, headerLen)
		io.ReadFull(server, hdr)
		pathLen := binary.BigEndian.Uint32(hdr[4:8])
		payloadLen := binary.BigEndian.Uint32(hdr[16:20])
		io.ReadFull(server, make([]byte, pathLen))
		io.ReadFull(server, make([]byte, payloadLen))
		binary.BigEndian.PutUint32(respHdr[0:4], 0)
		binary.BigEndian.PutUint32(respHdr[4:8], uint32(payloadLen))
		server.Write(respHdr)
	}()

	n, err := c.Write("/28.AABBCCDDEE53/PIO", []byte{0x01}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDial_RefusedConnection(t *testing.T) {
	_, err := Dial("127.0.0.1:1", 200*time.Millisecond)
	require.Error(t, err)
}
