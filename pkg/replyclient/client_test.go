// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package replyclient

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts one connection, writes banner, then runs handle
// against the accepted connection's reader/writer for the rest of the
// exchange.
func fakeServer(t *testing.T, banner string, handle func(conn net.Conn, r *bufio.Reader)) (host string, port int, done chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().(*net.TCPAddr)
	done = make(chan struct{})

	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte(banner))
		if handle != nil {
			handle(conn, bufio.NewReader(conn))
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return addr.IP.String(), addr.Port, done
}

func TestConnectSucceedsOn220Banner(t *testing.T) {
	host, port, done := fakeServer(t, "220 afdmon ready\r\n", nil)

	c := New(2 * time.Second)
	require.NoError(t, c.Connect(host, port, false, false))
	c.Quit()
	<-done
}

func TestConnectFailsOnUnexpectedBanner(t *testing.T) {
	host, port, done := fakeServer(t, "421 busy\r\n", nil)

	c := New(2 * time.Second)
	err := c.Connect(host, port, false, false)
	assert.Error(t, err)
	<-done
}

func TestCommandAndReadReplyLine(t *testing.T) {
	host, port, done := fakeServer(t, "220 ready\r\n", func(conn net.Conn, r *bufio.Reader) {
		line, _ := r.ReadString('\n')
		if line == "STAT\r\n" {
			conn.Write([]byte("211 amg=running fd=running\r\n"))
		}
	})

	c := New(2 * time.Second)
	require.NoError(t, c.Connect(host, port, false, false))

	require.NoError(t, c.Command("STAT"))
	code, line, err := c.ReadReplyLine()
	require.NoError(t, err)
	assert.Equal(t, 211, code)
	assert.Contains(t, line, "amg=running")

	c.Quit()
	<-done
}

func TestReadReplySkipsMultilineContinuation(t *testing.T) {
	host, port, done := fakeServer(t, "220 ready\r\n", func(conn net.Conn, r *bufio.Reader) {
		r.ReadString('\n') // consume the command
		conn.Write([]byte("211-partial\r\n211 done\r\n"))
	})

	c := New(2 * time.Second)
	require.NoError(t, c.Connect(host, port, false, false))
	require.NoError(t, c.Command("STAT"))

	code, err := c.ReadReply()
	require.NoError(t, err)
	assert.Equal(t, 211, code)

	c.Quit()
	<-done
}

func TestCheckReply(t *testing.T) {
	assert.True(t, CheckReply(221, 221, 421))
	assert.True(t, CheckReply(421, 221, 421))
	assert.False(t, CheckReply(200, 221, 421))
}

func TestCommandRejectsOverlongLine(t *testing.T) {
	c := New(time.Second)
	c.conn = &net.TCPConn{} // present but unused; Command checks length before writing
	long := make([]byte, MaxRetMsgLength+10)
	for i := range long {
		long[i] = 'a'
	}
	err := c.Command(string(long))
	assert.Error(t, err)
}

func TestQuitOnUnconnectedClientIsNoOp(t *testing.T) {
	c := New(time.Second)
	assert.NoError(t, c.Quit())
}

func TestConnectInvalidHostReturnsDialError(t *testing.T) {
	c := New(200 * time.Millisecond)
	err := c.Connect("127.0.0.1", freePort(t), false, false)
	assert.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}
