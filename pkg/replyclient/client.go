// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package replyclient implements component A: a reply-code TCP/TLS
// client (220/221/421/211-style) shared by the monitor and log
// multiplexer workers (§4.A).
package replyclient

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/stratastor/afdmon/pkg/errors"
)

// MaxRetMsgLength bounds a single reply line, mirroring the
// fixed-size read buffer of the original protocol.
const MaxRetMsgLength = 4096

// TimeoutFlag tracks the sticky sentinel state described in §4.A: a
// timed-out read should not be retried by quit().
type TimeoutFlag int

const (
	TimeoutOff TimeoutFlag = iota
	TimeoutOn
	TimeoutConnReset
	TimeoutNeither
)

// Client is a single TCP/TLS reply-code connection. It is not safe
// for concurrent use; each monitor/log worker owns exactly one.
type Client struct {
	host string
	port int

	conn      net.Conn
	tlsConn   *tls.Conn
	tlsActive bool
	reader    *bufio.Reader

	tcpTimeout      time.Duration
	sendingLogdata  bool
	timeoutFlag     TimeoutFlag
	tlsDowngraded   bool
	lastErrMessage  string
}

// New creates an unconnected Client with the given TCP I/O deadline.
func New(tcpTimeout time.Duration) *Client {
	return &Client{tcpTimeout: tcpTimeout}
}

// Connect resolves host, dials, optionally negotiates TLS, and reads
// the initial banner, succeeding iff its code is 220. sendingLogdata
// requests keepalive + a throughput-oriented socket profile (used by
// the log multiplexer); encrypt requests a TLS handshake that may
// transparently downgrade to cleartext on a later read (§4.A S6).
func (c *Client) Connect(host string, port int, sendingLogdata, encrypt bool) error {
	c.host, c.port = host, port
	c.sendingLogdata = sendingLogdata

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.tcpTimeout}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(err, errors.ReplyClientDialFailed).WithMetadata("addr", addr)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
		if sendingLogdata {
			tc.SetKeepAlivePeriod(30 * time.Second)
			tc.SetNoDelay(false) // favor throughput over latency for bulk log data
		} else {
			tc.SetNoDelay(true) // favor latency for the short command/reply exchanges
		}
	}

	c.conn = conn

	if encrypt {
		tlsConn := tls.Client(conn, &tls.Config{
			InsecureSkipVerify: true, // peer verification is informational only, never a reject (§4.A)
			MinVersion:         tls.VersionTLS12,
		})
		tlsConn.SetDeadline(time.Now().Add(c.tcpTimeout))
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return errors.Wrap(err, errors.ReplyClientDialFailed).WithMetadata("phase", "tls_handshake")
		}
		c.tlsConn = tlsConn
		c.tlsActive = true
		c.reader = bufio.NewReaderSize(tlsConn, MaxRetMsgLength)
	} else {
		c.reader = bufio.NewReaderSize(conn, MaxRetMsgLength)
	}

	code, err := c.ReadReply()
	if err != nil {
		return err
	}
	if code != 220 {
		return errors.New(errors.ReplyClientUnexpectedCode, fmt.Sprintf("expected 220 banner, got %d", code))
	}
	return nil
}

// Command formats and writes a single CRLF-terminated line.
func (c *Client) Command(format string, args ...interface{}) error {
	line := fmt.Sprintf(format, args...)
	if len(line)+2 > MaxRetMsgLength {
		return errors.New(errors.ReplyClientBadReply, "command line exceeds MAX_RET_MSG_LENGTH")
	}

	c.setDeadline()
	_, err := c.writer().Write([]byte(line + "\r\n"))
	if err != nil {
		c.noteIOError(err)
		return errors.Wrap(err, errors.ReplyClientTimeout)
	}
	return nil
}

// ReadMsg returns exactly one CRLF-delimited line, not including the
// terminator. A bare '\n' is not accepted as a terminator.
func (c *Client) ReadMsg() (string, error) {
	c.setDeadline()

	line, err := c.readCRLFLine()
	if err != nil {
		if isTLSProtocolError(err) && c.tlsActive && !c.tlsDowngraded {
			// §4.A S6: tolerate a remote that downgrades after the
			// handshake by retrying the same read in cleartext, once.
			if derr := c.downgradeToCleartext(); derr == nil {
				line, err = c.readCRLFLine()
			}
		}
	}
	if err != nil {
		c.noteIOError(err)
		return "", errors.Wrap(err, errors.ReplyClientTimeout)
	}
	return line, nil
}

// ReadReply repeatedly calls ReadMsg, discarding lines that are not
// exactly three digits followed by a non-dash, then decodes the
// leading three digits.
func (c *Client) ReadReply() (int, error) {
	for {
		line, err := c.ReadMsg()
		if err != nil {
			return 0, err
		}
		if len(line) < 4 {
			continue
		}
		if !isDigit(line[0]) || !isDigit(line[1]) || !isDigit(line[2]) {
			continue
		}
		if line[3] == '-' {
			continue // multi-line reply continuation marker, keep reading
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			continue
		}
		return code, nil
	}
}

// ReadReplyLine skips lines that do not start with three digits and
// returns the code together with the raw reply line. Unlike ReadReply
// it does not skip "NNN-" continuation lines, since the log
// multiplexer needs to inspect the "211-" banner and any trailing
// bytes that must be pre-buffered (§4.G).
func (c *Client) ReadReplyLine() (int, string, error) {
	for {
		line, err := c.ReadMsg()
		if err != nil {
			return 0, "", err
		}
		if len(line) < 3 || !isDigit(line[0]) || !isDigit(line[1]) || !isDigit(line[2]) {
			continue
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			continue
		}
		return code, line, nil
	}
}

// CheckReply reports whether code is one of the expected set.
func CheckReply(code int, expected ...int) bool {
	for _, e := range expected {
		if code == e {
			return true
		}
	}
	return false
}

// Quit sends QUIT\r\n and accepts 221 or 421, then shuts the
// connection down gracefully. It is idempotent and skips the reply
// read entirely when the sticky timeout flag is already set, to avoid
// a second timeout on an already-broken connection.
func (c *Client) Quit() error {
	if c.conn == nil {
		return nil
	}
	defer c.closeConn()

	if c.timeoutFlag == TimeoutOn {
		return nil
	}

	if err := c.Command("QUIT"); err != nil {
		return nil // best-effort; connection is going away regardless
	}

	code, err := c.ReadReply()
	if err == nil && !CheckReply(code, 221, 421) {
		c.lastErrMessage = fmt.Sprintf("unexpected QUIT reply %d", code)
	}

	if c.tlsConn != nil {
		c.tlsConn.Close() // double-shutdown semantics handled by crypto/tls internally
	}
	return nil
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.tlsConn = nil
	c.tlsActive = false
}

func (c *Client) writer() net.Conn {
	if c.tlsActive {
		return c.tlsConn
	}
	return c.conn
}

func (c *Client) setDeadline() {
	if c.conn != nil {
		c.conn.SetDeadline(time.Now().Add(c.tcpTimeout))
	}
}

func (c *Client) readCRLFLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			s := sb.String()
			if strings.HasSuffix(s, "\r") {
				return s[:len(s)-1], nil
			}
			// Bare \n without \r is not a valid terminator (§4.A);
			// treat it as ordinary payload and keep reading.
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte(b)
		if sb.Len() > MaxRetMsgLength {
			return "", fmt.Errorf("reply line exceeds MAX_RET_MSG_LENGTH")
		}
	}
}

func (c *Client) downgradeToCleartext() error {
	c.tlsDowngraded = true
	c.tlsActive = false
	c.tlsConn = nil
	c.reader = bufio.NewReaderSize(c.conn, MaxRetMsgLength)
	return nil
}

func (c *Client) noteIOError(err error) {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		c.timeoutFlag = TimeoutOn
	} else if strings.Contains(err.Error(), "connection reset") {
		c.timeoutFlag = TimeoutConnReset
	}
	c.lastErrMessage = err.Error()
}

// LastError returns the last I/O error message recorded on this
// client, for inclusion in a worker's structured log record.
func (c *Client) LastError() string { return c.lastErrMessage }

// ReadByte reads a single raw byte off the stream, used by the log
// multiplexer's frame parser once past the initial reply-code
// handshake (§4.G frame grammar is binary, not line-oriented).
func (c *Client) ReadByte() (byte, error) {
	b, err := c.reader.ReadByte()
	if err != nil {
		c.noteIOError(err)
	}
	return b, err
}

// Peek returns, without consuming, the next n buffered bytes (or
// fewer at EOF), used by the frame parser to check for a full header
// before committing to read it (§4.G "compact and return, requesting
// more bytes").
func (c *Client) Peek(n int) ([]byte, error) {
	return c.reader.Peek(n)
}

// Discard consumes n bytes already inspected via Peek.
func (c *Client) Discard(n int) (int, error) {
	return c.reader.Discard(n)
}

// SetIdleDeadline overrides the connection's read deadline to d from
// now, used by long-lived streaming sessions (the log multiplexer)
// whose idle timeout differs from the short command/reply tcpTimeout.
func (c *Client) SetIdleDeadline(d time.Duration) {
	if c.conn != nil {
		c.conn.SetReadDeadline(time.Now().Add(d))
	}
}

func isTLSProtocolError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "tls")
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
