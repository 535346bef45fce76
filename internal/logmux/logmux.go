// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package logmux implements component G: the log multiplexer worker
// that consumes a remote's interleaved log streams and appends each
// kind's payload to its own rolling log file (§4.G). It is the most
// intricate worker in the controller: a small streaming parser over a
// framed wire protocol, layered on top of the reply-code client.
package logmux

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/afdmon/pkg/msa"
	"github.com/stratastor/afdmon/pkg/replyclient"
	"github.com/stratastor/logger"
)

// kindState is per-log-kind session state (§4.G "Per-kind state").
type kindState struct {
	logName          string
	lastPacketNumber uint64
	havePacket       bool
	file             *os.File
}

// ExitError carries a stable §6.4 exit code alongside the underlying
// cause, so the worker's top-level caller (cmd/serve) can translate it
// into a process exit status the supervisor's restart policy reads.
type ExitError struct {
	Code constants.ExitCode
	Err  error
}

func (e *ExitError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Err) }
func (e *ExitError) Unwrap() error { return e.Err }

// Worker owns one remote's log multiplexer session (§4.G).
type Worker struct {
	index  int
	row    *msa.Row
	store  *msa.Store
	logDir string
	l      logger.Logger

	client *replyclient.Client
	kinds  []afdconfig.LogKind
	state  map[afdconfig.LogKind]*kindState

	idleTimeout        time.Duration
	consecutiveFrameErr int
}

// New builds a Worker for the row at index, deriving the requested log
// kinds from logCapabilities (the worker process's own view of the
// entry's Options bitset, passed down by the supervisor via argv since
// a forked worker does not re-read AFD_MON_CONFIG itself).
func New(index int, row *msa.Row, store *msa.Store, rlogDir string, logCapabilities afdconfig.Options, l logger.Logger) *Worker {
	return &Worker{
		index:       index,
		row:         row,
		store:       store,
		logDir:      filepath.Join(rlogDir, row.Alias),
		l:           l,
		kinds:       logCapabilities.RequestedLogKinds(),
		state:       make(map[afdconfig.LogKind]*kindState),
		idleTimeout: idleTimeout(),
	}
}

// idleTimeout computes max(AFDD_CMD_TIMEOUT, 10 x LOG_WRITE_INTERVAL)
// (§4.G "Timeouts").
func idleTimeout() time.Duration {
	cmd := time.Duration(constants.DefaultTCPTimeoutS) * time.Second
	data := 10 * time.Duration(constants.LogWriteIntervalS) * time.Second
	if data > cmd {
		return data
	}
	return cmd
}

// Run drives one multiplexer session to completion or fatal exit
// (§4.G). A non-nil returned error is always an *ExitError carrying a
// §6.4 stable exit code.
func (w *Worker) Run(stop <-chan struct{}) error {
	if err := os.MkdirAll(w.logDir, 0755); err != nil {
		return &ExitError{constants.ExitIncorrect, errors.Wrap(err, errors.LogMuxRotationFailed)}
	}

	if err := w.loadCursors(); err != nil {
		return &ExitError{constants.ExitIncorrect, err}
	}
	defer w.closeFiles()

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := w.session(stop); err != nil {
			var exitErr *ExitError
			if errorsAs(err, &exitErr) {
				return exitErr
			}
			return &ExitError{constants.ExitIncorrect, err}
		}

		select {
		case <-stop:
			return nil
		case <-time.After(constants.RetryIntervalS * time.Second):
		}
	}
}

// loadCursors initializes the session state of each requested kind.
// It does not read the per-kind cursor files; issueLogCommand reads
// them when it builds the LOG command.
func (w *Worker) loadCursors() error {
	for _, k := range w.kinds {
		w.state[k] = &kindState{logName: logFileBaseName(k)}
	}
	return nil
}

func (w *Worker) closeFiles() {
	for _, st := range w.state {
		if st.file != nil {
			st.file.Close()
		}
	}
}

// session runs a single connect-poll-disconnect cycle: connect,
// request logs, then loop reading frames until the connection ends or
// a fatal protocol condition fires.
func (w *Worker) session(stop <-chan struct{}) error {
	w.row.ConnectStatus = msa.StatusConnecting
	w.publish()

	toggle := w.row.AfdToggle & 1
	host, port := w.row.Host[toggle], w.row.Port[toggle]

	w.client = replyclient.New(constants.DefaultTCPTimeoutS * time.Second)
	encrypt := w.row.Options.Has(afdconfig.OptEnableTLS)
	if err := w.client.Connect(host, port, true, encrypt); err != nil {
		return &ExitError{constants.ExitLogConnectError, errors.Wrap(err, errors.LogMuxConnectFailed)}
	}
	defer func() {
		w.client.Quit()
		w.row.ConnectStatus = msa.StatusDefunct
		w.publish()
	}()

	if err := w.issueLogCommand(); err != nil {
		return &ExitError{constants.ExitFailedLogCmd, err}
	}

	w.row.ConnectStatus = msa.StatusConnected
	w.publish()

	return w.readLoop(stop)
}

// issueLogCommand aggregates every requested kind into a single LOG
// line (§4.G "Session setup") and checks for the leading 211- banner.
func (w *Worker) issueLogCommand() error {
	var b strings.Builder
	b.WriteString("LOG")
	for _, k := range w.kinds {
		st := w.state[k]
		inode, logno := uint64(0), 0
		if c, err := readCursor(w.logDir, st.logName); err == nil && c != nil {
			inode, logno = c.Inode, c.LogNo
		}
		fmt.Fprintf(&b, " 0 %c%d 0 %d %d", byte(k), w.row.Options, inode, logno)
	}

	if err := w.client.Command(b.String()); err != nil {
		return errors.Wrap(err, errors.LogMuxConnectFailed)
	}

	code, line, err := w.client.ReadReplyLine()
	if err != nil {
		return errors.Wrap(err, errors.LogMuxConnectFailed)
	}
	if code != 211 || !strings.HasPrefix(line, "211-") {
		return errors.New(errors.LogMuxFrameError, fmt.Sprintf("unexpected LOG reply: %q", line))
	}
	return nil
}

// readLoop consumes frames until a fatal condition or stop signal
// (§4.G "Packet handling", "O-control handling", "NOP", "Framing
// failure", "Timeouts").
func (w *Worker) readLoop(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		w.client.SetIdleDeadline(w.idleTimeout)
		kind, pkt, oc, nbytes, err := readFrame(w.client)
		if err != nil {
			if isFrameError(err) {
				w.consecutiveFrameErr++
				w.l.Warn("log frame error, discarding and continuing", "alias", w.row.Alias, "error", err.Error())
				if w.consecutiveFrameErr >= constants.MaxConsecutiveFrameErr {
					return &ExitError{constants.ExitMissedPacket, errors.New(errors.LogMuxFrameError, "three consecutive framing failures")}
				}
				continue
			}
			if isTimeout(err) {
				return &ExitError{constants.ExitLogDataTimeout, errors.Wrap(err, errors.LogMuxDataTimeout)}
			}
			if err.Error() == "EOF" {
				return &ExitError{constants.ExitRemoteHangup, errors.New(errors.LogMuxConnectFailed, "remote hung up")}
			}
			return &ExitError{constants.ExitIncorrect, errors.Wrap(err, errors.LogMuxConnectFailed)}
		}
		w.consecutiveFrameErr = 0

		w.row.Sum.LogBytesReceived[msa.CurrentSumBucket] += float64(nbytes)

		switch kind {
		case framePacket:
			if err := w.handlePacket(pkt); err != nil {
				return err
			}
		case frameOControl:
			if err := w.handleOControl(oc); err != nil {
				return err
			}
		case frameNop:
			// idle timer is implicitly refreshed by SetIdleDeadline above.
		}

		w.publish()
	}
}

// handlePacket validates pktno, appends payload, and updates sequence
// state (§4.G "Packet handling").
func (w *Worker) handlePacket(pkt *packetFrame) error {
	st, ok := w.state[pkt.kind]
	if !ok {
		return nil // kind not requested by this worker; ignore
	}

	if pkt.pktNo != 0 && pkt.pktNo != st.lastPacketNumber+1 {
		return &ExitError{constants.ExitMissedPacket, errors.New(errors.LogMuxSequenceGap,
			fmt.Sprintf("kind %c: expected %d, got %d", byte(pkt.kind), st.lastPacketNumber+1, pkt.pktNo))}
	}

	if st.file == nil {
		f, err := os.OpenFile(logFilePath(w.logDir, st.logName, 0), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return &ExitError{constants.ExitIncorrect, errors.Wrap(err, errors.LogMuxWriteFailed)}
		}
		st.file = f
	}

	if _, err := st.file.Write(pkt.payload); err != nil {
		return &ExitError{constants.ExitIncorrect, errors.Wrap(err, errors.LogMuxWriteFailed)}
	}

	st.lastPacketNumber = pkt.pktNo
	st.havePacket = true
	return nil
}

// handleOControl reconciles the remote's reported (inode, logno)
// against the persisted cursor (§4.G "O-control handling").
func (w *Worker) handleOControl(oc *ocontrolFrame) error {
	st, ok := w.state[oc.kind]
	if !ok {
		return nil
	}

	maxFiles := afdconfig.MaxLogFiles(oc.kind)
	cur, err := readCursor(w.logDir, st.logName)
	if err != nil {
		return &ExitError{constants.ExitIncorrect, err}
	}

	switch {
	case cur != nil && cur.Inode == oc.inode && cur.LogNo == oc.logNo:
		return nil // SUCCESS, no action

	case cur == nil:
		if err := ensureActiveFile(w.logDir, st.logName); err != nil {
			return &ExitError{constants.ExitIncorrect, err}
		}

	case cur.Inode == oc.inode && oc.logNo > cur.LogNo:
		w.closeKindFile(st)
		if err := reshuffleLogFiles(w.logDir, st.logName, cur.LogNo, oc.logNo, maxFiles); err != nil {
			return &ExitError{constants.ExitIncorrect, err}
		}

	case cur.Inode != oc.inode && cur.LogNo == 0:
		w.closeKindFile(st)
		if err := reshuffleLogFiles(w.logDir, st.logName, 0, oc.logNo, maxFiles); err != nil {
			return &ExitError{constants.ExitIncorrect, err}
		}

	default: // inode differs, local logno nonzero -> LOG_STALE
		w.closeKindFile(st)
		if err := staleReopen(w.logDir, st.logName); err != nil {
			return &ExitError{constants.ExitIncorrect, err}
		}
	}

	if err := writeCursor(w.logDir, st.logName, &LogCursor{Inode: oc.inode, LogNo: oc.logNo}); err != nil {
		return &ExitError{constants.ExitIncorrect, err}
	}
	return nil
}

func (w *Worker) closeKindFile(st *kindState) {
	if st.file != nil {
		st.file.Close()
		st.file = nil
	}
}

func ensureActiveFile(dir, logName string) error {
	f, err := os.OpenFile(logFilePath(dir, logName, 0), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, errors.LogMuxWriteFailed)
	}
	return f.Close()
}

func (w *Worker) publish() {
	if err := w.store.UpdateRow(w.index, w.row); err != nil {
		w.l.Warn("failed to publish log row update", "alias", w.row.Alias, "error", err.Error())
	}
}

// logFileBaseName derives the rolling log file's base name from the
// log kind; the alias is already the parent directory (§6.1
// "rlog_dir/<alias>/<logname>.<n>").
func logFileBaseName(kind afdconfig.LogKind) string {
	return kind.String()
}

func isFrameError(err error) bool {
	code, ok := errors.GetCode(err)
	return ok && code == errors.LogMuxFrameError
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}

// errorsAs is a narrow stand-in for errors.As limited to *ExitError,
// avoiding a second identically-named import alongside this package's
// own errors package.
func errorsAs(err error, target **ExitError) bool {
	if e, ok := err.(*ExitError); ok {
		*target = e
		return true
	}
	return false
}
