// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package logmux

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stratastor/afdmon/internal/constants"
	afderrors "github.com/stratastor/afdmon/pkg/errors"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/msa"
	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	l, err := logger.NewTag(logger.Config{LogLevel: "warn"}, "logmux-test")
	require.NoError(t, err)
	return l
}

func newTestWorker(t *testing.T) (*Worker, string) {
	t.Helper()
	dir := t.TempDir()
	entry := &afdconfig.ConfigEntry{
		Alias: "remote1",
		Host:  [2]string{"host1", "host1"},
		Port:  [2]int{4447, 4447},
		Rcmd:  "ssh",
	}
	store, err := msa.Rebuild(dir, []*afdconfig.ConfigEntry{entry}, testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Detach() })

	row := msa.NewRowFromEntry(entry)
	w := New(0, row, store, dir, afdconfig.OptTransferLog, testLogger(t))
	require.NoError(t, os.MkdirAll(w.logDir, 0755))
	require.NoError(t, w.loadCursors())
	return w, w.logDir
}

func TestIdleTimeoutIsAtLeastTenLogIntervals(t *testing.T) {
	got := idleTimeout()
	want := 10 * constants.LogWriteIntervalS
	assert.GreaterOrEqual(t, int64(got.Seconds()), int64(want))
}

func TestLogFileBaseNameIsKindName(t *testing.T) {
	assert.Equal(t, afdconfig.LogKindTransfer.String(), logFileBaseName(afdconfig.LogKindTransfer))
}

func TestIsFrameErrorMatchesLogMuxFrameErrorCode(t *testing.T) {
	err := afderrors.New(afderrors.LogMuxFrameError, "bad frame")
	assert.True(t, isFrameError(err))
	assert.False(t, isFrameError(afderrors.New(afderrors.LogMuxWriteFailed, "write failed")))
	assert.False(t, isFrameError(errors.New("plain error")))
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestIsTimeoutRecognizesTimeouterInterface(t *testing.T) {
	assert.True(t, isTimeout(fakeTimeoutErr{}))
	assert.False(t, isTimeout(errors.New("not a timeout")))
}

func TestErrorsAsExtractsExitError(t *testing.T) {
	var target *ExitError
	exitErr := &ExitError{Code: constants.ExitMissedPacket, Err: errors.New("boom")}
	assert.True(t, errorsAs(exitErr, &target))
	assert.Same(t, exitErr, target)

	target = nil
	assert.False(t, errorsAs(errors.New("plain"), &target))
}

func TestEnsureActiveFileCreatesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ensureActiveFile(dir, "transfer"))

	info, err := os.Stat(filepath.Join(dir, "transfer.0"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestHandlePacketAppendsPayloadAndAdvancesSequence(t *testing.T) {
	w, dir := newTestWorker(t)

	require.NoError(t, w.handlePacket(&packetFrame{kind: afdconfig.LogKindTransfer, pktNo: 1, payload: []byte("line one\n")}))
	require.NoError(t, w.handlePacket(&packetFrame{kind: afdconfig.LogKindTransfer, pktNo: 2, payload: []byte("line two\n")}))
	w.closeFiles()

	got, err := os.ReadFile(filepath.Join(dir, "transfer.0"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(got))
}

func TestHandlePacketRejectsSequenceGap(t *testing.T) {
	w, _ := newTestWorker(t)

	require.NoError(t, w.handlePacket(&packetFrame{kind: afdconfig.LogKindTransfer, pktNo: 1, payload: []byte("a")}))
	err := w.handlePacket(&packetFrame{kind: afdconfig.LogKindTransfer, pktNo: 3, payload: []byte("b")})

	var exitErr *ExitError
	require.True(t, errorsAs(err, &exitErr))
	assert.Equal(t, constants.ExitMissedPacket, exitErr.Code)
}

func TestHandlePacketIgnoresUnrequestedKind(t *testing.T) {
	w, _ := newTestWorker(t)
	err := w.handlePacket(&packetFrame{kind: afdconfig.LogKindTransferDebug, pktNo: 1, payload: []byte("x")})
	assert.NoError(t, err)
}

func TestHandleOControlNoActionWhenCursorsMatch(t *testing.T) {
	w, dir := newTestWorker(t)
	require.NoError(t, writeCursor(dir, "transfer", &LogCursor{Inode: 42, LogNo: 3}))

	err := w.handleOControl(&ocontrolFrame{kind: afdconfig.LogKindTransfer, inode: 42, logNo: 3})
	assert.NoError(t, err)

	cur, err := readCursor(dir, "transfer")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cur.Inode)
	assert.Equal(t, 3, cur.LogNo)
}

func TestHandleOControlCreatesActiveFileWhenNoCursorExists(t *testing.T) {
	w, dir := newTestWorker(t)

	require.NoError(t, w.handleOControl(&ocontrolFrame{kind: afdconfig.LogKindTransfer, inode: 7, logNo: 0}))

	_, err := os.Stat(filepath.Join(dir, "transfer.0"))
	assert.NoError(t, err)

	cur, err := readCursor(dir, "transfer")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cur.Inode)
}

func TestHandleOControlReshufflesOnSameInodeAdvancingLogNo(t *testing.T) {
	w, dir := newTestWorker(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transfer.0"), []byte("old"), 0644))
	require.NoError(t, writeCursor(dir, "transfer", &LogCursor{Inode: 9, LogNo: 0}))

	require.NoError(t, w.handleOControl(&ocontrolFrame{kind: afdconfig.LogKindTransfer, inode: 9, logNo: 1}))

	_, err := os.Stat(filepath.Join(dir, "transfer.1"))
	assert.NoError(t, err)

	cur, err := readCursor(dir, "transfer")
	require.NoError(t, err)
	assert.Equal(t, 1, cur.LogNo)
}

func TestHandleOControlIgnoresUnrequestedKind(t *testing.T) {
	w, _ := newTestWorker(t)
	err := w.handleOControl(&ocontrolFrame{kind: afdconfig.LogKindTransferDebug, inode: 1, logNo: 0})
	assert.NoError(t, err)
}
