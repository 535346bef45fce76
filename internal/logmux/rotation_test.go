// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package logmux

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestReshuffleLogFilesShiftsUpward(t *testing.T) {
	dir := t.TempDir()
	touch(t, logFilePath(dir, "transfer", 0), "newest")
	touch(t, logFilePath(dir, "transfer", 1), "older")

	require.NoError(t, reshuffleLogFiles(dir, "transfer", 0, 1, 7))

	_, err := os.Stat(logFilePath(dir, "transfer", 0))
	assert.True(t, os.IsNotExist(err), "slot 0 should have moved to slot 1")

	data, err := os.ReadFile(logFilePath(dir, "transfer", 1))
	require.NoError(t, err)
	assert.Equal(t, "newest", string(data))

	data, err = os.ReadFile(logFilePath(dir, "transfer", 2))
	require.NoError(t, err)
	assert.Equal(t, "older", string(data))
}

func TestReshuffleLogFilesUnlinksPastMaxFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, logFilePath(dir, "transfer", 2), "oldest")

	require.NoError(t, reshuffleLogFiles(dir, "transfer", 0, 1, 3))

	_, err := os.Stat(logFilePath(dir, "transfer", 3))
	assert.True(t, os.IsNotExist(err), "rotating past maxFiles must unlink, not rename")
}

func TestReshuffleLogFilesNoOpWhenShiftIsZero(t *testing.T) {
	dir := t.TempDir()
	touch(t, logFilePath(dir, "transfer", 0), "newest")
	require.NoError(t, reshuffleLogFiles(dir, "transfer", 0, 0, 7))

	data, err := os.ReadFile(logFilePath(dir, "transfer", 0))
	require.NoError(t, err)
	assert.Equal(t, "newest", string(data))
}

func TestStaleReopenRemovesActiveFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, logFilePath(dir, "transfer", 0), "stale")

	require.NoError(t, staleReopen(dir, "transfer"))

	_, err := os.Stat(logFilePath(dir, "transfer", 0))
	assert.True(t, os.IsNotExist(err))
}

func TestStaleReopenOnMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, staleReopen(dir, "transfer"))
}
