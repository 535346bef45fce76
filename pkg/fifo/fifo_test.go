// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package fifo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesFifo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mon_cmd")

	require.NoError(t, Ensure(path, 0600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeNamedPipe)
}

func TestEnsureIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mon_cmd")

	require.NoError(t, Ensure(path, 0600))
	require.NoError(t, Ensure(path, 0600))
}

func TestEnsureRejectsNonFifoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not_a_fifo")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	err := Ensure(path, 0600)
	assert.Error(t, err)
}

func TestDrainConsumesBufferedBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe_fifo")
	require.NoError(t, Ensure(path, 0600))

	rw, err := OpenReadWrite(path)
	require.NoError(t, err)
	defer rw.Close()

	_, err = rw.WriteString("hello")
	require.NoError(t, err)

	reader, err := OpenNonblockRead(path)
	require.NoError(t, err)
	defer reader.Close()

	// give the write a moment to land in the pipe buffer
	time.Sleep(10 * time.Millisecond)
	n := Drain(reader)
	assert.Equal(t, 5, n)
}
