// Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2024-2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSingleInstanceRejectsEmptyPath(t *testing.T) {
	err := EnsureSingleInstance("")
	assert.Error(t, err)
}

func TestEnsureSingleInstanceWritesPIDFileWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afdmon.pid")
	require.NoError(t, EnsureSingleInstance(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", os.Getpid()), string(content))
}

func TestEnsureSingleInstanceRemovesStaleEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afdmon.pid")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	require.NoError(t, EnsureSingleInstance(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", os.Getpid()), string(content))
}

func TestEnsureSingleInstanceRemovesStaleDeadPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afdmon.pid")
	// PID 1 belongs to init in any container/VM this test runs in, but a
	// PID far outside any plausible live range is a safer "definitely
	// dead" stand-in than guessing at real process table contents.
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0644))

	require.NoError(t, EnsureSingleInstance(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", os.Getpid()), string(content))
}

func TestEnsureSingleInstanceRejectsMalformedPIDContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afdmon.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))

	err := EnsureSingleInstance(path)
	assert.Error(t, err)
}

func TestEnsureSingleInstanceDetectsLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afdmon.pid")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0644))

	err := EnsureSingleInstance(path)
	assert.Error(t, err)
}
