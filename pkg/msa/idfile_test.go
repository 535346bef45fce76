// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFileReadOnFreshFileIsMinusOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msa.id")
	idf, err := OpenIDFile(path)
	require.NoError(t, err)
	defer idf.Close()

	id, err := idf.Read()
	require.NoError(t, err)
	assert.EqualValues(t, -1, id)
}

func TestIDFileWriteThenReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msa.id")
	idf, err := OpenIDFile(path)
	require.NoError(t, err)
	defer idf.Close()

	require.NoError(t, idf.Lock())
	require.NoError(t, idf.Write(7))
	require.NoError(t, idf.Unlock())

	id, err := idf.Read()
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
}

func TestIDFileUnlockWithoutLockIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msa.id")
	idf, err := OpenIDFile(path)
	require.NoError(t, err)
	defer idf.Close()

	assert.NoError(t, idf.Unlock())
}

func TestIDFileCloseReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msa.id")
	idf, err := OpenIDFile(path)
	require.NoError(t, err)

	require.NoError(t, idf.Lock())
	assert.NoError(t, idf.Close())
}
