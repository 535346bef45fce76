// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := &Header{Count: 5, PageSizeIndicator: 1, Version: CurrentVersion, PageSize: 4096}
	buf := EncodeHeader(h)
	require.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsFutureVersion(t *testing.T) {
	h := &Header{Version: CurrentVersion + 1}
	_, err := DecodeHeader(EncodeHeader(h))
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsNegativeCountOtherThanStaleSentinel(t *testing.T) {
	h := &Header{Count: -2}
	_, err := DecodeHeader(EncodeHeader(h))
	assert.Error(t, err)
}

func TestDecodeHeaderAcceptsStaleSentinel(t *testing.T) {
	h := &Header{Count: StaleCount}
	got, err := DecodeHeader(EncodeHeader(h))
	require.NoError(t, err)
	assert.True(t, got.IsStale())
}

func TestWriteZeroFilledFileProducesExactSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.0")
	require.NoError(t, writeZeroFilledFile(path, 128))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 128, info.Size())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, b := range data {
		assert.Zero(t, b)
	}
}
