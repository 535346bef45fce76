// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRowsCurrentVersionRoundTrips(t *testing.T) {
	r := sampleRow()
	buf := EncodeRow(r)

	rows, err := ConvertRows(buf, CurrentVersion, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, r.Alias, rows[0].Alias)
	assert.Equal(t, r.NoOfTransfers, rows[0].NoOfTransfers)
}

func TestConvertRowsV0ChainSetsSpecialFlag(t *testing.T) {
	buf := make([]byte, rowSizeV0)
	off := 0
	putString(buf, &off, "legacy1", aliasFieldLen)
	putString(buf, &off, "h1", hostFieldLen)
	putString(buf, &off, "h2", hostFieldLen)

	rows, err := ConvertRows(buf, 0, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "legacy1", r.Alias)
	assert.Equal(t, "h1", r.Host[0])
	assert.NotZero(t, r.SpecialFlag&SumValuesInitialized, "v0->v3 chain must mark sum buckets initialized")
}

func TestConvertRowsRejectsFutureVersion(t *testing.T) {
	_, err := ConvertRows(nil, CurrentVersion+1, 0)
	assert.Error(t, err)
}

func TestConvertRowsRejectsTruncatedBuffer(t *testing.T) {
	_, err := ConvertRows(make([]byte, 4), CurrentVersion, 1)
	assert.Error(t, err)
}

func TestConvertRowsUnrecognizedVersion(t *testing.T) {
	_, err := ConvertRows(nil, 255, 0)
	assert.Error(t, err)
}
