// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package liveness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeManifestRoundTrip(t *testing.T) {
	m := &Manifest{
		SupervisorPID: 100,
		SysLogPID:     101,
		MonLogPID:     102,
		Workers: []WorkerPIDs{
			{MonPID: 200, LogPID: 201},
			{MonPID: 202, LogPID: 203},
		},
	}

	buf := EncodeManifest(m)
	got, err := DecodeManifest(buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeManifestRejectsShortHeader(t *testing.T) {
	_, err := DecodeManifest(make([]byte, 4))
	assert.Error(t, err)
}

func TestDecodeManifestRejectsTruncatedWorkerList(t *testing.T) {
	m := &Manifest{Workers: []WorkerPIDs{{MonPID: 1, LogPID: 2}}}
	buf := EncodeManifest(m)
	_, err := DecodeManifest(buf[:len(buf)-4])
	assert.Error(t, err)
}

func TestManifestAllPIDsOrdering(t *testing.T) {
	m := &Manifest{
		SupervisorPID: 1,
		SysLogPID:     2,
		MonLogPID:     3,
		Workers: []WorkerPIDs{
			{MonPID: 4, LogPID: 5},
			{MonPID: 6, LogPID: 7},
		},
	}
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7}, m.AllPIDs())
}

func TestProbeProceedsFreshWithNoManifest(t *testing.T) {
	dir := t.TempDir()
	outcome, code, err := Probe(dir, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, ProceedFresh, outcome)
	assert.Equal(t, 0, code)
}
