// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"testing"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumAliasIsStable(t *testing.T) {
	a := ChecksumAlias("remote1")
	b := ChecksumAlias("remote1")
	c := ChecksumAlias("remote2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNewRowFromEntryGroupHeaderIsDisabled(t *testing.T) {
	e := &afdconfig.ConfigEntry{Alias: "groupA", Rcmd: ""}
	r := NewRowFromEntry(e)
	require.True(t, r.IsGroupHeader())
	assert.Equal(t, StatusDisabled, r.ConnectStatus)
}

func TestNewRowFromEntryMemberStartsDisconnected(t *testing.T) {
	e := &afdconfig.ConfigEntry{Alias: "remote1", Rcmd: "ssh"}
	r := NewRowFromEntry(e)
	require.False(t, r.IsGroupHeader())
	assert.Equal(t, StatusDisconnected, r.ConnectStatus)
	assert.Equal(t, CompStopped, r.AMG)
}

func TestApplyConfigFieldsLeavesRuntimeFieldsAlone(t *testing.T) {
	e := &afdconfig.ConfigEntry{Alias: "remote1", Host: [2]string{"h1", "h2"}, Port: [2]int{1, 2}, Rcmd: "ssh"}
	r := NewRowFromEntry(e)
	r.NoOfTransfers = 42
	r.ConnectStatus = StatusConnected

	e2 := &afdconfig.ConfigEntry{Alias: "remote1-renamed", Host: [2]string{"h3", "h4"}, Port: [2]int{3, 4}, Rcmd: "rsh"}
	r.ApplyConfigFields(e2)

	assert.Equal(t, "remote1-renamed", r.Alias)
	assert.Equal(t, "h3", r.Host[0])
	assert.Equal(t, "rsh", r.Rcmd)
	assert.Equal(t, int64(42), r.NoOfTransfers, "runtime counters must survive a config rebuild")
	assert.Equal(t, StatusConnected, r.ConnectStatus)
}

func TestMaxStatusRanking(t *testing.T) {
	assert.Equal(t, StatusConnected, maxStatus(StatusConnected, StatusDisconnected))
	assert.Equal(t, StatusDefunct, maxStatus(StatusDisabled, StatusDefunct))
	assert.Equal(t, StatusConnecting, maxStatus(StatusConnecting, StatusDisabled))
}

func TestMinComponentStatusShuttingDownWinsOverRunning(t *testing.T) {
	assert.Equal(t, CompShuttingDown, minComponentStatus(CompRunning, CompShuttingDown))
	assert.Equal(t, CompShuttingDown, minComponentStatus(CompShuttingDown, CompRunning))
	assert.Equal(t, CompStopped, minComponentStatus(CompStopped, CompRunning))
}

func TestRotateRowBuckets(t *testing.T) {
	r := &Row{}
	r.Sum.FilesSent[CurrentSumBucket] = 5
	r.Sum.BytesSent[CurrentSumBucket] = 10.0

	rotateRowBuckets(r)

	assert.Equal(t, int64(5), r.Sum.FilesSent[CurrentSumBucket+1])
	assert.Equal(t, int64(0), r.Sum.FilesSent[CurrentSumBucket])
	assert.Equal(t, 10.0, r.Sum.BytesSent[CurrentSumBucket+1])
	assert.Equal(t, 0.0, r.Sum.BytesSent[CurrentSumBucket])
}
