// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessTableSizesSlotsAndFlagsGroupHeaders(t *testing.T) {
	entries := []*afdconfig.ConfigEntry{
		{Alias: "groupA"}, // Rcmd == "" -> group header
		{Alias: "member1", Rcmd: "ssh"},
		{Alias: "member2", Rcmd: "rsh"},
	}

	pt, err := NewProcessTable(entries, t.TempDir(), nil)
	require.NoError(t, err)

	slots := pt.Slots()
	require.Len(t, slots, 3)
	assert.True(t, slots[0].Disabled)
	assert.False(t, slots[1].Disabled)
	assert.False(t, slots[2].Disabled)
	assert.Equal(t, 0, slots[0].Index)
	assert.Equal(t, 2, slots[2].Index)
}

func TestConnectionIdentityChangedDetectsHostPortRcmdDiffs(t *testing.T) {
	base := &afdconfig.ConfigEntry{
		Alias: "remote1",
		Host:  [2]string{"a.example.com", ""},
		Port:  [2]int{2810, 0},
		Rcmd:  "ssh",
	}

	same := *base
	assert.False(t, connectionIdentityChanged(base, &same))

	hostChanged := *base
	hostChanged.Host = [2]string{"b.example.com", ""}
	assert.True(t, connectionIdentityChanged(base, &hostChanged))

	portChanged := *base
	portChanged.Port = [2]int{2811, 0}
	assert.True(t, connectionIdentityChanged(base, &portChanged))

	rcmdChanged := *base
	rcmdChanged.Rcmd = "rsh"
	assert.True(t, connectionIdentityChanged(base, &rcmdChanged))

	unrelatedChanged := *base
	unrelatedChanged.PollIntervalS = 999
	assert.False(t, connectionIdentityChanged(base, &unrelatedChanged))
}

func TestProcessExitedTrueForNilProcess(t *testing.T) {
	cmd := &exec.Cmd{}
	assert.True(t, processExited(cmd))
}

func TestProcessExitedFalseForRunningProcessTrueAfterExit(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	assert.False(t, processExited(cmd))

	cmd.Process.Kill()
	cmd.Wait()
	assert.True(t, processExited(cmd))
}

func TestSlotsReturnsSnapshotNotLiveSlice(t *testing.T) {
	entries := []*afdconfig.ConfigEntry{{Alias: "remote1", Rcmd: "ssh"}}
	pt, err := NewProcessTable(entries, t.TempDir(), nil)
	require.NoError(t, err)

	snap := pt.Slots()
	snap[0] = nil

	again := pt.Slots()
	require.NotNil(t, again[0])
	assert.Equal(t, "remote1", again[0].Entry.Alias)
}

func TestStopSlotSignalsRecordedProcesses(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	pt := &ProcessTable{}
	slot := &ProcessSlot{MonCmd: cmd}
	pt.stopSlot(slot)

	require.Error(t, cmd.Wait())
	assert.True(t, processExited(cmd))
}

func TestRecordRestartDisabledWhenMaxRestartsNonPositive(t *testing.T) {
	pt := &ProcessTable{maxRestarts: 0, restartWindow: time.Minute}
	slot := &ProcessSlot{}
	for i := 0; i < 10; i++ {
		assert.False(t, pt.recordRestart(slot, time.Now()))
	}
}

func TestRecordRestartTripsAfterMaxRestartsWithinWindow(t *testing.T) {
	pt := &ProcessTable{maxRestarts: 2, restartWindow: time.Minute}
	slot := &ProcessSlot{}
	now := time.Now()

	assert.False(t, pt.recordRestart(slot, now))
	assert.False(t, pt.recordRestart(slot, now.Add(time.Second)))
	assert.True(t, pt.recordRestart(slot, now.Add(2*time.Second)), "third restart within the window exceeds maxRestarts")
}

func TestRecordRestartPrunesEntriesOutsideWindow(t *testing.T) {
	pt := &ProcessTable{maxRestarts: 1, restartWindow: time.Minute}
	slot := &ProcessSlot{}
	now := time.Now()

	assert.False(t, pt.recordRestart(slot, now))
	assert.True(t, pt.recordRestart(slot, now.Add(time.Second)), "second restart within the window exceeds maxRestarts")

	// A much later restart, once the earlier ones have aged out of the
	// window, should not see the stale history and should not trip.
	assert.False(t, pt.recordRestart(slot, now.Add(5*time.Minute)))
}

func TestReapAndRestartEscalatesOnCrashLoop(t *testing.T) {
	entries := []*afdconfig.ConfigEntry{{Alias: "remote1", Rcmd: "ssh"}}
	pt, err := NewProcessTable(entries, t.TempDir(), nil)
	require.NoError(t, err)

	var fatalReason string
	pt.SetRestartPolicy(1, time.Minute, func(reason string) { fatalReason = reason })

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	slot := pt.slots[0]
	slot.MonCmd = cmd
	slot.restartTimes = []time.Time{time.Now()}

	pt.ReapAndRestart()
	assert.NotEmpty(t, fatalReason, "a second restart within the window should escalate rather than retry")
}
