// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/logger"
)

// ProcessSlot tracks one configured remote's pair of worker processes
// (§4.E "populate the process table sized to N = |config|").
type ProcessSlot struct {
	Index int
	Entry *afdconfig.ConfigEntry

	MonCmd     *exec.Cmd
	MonPID     int
	MonStarted time.Time

	LogCmd     *exec.Cmd
	LogPID     int
	LogStarted time.Time

	// NextRetryTimeLog gates restart of the log worker after a
	// start_log_process failure (§4.E "start_process contract").
	NextRetryTimeLog time.Time

	// restartTimes records every restart of either worker in this slot,
	// oldest first; used to detect a crash loop within restartWindow.
	restartTimes []time.Time

	Disabled bool
}

// ProcessTable is the supervisor's live view of every configured
// remote's worker pair.
type ProcessTable struct {
	mu    sync.Mutex
	slots []*ProcessSlot

	workDir string
	selfExe string
	l       logger.Logger

	// maxRestarts and restartWindow gate the crash-loop escalation: a
	// slot restarting more than maxRestarts times within restartWindow
	// is a persistent resource failure (§7 category iii), not a
	// transient one, and escalates to onFatal rather than retrying
	// forever. maxRestarts <= 0 disables the check.
	maxRestarts   int
	restartWindow time.Duration
	onFatal       func(reason string)
}

// NewProcessTable sizes a fresh table to entries and resolves argv[0]
// for re-executing this binary in monitor/logmux worker mode.
func NewProcessTable(entries []*afdconfig.ConfigEntry, workDir string, l logger.Logger) (*ProcessTable, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, errors.SupervisorStartFailed)
	}

	pt := &ProcessTable{workDir: workDir, selfExe: exe, l: l}
	pt.slots = make([]*ProcessSlot, len(entries))
	for i, e := range entries {
		pt.slots[i] = &ProcessSlot{Index: i, Entry: e, Disabled: e.IsGroupHeader()}
	}
	return pt, nil
}

// SetRestartPolicy wires the crash-loop escalation path: once a slot
// restarts more than maxRestarts times within restartWindow, onFatal is
// invoked instead of restarting again (§7 "escalate to the supervisor,
// which logs and exits the whole controller"). Called by the
// supervisor after construction, since the callback closes over the
// supervisor itself.
func (pt *ProcessTable) SetRestartPolicy(maxRestarts int, restartWindow time.Duration, onFatal func(reason string)) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.maxRestarts = maxRestarts
	pt.restartWindow = restartWindow
	pt.onFatal = onFatal
}

// reapChild blocks on cmd.Wait() so the child is reaped the instant it
// exits. Workers are Start()-ed, never Wait()-ed, anywhere else: without
// this goroutine an exited child stays a zombie that still answers
// signal 0, and processExited would never observe it as gone.
func reapChild(cmd *exec.Cmd, l logger.Logger, alias, kind string) {
	if err := cmd.Wait(); err != nil {
		l.Debug("worker process reaped", "alias", alias, "kind", kind, "error", err.Error())
	}
}

// recordRestart appends now to slot's restart history, drops entries
// older than pt.restartWindow, and reports whether the slot has now
// crash-looped past pt.maxRestarts. Callers must hold pt.mu.
func (pt *ProcessTable) recordRestart(slot *ProcessSlot, now time.Time) bool {
	if pt.maxRestarts <= 0 {
		return false
	}
	slot.restartTimes = append(slot.restartTimes, now)
	cutoff := now.Add(-pt.restartWindow)
	kept := slot.restartTimes[:0]
	for _, t := range slot.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	slot.restartTimes = kept
	return len(slot.restartTimes) > pt.maxRestarts
}

// StartAll forks a monitor and log worker for every non-disabled slot
// (§4.E step iv).
func (pt *ProcessTable) StartAll() error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, slot := range pt.slots {
		if slot.Disabled {
			continue
		}
		if err := pt.startMonitor(slot); err != nil {
			pt.l.Error("failed to start monitor worker", "alias", slot.Entry.Alias, "error", err.Error())
		}
		if err := pt.startLog(slot); err != nil {
			pt.l.Error("failed to start log worker", "alias", slot.Entry.Alias, "error", err.Error())
			slot.NextRetryTimeLog = time.Now().Add(constants.RetryIntervalS * time.Second)
		}
	}
	return nil
}

// startMonitor implements "start_process": fork argv (WORK_DIR_ID,
// work_dir, str(i)) for a monitor worker (§4.E).
func (pt *ProcessTable) startMonitor(slot *ProcessSlot) error {
	cmd := exec.Command(pt.selfExe, "serve", "--worker", "monitor", pt.workDir, fmt.Sprintf("%d", slot.Index))
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.SupervisorStartFailed).WithMetadata("alias", slot.Entry.Alias)
	}
	slot.MonCmd = cmd
	slot.MonPID = cmd.Process.Pid
	slot.MonStarted = time.Now()
	go reapChild(cmd, pt.l, slot.Entry.Alias, "monitor")
	return nil
}

// startLog implements "start_log_process": fork argv (WORK_DIR_ID,
// work_dir, str(i), str(log_capabilities)) for the log multiplexer.
func (pt *ProcessTable) startLog(slot *ProcessSlot) error {
	caps := fmt.Sprintf("%d", uint32(slot.Entry.Options))
	cmd := exec.Command(pt.selfExe, "serve", "--worker", "logmux", pt.workDir, fmt.Sprintf("%d", slot.Index), caps)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.SupervisorStartFailed).WithMetadata("alias", slot.Entry.Alias)
	}
	slot.LogCmd = cmd
	slot.LogPID = cmd.Process.Pid
	slot.LogStarted = time.Now()
	go reapChild(cmd, pt.l, slot.Entry.Alias, "logmux")
	return nil
}

// ReapAndRestart checks every worker's reaped state and restarts any
// that have exited, once NextRetryTimeLog (for log workers) has passed
// (§4.E "Scheduling"). A slot that crash-loops past maxRestarts within
// restartWindow escalates to onFatal instead of restarting again (§7
// category iii, "persistent resource failures").
func (pt *ProcessTable) ReapAndRestart() {
	reason := pt.reapAndRestartLocked()
	if reason != "" && pt.onFatal != nil {
		pt.onFatal(reason)
	}
}

func (pt *ProcessTable) reapAndRestartLocked() string {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	for _, slot := range pt.slots {
		if slot.Disabled {
			continue
		}
		if slot.MonCmd != nil && processExited(slot.MonCmd) {
			now := time.Now()
			if pt.recordRestart(slot, now) {
				return fmt.Sprintf("monitor worker for %q crash-looped past %d restarts in %s",
					slot.Entry.Alias, pt.maxRestarts, pt.restartWindow)
			}
			pt.l.Warn("monitor worker exited, restarting", "alias", slot.Entry.Alias)
			if err := pt.startMonitor(slot); err != nil {
				pt.l.Error("monitor restart failed", "alias", slot.Entry.Alias, "error", err.Error())
			}
		}
		if slot.LogCmd != nil && processExited(slot.LogCmd) {
			if time.Now().Before(slot.NextRetryTimeLog) {
				continue
			}
			now := time.Now()
			if pt.recordRestart(slot, now) {
				return fmt.Sprintf("log worker for %q crash-looped past %d restarts in %s",
					slot.Entry.Alias, pt.maxRestarts, pt.restartWindow)
			}
			pt.l.Warn("log worker exited, restarting", "alias", slot.Entry.Alias)
			if err := pt.startLog(slot); err != nil {
				pt.l.Error("log worker restart failed", "alias", slot.Entry.Alias, "error", err.Error())
				slot.NextRetryTimeLog = time.Now().Add(constants.RetryIntervalS * time.Second)
			}
		}
	}
	return ""
}

// processExited reports whether cmd's process has been reaped. Every
// worker is spawned with its own reapChild goroutine blocked in
// cmd.Wait(), so ProcessState is populated the instant the child exits
// and is collected — never left as a zombie that would still answer a
// liveness signal.
func processExited(cmd *exec.Cmd) bool {
	if cmd.Process == nil {
		return true
	}
	return cmd.ProcessState != nil
}

// KillAll broadcasts SIGINT to every recorded worker PID (§4.E "On
// SIGTERM the supervisor broadcasts SIGINT to every recorded PID").
func (pt *ProcessTable) KillAll() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, slot := range pt.slots {
		if slot.MonCmd != nil && slot.MonCmd.Process != nil {
			slot.MonCmd.Process.Signal(os.Interrupt)
		}
		if slot.LogCmd != nil && slot.LogCmd.Process != nil {
			slot.LogCmd.Process.Signal(os.Interrupt)
		}
	}
}

// Reconcile applies a newly-loaded configuration (§4.E SIGHUP
// behavior): rows for removed aliases kill their children; rows for
// new aliases spawn new children; rows whose host/port/rcmd changed
// are restarted; everything else is left running.
func (pt *ProcessTable) Reconcile(entries []*afdconfig.ConfigEntry) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	byAlias := make(map[string]*ProcessSlot, len(pt.slots))
	for _, s := range pt.slots {
		byAlias[s.Entry.Alias] = s
	}

	next := make([]*ProcessSlot, len(entries))
	for i, e := range entries {
		old, existed := byAlias[e.Alias]
		if !existed {
			slot := &ProcessSlot{Index: i, Entry: e, Disabled: e.IsGroupHeader()}
			next[i] = slot
			if !slot.Disabled {
				pt.startMonitor(slot)
				if err := pt.startLog(slot); err != nil {
					slot.NextRetryTimeLog = time.Now().Add(constants.RetryIntervalS * time.Second)
				}
			}
			continue
		}

		old.Index = i
		restart := connectionIdentityChanged(old.Entry, e)
		old.Entry = e
		old.Disabled = e.IsGroupHeader()
		next[i] = old

		if old.Disabled {
			pt.stopSlot(old)
			continue
		}
		if restart {
			pt.l.Info("connection identity changed, restarting worker pair", "alias", e.Alias)
			pt.stopSlot(old)
			pt.startMonitor(old)
			if err := pt.startLog(old); err != nil {
				old.NextRetryTimeLog = time.Now().Add(constants.RetryIntervalS * time.Second)
			}
		}
		delete(byAlias, e.Alias)
	}

	// Anything left in byAlias had its alias removed from the config.
	for _, removed := range byAlias {
		pt.stopSlot(removed)
	}

	pt.slots = next
}

func connectionIdentityChanged(old, updated *afdconfig.ConfigEntry) bool {
	return old.Host != updated.Host || old.Port != updated.Port || old.Rcmd != updated.Rcmd
}

func (pt *ProcessTable) stopSlot(slot *ProcessSlot) {
	if slot.MonCmd != nil && slot.MonCmd.Process != nil {
		slot.MonCmd.Process.Signal(os.Interrupt)
	}
	if slot.LogCmd != nil && slot.LogCmd.Process != nil {
		slot.LogCmd.Process.Signal(os.Interrupt)
	}
}

// Slots returns a snapshot of the current process table, for manifest
// publication.
func (pt *ProcessTable) Slots() []*ProcessSlot {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]*ProcessSlot, len(pt.slots))
	copy(out, pt.slots)
	return out
}
