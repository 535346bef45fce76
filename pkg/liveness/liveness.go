// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package liveness implements component D: the probe handshake a
// starting supervisor uses to detect and defeat a stale or still-live
// prior instance before binding the working directory's FIFOs (§4.D).
package liveness

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/afdmon/pkg/fifo"
	"github.com/stratastor/logger"
	"golang.org/x/sys/unix"
)

// Outcome is the result of running the startup handshake.
type Outcome int

const (
	// ProceedFresh means no prior instance was detected; start normally.
	ProceedFresh Outcome = iota
	// ProceedAfterCrashCleanup means a stale mon_active was found, its
	// PIDs were signaled, and the caller should proceed to start.
	ProceedAfterCrashCleanup
	// AnotherInstanceAlive means a live peer answered; the caller
	// should exit immediately with ExitCode.
	AnotherInstanceAlive
)

// Manifest is the packed mon_active record (§4.D): "[supervisor,
// sys_log, mon_log, n, (mon_pid, log_pid)×n]".
type Manifest struct {
	SupervisorPID int32
	SysLogPID     int32
	MonLogPID     int32
	Workers       []WorkerPIDs
}

// WorkerPIDs is one (mon_pid, log_pid) pair from the manifest.
type WorkerPIDs struct {
	MonPID int32
	LogPID int32
}

// AllPIDs flattens the manifest into every recorded PID, in the order
// SIGINT should be broadcast (§4.E "broadcasts SIGINT to every
// recorded PID").
func (m *Manifest) AllPIDs() []int32 {
	pids := []int32{m.SupervisorPID, m.SysLogPID, m.MonLogPID}
	for _, w := range m.Workers {
		pids = append(pids, w.MonPID, w.LogPID)
	}
	return pids
}

// EncodeManifest serializes m to its on-disk layout.
func EncodeManifest(m *Manifest) []byte {
	buf := make([]byte, 16+8*len(m.Workers))
	binary.LittleEndian.PutUint32(buf[0:], uint32(m.SupervisorPID))
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.SysLogPID))
	binary.LittleEndian.PutUint32(buf[8:], uint32(m.MonLogPID))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(m.Workers)))
	for i, w := range m.Workers {
		off := 16 + i*8
		binary.LittleEndian.PutUint32(buf[off:], uint32(w.MonPID))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(w.LogPID))
	}
	return buf
}

// DecodeManifest parses the mon_active layout.
func DecodeManifest(buf []byte) (*Manifest, error) {
	if len(buf) < 16 {
		return nil, errors.New(errors.LivenessProbeFailed, "mon_active shorter than fixed header")
	}
	m := &Manifest{
		SupervisorPID: int32(binary.LittleEndian.Uint32(buf[0:])),
		SysLogPID:     int32(binary.LittleEndian.Uint32(buf[4:])),
		MonLogPID:     int32(binary.LittleEndian.Uint32(buf[8:])),
	}
	n := int(binary.LittleEndian.Uint32(buf[12:]))
	if len(buf) < 16+8*n {
		return nil, errors.New(errors.LivenessProbeFailed, "mon_active truncated worker list")
	}
	m.Workers = make([]WorkerPIDs, n)
	for i := 0; i < n; i++ {
		off := 16 + i*8
		m.Workers[i] = WorkerPIDs{
			MonPID: int32(binary.LittleEndian.Uint32(buf[off:])),
			LogPID: int32(binary.LittleEndian.Uint32(buf[off+4:])),
		}
	}
	return m, nil
}

// WriteManifest publishes the mon_active file for the current process
// set, called once the supervisor has populated its process table
// (§4.E step iv).
func WriteManifest(workDir string, m *Manifest) error {
	path := workDir + "/" + constants.MonActiveName
	return os.WriteFile(path, EncodeManifest(m), 0644)
}

// RemoveManifest unlinks mon_active, called on clean SIGTERM shutdown
// (§4.E "unlinks mon_active").
func RemoveManifest(workDir string) error {
	err := os.Remove(workDir + "/" + constants.MonActiveName)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Probe runs the §4.D startup handshake against workDir and reports
// what the caller should do next. exitCode is only meaningful when the
// outcome is AnotherInstanceAlive.
func Probe(workDir string, waitTime time.Duration, l logger.Logger) (outcome Outcome, exitCode int, err error) {
	manifestPath := workDir + "/" + constants.MonActiveName
	if _, statErr := os.Stat(manifestPath); os.IsNotExist(statErr) {
		return ProceedFresh, 0, nil
	}

	cmdPath := workDir + "/" + constants.MonCmdFifoName
	probePath := workDir + "/" + constants.ProbeOnlyFifoName

	cmdFile, err := fifo.OpenReadWrite(cmdPath)
	if err != nil {
		return ProceedFresh, 0, err
	}
	defer cmdFile.Close()

	probeFile, err := fifo.OpenNonblockRead(probePath)
	if err != nil {
		return ProceedFresh, 0, err
	}
	defer probeFile.Close()

	fifo.Drain(probeFile)

	if _, werr := cmdFile.Write([]byte{constants.CmdIsAlive}); werr != nil {
		return ProceedFresh, 0, errors.Wrap(werr, errors.LivenessProbeFailed)
	}

	respByte, timedOut, rerr := selectRead(probeFile, waitTime)
	if rerr != nil {
		return ProceedFresh, 0, errors.Wrap(rerr, errors.LivenessProbeFailed)
	}

	if timedOut {
		l.Warn("liveness probe timed out, assuming crashed prior instance", "work_dir", workDir)
		manifestBuf, rerr := os.ReadFile(manifestPath)
		if rerr != nil {
			return ProceedFresh, 0, errors.Wrap(rerr, errors.LivenessProbeFailed)
		}
		m, derr := DecodeManifest(manifestBuf)
		if derr != nil {
			return ProceedFresh, 0, derr
		}
		for _, pid := range m.AllPIDs() {
			if pid <= 0 {
				continue
			}
			if sigErr := unix.Kill(int(pid), unix.SIGINT); sigErr != nil {
				l.Debug("signal to stale PID failed (likely already gone)", "pid", pid, "error", sigErr.Error())
			}
		}
		return ProceedAfterCrashCleanup, 0, nil
	}

	switch respByte {
	case constants.CmdAckn:
		return AnotherInstanceAlive, 0, nil
	case constants.CmdAcknStopped:
		return AnotherInstanceAlive, 1, nil
	default:
		return ProceedFresh, 0, errors.New(errors.LivenessDuplicateCtl, "garbage on probe FIFO")
	}
}

// selectRead waits up to wait for a single byte to become available
// on the non-blocking probe FIFO f, polling since a plain *os.File
// over a FIFO has no portable select/epoll registration path; the
// poll interval is short enough that the effective latency matches a
// true select within the probe's own noise budget. A non-blocking
// FIFO read with nothing buffered yet returns EAGAIN (n == 0, err !=
// nil), which is simply the "not yet" case and is not itself an
// error.
func selectRead(f *os.File, wait time.Duration) (b byte, timedOut bool, err error) {
	deadline := time.Now().Add(wait)
	buf := make([]byte, 1)
	for time.Now().Before(deadline) {
		n, _ := f.Read(buf)
		if n == 1 {
			return buf[0], false, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return 0, true, nil
}
