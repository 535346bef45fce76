// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor implements component E: the process that owns
// liveness defeat, FIFO initialization, MSA rebuild, and the worker
// process table for every configured remote (§4.E).
package supervisor

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/alerting"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/afdmon/pkg/fifo"
	"github.com/stratastor/afdmon/pkg/identity"
	"github.com/stratastor/afdmon/pkg/liveness"
	"github.com/stratastor/afdmon/pkg/msa"
	"github.com/stratastor/logger"
)

// Supervisor is the top-level controller process (§4.E).
type Supervisor struct {
	workDir       string
	configPath    string
	l             logger.Logger
	alerter       *alerting.Notifier
	store         *msa.Store
	table         *ProcessTable
	maint         *Maintenance
	resolver      *identity.Resolver
	selfPIDSysLog int32
	selfPIDMonLog int32

	maxRestarts   int
	restartWindow time.Duration

	entries []*afdconfig.ConfigEntry
}

// New constructs a Supervisor rooted at workDir, which holds
// fifodir/ and rlog/ (§6.1). resolver may be nil, in which case
// convert_username pairs are used as parsed, unvalidated against any
// directory group. maxRestarts <= 0 disables crash-loop escalation.
func New(workDir, configPath string, l logger.Logger, alerter *alerting.Notifier, resolver *identity.Resolver, maxRestarts int, restartWindow time.Duration) *Supervisor {
	return &Supervisor{
		workDir: workDir, configPath: configPath, l: l, alerter: alerter, resolver: resolver,
		maxRestarts: maxRestarts, restartWindow: restartWindow,
	}
}

// Start runs the full §4.E startup sequence: liveness defeat, FIFO
// init, MSA rebuild, process table population. It returns only once
// the controller is up (or fatally fails to start); ongoing operation
// runs on the Maintenance scheduler that Start launches.
func (s *Supervisor) Start() (exitNow bool, exitCode int, err error) {
	fifoDir := filepath.Join(s.workDir, constants.FifoDirName)
	if err := os.MkdirAll(fifoDir, 0755); err != nil {
		return true, 1, errors.Wrap(err, errors.SupervisorStartFailed)
	}

	outcome, code, err := liveness.Probe(fifoDir, 5*time.Second, s.l)
	if err != nil {
		return true, 1, err
	}
	if outcome == liveness.AnotherInstanceAlive {
		s.l.Warn("another controller is already live for this work directory", "work_dir", s.workDir)
		return true, code, nil
	}

	if err := s.initFIFOs(fifoDir); err != nil {
		return true, 1, err
	}

	entries, err := s.loadDomainConfig()
	if err != nil {
		return true, 1, err
	}
	s.entries = entries

	store, err := msa.Rebuild(fifoDir, entries, s.l)
	if err != nil {
		return true, 1, errors.Wrap(err, errors.SupervisorStartFailed)
	}
	s.store = store

	table, err := NewProcessTable(entries, s.workDir, s.l)
	if err != nil {
		return true, 1, err
	}
	s.table = table
	table.SetRestartPolicy(s.maxRestarts, s.restartWindow, s.FatalExit)

	if err := table.StartAll(); err != nil {
		return true, 1, err
	}

	if err := s.publishManifest(); err != nil {
		s.l.Warn("failed to publish mon_active manifest", "error", err.Error())
	}

	s.maint = NewMaintenance(s, s.l)
	if err := s.maint.Start(); err != nil {
		return true, 1, err
	}

	return false, 0, nil
}

// initFIFOs creates mon_cmd, mon_resp, mon_log, and probe_only if
// missing (§4.E step ii).
func (s *Supervisor) initFIFOs(fifoDir string) error {
	for _, name := range []string{
		constants.MonCmdFifoName, constants.MonRespFifoName,
		constants.MonLogFifoName, constants.ProbeOnlyFifoName,
	} {
		if err := fifo.Ensure(filepath.Join(fifoDir, name), 0644); err != nil {
			return err
		}
	}
	return nil
}

// loadDomainConfig reads and validates AFD_MON_CONFIG.
func (s *Supervisor) loadDomainConfig() ([]*afdconfig.ConfigEntry, error) {
	f, err := os.Open(s.configPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.SupervisorConfigReload).WithMetadata("path", s.configPath)
	}
	defer f.Close()

	entries, err := afdconfig.Parse(bufio.NewReader(f), s.l)
	if err != nil {
		return nil, err
	}
	if err := afdconfig.Validate(entries); err != nil {
		return nil, err
	}
	if s.resolver != nil {
		for _, e := range entries {
			e.ConvertUsername = s.resolver.Resolve(e)
		}
	}
	return entries, nil
}

// publishManifest writes mon_active from the current process table
// (§4.E step iv, §4.D).
func (s *Supervisor) publishManifest() error {
	fifoDir := filepath.Join(s.workDir, constants.FifoDirName)
	m := &liveness.Manifest{
		SupervisorPID: int32(os.Getpid()),
		SysLogPID:     s.selfPIDSysLog,
		MonLogPID:     s.selfPIDMonLog,
	}
	for _, slot := range s.table.Slots() {
		if slot.Disabled {
			continue
		}
		m.Workers = append(m.Workers, liveness.WorkerPIDs{
			MonPID: int32(slot.MonPID),
			LogPID: int32(slot.LogPID),
		})
	}
	return liveness.WriteManifest(fifoDir, m)
}

// Reload re-runs the config loader and reconciles the process table
// and MSA without restarting the supervisor itself (§4.E SIGHUP).
// Registered via lifecycle.RegisterReloadHook by the caller.
func (s *Supervisor) Reload() {
	entries, err := s.loadDomainConfig()
	if err != nil {
		s.l.Error("config reload failed, keeping previous configuration", "error", err.Error())
		return
	}

	fifoDir := filepath.Join(s.workDir, constants.FifoDirName)
	store, err := msa.Rebuild(fifoDir, entries, s.l)
	if err != nil {
		s.l.Error("MSA rebuild failed during reload", "error", err.Error())
		return
	}
	s.store = store
	s.entries = entries

	s.table.Reconcile(entries)
	if err := s.publishManifest(); err != nil {
		s.l.Warn("failed to republish mon_active after reload", "error", err.Error())
	}
}

// Shutdown broadcasts SIGINT to every worker and unlinks mon_active
// (§4.E "On SIGTERM").
func (s *Supervisor) Shutdown() {
	if s.maint != nil {
		s.maint.Stop()
	}
	if s.table != nil {
		s.table.KillAll()
	}
	fifoDir := filepath.Join(s.workDir, constants.FifoDirName)
	if err := liveness.RemoveManifest(fifoDir); err != nil {
		s.l.Warn("failed to remove mon_active on shutdown", "error", err.Error())
	}
	if s.store != nil {
		s.store.Detach()
	}
	if s.resolver != nil {
		s.resolver.Close()
	}
}

// FatalExit is called when the supervisor itself must give up (e.g.
// repeated restart-backoff exhaustion): it logs, fires the webhook
// alert, and exits the whole controller (§7 "escalate to the
// supervisor, which logs and exits the whole controller").
func (s *Supervisor) FatalExit(reason string) {
	s.l.Error("supervisor fatal exit", "reason", reason)
	if s.alerter != nil {
		s.alerter.NotifyFatal(reason)
	}
	s.Shutdown()
	os.Exit(1)
}
