// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/logger"
)

// Maintenance runs the supervisor's periodic, as-opposed-to-event-driven
// background jobs: rolling-sum bucket rotation, group-summary refresh
// (§3.1 "six rolling windows", §4.B "update_group_summary") and
// worker reaping.
type Maintenance struct {
	sched gocron.Scheduler
	sup   *Supervisor
	l     logger.Logger
}

// bucketRotationInterval is how often the current sum bucket advances
// (CurrentSumBucket rolls into the next of SumBuckets windows).
const bucketRotationInterval = 10 * time.Minute

// groupSummaryInterval refreshes group header aggregates between
// rebuilds, so a group's status reflects member changes that happen
// between config reloads (a member's connect_status flipping, not its
// presence in the config).
const groupSummaryInterval = 30 * time.Second

// NewMaintenance builds the scheduler for sup.
func NewMaintenance(sup *Supervisor, l logger.Logger) *Maintenance {
	return &Maintenance{sup: sup, l: l}
}

// Start creates the gocron scheduler and registers all three jobs.
func (m *Maintenance) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return errors.Wrap(err, errors.SupervisorSchedulerError)
	}
	m.sched = sched

	if _, err := m.sched.NewJob(
		gocron.DurationJob(bucketRotationInterval),
		gocron.NewTask(m.rotateBuckets),
	); err != nil {
		return errors.Wrap(err, errors.SupervisorSchedulerError).WithMetadata("job", "bucket_rotation")
	}

	if _, err := m.sched.NewJob(
		gocron.DurationJob(groupSummaryInterval),
		gocron.NewTask(m.refreshGroupSummary),
	); err != nil {
		return errors.Wrap(err, errors.SupervisorSchedulerError).WithMetadata("job", "group_summary")
	}

	if _, err := m.sched.NewJob(
		gocron.DurationJob(5*time.Second),
		gocron.NewTask(m.reapWorkers),
	); err != nil {
		return errors.Wrap(err, errors.SupervisorSchedulerError).WithMetadata("job", "reap_workers")
	}

	m.sched.Start()
	return nil
}

// Stop shuts down the scheduler, used from Supervisor.Shutdown.
func (m *Maintenance) Stop() {
	if m.sched == nil {
		return
	}
	if err := m.sched.Shutdown(); err != nil {
		m.l.Warn("maintenance scheduler shutdown error", "error", err.Error())
	}
}

// rotateBuckets advances every row's current sum-counter bucket,
// zeroing the new current window so monitor workers accumulate into a
// fresh slot (§3.1 "rolling windows").
func (m *Maintenance) rotateBuckets() {
	if m.sup.store == nil {
		return
	}
	if err := m.sup.store.RotateBuckets(); err != nil {
		m.l.Warn("bucket rotation failed", "error", err.Error())
	}
}

// refreshGroupSummary re-aggregates every group header from its
// members' current state, independent of the next config-driven
// rebuild (§4.B "Group aggregation" applies continuously, not just at
// rebuild time).
func (m *Maintenance) refreshGroupSummary() {
	if m.sup.store == nil || len(m.sup.entries) == 0 {
		return
	}
	if err := m.sup.store.RefreshGroupSummary(m.sup.entries); err != nil {
		m.l.Warn("group summary refresh failed", "error", err.Error())
	}
}

// reapWorkers delegates to the process table's restart policy
// (§4.E "Scheduling").
func (m *Maintenance) reapWorkers() {
	if m.sup.table == nil {
		return
	}
	m.sup.table.ReapAndRestart()
}
