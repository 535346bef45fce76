// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package monitor implements component F: the per-remote polling
// worker that keeps one MSA row's liveness and counters fresh (§4.F).
package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
	"github.com/stratastor/afdmon/pkg/msa"
	"github.com/stratastor/afdmon/pkg/replyclient"
	"github.com/stratastor/logger"
)

// pollCommand is the remote protocol's single status-retrieval
// command; the worker issues it in a tight loop and parses the
// counters and component statuses out of the reply payload.
const pollCommand = "STAT"

// Worker polls one configured remote and keeps its MSA row current.
type Worker struct {
	index int
	entry *afdconfig.ConfigEntry
	store *msa.Store
	l     logger.Logger

	client *replyclient.Client
	done   chan struct{}
}

// New builds a Worker for the row at index, attached to store.
func New(index int, entry *afdconfig.ConfigEntry, store *msa.Store, l logger.Logger) *Worker {
	return &Worker{index: index, entry: entry, store: store, l: l}
}

// Run is the worker's main loop (§4.F). It returns only on a fatal
// configuration change signaled by the supervisor (closing stop) or
// an unrecoverable MSA error.
func (w *Worker) Run(stop <-chan struct{}) error {
	row := w.store.RowByAlias(w.entry.Alias)
	if row == nil {
		return errors.New(errors.MonitorRowMissing, w.entry.Alias)
	}

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := w.connectAndPoll(row, stop); err != nil {
			w.l.Warn("monitor session ended", "alias", w.entry.Alias, "error", err.Error())
		}

		row.ConnectStatus = msa.StatusDefunct
		w.publish(row)

		select {
		case <-stop:
			return nil
		case <-time.After(time.Duration(w.entry.ConnectTimeS) * time.Second):
		}
	}
}

// connectAndPoll implements §4.F steps 1-4 for a single connection
// lifetime: attach/mark connecting, connect, poll loop, and the
// eventual disconnect/timeout exit back to Run's reconnect loop.
func (w *Worker) connectAndPoll(row *msa.Row, stop <-chan struct{}) error {
	toggle := row.AfdToggle & 1
	row.ConnectStatus = msa.StatusConnecting
	w.publish(row)

	host := w.entry.ActiveHost(toggle)
	port := w.entry.ActivePort(toggle)

	w.client = replyclient.New(time.Duration(w.entry.ConnectTimeS) * time.Second)
	encrypt := w.entry.Options.Has(afdconfig.OptEnableTLS)
	if err := w.client.Connect(host, port, false, encrypt); err != nil {
		return errors.Wrap(err, errors.MonitorConnectFailed).WithMetadata("alias", w.entry.Alias)
	}
	defer w.client.Quit()

	row.ConnectStatus = msa.StatusConnected
	w.publish(row)

	pollInterval := time.Duration(w.entry.PollIntervalS) * time.Second
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := w.pollOnce(row); err != nil {
			return err
		}
		w.publish(row)

		select {
		case <-stop:
			return nil
		case <-time.After(pollInterval):
		}
	}
}

// pollOnce issues one STAT exchange and updates row's counters and
// component statuses from the reply (§4.F step 3).
func (w *Worker) pollOnce(row *msa.Row) error {
	if err := w.client.Command(pollCommand); err != nil {
		return errors.Wrap(err, errors.MonitorConnectFailed)
	}

	code, line, err := w.client.ReadReplyLine()
	if err != nil {
		return errors.Wrap(err, errors.MonitorConnectFailed)
	}
	if !replyclient.CheckReply(code, 211) {
		return errors.New(errors.MonitorSyntaxError, fmt.Sprintf("unexpected STAT reply code %d", code))
	}

	applyStatLine(row, line)
	row.LastDataTime = time.Now().Unix()
	return nil
}

// applyStatLine parses the STAT reply payload into row's instantaneous
// counters and component statuses (§4.F step 3). The payload is a
// space-separated list of key=value fields; unrecognized keys are
// ignored so the worker tolerates a remote ahead on protocol version.
func applyStatLine(row *msa.Row, line string) {
	for _, field := range strings.Fields(line) {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "amg":
			row.AMG = componentStatusFromString(val)
		case "fd":
			row.FD = componentStatusFromString(val)
		case "archive_watch":
			row.ArchiveWatch = componentStatusFromString(val)
		case "jobs_in_queue":
			row.JobsInQueue = parseInt64(val)
		case "no_of_transfers":
			row.NoOfTransfers = parseInt64(val)
		case "host_error_counter":
			row.HostErrorCounter = parseInt64(val)
		case "no_of_hosts":
			row.NoOfHosts = parseInt64(val)
		case "no_of_dirs":
			row.NoOfDirs = parseInt64(val)
		case "no_of_jobs":
			row.NoOfJobs = parseInt64(val)
		case "danger_no_of_jobs":
			row.DangerNoOfJobs = parseInt64(val)
		case "fc":
			row.FC = parseInt64(val)
		case "fs":
			row.FS = parseInt64(val)
		case "tr":
			row.TR = parseInt64(val)
		case "fr":
			row.FR = parseInt64(val)
		case "ec":
			row.EC = parseInt64(val)
		}
	}

	row.Sum.BytesSent[msa.CurrentSumBucket] += float64(row.TR)
	row.Sum.BytesReceived[msa.CurrentSumBucket] += float64(row.FR)
	row.Sum.FilesSent[msa.CurrentSumBucket] += row.FS
	row.Sum.FilesReceived[msa.CurrentSumBucket] += row.FC
	row.Sum.TotalErrors[msa.CurrentSumBucket] += row.EC
	row.Sum.Connections[msa.CurrentSumBucket]++
	row.SpecialFlag |= msa.SumValuesInitialized
}

// componentStatusFromString maps the reply payload's component state
// words onto ComponentStatus, defaulting unknown words to CompUnknown
// rather than silently leaving the field at its previous value.
func componentStatusFromString(s string) msa.ComponentStatus {
	switch s {
	case "stopped":
		return msa.CompStopped
	case "starting":
		return msa.CompStarting
	case "running":
		return msa.CompRunning
	case "shutting_down":
		return msa.CompShuttingDown
	default:
		return msa.CompUnknown
	}
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// publish writes row back into its MSA slot (§4.F "publishes into its
// MSA slot on the poll cadence").
func (w *Worker) publish(row *msa.Row) {
	if err := w.store.UpdateRow(w.index, row); err != nil {
		w.l.Warn("failed to publish row update", "alias", w.entry.Alias, "error", err.Error())
	}
}
