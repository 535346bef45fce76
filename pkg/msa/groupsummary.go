// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
)

// updateGroupSummary implements §4.B's group aggregation rule: every
// group-header row (rcmd == "") summarizes the contiguous run of
// non-header rows that immediately follows it in config order, up to
// (but not including) the next group header or end of list. A group
// header itself is never a member of any other group, even when
// nested groups appear back to back in the config file.
func updateGroupSummary(entries []*afdconfig.ConfigEntry, rows []*Row) error {
	if len(entries) != len(rows) {
		return errors.New(errors.MsaGroupSummaryError, "entries and rows length mismatch")
	}

	i := 0
	for i < len(entries) {
		if !entries[i].IsGroupHeader() {
			i++
			continue
		}

		header := rows[i]
		j := i + 1
		status := StatusDisabled
		amg, fd, archive := CompStopped, CompStopped, CompStopped
		var lastData int64
		var jobsInQueue, noOfTransfers, maxConnections, hostErr, noOfHosts, noOfDirs, noOfJobs, dangerJobs int64
		var fc, fs, tr, fr, ec int64
		var logHistory [LogHistoryKinds][LogHistorySlots]LogCategory
		memberCount := 0

		for j < len(entries) && !entries[j].IsGroupHeader() {
			m := rows[j]
			if memberCount == 0 {
				status = m.ConnectStatus
				amg, fd, archive = m.AMG, m.FD, m.ArchiveWatch
			} else {
				status = maxStatus(status, m.ConnectStatus)
				amg = minComponentStatus(amg, m.AMG)
				fd = minComponentStatus(fd, m.FD)
				archive = minComponentStatus(archive, m.ArchiveWatch)
			}
			if m.LastDataTime > lastData {
				lastData = m.LastDataTime
			}
			jobsInQueue += m.JobsInQueue
			noOfTransfers += m.NoOfTransfers
			maxConnections += m.Sum.Connections[CurrentSumBucket]
			hostErr += m.HostErrorCounter
			noOfHosts += m.NoOfHosts
			noOfDirs += m.NoOfDirs
			noOfJobs += m.NoOfJobs
			dangerJobs += m.DangerNoOfJobs
			fc += m.FC
			fs += m.FS
			tr += m.TR
			fr += m.FR
			ec += m.EC
			for k := 0; k < LogHistoryKinds; k++ {
				for s := 0; s < LogHistorySlots; s++ {
					if m.LogHistory[k][s] > logHistory[k][s] {
						logHistory[k][s] = m.LogHistory[k][s]
					}
				}
			}
			memberCount++
			j++
		}

		if memberCount > 0 {
			header.ConnectStatus = status
			header.AMG, header.FD, header.ArchiveWatch = amg, fd, archive
			header.LastDataTime = lastData
			header.LogHistory = logHistory
		}
		header.JobsInQueue = jobsInQueue
		header.NoOfTransfers = noOfTransfers
		header.Sum.Connections[CurrentSumBucket] = maxConnections
		header.HostErrorCounter = hostErr
		header.NoOfHosts = noOfHosts
		header.NoOfDirs = noOfDirs
		header.NoOfJobs = noOfJobs
		header.DangerNoOfJobs = dangerJobs
		header.FC = fc
		header.FS = fs
		header.TR = tr
		header.FR = fr
		header.EC = ec

		if header.NoOfTransfers > header.TopNoOfTransfers[0] {
			header.TopNoOfTransfers[0] = header.NoOfTransfers
		}
		if header.TR > header.TopTR[0] {
			header.TopTR[0] = header.TR
		}
		if header.FR > header.TopFR[0] {
			header.TopFR[0] = header.FR
		}

		i = j
	}

	return nil
}
