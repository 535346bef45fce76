// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"hash/crc32"

	"github.com/stratastor/afdmon/pkg/afdconfig"
)

// ConnectStatus mirrors §3.1 "Liveness": connect_status.
type ConnectStatus int

const (
	StatusDisconnected ConnectStatus = iota
	StatusConnecting
	StatusConnected
	StatusDefunct
	StatusDisabled
)

// rank orders statuses for group-summary "maximum" aggregation (§4.B
// "disabled < disconnected < defunct < connected").
func (s ConnectStatus) rank() int {
	switch s {
	case StatusDisabled:
		return 0
	case StatusDisconnected:
		return 1
	case StatusDefunct:
		return 2
	case StatusConnecting:
		return 2 // same rank as defunct
	case StatusConnected:
		return 3
	default:
		return 0
	}
}

func maxStatus(a, b ConnectStatus) ConnectStatus {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}

// ComponentStatus mirrors §3.1 amg/fd/archive_watch.
type ComponentStatus int

const (
	CompStopped ComponentStatus = iota
	CompStarting
	CompRunning
	CompShuttingDown
	CompUnknown
)

// minComponentStatus implements §4.B's group rule: minimum state,
// except (running, shutting_down) sticks to shutting_down — a
// partial shutdown always wins over an apparently-running sibling.
func minComponentStatus(a, b ComponentStatus) ComponentStatus {
	if (a == CompRunning && b == CompShuttingDown) || (a == CompShuttingDown && b == CompRunning) {
		return CompShuttingDown
	}
	if a <= b {
		return a
	}
	return b
}

// LogCategory is one cell of the §3.1 log history grid.
type LogCategory uint8

const (
	LogNone LogCategory = iota
	LogInfo
	LogWarn
	LogError
	LogConfig
	LogFaulty
	LogOffline
)

const (
	// LogHistoryKinds is the grid's first dimension ([kind=3]).
	LogHistoryKinds = 3
	// LogHistorySlots is the grid's second dimension ([history=48]).
	LogHistorySlots = 48
	// TopN is the length of the top-N-over-time arrays (§3.1).
	TopN = 7
	// SumBuckets is the number of rolling windows per counter (§3.1).
	SumBuckets = 6
)

// SpecialFlag bits (§3.1 special_flag).
type SpecialFlag uint32

const SumValuesInitialized SpecialFlag = 0x01

// SumCounters groups the six-rolling-window counters that exist in
// both integer (v0/v1) and float (v2+) form; Row always stores the
// float form, and integer sums from older layouts are widened on
// conversion.
type SumCounters struct {
	BytesSent        [SumBuckets]float64
	BytesReceived    [SumBuckets]float64
	LogBytesReceived [SumBuckets]float64
	FilesSent        [SumBuckets]int64
	FilesReceived    [SumBuckets]int64
	Connections      [SumBuckets]int64
	TotalErrors      [SumBuckets]int64
}

// CurrentSumBucket is the index of the "now" window that live
// counters accumulate into (§4.G "log_bytes_received[CURRENT_SUM]").
const CurrentSumBucket = 0

// rotateRowBuckets shifts every sum-counter array one slot toward the
// past (bucket i moves to i+1, the oldest bucket falls off) and clears
// CurrentSumBucket, the periodic rolling-window advance referenced in
// §3.1's "six rolling windows".
func rotateRowBuckets(r *Row) {
	rotateFloat := func(arr *[SumBuckets]float64) {
		for i := SumBuckets - 1; i > CurrentSumBucket; i-- {
			arr[i] = arr[i-1]
		}
		arr[CurrentSumBucket] = 0
	}
	rotateInt := func(arr *[SumBuckets]int64) {
		for i := SumBuckets - 1; i > CurrentSumBucket; i-- {
			arr[i] = arr[i-1]
		}
		arr[CurrentSumBucket] = 0
	}

	rotateFloat(&r.Sum.BytesSent)
	rotateFloat(&r.Sum.BytesReceived)
	rotateFloat(&r.Sum.LogBytesReceived)
	rotateInt(&r.Sum.FilesSent)
	rotateInt(&r.Sum.FilesReceived)
	rotateInt(&r.Sum.Connections)
	rotateInt(&r.Sum.TotalErrors)
}

// Row is the per-remote status record (§3.1 MsaRow), always held
// internally in its v3 (CurrentVersion) shape; older on-disk layouts
// are upgraded into this shape by ConvertRows before being used.
type Row struct {
	// Identity, mirrored from ConfigEntry at load/rebuild time.
	Alias string
	AfdID uint32

	Host [2]string
	Port [2]int

	// Liveness
	ConnectStatus ConnectStatus
	AfdToggle     int
	SpecialFlag   SpecialFlag

	// Component status
	AMG           ComponentStatus
	FD            ComponentStatus
	ArchiveWatch  ComponentStatus

	// Instantaneous counters
	JobsInQueue      int64
	NoOfTransfers    int64
	HostErrorCounter int64
	NoOfHosts        int64
	NoOfDirs         int64
	NoOfJobs         int64
	DangerNoOfJobs   int64
	FC               int64
	FS               int64
	TR               int64
	FR               int64
	EC               int64

	// Top-N-over-time
	TopNoOfTransfers     [TopN]int64
	TopTR                [TopN]int64
	TopFR                [TopN]int64
	TopNoOfTransfersTime [TopN]int64
	TopTRTime            [TopN]int64
	TopFRTime            [TopN]int64

	Sum SumCounters

	LogHistory [LogHistoryKinds][LogHistorySlots]LogCategory

	LogCapabilities afdconfig.Options
	Options         afdconfig.Options

	// LastDataTime is updated by the monitor worker on every poll and
	// by group aggregation (max over members).
	LastDataTime int64

	// Rcmd carries whether this row is a group header ("") for
	// update_group_summary's contiguous-run scan.
	Rcmd string
}

// IsGroupHeader reports whether this row aggregates the following
// contiguous run of non-group rows (§4.B "Group aggregation").
func (r *Row) IsGroupHeader() bool { return r.Rcmd == "" }

// NewRowFromEntry initializes a fresh row's config-derived fields
// from a ConfigEntry, and sets runtime defaults for a row that has no
// matching previous-MSA row to inherit from (§4.B rebuild step 6:
// "status = disabled where rcmd == '', else disconnected").
func NewRowFromEntry(e *afdconfig.ConfigEntry) *Row {
	r := &Row{
		Alias:   e.Alias,
		AfdID:   ChecksumAlias(e.Alias),
		Host:    e.Host,
		Port:    e.Port,
		Rcmd:    e.Rcmd,
		Options: e.Options,
	}

	if e.IsGroupHeader() {
		r.ConnectStatus = StatusDisabled
	} else {
		r.ConnectStatus = StatusDisconnected
	}
	r.AMG, r.FD, r.ArchiveWatch = CompStopped, CompStopped, CompStopped
	return r
}

// ChecksumAlias computes afd_id := checksum(alias) (§3.2). CRC-32 is
// used as the stable, collision-resistant-enough 32-bit checksum; the
// original's exact checksum algorithm is unspecified (§9 open
// question), so any stable 32-bit function satisfying the invariant
// "same alias -> same afd_id" fulfills the contract.
func ChecksumAlias(alias string) uint32 {
	return crc32.ChecksumIEEE([]byte(alias))
}

// ApplyConfigFields overwrites the config-derived fields of r from e,
// on every rebuild, leaving runtime fields (counters, history, sum
// buckets, afd_toggle, afd_id) untouched — those are handled
// separately by the gotcha-bitset carryover in store.go.
func (r *Row) ApplyConfigFields(e *afdconfig.ConfigEntry) {
	r.Alias = e.Alias
	r.Host = e.Host
	r.Port = e.Port
	r.Rcmd = e.Rcmd
	r.Options = e.Options
}
