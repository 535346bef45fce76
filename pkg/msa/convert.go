// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"encoding/binary"
	"math"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
)

// rowSizeV0 through rowSizeV2 are the legacy, narrower on-disk row
// layouts a rebuild may still encounter from a region that predates
// this build (§4.B "Conversion rules"). Each predecessor layout drops
// fields the current one carries: v0 has no top-N-over-time arrays and
// stores sum counters as integers; v1 adds the top-N arrays; v2
// widens sum counters to float and adds the log-capabilities word but
// is still missing the options bitset and special_flag.
const (
	rowSizeV0 = aliasFieldLen + 2*hostFieldLen + 4*2 +
		1 + 1 +
		1 + 1 + 1 +
		8*12 +
		8*SumBuckets*3 + 8*SumBuckets*4 +
		LogHistoryKinds*LogHistorySlots +
		8 + 4

	rowSizeV1 = rowSizeV0 + 8*3*TopN + 8*3*TopN

	rowSizeV2 = rowSizeV1 + 4 /*logCapabilities*/
)

// ConvertRows upgrades a flat buffer of count rows at fromVersion into
// v3 Row values. Conversion is a straight chain: v0->v1->v2->v3, each
// step only ever adding fields (never reinterpreting an existing one),
// so a v0 region converts by running all three steps in sequence.
func ConvertRows(buf []byte, fromVersion uint8, count int32) ([]*Row, error) {
	if fromVersion > CurrentVersion {
		return nil, errors.New(errors.MsaConversionFailed, "source version newer than this build supports")
	}

	switch fromVersion {
	case CurrentVersion:
		return decodeRowsAtSize(buf, int(count), RowSize, CurrentVersion)
	case 2:
		rows, err := decodeRowsAtSize(buf, int(count), rowSizeV2, 2)
		if err != nil {
			return nil, err
		}
		return convertV2ToV3(rows), nil
	case 1:
		rows, err := decodeRowsAtSize(buf, int(count), rowSizeV1, 1)
		if err != nil {
			return nil, err
		}
		return convertV2ToV3(convertV1ToV2(rows)), nil
	case 0:
		rows, err := decodeRowsAtSize(buf, int(count), rowSizeV0, 0)
		if err != nil {
			return nil, err
		}
		return convertV2ToV3(convertV1ToV2(convertV0ToV1(rows))), nil
	default:
		return nil, errors.New(errors.MsaConversionFailed, "unrecognized source version")
	}
}

// decodeRowsAtSize decodes count rows at rowSize-byte strides. For the
// current version this delegates straight to DecodeRow; for legacy
// sizes it decodes the shared leading fields only (identity, liveness,
// counters, log history) common to every version, and leaves the
// version-specific fields at their zero value for the subsequent
// convert step to fill in.
func decodeRowsAtSize(buf []byte, count, rowSize int, version uint8) ([]*Row, error) {
	if len(buf) < count*rowSize {
		return nil, errors.New(errors.MsaTruncatedFile, "row data shorter than declared count")
	}

	rows := make([]*Row, count)
	for i := 0; i < count; i++ {
		start := i * rowSize
		if version == CurrentVersion {
			rows[i] = DecodeRow(buf[start : start+rowSize])
			continue
		}
		rows[i] = decodeLegacyCommon(buf[start:start+rowSize], version)
	}
	return rows, nil
}

// readIntBuckets reads n consecutive [SumBuckets]int64 arrays,
// advancing off.
func readIntBuckets(buf []byte, off *int, n int) [][SumBuckets]int64 {
	out := make([][SumBuckets]int64, n)
	for i := range out {
		for j := range out[i] {
			out[i][j] = int64(binary.LittleEndian.Uint64(buf[*off:]))
			*off += 8
		}
	}
	return out
}

// decodeLegacyCommon decodes the fields present in every schema
// version, in their stable leading order, leaving fields introduced by
// a later version zeroed.
func decodeLegacyCommon(buf []byte, version uint8) *Row {
	r := &Row{}
	off := 0

	r.Alias = getString(buf, &off, aliasFieldLen)
	r.Host[0] = getString(buf, &off, hostFieldLen)
	r.Host[1] = getString(buf, &off, hostFieldLen)
	r.Port[0] = int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	r.Port[1] = int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4

	r.ConnectStatus = ConnectStatus(buf[off])
	off++
	r.AfdToggle = int(buf[off])
	off++

	r.AMG = ComponentStatus(buf[off])
	off++
	r.FD = ComponentStatus(buf[off])
	off++
	r.ArchiveWatch = ComponentStatus(buf[off])
	off++

	fields := []*int64{
		&r.JobsInQueue, &r.NoOfTransfers, &r.HostErrorCounter, &r.NoOfHosts,
		&r.NoOfDirs, &r.NoOfJobs, &r.DangerNoOfJobs, &r.FC, &r.FS, &r.TR, &r.FR, &r.EC,
	}
	for _, f := range fields {
		*f = int64(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}

	if version >= 1 {
		for _, arr := range []*[TopN]int64{&r.TopNoOfTransfers, &r.TopTR, &r.TopFR} {
			for i := range arr {
				arr[i] = int64(binary.LittleEndian.Uint64(buf[off:]))
				off += 8
			}
		}
		for _, arr := range []*[TopN]int64{&r.TopNoOfTransfersTime, &r.TopTRTime, &r.TopFRTime} {
			for i := range arr {
				arr[i] = int64(binary.LittleEndian.Uint64(buf[off:]))
				off += 8
			}
		}
	}

	// v0/v1 store sum counters as plain integers; v2+ stores float.
	// Either way every version carries the same seven buckets in the
	// same order, so read them uniformly and only decide afterward
	// whether the first three need widening to float.
	if version < 2 {
		buckets := readIntBuckets(buf, &off, 7)
		for i := 0; i < SumBuckets; i++ {
			r.Sum.BytesSent[i] = float64(buckets[0][i])
			r.Sum.BytesReceived[i] = float64(buckets[1][i])
			r.Sum.LogBytesReceived[i] = float64(buckets[2][i])
		}
		r.Sum.FilesSent = buckets[3]
		r.Sum.FilesReceived = buckets[4]
		r.Sum.Connections = buckets[5]
		r.Sum.TotalErrors = buckets[6]
	} else {
		for _, arr := range []*[SumBuckets]float64{&r.Sum.BytesSent, &r.Sum.BytesReceived, &r.Sum.LogBytesReceived} {
			for i := range arr {
				arr[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
				off += 8
			}
		}
		for _, arr := range []*[SumBuckets]int64{&r.Sum.FilesSent, &r.Sum.FilesReceived, &r.Sum.Connections, &r.Sum.TotalErrors} {
			for i := range arr {
				arr[i] = int64(binary.LittleEndian.Uint64(buf[off:]))
				off += 8
			}
		}
	}

	for k := 0; k < LogHistoryKinds; k++ {
		for s := 0; s < LogHistorySlots; s++ {
			r.LogHistory[k][s] = LogCategory(buf[off])
			off++
		}
	}

	r.LastDataTime = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	r.AfdID = binary.LittleEndian.Uint32(buf[off:])

	return r
}

// convertV0ToV1 has no field work to do: v0's counters are already
// read into their v1 slots by decodeLegacyCommon, and v0 simply never
// populated the top-N arrays, which is already their zero value.
func convertV0ToV1(rows []*Row) []*Row { return rows }

// convertV1ToV2 leaves the log-capabilities word a v1 region never
// had at zero (no log kinds).
func convertV1ToV2(rows []*Row) []*Row {
	for _, r := range rows {
		if r.LogCapabilities == 0 {
			r.LogCapabilities = afdconfig.Options(0)
		}
	}
	return rows
}

// convertV2ToV3 is the final step: v2 has no Options bitset or
// special_flag, so both default to zero (no options set), and the sum
// buckets carried over from an older generation are marked
// initialized so the monitor worker doesn't re-zero them.
func convertV2ToV3(rows []*Row) []*Row {
	for _, r := range rows {
		r.SpecialFlag |= SumValuesInitialized
	}
	return rows
}
