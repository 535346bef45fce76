// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"encoding/binary"
	"math"

	"github.com/stratastor/afdmon/pkg/afdconfig"
)

// RowSize is the fixed on-disk footprint of one v3 Row. Strings
// (Alias, Host) are stored as fixed-width, NUL-padded byte fields so
// the region remains a flat array indexable by row number, matching
// the original's C-struct-of-arrays layout.
const (
	aliasFieldLen = 16
	hostFieldLen  = 40
	RowSize       = aliasFieldLen + 2*hostFieldLen + 4*2 /*port*/ +
		1 + 1 + 4 /*connectStatus,toggle,specialFlag*/ +
		1 + 1 + 1 /*amg,fd,archiveWatch*/ +
		8*12 /*instantaneous counters*/ +
		8*3*TopN /*top arrays*/ +
		8*3*TopN /*top array timestamps*/ +
		8*SumBuckets*3 /*float sum buckets: bytesSent,bytesReceived,logBytesReceived*/ +
		8*SumBuckets*4 /*int sum buckets: filesSent,filesReceived,connections,totalErrors*/ +
		LogHistoryKinds*LogHistorySlots +
		4 + 4 /*logCapabilities, options*/ +
		8 /*lastDataTime*/ +
		4 /*afdID*/
)

// EncodeRow serializes r into a RowSize-byte buffer at the MSA's
// native byte order.
func EncodeRow(r *Row) []byte {
	buf := make([]byte, RowSize)
	off := 0

	putString(buf, &off, r.Alias, aliasFieldLen)
	putString(buf, &off, r.Host[0], hostFieldLen)
	putString(buf, &off, r.Host[1], hostFieldLen)
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.Port[0]))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.Port[1]))
	off += 4

	buf[off] = byte(r.ConnectStatus)
	off++
	buf[off] = byte(r.AfdToggle)
	off++
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.SpecialFlag))
	off += 4

	buf[off] = byte(r.AMG)
	off++
	buf[off] = byte(r.FD)
	off++
	buf[off] = byte(r.ArchiveWatch)
	off++

	for _, v := range []int64{
		r.JobsInQueue, r.NoOfTransfers, r.HostErrorCounter, r.NoOfHosts,
		r.NoOfDirs, r.NoOfJobs, r.DangerNoOfJobs, r.FC, r.FS, r.TR, r.FR, r.EC,
	} {
		binary.LittleEndian.PutUint64(buf[off:], uint64(v))
		off += 8
	}

	for _, arr := range [][TopN]int64{r.TopNoOfTransfers, r.TopTR, r.TopFR} {
		for _, v := range arr {
			binary.LittleEndian.PutUint64(buf[off:], uint64(v))
			off += 8
		}
	}
	for _, arr := range [][TopN]int64{r.TopNoOfTransfersTime, r.TopTRTime, r.TopFRTime} {
		for _, v := range arr {
			binary.LittleEndian.PutUint64(buf[off:], uint64(v))
			off += 8
		}
	}

	for _, arr := range [][SumBuckets]float64{r.Sum.BytesSent, r.Sum.BytesReceived, r.Sum.LogBytesReceived} {
		for _, v := range arr {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
			off += 8
		}
	}
	for _, arr := range [][SumBuckets]int64{r.Sum.FilesSent, r.Sum.FilesReceived, r.Sum.Connections, r.Sum.TotalErrors} {
		for _, v := range arr {
			binary.LittleEndian.PutUint64(buf[off:], uint64(v))
			off += 8
		}
	}

	for k := 0; k < LogHistoryKinds; k++ {
		for s := 0; s < LogHistorySlots; s++ {
			buf[off] = byte(r.LogHistory[k][s])
			off++
		}
	}

	binary.LittleEndian.PutUint32(buf[off:], uint32(r.LogCapabilities))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.Options))
	off += 4

	binary.LittleEndian.PutUint64(buf[off:], uint64(r.LastDataTime))
	off += 8

	binary.LittleEndian.PutUint32(buf[off:], r.AfdID)
	off += 4

	return buf
}

// DecodeRow parses RowSize bytes into a Row. rcmd is not part of the
// on-disk row (group-header-ness is re-derived from config on every
// rebuild, see NewRowFromEntry), so callers must set r.Rcmd
// themselves from the corresponding ConfigEntry when one exists.
func DecodeRow(buf []byte) *Row {
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
	r.SpecialFlag = SpecialFlag(binary.LittleEndian.Uint32(buf[off:]))
	off += 4

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

	for k := 0; k < LogHistoryKinds; k++ {
		for s := 0; s < LogHistorySlots; s++ {
			r.LogHistory[k][s] = LogCategory(buf[off])
			off++
		}
	}

	r.LogCapabilities = afdconfig.Options(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	r.Options = afdconfig.Options(binary.LittleEndian.Uint32(buf[off:]))
	off += 4

	r.LastDataTime = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	r.AfdID = binary.LittleEndian.Uint32(buf[off:])
	off += 4

	return r
}

func putString(buf []byte, off *int, s string, width int) {
	n := copy(buf[*off:*off+width], s)
	for i := n; i < width; i++ {
		buf[*off+i] = 0
	}
	*off += width
}

func getString(buf []byte, off *int, width int) string {
	field := buf[*off : *off+width]
	*off += width
	n := 0
	for n < len(field) && field[n] != 0 {
		n++
	}
	return string(field[:n])
}
