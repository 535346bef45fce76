// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package msa implements component B: the versioned, memory-mapped
// Monitor Status Area (§3, §4.B).
package msa

import (
	"encoding/binary"
	"os"

	"github.com/stratastor/afdmon/pkg/errors"
)

// CurrentVersion is the schema version this build writes on rebuild.
const CurrentVersion = 3

// HeaderSize is the 16-byte prefix on the mapped file (§3.1 MsaHeader).
const HeaderSize = 16

// StaleCount is the sentinel written to Header.Count to mark a region
// stale during the swap protocol (§3.2).
const StaleCount int32 = -1

// AfdWordOffset is where row 0 begins; kept distinct from HeaderSize
// in case future header fields grow without reshaping rows, matching
// the original layout's padded word boundary.
const AfdWordOffset = HeaderSize

// Header is the 16-byte prefix: [i32 count][u8 pagesize-indicator][u8
// reserved][u8 reserved][u8 version][i32 pagesize][4 reserved bytes].
type Header struct {
	Count     int32
	PageSizeIndicator uint8
	Reserved1 uint8
	Reserved2 uint8
	Version   uint8
	PageSize  int32
	Reserved3 [4]byte
}

// IsStale reports whether this header marks its region as stale
// (§3.2, §8.3: "count == -1 ... under all conditions, including
// immediately after map").
func (h *Header) IsStale() bool { return h.Count == StaleCount }

// EncodeHeader serializes h into HeaderSize bytes, little-endian to
// match the host's native mmap word order.
func EncodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Count))
	buf[4] = h.PageSizeIndicator
	buf[5] = h.Reserved1
	buf[6] = h.Reserved2
	buf[7] = h.Version
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.PageSize))
	copy(buf[12:16], h.Reserved3[:])
	return buf
}

// DecodeHeader parses HeaderSize bytes into a Header. Any version
// byte outside {0,1,2,3} or a count that is neither non-negative nor
// the -1 sentinel is reported as corrupt (§7 taxonomy item iv).
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, errors.New(errors.MsaTruncatedFile, "header shorter than 16 bytes")
	}

	h := &Header{
		Count:             int32(binary.LittleEndian.Uint32(buf[0:4])),
		PageSizeIndicator: buf[4],
		Reserved1:         buf[5],
		Reserved2:         buf[6],
		Version:           buf[7],
		PageSize:          int32(binary.LittleEndian.Uint32(buf[8:12])),
	}
	copy(h.Reserved3[:], buf[12:16])

	if h.Version > CurrentVersion {
		return nil, errors.New(errors.MsaHeaderCorrupt, "version byte out of range")
	}
	if h.Count < 0 && h.Count != StaleCount {
		return nil, errors.New(errors.MsaHeaderCorrupt, "negative row count other than the stale sentinel")
	}

	return h, nil
}

// writeZeroFilledFile pre-allocates path to exactly size bytes of
// zeros, the way rebuild() pre-sizes a fresh backing file before
// mmap (§4.B step 4).
func writeZeroFilledFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, errors.MsaRebuildFailed).WithMetadata("path", path)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return errors.Wrap(err, errors.MsaRebuildFailed).WithMetadata("path", path)
	}
	return nil
}
