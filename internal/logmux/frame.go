// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package logmux

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/errors"
)

// maxFrameTokenLen bounds a single numeric field of a frame header; a
// well-formed header never comes close to this, so exceeding it means
// the stream is not framed at all (§4.G "framing failure").
const maxFrameTokenLen = 32

// frameKind distinguishes the three grammar productions (§4.G):
//
//	frame   := packet | ocontrol | nop
type frameKind int

const (
	framePacket frameKind = iota
	frameOControl
	frameNop
)

// packetFrame is one parsed 'L' data frame.
type packetFrame struct {
	kind    afdconfig.LogKind
	options uint32
	pktNo   uint64
	payload []byte
}

// ocontrolFrame is one parsed 'O' control frame.
type ocontrolFrame struct {
	kind  afdconfig.LogKind
	inode uint64
	logNo int
}

// byteReader is the minimal surface readFrame needs; replyclient.Client
// satisfies it via its ReadByte method.
type byteReader interface {
	io.ByteReader
}

// readFrame reads exactly one frame off r and reports which grammar
// production it matched, along with the raw byte count consumed
// (headers inclusive), used for the row's log_bytes_received
// throughput accounting (§4.G "Packet handling", last bullet).
func readFrame(r byteReader) (frameKind, *packetFrame, *ocontrolFrame, int, error) {
	lead, err := r.ReadByte()
	if err != nil {
		return 0, nil, nil, 0, err
	}

	switch lead {
	case 'O':
		kindByte, err := r.ReadByte()
		if err != nil {
			return 0, nil, nil, 1, err
		}
		oc, n, err := readOControl(r, afdconfig.LogKind(kindByte))
		return frameOControl, nil, oc, 2 + n, err

	case 'L':
		kindByte, err := r.ReadByte()
		if err != nil {
			return 0, nil, nil, 1, err
		}
		if kindByte == 'N' {
			n, err := readNop(r)
			return frameNop, nil, nil, 2 + n, err
		}
		pkt, n, err := readPacket(r, afdconfig.LogKind(kindByte))
		return framePacket, pkt, nil, 2 + n, err

	default:
		return 0, nil, nil, 1, errors.New(errors.LogMuxFrameError,
			fmt.Sprintf("unexpected frame lead byte %q", lead))
	}
}

// readUntil accumulates bytes from r until one matching a byte in
// stops is read, returning the accumulated token (the stop byte
// itself is consumed but not included) and how many bytes were read
// in total, stop byte included.
func readUntil(r byteReader, stops ...byte) (string, int, error) {
	var sb strings.Builder
	n := 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", n, err
		}
		n++
		for _, s := range stops {
			if b == s {
				return sb.String(), n, nil
			}
		}
		sb.WriteByte(b)
		if sb.Len() > maxFrameTokenLen {
			return "", n, errors.New(errors.LogMuxFrameError, "frame token exceeds bound")
		}
	}
}

func readPacket(r byteReader, kind afdconfig.LogKind) (*packetFrame, int, error) {
	n := 0

	optStr, c, err := readUntil(r, ' ')
	n += c
	if err != nil {
		return nil, n, err
	}
	options, err := strconv.ParseUint(optStr, 10, 32)
	if err != nil {
		return nil, n, errors.New(errors.LogMuxFrameError, "malformed options field")
	}

	pktStr, c, err := readUntil(r, ' ')
	n += c
	if err != nil {
		return nil, n, err
	}
	pktno, err := strconv.ParseUint(pktStr, 10, 64)
	if err != nil {
		return nil, n, errors.New(errors.LogMuxFrameError, "malformed packet number field")
	}

	lenStr, c, err := readUntil(r, 0x00)
	n += c
	if err != nil {
		return nil, n, err
	}
	length, err := strconv.Atoi(lenStr)
	if err != nil || length < 0 {
		return nil, n, errors.New(errors.LogMuxFrameError, "malformed length field")
	}

	payload := make([]byte, length)
	for i := 0; i < length; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, n, err
		}
		payload[i] = b
		n++
	}

	return &packetFrame{kind: kind, options: uint32(options), pktNo: pktno, payload: payload}, n, nil
}

func readOControl(r byteReader, kind afdconfig.LogKind) (*ocontrolFrame, int, error) {
	n := 0

	sep, err := r.ReadByte()
	n++
	if err != nil {
		return nil, n, err
	}
	if sep != ' ' {
		return nil, n, errors.New(errors.LogMuxFrameError, "malformed ocontrol frame")
	}

	inodeStr, c, err := readUntil(r, ' ')
	n += c
	if err != nil {
		return nil, n, err
	}
	inode, err := strconv.ParseUint(inodeStr, 10, 64)
	if err != nil {
		return nil, n, errors.New(errors.LogMuxFrameError, "malformed inode field")
	}

	lognoStr, c, err := readUntil(r, '\r')
	n += c
	if err != nil {
		return nil, n, err
	}
	logno, err := strconv.Atoi(lognoStr)
	if err != nil {
		return nil, n, errors.New(errors.LogMuxFrameError, "malformed logno field")
	}

	tail, err := r.ReadByte()
	n++
	if err != nil {
		return nil, n, err
	}
	if tail != '\n' {
		return nil, n, errors.New(errors.LogMuxFrameError, "malformed ocontrol terminator")
	}

	return &ocontrolFrame{kind: kind, inode: inode, logNo: logno}, n, nil
}

func readNop(r byteReader) (int, error) {
	n := 0
	b, err := r.ReadByte()
	n++
	if err != nil {
		return n, err
	}
	if b != '\r' {
		return n, errors.New(errors.LogMuxFrameError, "malformed nop frame")
	}
	b, err = r.ReadByte()
	n++
	if err != nil {
		return n, err
	}
	if b != '\n' {
		return n, errors.New(errors.LogMuxFrameError, "malformed nop terminator")
	}
	return n, nil
}
