// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package msa

import (
	"fmt"
	"os"
	"syscall"

	"github.com/stratastor/afdmon/pkg/errors"
)

// mapping is a SHARED mmap of a status.<N> backing file, writable or
// read-only depending on how it was opened (§5 "memory-mapped SHARED
// by many processes").
type mapping struct {
	data []byte
	file *os.File
}

// mmapFile maps the whole of f, sized to exactly size bytes, with the
// given protection. Grounded on the common syscall.Mmap/Munmap
// wrapper idiom for feeding a backing file into a byte slice.
func mmapFile(f *os.File, size int64, writable bool) (*mapping, error) {
	prot := syscall.PROT_READ
	if writable {
		prot |= syscall.PROT_WRITE
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), prot, syscall.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, errors.MsaAttachFailed).WithMetadata("size", fmt.Sprintf("%d", size))
	}

	return &mapping{data: data, file: f}, nil
}

func (m *mapping) unmap() error {
	if m.data == nil {
		return nil
	}
	err := syscall.Munmap(m.data)
	m.data = nil
	if err != nil {
		return errors.Wrap(err, errors.MsaDetachFailed)
	}
	return nil
}
