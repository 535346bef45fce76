// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package msa

import (
	"encoding/binary"
	"os"

	"github.com/stratastor/afdmon/pkg/errors"
	"golang.org/x/sys/unix"
)

// IDFile wraps fifodir/msa.id (§6.1): 4 bytes holding the current
// msa_id, protected by an OS advisory write lock (§3.2, §5).
type IDFile struct {
	path   string
	f      *os.File
	locked bool
}

// OpenIDFile opens (creating if missing) the ID file at path without
// taking the lock yet.
func OpenIDFile(path string) (*IDFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.MsaIDFileError).WithMetadata("path", path)
	}
	return &IDFile{path: path, f: f}, nil
}

// Lock acquires the advisory write lock, blocking until available
// (F_SETLKW-equivalent, §5). Anyone remapping must re-lock and
// re-read msa_id after calling Lock.
func (idf *IDFile) Lock() error {
	if err := unix.Flock(int(idf.f.Fd()), unix.LOCK_EX); err != nil {
		return errors.Wrap(err, errors.MsaIDFileError).WithMetadata("op", "lock")
	}
	idf.locked = true
	return nil
}

// Unlock releases the advisory lock.
func (idf *IDFile) Unlock() error {
	if !idf.locked {
		return nil
	}
	err := unix.Flock(int(idf.f.Fd()), unix.LOCK_UN)
	idf.locked = false
	if err != nil {
		return errors.Wrap(err, errors.MsaIDFileError).WithMetadata("op", "unlock")
	}
	return nil
}

// Read returns the current msa_id, or -1 if the file is empty (no MSA
// has ever been published, §4.B rebuild step 1).
func (idf *IDFile) Read() (int32, error) {
	buf := make([]byte, 4)
	if _, err := idf.f.ReadAt(buf, 0); err != nil {
		return -1, nil
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

// Write stamps msaID into the ID file. Must be called while holding
// the lock, as the final step of rebuild (§4.B step 9).
func (idf *IDFile) Write(msaID int32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(msaID))
	if _, err := idf.f.WriteAt(buf, 0); err != nil {
		return errors.Wrap(err, errors.MsaIDFileError).WithMetadata("op", "write")
	}
	return idf.f.Sync()
}

// Close releases the lock (if held) and closes the underlying file.
func (idf *IDFile) Close() error {
	idf.Unlock()
	return idf.f.Close()
}
