// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package fifo provides the named-pipe helpers shared by the liveness
// probe (§4.D) and the supervisor's command/response channels (§4.E).
package fifo

import (
	"os"

	"github.com/stratastor/afdmon/pkg/errors"
	"golang.org/x/sys/unix"
)

// Ensure creates the named pipe at path with mode perm if it does not
// already exist. A pre-existing non-FIFO file at path is an error:
// the caller's working directory is assumed to be exclusively ours.
func Ensure(path string, perm os.FileMode) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.Mode()&os.ModeNamedPipe == 0 {
			return errors.New(errors.FifoNotAPipe, path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(err, errors.FifoCreateFailed).WithMetadata("path", path)
	}
	if err := unix.Mkfifo(path, uint32(perm)); err != nil {
		return errors.Wrap(err, errors.FifoCreateFailed).WithMetadata("path", path)
	}
	return nil
}

// OpenReadWrite opens path O_RDWR, which is how a FIFO is kept open on
// platforms that would otherwise block or error on a read-only or
// write-only open with no peer yet present on the other end. There is
// no fallback to separate read-only and write-only descriptors: where
// the platform rejects O_RDWR on a FIFO, OpenReadWrite returns the
// error.
func OpenReadWrite(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.FifoOpenFailed).WithMetadata("path", path)
	}
	return f, nil
}

// OpenNonblockRead opens path read-only and non-blocking, for the
// liveness probe's "drain the probe FIFO non-blocking" step (§4.D).
func OpenNonblockRead(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.FifoOpenFailed).WithMetadata("path", path)
	}
	return os.NewFile(uintptr(fd), path), nil
}

// Drain reads and discards every byte currently buffered on f without
// blocking, returning the count drained.
func Drain(f *os.File) int {
	buf := make([]byte, 256)
	total := 0
	for {
		n, err := f.Read(buf)
		total += n
		if err != nil || n == 0 {
			return total
		}
	}
}
