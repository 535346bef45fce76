// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package logmux

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stratastor/afdmon/pkg/errors"
)

func logFilePath(dir, logName string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d", logName, n))
}

// reshuffleLogFiles renames <logName>.k to <logName>.(k+shift) for
// every existing k >= shiftOffset, walking from the highest existing
// index downward so a rename never clobbers a file not yet moved, and
// unlinks anything that would rotate past maxFiles (§4.G
// "LOG_RESHUFFLE").
func reshuffleLogFiles(dir, logName string, shiftOffset, shift, maxFiles int) error {
	if shift <= 0 {
		return nil
	}

	highest := -1
	for k := 0; k <= maxFiles+shift; k++ {
		if _, err := os.Stat(logFilePath(dir, logName, k)); err == nil {
			highest = k
		}
	}

	for k := highest; k >= shiftOffset; k-- {
		src := logFilePath(dir, logName, k)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if k+shift >= maxFiles {
			if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, errors.LogMuxRotationFailed).WithMetadata("file", src)
			}
			continue
		}
		dst := logFilePath(dir, logName, k+shift)
		if err := os.Rename(src, dst); err != nil {
			return errors.Wrap(err, errors.LogMuxRotationFailed).WithMetadata("file", src)
		}
	}
	return nil
}

// staleReopen discards the active log file for logName (the remote's
// inode changed while its reported logno was already nonzero, so the
// old rolling history no longer corresponds to anything the remote
// still tracks) and lets the caller open a fresh one (§4.G
// "LOG_STALE").
func staleReopen(dir, logName string) error {
	active := logFilePath(dir, logName, 0)
	if err := os.Remove(active); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.LogMuxRotationFailed).WithMetadata("file", active)
	}
	return nil
}
