// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package logmux

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stratastor/afdmon/pkg/errors"
)

// LogCursor is the two-field persistent cursor for one (remote, kind)
// pair: the remote's file inode and its current log number, used to
// detect rotation on the remote across worker restarts (§3 "LogCursor").
type LogCursor struct {
	Inode uint64
	LogNo int
}

func cursorPath(dir, logName string) string {
	return filepath.Join(dir, logName+".inode")
}

// readCursor loads the persisted cursor for logName in dir. A missing
// file is not an error: it means no prior observation has been made
// (§4.G "Local cursor empty -> first observation").
func readCursor(dir, logName string) (*LogCursor, error) {
	data, err := os.ReadFile(cursorPath(dir, logName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.LogMuxCursorError).WithMetadata("path", cursorPath(dir, logName))
	}

	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return nil, errors.New(errors.LogMuxCursorError, "malformed cursor file").
			WithMetadata("path", cursorPath(dir, logName))
	}

	inode, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, errors.LogMuxCursorError)
	}
	logno, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Wrap(err, errors.LogMuxCursorError)
	}
	return &LogCursor{Inode: inode, LogNo: logno}, nil
}

// writeCursor persists c for logName in dir as "<inode> <logno>\n".
func writeCursor(dir, logName string, c *LogCursor) error {
	line := fmt.Sprintf("%d %d\n", c.Inode, c.LogNo)
	if err := os.WriteFile(cursorPath(dir, logName), []byte(line), 0644); err != nil {
		return errors.Wrap(err, errors.LogMuxCursorError).WithMetadata("path", cursorPath(dir, logName))
	}
	return nil
}
