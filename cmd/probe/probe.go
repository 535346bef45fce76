// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratastor/afdmon/config"
	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/liveness"
	"github.com/stratastor/logger"
)

// NewProbeCmd fires the §4.D liveness handshake against a working
// directory's FIFOs without starting a supervisor, as an operational
// aid for checking whether a controller is actually alive.
func NewProbeCmd() *cobra.Command {
	var workDir string
	var waitS int

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether an afdmon controller is live for a working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workDir == "" {
				workDir = config.GetFifoDir()
			} else {
				workDir = filepath.Join(workDir, constants.FifoDirName)
			}

			l, err := logger.NewTag(logger.Config{LogLevel: "warn"}, "probe")
			if err != nil {
				return err
			}

			outcome, code, err := liveness.Probe(workDir, time.Duration(waitS)*time.Second, l)
			if err != nil {
				return err
			}

			switch outcome {
			case liveness.ProceedFresh:
				fmt.Println("no controller is live; a fresh start would proceed normally")
			case liveness.ProceedAfterCrashCleanup:
				fmt.Println("a stale manifest was found and its PIDs signaled; a fresh start would proceed")
			case liveness.AnotherInstanceAlive:
				fmt.Printf("a controller is already live for this working directory (exit code %d)\n", code)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "Controller working directory (defaults to the resolved fifodir)")
	cmd.Flags().IntVar(&waitS, "wait", 5, "Seconds to wait for a peer to answer IS_ALIVE")
	return cmd
}
