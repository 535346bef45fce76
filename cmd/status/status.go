/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in> 
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package status

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stratastor/afdmon/config"
	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/msa"
	"github.com/stratastor/logger"
)

// NewStatusCmd resolves msa.id and reports whether the currently
// published MSA region is stale, mirroring a liveness check against
// the controller's publish protocol rather than a PID file (there is
// no single afdmon process: a supervisor plus 2N workers share the
// working directory instead).
func NewStatusCmd() *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check an afdmon controller's published status region",
		RunE: func(cmd *cobra.Command, args []string) error {
			fifoDir := config.GetFifoDir()
			if workDir != "" {
				fifoDir = filepath.Join(workDir, constants.FifoDirName)
			}

			l, err := logger.NewTag(logger.Config{LogLevel: "warn"}, "status")
			if err != nil {
				return err
			}

			store, err := msa.AttachPassive(fifoDir, l)
			if err != nil {
				fmt.Printf("no published MSA region found in %s: %v\n", fifoDir, err)
				return nil
			}
			defer store.Detach()

			rows := store.Rows()
			if store.IsStale() {
				fmt.Printf("MSA region in %s is stale; a reader must re-resolve via msa.id\n", fifoDir)
				return nil
			}

			fmt.Printf("MSA region in %s: %d rows\n", fifoDir, len(rows))
			for _, r := range rows {
				if r.IsGroupHeader() {
					fmt.Printf("  %-12s (group)\n", r.Alias)
					continue
				}
				fmt.Printf("  %-12s connect_status=%d\n", r.Alias, r.ConnectStatus)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "Controller working directory (defaults to the resolved fifodir)")
	return cmd
}
