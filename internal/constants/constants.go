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

package constants

const (
	AfdmonVersion = "v0.0.1"
	PIDFilePath   = "/var/run/afdmon.pid"

	// config
	SystemConfigDir  = "/etc/afdmon"
	UserConfigDir    = "~/.afdmon"
	ConfigFileName   = "afdmon.yml"
	AfdMonConfigName = "AFD_MON_CONFIG"
)

// On-disk layout, per working directory (§6.1).
const (
	EtcDirName    = "etc"
	FifoDirName   = "fifodir"
	RlogDirName   = "rlog"
	MsaIDFileName = "msa.id"
	MonActiveName = "mon_active"

	MonCmdFifoName    = "mon_cmd"
	MonRespFifoName   = "mon_resp"
	MonLogFifoName    = "mon_log"
	ProbeOnlyFifoName = "probe_only"
)

// Defaults for AFD_MON_CONFIG fields left blank (§4.C).
const (
	DefaultPollIntervalS    = 5
	DefaultConnectTimeS     = 5
	DefaultDisconnectTimeS  = 2
	DefaultPort             = 4447
	DefaultRcmd             = "rsh"
	MaxAliasBytes           = 12
	MaxHostBytes            = 39
	MaxConvertUsernamePairs = 5
)

// Timeouts and retry policy (§4.A, §4.E, §4.G).
const (
	DefaultTCPTimeoutS     = 120
	RetryIntervalS         = 10
	LogWriteIntervalS      = 5
	MaxConsecutiveFrameErr = 3
)

// Single-byte FIFO commands (§6.3).
const (
	CmdIsAlive     byte = 'A'
	CmdAckn        byte = 'K'
	CmdAcknStopped byte = 'S'
	CmdStart       byte = 'T'
	CmdDisableMon  byte = 'D'
	CmdEnableMon   byte = 'E'
)

// ExitCode enumerates the §6.4 stable worker exit codes consumed by the
// supervisor's restart policy.
type ExitCode int

const (
	ExitSuccess ExitCode = iota
	ExitIncorrect
	ExitMonSyntaxError
	ExitFailedLogCmd
	ExitLogConnectError
	ExitLogDataTimeout
	ExitRemoteHangup
	ExitMissedPacket
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "SUCCESS"
	case ExitIncorrect:
		return "INCORRECT"
	case ExitMonSyntaxError:
		return "MON_SYNTAX_ERROR"
	case ExitFailedLogCmd:
		return "FAILED_LOG_CMD"
	case ExitLogConnectError:
		return "LOG_CONNECT_ERROR"
	case ExitLogDataTimeout:
		return "LOG_DATA_TIMEOUT"
	case ExitRemoteHangup:
		return "REMOTE_HANGUP"
	case ExitMissedPacket:
		return "MISSED_PACKET"
	default:
		return "UNKNOWN"
	}
}
