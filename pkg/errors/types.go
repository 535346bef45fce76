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

package errors

import "net/http"

const (
	DomainConfig      Domain = "CONFIG"
	DomainMSA         Domain = "MSA"
	DomainSupervisor  Domain = "SUPERVISOR"
	DomainMonitor     Domain = "MONITOR"
	DomainLogMux      Domain = "LOGMUX"
	DomainReplyClient Domain = "REPLYCLIENT"
	DomainLiveness    Domain = "LIVENESS"
	DomainFifo        Domain = "FIFO"
	DomainMisc        Domain = "MISC"
)

// ErrorCode represents unique error identifiers
type ErrorCode int

// Domain represents the subsystem where the error originated
type Domain string

type AfdmonError struct {
	Code    ErrorCode `json:"code"`
	Domain  Domain    `json:"domain"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	HTTPStatus int `json:"-"`

	// ReplyCode is the 3-digit reply code (§4.A) that produced this
	// error, when the error originated from a reply-client exchange.
	// Zero when not applicable.
	ReplyCode int `json:"replyCode,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Error code ranges:
// 1000-1099: Configuration errors (AFD_MON_CONFIG + app config)
// 1100-1199: MSA store errors
// 1200-1299: Supervisor errors
// 1300-1399: Monitor worker errors
// 1400-1499: Log multiplexer errors
// 1500-1599: Reply-code client errors
// 1600-1649: Liveness probe errors
// 1650-1699: FIFO errors
const (
	// Configuration Errors (1000-1099)
	ConfigNotFound           = 1000 + iota // Config file not found
	ConfigInvalid                          // Invalid config format
	ConfigLoadFailed                       // Failed to load config
	ConfigWriteFailed                      // Failed to write config
	ConfigPermissionDenied                 // Permission denied accessing config
	ConfigDirectoryError                   // Config directory error
	ConfigValidationFailed                 // Config validation failed
	ConfigMarshalFailed                    // Config serialization failed
	ConfigUnmarshalFailed                  // Config deserialization failed
	ConfigHomeDirectoryError               // Error getting home directory
	ConfigReadError                        // Error reading config
	ConfigWriteError                       // Error writing config
	ConfigParseError                       // Error parsing AFD_MON_CONFIG
	ConfigDuplicateAlias                   // Duplicate alias in AFD_MON_CONFIG
	ConfigFieldTooLong                     // alias/host exceeds max graphical bytes
	ConfigBadSwitching                     // malformed switching specification
)

const (
	// MSA store errors (1100-1199)
	MsaAttachFailed     = 1100 + iota // mmap attach failed
	MsaDetachFailed                   // munmap failed
	MsaHeaderCorrupt                  // header magic/version mismatch
	MsaRowOutOfRange                  // row index beyond no_of_hosts
	MsaConversionFailed               // version conversion chain failed
	MsaRebuildFailed                  // full rebuild of the region failed
	MsaStaleRegion                    // count == -1, region not yet published
	MsaIDFileError                    // msa.id advisory lock error
	MsaGroupSummaryError              // update_group_summary failed
	MsaSchemaMismatch                 // compiled struct disagrees with schema catalog
	MsaTruncatedFile                  // backing file shorter than header claims
	MsaNotWritable                    // write attempted through a read-only (AttachPassive) mapping
)

const (
	// Supervisor errors (1200-1299)
	SupervisorStartFailed    = 1200 + iota // supervisor failed to start
	SupervisorForkFailed                   // fork/exec of a worker failed
	SupervisorRestartLimit                 // restart backoff limit exceeded
	SupervisorConfigReload                 // config reload failed
	SupervisorShutdown                     // error during shutdown
	SupervisorDuplicateRun                 // another supervisor already controls this directory
	SupervisorSchedulerError               // gocron scheduling error
	SupervisorAlertFailed                  // webhook alert delivery failed
)

const (
	// Monitor worker errors (1300-1399)
	MonitorConnectFailed  = 1300 + iota // could not reach remote AFDD
	MonitorHandshakeError               // reply-code handshake failed
	MonitorSyntaxError                  // malformed command from supervisor
	MonitorRowWriteFailed               // could not publish row update
	MonitorDisabled                     // monitoring administratively disabled
	MonitorRowMissing                   // no MSA row found for this worker's alias
)

const (
	// Log multiplexer errors (1400-1499)
	LogMuxConnectFailed  = 1400 + iota // could not reach remote log port
	LogMuxFrameError                   // wire grammar violation
	LogMuxSequenceGap                  // packet sequence gap detected
	LogMuxRotationFailed               // log file rotation failed
	LogMuxCursorError                  // cursor file read/write failed
	LogMuxWriteFailed                  // could not append to rolling log file
	LogMuxDataTimeout                  // no data received within timeout
)

const (
	// Reply-code client errors (1500-1599)
	ReplyClientDialFailed     = 1500 + iota // TCP/TLS dial failed
	ReplyClientTLSDowngrade                 // TLS failed, fell back to cleartext
	ReplyClientBadReply                     // reply line did not parse
	ReplyClientTimeout                      // read/write deadline exceeded
	ReplyClientUnexpectedCode               // reply code not in expected set
	ReplyClientRemoteHangup                 // remote closed the connection
)

const (
	// Liveness probe errors (1600-1649)
	LivenessProbeFailed  = 1600 + iota // handshake did not complete
	LivenessPipeMissing                // named pipe absent
	LivenessDuplicateCtl                // another controller answered the probe
)

const (
	// FIFO errors (1650-1699)
	FifoCreateFailed = 1650 + iota // mkfifo failed
	FifoOpenFailed                 // open of named pipe failed
	FifoWriteFailed                // write to named pipe failed
	FifoReadFailed                 // read from named pipe failed
	FifoNotAPipe                   // path exists but is not a FIFO
)

var errorDefinitions = map[ErrorCode]struct {
	message    string
	domain     Domain
	httpStatus int
}{
	ConfigNotFound:           {"Config file not found", DomainConfig, http.StatusNotFound},
	ConfigInvalid:            {"Invalid config format", DomainConfig, http.StatusBadRequest},
	ConfigLoadFailed:         {"Failed to load config", DomainConfig, http.StatusInternalServerError},
	ConfigWriteFailed:        {"Failed to write config", DomainConfig, http.StatusInternalServerError},
	ConfigPermissionDenied:   {"Permission denied accessing config", DomainConfig, http.StatusForbidden},
	ConfigDirectoryError:     {"Config directory error", DomainConfig, http.StatusInternalServerError},
	ConfigValidationFailed:   {"Config validation failed", DomainConfig, http.StatusBadRequest},
	ConfigMarshalFailed:      {"Config serialization failed", DomainConfig, http.StatusInternalServerError},
	ConfigUnmarshalFailed:    {"Config deserialization failed", DomainConfig, http.StatusInternalServerError},
	ConfigHomeDirectoryError: {"Error getting home directory", DomainConfig, http.StatusInternalServerError},
	ConfigReadError:          {"Error reading config", DomainConfig, http.StatusInternalServerError},
	ConfigWriteError:         {"Error writing config", DomainConfig, http.StatusInternalServerError},
	ConfigParseError:         {"Error parsing AFD_MON_CONFIG", DomainConfig, http.StatusBadRequest},
	ConfigDuplicateAlias:     {"Duplicate alias in AFD_MON_CONFIG", DomainConfig, http.StatusBadRequest},
	ConfigFieldTooLong:       {"Field exceeds maximum graphical byte length", DomainConfig, http.StatusBadRequest},
	ConfigBadSwitching:       {"Malformed switching specification", DomainConfig, http.StatusBadRequest},

	MsaAttachFailed:      {"Failed to attach MSA region", DomainMSA, http.StatusInternalServerError},
	MsaDetachFailed:      {"Failed to detach MSA region", DomainMSA, http.StatusInternalServerError},
	MsaHeaderCorrupt:     {"MSA header magic or version mismatch", DomainMSA, http.StatusInternalServerError},
	MsaRowOutOfRange:     {"MSA row index out of range", DomainMSA, http.StatusInternalServerError},
	MsaConversionFailed:  {"MSA version conversion failed", DomainMSA, http.StatusInternalServerError},
	MsaRebuildFailed:     {"MSA region rebuild failed", DomainMSA, http.StatusInternalServerError},
	MsaStaleRegion:       {"MSA region is stale", DomainMSA, http.StatusServiceUnavailable},
	MsaIDFileError:       {"msa.id advisory lock error", DomainMSA, http.StatusInternalServerError},
	MsaGroupSummaryError: {"Group summary update failed", DomainMSA, http.StatusInternalServerError},
	MsaSchemaMismatch:    {"MSA struct layout disagrees with schema catalog", DomainMSA, http.StatusInternalServerError},
	MsaTruncatedFile:     {"MSA backing file shorter than header claims", DomainMSA, http.StatusInternalServerError},
	MsaNotWritable:       {"MSA store attached read-only, cannot publish", DomainMSA, http.StatusInternalServerError},

	SupervisorStartFailed:    {"Supervisor failed to start", DomainSupervisor, http.StatusInternalServerError},
	SupervisorForkFailed:     {"Failed to fork worker process", DomainSupervisor, http.StatusInternalServerError},
	SupervisorRestartLimit:   {"Worker restart backoff limit exceeded", DomainSupervisor, http.StatusInternalServerError},
	SupervisorConfigReload:   {"Config reload failed", DomainSupervisor, http.StatusInternalServerError},
	SupervisorShutdown:       {"Error during supervisor shutdown", DomainSupervisor, http.StatusInternalServerError},
	SupervisorDuplicateRun:   {"Another supervisor already controls this directory", DomainSupervisor, http.StatusConflict},
	SupervisorSchedulerError: {"Scheduler error", DomainSupervisor, http.StatusInternalServerError},
	SupervisorAlertFailed:    {"Webhook alert delivery failed", DomainSupervisor, http.StatusBadGateway},

	MonitorConnectFailed:  {"Could not reach remote AFDD", DomainMonitor, http.StatusBadGateway},
	MonitorHandshakeError: {"Reply-code handshake failed", DomainMonitor, http.StatusBadGateway},
	MonitorSyntaxError:    {"Malformed command from supervisor", DomainMonitor, http.StatusBadRequest},
	MonitorRowWriteFailed: {"Could not publish MSA row update", DomainMonitor, http.StatusInternalServerError},
	MonitorDisabled:       {"Monitoring administratively disabled", DomainMonitor, http.StatusOK},
	MonitorRowMissing:     {"Row for this worker's alias not found in the MSA", DomainMonitor, http.StatusInternalServerError},

	LogMuxConnectFailed:  {"Could not reach remote log port", DomainLogMux, http.StatusBadGateway},
	LogMuxFrameError:     {"Log wire grammar violation", DomainLogMux, http.StatusBadGateway},
	LogMuxSequenceGap:    {"Packet sequence gap detected", DomainLogMux, http.StatusBadGateway},
	LogMuxRotationFailed: {"Log file rotation failed", DomainLogMux, http.StatusInternalServerError},
	LogMuxCursorError:    {"Log cursor file read/write failed", DomainLogMux, http.StatusInternalServerError},
	LogMuxWriteFailed:    {"Could not append to rolling log file", DomainLogMux, http.StatusInternalServerError},
	LogMuxDataTimeout:    {"No log data received within timeout", DomainLogMux, http.StatusGatewayTimeout},

	ReplyClientDialFailed:     {"TCP/TLS dial failed", DomainReplyClient, http.StatusBadGateway},
	ReplyClientTLSDowngrade:   {"TLS handshake failed, fell back to cleartext", DomainReplyClient, http.StatusOK},
	ReplyClientBadReply:       {"Reply line did not parse", DomainReplyClient, http.StatusBadGateway},
	ReplyClientTimeout:        {"Read/write deadline exceeded", DomainReplyClient, http.StatusGatewayTimeout},
	ReplyClientUnexpectedCode: {"Reply code not in expected set", DomainReplyClient, http.StatusBadGateway},
	ReplyClientRemoteHangup:   {"Remote closed the connection", DomainReplyClient, http.StatusBadGateway},

	LivenessProbeFailed:  {"Liveness handshake did not complete", DomainLiveness, http.StatusServiceUnavailable},
	LivenessPipeMissing:  {"Named pipe absent", DomainLiveness, http.StatusNotFound},
	LivenessDuplicateCtl: {"Another controller answered the liveness probe", DomainLiveness, http.StatusConflict},

	FifoCreateFailed: {"mkfifo failed", DomainFifo, http.StatusInternalServerError},
	FifoOpenFailed:   {"Open of named pipe failed", DomainFifo, http.StatusInternalServerError},
	FifoWriteFailed:  {"Write to named pipe failed", DomainFifo, http.StatusInternalServerError},
	FifoReadFailed:   {"Read from named pipe failed", DomainFifo, http.StatusInternalServerError},
	FifoNotAPipe:     {"Path exists but is not a named pipe", DomainFifo, http.StatusConflict},
}
