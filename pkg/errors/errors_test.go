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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKnownCode(t *testing.T) {
	err := New(MonitorConnectFailed, "dial tcp: timeout")
	require.NotNil(t, err)
	assert.Equal(t, DomainMonitor, err.Domain)
	assert.Equal(t, "dial tcp: timeout", err.Details)
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestNewUnknownCodeFallsBackToGeneric(t *testing.T) {
	err := New(ErrorCode(999999), "mystery")
	require.NotNil(t, err)
	assert.Equal(t, "UNKNOWN", string(err.Domain))
	assert.Equal(t, 500, err.HTTPStatus)
}

func TestMonitorRowMissingIsRegistered(t *testing.T) {
	err := New(MonitorRowMissing, "remote1")
	assert.Equal(t, DomainMonitor, err.Domain)
	assert.NotEqual(t, "Unknown error", err.Message)
}

func TestWrapPreservesMetadataAndReplyCode(t *testing.T) {
	inner := New(LogMuxFrameError, "bad kind byte").WithMetadata("kind", "X").WithReplyCode(226)
	wrapped := Wrap(inner, LogMuxConnectFailed)

	assert.Equal(t, LogMuxConnectFailed, wrapped.Code)
	assert.Equal(t, "X", wrapped.Metadata["kind"])
	assert.Equal(t, 226, wrapped.ReplyCode)
	assert.Equal(t, "bad kind byte", wrapped.Details)
}

func TestIsMatchesOnDomainAndCode(t *testing.T) {
	a := New(MsaStaleRegion, "")
	b := New(MsaStaleRegion, "different details")
	c := New(MonitorDisabled, "")

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestGetCodeIgnoresStringConcatenatedError(t *testing.T) {
	base := New(SupervisorRestartLimit, "too many restarts")
	wrapped := errors.New("context: " + base.Error())

	_, ok := GetCode(wrapped)
	assert.False(t, ok, "a plain fmt-wrapped string is not an AfdmonError chain")

	code, ok := GetCode(base)
	require.True(t, ok)
	assert.Equal(t, SupervisorRestartLimit, code)
}

func TestGetErrorWithCodeFindsMatch(t *testing.T) {
	err := New(LogMuxSequenceGap, "gap of 3")
	found := GetErrorWithCode(err, LogMuxSequenceGap)
	require.NotNil(t, found)
	assert.Equal(t, "gap of 3", found.Details)

	assert.Nil(t, GetErrorWithCode(err, LogMuxCursorError))
	assert.Nil(t, GetErrorWithCode(nil, LogMuxCursorError))
}

func TestIsAfdmonError(t *testing.T) {
	assert.True(t, IsAfdmonError(New(MonitorDisabled, "")))
	assert.False(t, IsAfdmonError(errors.New("plain")))
}

func TestNewCommandErrorCarriesStderr(t *testing.T) {
	err := NewCommandError("ssh remote1 afdd", 1, "connection refused")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "1", err.Metadata["exit_code"])
}
