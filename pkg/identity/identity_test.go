// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"testing"

	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	l, err := logger.NewTag(logger.Config{LogLevel: "warn"}, "identity-test")
	require.NoError(t, err)
	return l
}

func TestResolveDisabledIsPassthrough(t *testing.T) {
	r := NewResolver(testLogger(t), false, "", "", "", "", "")
	entry := &afdconfig.ConfigEntry{
		Alias:           "remote1",
		ConvertUsername: []afdconfig.UsernameConversion{{From: "alice", To: "bob"}},
	}

	got := r.Resolve(entry)
	assert.Equal(t, entry.ConvertUsername, got)
}

func TestResolveWithNoGroupDNIsPassthrough(t *testing.T) {
	r := NewResolver(testLogger(t), true, "ldap://localhost:1", "", "", "", "")
	entry := &afdconfig.ConfigEntry{
		ConvertUsername: []afdconfig.UsernameConversion{{From: "alice", To: "bob"}},
	}

	got := r.Resolve(entry)
	assert.Equal(t, entry.ConvertUsername, got)
}

func TestResolveFallsBackWhenDirectoryUnreachable(t *testing.T) {
	// A bogus URL that nothing listens on: dial() must fail and Resolve
	// must degrade to the static pairs rather than propagate the error.
	r := NewResolver(testLogger(t), true, "ldap://127.0.0.1:1", "dc=example,dc=com", "", "", "cn=afdusers,dc=example,dc=com")
	entry := &afdconfig.ConfigEntry{
		Alias:           "remote1",
		ConvertUsername: []afdconfig.UsernameConversion{{From: "alice", To: "bob"}},
	}

	got := r.Resolve(entry)
	assert.Equal(t, entry.ConvertUsername, got)
}

func TestCloseOnNeverDialedResolverIsSafe(t *testing.T) {
	r := NewResolver(testLogger(t), false, "", "", "", "", "")
	assert.NotPanics(t, r.Close)
}
