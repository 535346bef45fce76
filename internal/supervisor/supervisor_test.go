// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/pkg/identity"
	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	l, err := logger.NewTag(logger.Config{LogLevel: "warn"}, "supervisor-test")
	require.NoError(t, err)
	return l
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "afd_mon.config")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestInitFIFOsCreatesAllFour(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "", testLogger(t), nil, nil, 0, 0)

	require.NoError(t, s.initFIFOs(dir))

	for _, name := range []string{
		constants.MonCmdFifoName, constants.MonRespFifoName,
		constants.MonLogFifoName, constants.ProbeOnlyFifoName,
	} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeNamedPipe)
	}
}

func TestLoadDomainConfigParsesAndValidates(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "remote1 host1.example.com 4447 5 5 2 0 ssh\n")

	s := New(dir, cfgPath, testLogger(t), nil, nil, 0, 0)
	entries, err := s.loadDomainConfig()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "remote1", entries[0].Alias)
}

func TestLoadDomainConfigMissingFileErrors(t *testing.T) {
	s := New(t.TempDir(), filepath.Join(t.TempDir(), "missing.config"), testLogger(t), nil, nil, 0, 0)
	_, err := s.loadDomainConfig()
	assert.Error(t, err)
}

func TestShutdownWithoutStartIsSafe(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "", testLogger(t), nil, nil, 0, 0)
	assert.NotPanics(t, s.Shutdown)
}

func TestLoadDomainConfigAppliesResolverWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "remote1 host1.example.com 4447 5 5 2 0 ssh alice->bob\n")

	// A disabled resolver (the default when no directory is configured)
	// is a passthrough: the static convert_username pair survives
	// unchanged.
	resolver := identity.NewResolver(testLogger(t), false, "", "", "", "", "")
	s := New(dir, cfgPath, testLogger(t), nil, resolver, 0, 0)

	entries, err := s.loadDomainConfig()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].ConvertUsername, 1)
	assert.Equal(t, "alice", entries[0].ConvertUsername[0].From)
	assert.Equal(t, "bob", entries[0].ConvertUsername[0].To)
}

func TestShutdownClosesResolver(t *testing.T) {
	dir := t.TempDir()
	resolver := identity.NewResolver(testLogger(t), false, "", "", "", "", "")
	s := New(dir, "", testLogger(t), nil, resolver, 0, 0)
	assert.NotPanics(t, s.Shutdown)
}
