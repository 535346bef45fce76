// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package alerting

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	l, err := logger.NewTag(logger.Config{LogLevel: "warn"}, "alerting-test")
	require.NoError(t, err)
	return l
}

func TestNotifyFatalPostsPayload(t *testing.T) {
	var mu sync.Mutex
	var got alertPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, time.Second, testLogger(t))
	n.NotifyFatal("remote too many restart failures")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "supervisor_fatal_exit", got.Event)
	assert.Equal(t, "remote too many restart failures", got.Reason)
	assert.NotEmpty(t, got.Timestamp)
}

func TestNotifyFatalWithEmptyURLIsNoOp(t *testing.T) {
	n := New("", time.Second, testLogger(t))
	assert.NotPanics(t, func() { n.NotifyFatal("should not send") })
}

func TestNotifyFatalOnNilNotifierIsNoOp(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.NotifyFatal("nil notifier") })
}

func TestNotifyFatalServerErrorIsLoggedNotPanicked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(srv.URL, time.Second, testLogger(t))
	assert.NotPanics(t, func() { n.NotifyFatal("boom") })
}
