// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package alerting fires a webhook notification when the supervisor
// gives up and exits the whole controller, so an operator has
// something to page off of (§7 "escalate to the supervisor, which
// logs and exits the whole controller").
package alerting

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stratastor/logger"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryCount    = 2
	defaultRetryWaitTime = 1 * time.Second
)

// Notifier posts a JSON payload to a configured webhook URL. A
// Notifier with an empty URL is a no-op, so callers can construct one
// unconditionally and let configuration decide whether it does
// anything.
type Notifier struct {
	client *resty.Client
	url    string
	l      logger.Logger
}

// New builds a Notifier posting to url with the given timeout. An
// empty url disables delivery.
func New(url string, timeout time.Duration, l logger.Logger) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetHeader("Content-Type", "application/json")

	return &Notifier{client: client, url: url, l: l}
}

// alertPayload is the JSON body posted to the webhook.
type alertPayload struct {
	Event     string `json:"event"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// NotifyFatal posts a fatal-exit alert. Delivery is best-effort: a
// failed POST is logged and swallowed, since the process is already on
// its way down and there is nothing further to retry against.
func (n *Notifier) NotifyFatal(reason string) {
	if n == nil || n.url == "" {
		return
	}

	payload := alertPayload{
		Event:     "supervisor_fatal_exit",
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	resp, err := n.client.R().SetBody(payload).Post(n.url)
	if err != nil {
		n.l.Error("webhook alert delivery failed", "url", n.url, "error", err.Error())
		return
	}
	if resp.IsError() {
		n.l.Error("webhook alert rejected", "url", n.url, "status", resp.StatusCode())
	}
}
