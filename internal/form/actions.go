// internal/form/actions.go
//
// Adept Users – Forms subsystem: post-create actions.
//
// Context
//   A role may declare actions that run after the remote API accepts a new
//   user: an audit row, a webhook notification, and so on.  Actions run in
//   declaration order once Submit has its success verdict.  Their errors are
//   logged and counted but never returned, keeping the submitter's flow
//   uninterrupted.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yanizio/adept-users/internal/logger"
	"github.com/yanizio/adept-users/internal/metrics"
)

// Created describes a successful creation.  Fields never contains passwords
// or file contents.
type Created struct {
	Role   string         `json:"role"`
	Fields map[string]any `json:"fields"`
	User   map[string]any `json:"user,omitempty"`
	At     time.Time      `json:"at"`
}

// Action is one post-create side effect.
type Action interface {
	Name() string
	Run(ctx context.Context, ev Created) error
}

// runActions executes every action, logging failures.
func (f *Form) runActions(ctx context.Context, ev Created) {
	if len(f.actions) == 0 {
		return
	}
	ev.At = time.Now().UTC()

	for _, a := range f.actions {
		if err := a.Run(ctx, ev); err != nil {
			metrics.ActionFailuresTotal.WithLabelValues(a.Name()).Inc()
			logger.FromContext(ctx).Errorw("post-create action failed",
				"role", f.role, "action", a.Name(), "error", err)
		}
	}
}

// -----------------------------------------------------------------------------
// Webhook action
// -----------------------------------------------------------------------------

// WebhookAction posts the Created event as JSON to URL.
type WebhookAction struct {
	URL     string
	Method  string            // Empty means POST.
	Headers map[string]string // Extra request headers.
	Client  *http.Client      // nil means a client with a 10 s timeout.
}

// Name implements Action.
func (w *WebhookAction) Name() string { return "webhook" }

// Run implements Action.
func (w *WebhookAction) Run(ctx context.Context, ev Created) error {
	if w.URL == "" {
		return fmt.Errorf("webhook action requires 'url'")
	}
	method := w.Method
	if method == "" {
		method = http.MethodPost
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook %s: unexpected status %d", w.URL, resp.StatusCode)
	}
	return nil
}
