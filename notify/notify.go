// Package notify implements the completion webhook (§9 supplemented
// feature): an outbound POST to a task's optional webhook_url once it
// reaches a terminal status, grounded on the same retryablehttp-backed
// callback client pattern used for transcode status updates.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/und3rrr/media-cleaner/log"
	"github.com/und3rrr/media-cleaner/metrics"
	"github.com/und3rrr/media-cleaner/store"
)

// Payload is the JSON body POSTed to a task's webhook_url on completion.
type Payload struct {
	TaskID       string  `json:"id"`
	Status       string  `json:"status"`
	OutputName   string  `json:"output_name,omitempty"`
	OutputSizeMB float64 `json:"output_size_mb,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// Notifier delivers completion webhooks with a bounded retry budget.
type Notifier struct {
	httpClient *http.Client
}

func NewNotifier() *Notifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 1 * time.Second
	client.CheckRetry = metrics.HttpRetryHook
	client.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	client.Logger = log.NewRetryableHTTPLogger()

	return &Notifier{httpClient: client.StandardClient()}
}

// NotifyCompletion POSTs the task's terminal state to its webhook_url, if
// set. Failures are logged, never retried beyond the client's own policy,
// and never surfaced to the caller: a broken webhook must not fail an
// otherwise-successful task.
func (n *Notifier) NotifyCompletion(t *store.Task) {
	if t.WebhookURL == "" {
		return
	}

	payload := Payload{
		TaskID:       t.ID,
		Status:       string(t.Status),
		OutputName:   t.OutputName,
		OutputSizeMB: t.OutputSizeMB,
		ErrorMessage: t.ErrorMessage,
	}

	go func() {
		if err := n.send(t.WebhookURL, payload); err != nil {
			log.LogError(t.ID, "failed to deliver completion webhook", err)
		}
	}()
}

func (n *Notifier) send(url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := metrics.MonitorRequest(metrics.Metrics.Webhook, n.httpClient, req)
	if err != nil {
		return fmt.Errorf("sending webhook to %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook to %q returned status %d", url, resp.StatusCode)
	}
	return nil
}
