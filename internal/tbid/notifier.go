package tbid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbi-sim/tbi-core/pkg/logger"
	"github.com/tbi-sim/tbi-core/pkg/models"
)

// NotificationPayload is the JSON body sent to a job's callback URL
type NotificationPayload struct {
	JobID           string                `json:"job_id"`
	Type            models.JobType        `json:"type"`
	Status          models.JobStatus      `json:"status"`
	CreatedAtUnixMs int64                 `json:"created_at_unix_ms"`
	StartedAtUnixMs int64                 `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64                 `json:"ended_at_unix_ms,omitempty"`
	Error           string                `json:"error,omitempty"`
	SampleResult    *models.SampleResult  `json:"sample_result,omitempty"`
	TrainResult     *models.TrainResult   `json:"train_result,omitempty"`
	Timestamp       int64                 `json:"timestamp"`
}

// Notifier delivers webhook notifications when jobs reach a terminal state
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		baseDelay:  1 * time.Second,
	}
}

// Notify sends a notification to the callback URL asynchronously.
// It returns immediately; delivery and retries happen in a goroutine.
func (n *Notifier) Notify(callbackURL, callbackSecret string, rec *JobRecord) {
	if callbackURL == "" {
		return
	}
	if rec == nil || rec.Job == nil {
		logger.Warn("cannot notify: invalid job record", "callback_url", callbackURL)
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{job_id}", rec.Job.ID)

	payload := NotificationPayload{
		JobID:           rec.Job.ID,
		Type:            rec.Job.Type,
		Status:          rec.Job.Status,
		CreatedAtUnixMs: rec.Job.CreatedAtUnixMs,
		StartedAtUnixMs: rec.Job.StartedAtUnixMs,
		EndedAtUnixMs:   rec.Job.EndedAtUnixMs,
		Error:           rec.Job.Error,
		SampleResult:    rec.SampleResult,
		TrainResult:     rec.TrainResult,
		Timestamp:       time.Now().UTC().UnixMilli(),
	}

	go n.sendNotification(finalURL, callbackSecret, payload)
}

// sendNotification performs the HTTP POST with exponential backoff
func (n *Notifier) sendNotification(callbackURL, callbackSecret string, payload NotificationPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"callback_url", callbackURL,
			"job_id", payload.JobID,
			"error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.baseDelay * time.Duration(1<<uint(attempt-1))
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"job_id", payload.JobID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest("POST", callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "tbi-core/1.0")
		if callbackSecret != "" {
			req.Header.Set("X-TBI-Callback-Secret", callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"job_id", payload.JobID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent successfully",
				"job_id", payload.JobID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"job_id", payload.JobID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"job_id", payload.JobID,
		"status", payload.Status,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
