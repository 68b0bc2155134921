// Package notifier implements the result callback component.
// The notifier is responsible for delivering finished renders, and failure
// notices, to the configured webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"time"

	"github.com/clipforge/clipforge/internal/constants"
	"github.com/clipforge/clipforge/internal/jobs"
)

// ErrSendFailure is returned when a callback fails to be sent, either due to
// a network error or a non-2xx status code.
var ErrSendFailure = errors.New("callback send failed")

// maxErrorMsgLen bounds the error text forwarded to the webhook.
const maxErrorMsgLen = 800

// fileField is the multipart field name the webhook expects the render under.
const fileField = "edited_file_upload"

// Client delivers job results to the configured webhook.
//
// When no webhook is configured, a legacy callback URL may still receive
// failure notices.
type Client struct {
	webhookURL string
	legacyURL  string

	httpClient   *http.Client
	retryTimeout time.Duration
	sleep        func(time.Duration)
}

type options struct {
	httpClient   *http.Client
	retryTimeout time.Duration
	sleep        func(time.Duration)
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// New creates a callback client for the given webhook URLs. Either may be empty.
func New(webhookURL, legacyURL string, args ...Options) *Client {
	opts := options{
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		retryTimeout: 30 * time.Minute,
		sleep:        time.Sleep,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		webhookURL: webhookURL,
		legacyURL:  legacyURL,

		httpClient:   opts.httpClient,
		retryTimeout: opts.retryTimeout,
		sleep:        opts.sleep,
	}
}

// Configured reports whether a result webhook is set.
func (c *Client) Configured() bool {
	return c.webhookURL != ""
}

// NotifyReady uploads the final render to the webhook as multipart form data.
//
// The request carries the video id, READY status and selected title hook
// alongside the file, so the receiving automation can route it without
// further lookups.
func (c *Client) NotifyReady(ctx context.Context, job jobs.Job, finalPath string) error {
	if !c.Configured() {
		slog.Warn("No webhook URL set, skipping result callback", "job_id", job.ID)
		return nil
	}

	f, err := os.Open(finalPath)
	if err != nil {
		return fmt.Errorf("failed to open final render: %v", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := createVideoPart(w)
	if err != nil {
		return fmt.Errorf("failed to create multipart body: %v", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read final render: %v", err)
	}

	fields := map[string]string{
		"video_id":   job.VideoID,
		"status":     jobs.CallbackReady,
		"title_hook": job.TitleHook,
		"source":     constants.CallbackSource,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write multipart field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %v", err)
	}

	return c.post(ctx, c.webhookURL, w.FormDataContentType(), body.Bytes())
}

// NotifyFailed sends a JSON failure notice for the job.
// The webhook is preferred; the legacy URL is used only when no webhook is set.
func (c *Client) NotifyFailed(ctx context.Context, job jobs.Job, jobErr error) error {
	url := c.webhookURL
	if url == "" {
		url = c.legacyURL
	}
	if url == "" {
		slog.Warn("No callback URL set, skipping failure notice", "job_id", job.ID)
		return nil
	}

	msg := jobErr.Error()
	if len(msg) > maxErrorMsgLen {
		msg = msg[:maxErrorMsgLen]
	}

	payload, err := json.Marshal(map[string]string{
		"video_id":  job.VideoID,
		"status":    jobs.CallbackFailed,
		"error_msg": msg,
		"source":    constants.CallbackSource,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal failure notice: %v", err)
	}

	return c.post(ctx, url, "application/json", payload)
}

// NotifyReadyBackoff behaves like NotifyReady, but send failures are retried
// after a backoff period. The backoff starts at 30 seconds and doubles with
// each retry until the retry timeout is surpassed.
func (c *Client) NotifyReadyBackoff(ctx context.Context, job jobs.Job, finalPath string) (err error) {
	wait := 30 * time.Second
	for {
		err = c.NotifyReady(ctx, job, finalPath)
		if !errors.Is(err, ErrSendFailure) {
			return err
		}

		wait *= 2
		if wait > c.retryTimeout {
			slog.Warn("Callback retry timeout reached, giving up", "job_id", job.ID)
			return err
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		default:
		}
		slog.Warn("Retrying result callback after backoff period", "job_id", job.ID, "wait", wait)
		c.sleep(wait)
	}
}

func (c *Client) post(ctx context.Context, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrSendFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Join(ErrSendFailure, fmt.Errorf("callback returned status %s", resp.Status))
	}

	slog.Debug("Callback delivered", "url", url, "status", resp.StatusCode)
	return nil
}

func createVideoPart(w *multipart.Writer) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="final.mp4"`, fileField))
	h.Set("Content-Type", "video/mp4")
	return w.CreatePart(h)
}
