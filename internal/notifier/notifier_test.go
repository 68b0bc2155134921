package notifier_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/jobs"
	"github.com/clipforge/clipforge/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedCallback struct {
	contentType string
	fields      map[string]string
	fileName    string
	fileBody    string
	jsonBody    map[string]string
}

// callbackReceiver is a test webhook capturing what the notifier sends.
func callbackReceiver(t *testing.T, status int, got *receivedCallback) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.contentType = r.Header.Get("Content-Type")

		if strings.HasPrefix(got.contentType, "multipart/form-data") {
			require.NoError(t, r.ParseMultipartForm(10<<20), "Receiver: failed to parse multipart form")
			got.fields = make(map[string]string)
			for k := range r.MultipartForm.Value {
				got.fields[k] = r.FormValue(k)
			}
			if files := r.MultipartForm.File["edited_file_upload"]; len(files) > 0 {
				got.fileName = files[0].Filename
				f, err := files[0].Open()
				require.NoError(t, err, "Receiver: failed to open uploaded file")
				defer f.Close()
				data, err := io.ReadAll(f)
				require.NoError(t, err, "Receiver: failed to read uploaded file")
				got.fileBody = string(data)
			}
		} else {
			data, err := io.ReadAll(r.Body)
			require.NoError(t, err, "Receiver: failed to read body")
			require.NoError(t, json.Unmarshal(data, &got.jsonBody), "Receiver: body should be JSON")
		}

		w.WriteHeader(status)
	}))
}

func writeRender(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake video bytes"), 0600), "Setup: failed to write render file")
	return path
}

func TestNotifyReady(t *testing.T) {
	t.Parallel()

	job := jobs.Job{ID: "job-1", VideoID: "vid-1", TitleHook: "Watch this"}

	var got receivedCallback
	srv := callbackReceiver(t, http.StatusOK, &got)
	t.Cleanup(srv.Close)

	c := notifier.New(srv.URL, "")
	err := c.NotifyReady(t.Context(), job, writeRender(t))
	require.NoError(t, err, "NotifyReady should not fail")

	assert.Equal(t, "vid-1", got.fields["video_id"], "Unexpected video id field")
	assert.Equal(t, "READY", got.fields["status"], "Unexpected status field")
	assert.Equal(t, "Watch this", got.fields["title_hook"], "Unexpected title hook field")
	assert.Equal(t, "render", got.fields["source"], "Unexpected source field")
	assert.Equal(t, "final.mp4", got.fileName, "Unexpected upload file name")
	assert.Equal(t, "fake video bytes", got.fileBody, "Unexpected upload contents")
}

func TestNotifyReadyNoWebhook(t *testing.T) {
	t.Parallel()

	c := notifier.New("", "")
	err := c.NotifyReady(t.Context(), jobs.Job{ID: "job-1"}, writeRender(t))
	require.NoError(t, err, "NotifyReady without a webhook should be a no-op")
}

func TestNotifyReadyMissingFile(t *testing.T) {
	t.Parallel()

	var got receivedCallback
	srv := callbackReceiver(t, http.StatusOK, &got)
	t.Cleanup(srv.Close)

	c := notifier.New(srv.URL, "")
	err := c.NotifyReady(t.Context(), jobs.Job{ID: "job-1"}, filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err, "NotifyReady should fail when the render file is missing")
	assert.NotErrorIs(t, err, notifier.ErrSendFailure, "Missing file is not a send failure")
}

func TestNotifyReadySendFailure(t *testing.T) {
	t.Parallel()

	var got receivedCallback
	srv := callbackReceiver(t, http.StatusBadGateway, &got)
	t.Cleanup(srv.Close)

	c := notifier.New(srv.URL, "")
	err := c.NotifyReady(t.Context(), jobs.Job{ID: "job-1"}, writeRender(t))
	require.ErrorIs(t, err, notifier.ErrSendFailure, "Non-2xx response should be a send failure")
}

func TestNotifyFailed(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		useWebhook bool
		useLegacy  bool
		jobErr     error

		wantSent     bool
		wantErrorMsg string
	}{
		"Webhook receives the failure notice": {
			useWebhook:   true,
			jobErr:       errors.New("download failed"),
			wantSent:     true,
			wantErrorMsg: "download failed",
		},
		"Legacy URL is used when no webhook is set": {
			useLegacy:    true,
			jobErr:       errors.New("download failed"),
			wantSent:     true,
			wantErrorMsg: "download failed",
		},
		"Long error text is truncated": {
			useWebhook:   true,
			jobErr:       errors.New(strings.Repeat("x", 1000)),
			wantSent:     true,
			wantErrorMsg: strings.Repeat("x", 800),
		},
		"No URL configured is a no-op": {
			jobErr:   errors.New("download failed"),
			wantSent: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var got receivedCallback
			srv := callbackReceiver(t, http.StatusOK, &got)
			t.Cleanup(srv.Close)

			webhook, legacy := "", ""
			if tc.useWebhook {
				webhook = srv.URL
			}
			if tc.useLegacy {
				legacy = srv.URL
			}

			c := notifier.New(webhook, legacy)
			err := c.NotifyFailed(t.Context(), jobs.Job{ID: "job-1", VideoID: "vid-1"}, tc.jobErr)
			require.NoError(t, err, "NotifyFailed should not fail")

			if !tc.wantSent {
				assert.Nil(t, got.jsonBody, "No callback should have been sent")
				return
			}

			assert.Equal(t, "vid-1", got.jsonBody["video_id"], "Unexpected video id")
			assert.Equal(t, "FAILED", got.jsonBody["status"], "Unexpected status")
			assert.Equal(t, "render", got.jsonBody["source"], "Unexpected source")
			assert.Equal(t, tc.wantErrorMsg, got.jsonBody["error_msg"], "Unexpected error message")
		})
	}
}

func TestNotifyReadyBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	var slept []time.Duration
	c := notifier.New(srv.URL, "",
		notifier.WithRetryTimeout(10*time.Minute),
		notifier.WithSleep(func(d time.Duration) { slept = append(slept, d) }),
	)

	err := c.NotifyReadyBackoff(t.Context(), jobs.Job{ID: "job-1", VideoID: "vid-1"}, writeRender(t))
	require.NoError(t, err, "NotifyReadyBackoff should eventually succeed")
	assert.EqualValues(t, 3, calls.Load(), "Callback should have been attempted three times")
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second}, slept, "Backoff should double between retries")
}

func TestNotifyReadyBackoffGivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := notifier.New(srv.URL, "",
		notifier.WithRetryTimeout(90*time.Second),
		notifier.WithSleep(func(time.Duration) {}),
	)

	err := c.NotifyReadyBackoff(t.Context(), jobs.Job{ID: "job-1"}, writeRender(t))
	require.ErrorIs(t, err, notifier.ErrSendFailure, "NotifyReadyBackoff should give up with a send failure")
	assert.EqualValues(t, 2, calls.Load(), "Callback should stop retrying once the budget is spent")
}
