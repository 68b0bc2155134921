package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/jobs"
	"github.com/clipforge/clipforge/internal/webservice/handlers"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "sekrit"

type mockQueue struct {
	enqueued []jobs.Job
	jobs     map[string]jobs.Job

	enqueueErr error
	getErr     error
}

func (m *mockQueue) Enqueue(ctx context.Context, job jobs.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockQueue) Get(ctx context.Context, id string) (*jobs.Job, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &job, nil
}

type mockSettings struct{}

func (mockSettings) Defaults() jobs.Settings {
	return jobs.DefaultSettings()
}

func TestProcess(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body        string
		contentType string
		bearer      string
		enqueueErr  error

		wantCode        int
		wantJob         bool
		wantVideoID     string
		wantRawURL      string
		wantHasCaptions bool
		wantPauseTrim   int
	}{
		"Valid JSON request with body auth": {
			body:            fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "https://example.com/v.mp4"}`, testToken),
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   350,
		},
		"Valid JSON request with bearer auth": {
			body:            `{"video_id": "vid-1", "raw_url": "https://example.com/v.mp4"}`,
			bearer:          testToken,
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   350,
		},
		"video_url is accepted as an alias for raw_url": {
			body:            fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "video_url": "https://example.com/v.mp4"}`, testToken),
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   350,
		},
		"Captions can be disabled": {
			body:            fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "https://example.com/v.mp4", "has_captions": false}`, testToken),
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: false,
			wantPauseTrim:   350,
		},
		"Captions flag accepts a string": {
			body:            fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "https://example.com/v.mp4", "has_captions": "True"}`, testToken),
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   350,
		},
		"Settings override the defaults": {
			body:            fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "https://example.com/v.mp4", "settings": {"pause_trim_ms": 500}}`, testToken),
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   500,
		},
		"Form encoded request": {
			body:            "auth=" + testToken + "&video_id=vid-1&raw_url=" + url.QueryEscape("https://example.com/v.mp4"),
			contentType:     "application/x-www-form-urlencoded",
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   350,
		},
		"Form encoded settings as JSON string": {
			body: "auth=" + testToken + "&video_id=vid-1&raw_url=" + url.QueryEscape("https://example.com/v.mp4") +
				"&settings=" + url.QueryEscape(`{"pause_trim_ms": "500"}`),
			contentType:     "application/x-www-form-urlencoded",
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   500,
		},
		"Form body without a content type": {
			body:            "auth=" + testToken + "&video_id=vid-1&raw_url=" + url.QueryEscape("https://example.com/v.mp4"),
			wantCode:        http.StatusAccepted,
			wantJob:         true,
			wantVideoID:     "vid-1",
			wantRawURL:      "https://example.com/v.mp4",
			wantHasCaptions: true,
			wantPauseTrim:   350,
		},

		// Error cases
		"Bad auth is rejected": {
			body:     `{"auth": "wrong", "video_id": "vid-1", "raw_url": "https://example.com/v.mp4"}`,
			wantCode: http.StatusUnauthorized,
		},
		"Missing auth is rejected": {
			body:     `{"video_id": "vid-1", "raw_url": "https://example.com/v.mp4"}`,
			wantCode: http.StatusUnauthorized,
		},
		"Missing video_id": {
			body:     fmt.Sprintf(`{"auth": %q, "raw_url": "https://example.com/v.mp4"}`, testToken),
			wantCode: http.StatusUnprocessableEntity,
		},
		"Missing raw_url": {
			body:     fmt.Sprintf(`{"auth": %q, "video_id": "vid-1"}`, testToken),
			wantCode: http.StatusUnprocessableEntity,
		},
		"Invalid raw_url": {
			body:     fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "not a url"}`, testToken),
			wantCode: http.StatusUnprocessableEntity,
		},
		"Invalid settings": {
			body:     fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "https://example.com/v.mp4", "settings": {"pause_trim_ms": "soon"}}`, testToken),
			wantCode: http.StatusUnprocessableEntity,
		},
		"Unparseable body": {
			body:     "%zz",
			wantCode: http.StatusBadRequest,
		},
		"Empty body": {
			body:     "",
			wantCode: http.StatusBadRequest,
		},
		"Queue failure": {
			body:       fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "https://example.com/v.mp4"}`, testToken),
			enqueueErr: errors.New("db down"),
			wantCode:   http.StatusInternalServerError,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			queue := &mockQueue{enqueueErr: tc.enqueueErr}
			handler := handlers.NewProcess(queue, mockSettings{}, testToken, 1<<17)

			req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.wantCode, rr.Code, "Unexpected status code")

			if !tc.wantJob {
				assert.Empty(t, queue.enqueued, "No job should have been enqueued")
				return
			}

			require.Len(t, queue.enqueued, 1, "Exactly one job should have been enqueued")
			job := queue.enqueued[0]
			assert.NoError(t, uuid.Validate(job.ID), "Job ID should be a UUID")
			assert.Equal(t, tc.wantVideoID, job.VideoID, "Unexpected video id")
			assert.Equal(t, tc.wantRawURL, job.RawURL, "Unexpected source URL")
			assert.Equal(t, tc.wantHasCaptions, job.HasCaptions, "Unexpected captions flag")
			assert.Equal(t, tc.wantPauseTrim, job.Settings.PauseTrimMs, "Unexpected pause trim")
			assert.Equal(t, jobs.StatusQueued, job.Status, "Job should be enqueued as queued")

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "Response should be valid JSON")
			assert.Equal(t, true, resp["ok"], "Response should report ok")
			assert.Equal(t, job.ID, resp["job_id"], "Response should echo the job id")
		})
	}
}

func TestProcessMultipartForm(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	require.NoError(t, w.WriteField("auth", testToken), "Setup: failed to write field")
	require.NoError(t, w.WriteField("video_id", "vid-1"), "Setup: failed to write field")
	require.NoError(t, w.WriteField("raw_url", "https://example.com/v.mp4"), "Setup: failed to write field")
	require.NoError(t, w.Close(), "Setup: failed to close multipart writer")

	queue := &mockQueue{}
	handler := handlers.NewProcess(queue, mockSettings{}, testToken, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/process", &b)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code, "Unexpected status code")
	require.Len(t, queue.enqueued, 1, "Exactly one job should have been enqueued")
	assert.Equal(t, "vid-1", queue.enqueued[0].VideoID, "Unexpected video id")
}

func TestProcessOversizedBody(t *testing.T) {
	t.Parallel()

	queue := &mockQueue{}
	handler := handlers.NewProcess(queue, mockSettings{}, testToken, 16)

	body := fmt.Sprintf(`{"auth": %q, "video_id": "vid-1", "raw_url": "https://example.com/v.mp4"}`, testToken)
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "Oversized body should be rejected")
	assert.Empty(t, queue.enqueued, "No job should have been enqueued")
}

func TestJobStatus(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	job := jobs.Job{
		ID:        uuid.NewString(),
		VideoID:   "vid-1",
		RawURL:    "https://example.com/v.mp4",
		Status:    jobs.StatusReady,
		TitleHook: "Watch this",
		CreatedAt: now,
		UpdatedAt: now,
	}

	tests := map[string]struct {
		id     string
		getErr error

		wantCode int
	}{
		"Existing job":            {id: job.ID, wantCode: http.StatusOK},
		"Unknown job":             {id: uuid.NewString(), wantCode: http.StatusNotFound},
		"Invalid job id":          {id: "not-a-uuid", wantCode: http.StatusBadRequest},
		"Store failure":           {id: job.ID, getErr: errors.New("db down"), wantCode: http.StatusInternalServerError},
		"Store reports not found": {id: job.ID, getErr: database.ErrNotFound, wantCode: http.StatusNotFound},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			queue := &mockQueue{jobs: map[string]jobs.Job{job.ID: job}, getErr: tc.getErr}

			mux := http.NewServeMux()
			mux.Handle("GET /jobs/{id}", handlers.NewJobStatus(queue))

			req := httptest.NewRequest(http.MethodGet, "/jobs/"+tc.id, nil)
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			require.Equal(t, tc.wantCode, rr.Code, "Unexpected status code")
			if tc.wantCode != http.StatusOK {
				return
			}

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "Response should be valid JSON")
			assert.Equal(t, job.ID, resp["job_id"], "Unexpected job id")
			assert.Equal(t, "vid-1", resp["video_id"], "Unexpected video id")
			assert.Equal(t, string(jobs.StatusReady), resp["status"], "Unexpected status")
			assert.Equal(t, "Watch this", resp["title_hook"], "Unexpected title hook")
			assert.NotContains(t, resp, "raw_url", "Source URL should not be echoed")
		})
	}
}

func TestVersionHandler(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rr := httptest.NewRecorder()
	handlers.VersionHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "Unexpected status code")

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "Response should be valid JSON")
	assert.NotEmpty(t, resp["version"], "Version should not be empty")
}

func TestStatusHandler(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handlers.StatusHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "Unexpected status code")

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "Response should be valid JSON")
	assert.Equal(t, "ok", resp["status"], "Unexpected status")
}
