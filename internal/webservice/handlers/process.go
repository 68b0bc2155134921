// Package handlers provides HTTP handlers for the render service.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/clipforge/clipforge/internal/jobs"
	"github.com/google/uuid"
)

// Process is the handler accepting new render requests.
type Process struct {
	queue    Queue
	settings SettingsProvider

	authToken     string
	maxUploadSize int64
}

// NewProcess creates a new Process handler.
func NewProcess(queue Queue, settings SettingsProvider, authToken string, maxUploadSize int64) *Process {
	return &Process{
		queue:    queue,
		settings: settings,

		authToken:     authToken,
		maxUploadSize: maxUploadSize,
	}
}

// ServeHTTP handles incoming render requests.
//
// The body may be JSON or form data. Automations commonly send `video_url`
// instead of `raw_url`; both are accepted.
func (h *Process) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	body, err := parseBody(r)
	if err != nil {
		http.Error(w, "Bad payload", http.StatusBadRequest)
		slog.Error("Failed to parse request body", "req_id", reqID, "err", err)
		return
	}

	if !h.authorized(body, r) {
		http.Error(w, "Bad auth", http.StatusUnauthorized)
		slog.Error("Rejected render request with bad auth", "req_id", reqID)
		return
	}

	job, err := h.jobFromBody(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		slog.Error("Invalid render request", "req_id", reqID, "err", err)
		return
	}

	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		http.Error(w, "Failed to enqueue job", http.StatusInternalServerError)
		slog.Error("Failed to enqueue render job", "req_id", reqID, "err", err)
		return
	}

	slog.Info("Render job accepted", "req_id", reqID, "job_id", job.ID, "video_id", job.VideoID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]any{"ok": true, "job_id": job.ID}); err != nil {
		slog.Warn("Failed to write response", "req_id", reqID, "err", err)
	}
}

// authorized accepts the shared token either as the `auth` body field or as
// an Authorization bearer header.
func (h *Process) authorized(body map[string]any, r *http.Request) bool {
	token, _ := body["auth"].(string)
	if token == "" {
		authHdr := r.Header.Get("Authorization")
		if len(authHdr) > 7 && strings.EqualFold(authHdr[:7], "bearer ") {
			token = strings.TrimSpace(authHdr[7:])
		}
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) == 1
}

func (h *Process) jobFromBody(body map[string]any) (jobs.Job, error) {
	// Some automations send video_url instead of raw_url.
	if _, ok := body["raw_url"]; !ok {
		if v, ok := body["video_url"]; ok {
			body["raw_url"] = v
		}
	}

	videoID, _ := body["video_id"].(string)
	rawURL, _ := body["raw_url"].(string)
	if videoID == "" {
		return jobs.Job{}, fmt.Errorf("video_id must be set")
	}
	if rawURL == "" {
		return jobs.Job{}, fmt.Errorf("raw_url must be set")
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return jobs.Job{}, fmt.Errorf("raw_url is not a valid URL")
	}

	hasCaptions := true
	if v, ok := body["has_captions"]; ok {
		hasCaptions = strings.EqualFold(fmt.Sprint(v), "true")
	}

	// Form clients send settings as a JSON encoded string.
	if s, ok := body["settings"].(string); ok {
		var raw map[string]any
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return jobs.Job{}, fmt.Errorf("invalid settings: %v", err)
		}
		body["settings"] = raw
	}

	settings := h.settings.Defaults()
	if raw, ok := body["settings"].(map[string]any); ok {
		var err error
		if settings, err = jobs.DecodeSettings(raw, settings); err != nil {
			return jobs.Job{}, fmt.Errorf("invalid settings: %v", err)
		}
	}

	return jobs.Job{
		ID:          uuid.NewString(),
		VideoID:     videoID,
		RawURL:      rawURL,
		HasCaptions: hasCaptions,
		Settings:    settings,
		Status:      jobs.StatusQueued,
	}, nil
}

// parseBody decodes the request body as JSON, falling back to form data the
// way browser and automation clients send it.
func parseBody(r *http.Request) (map[string]any, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %v", err)
		}
		return flattenForm(r.PostForm), nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form: %v", err)
		}
		return flattenForm(r.PostForm), nil

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %v", err)
		}

		body := make(map[string]any)
		if err := json.Unmarshal(data, &body); err == nil {
			return body, nil
		}

		// Not JSON; some clients post forms without a content type.
		values, err := url.ParseQuery(string(data))
		if err != nil || len(values) == 0 {
			return nil, fmt.Errorf("body is neither valid JSON nor form data")
		}
		return flattenForm(values), nil
	}
}

func flattenForm(values url.Values) map[string]any {
	body := make(map[string]any, len(values))
	for k := range values {
		body[k] = values.Get(k)
	}
	return body
}
