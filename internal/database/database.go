// Package database provides the PostgreSQL-backed job store for the render
// service. It handles the connection pool and the lifecycle queries of
// render jobs.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/clipforge/clipforge/internal/jobs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoJobs is returned by ClaimNext when no queued job is available.
	ErrNoJobs = errors.New("no queued jobs")

	// ErrNotFound is returned when the requested job does not exist.
	ErrNotFound = errors.New("job not found")
)

const queryTimeout = 10 * time.Second

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Manager manages the PostgreSQL job store.
type Manager struct {
	dbpool dbPool
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a job store with a PostgreSQL connection pool using the provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func New(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}

	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool}, nil
}

// Enqueue inserts a new queued job.
func (db Manager) Enqueue(ctx context.Context, job jobs.Job) error {
	if db.dbpool == nil {
		return errors.New("database not initialized")
	}

	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal job settings: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = db.dbpool.Exec(ctx,
		`INSERT INTO render_jobs (
			id,
			video_id,
			raw_url,
			has_captions,
			settings,
			status
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID,
		job.VideoID,
		job.RawURL,
		job.HasCaptions,
		settings,
		jobs.StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %v", err)
	}
	return nil
}

// ClaimNext marks the oldest queued job as running and returns it.
// Concurrent claimers skip each other's locked rows.
func (db Manager) ClaimNext(ctx context.Context) (*jobs.Job, error) {
	if db.dbpool == nil {
		return nil, errors.New("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := db.dbpool.QueryRow(ctx,
		`UPDATE render_jobs SET status = $1, updated_at = now()
		WHERE id = (
			SELECT id FROM render_jobs
			WHERE status = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, video_id, raw_url, has_captions, settings, status, title_hook, error_msg, created_at, updated_at`,
		jobs.StatusRunning, jobs.StatusQueued,
	)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoJobs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %v", err)
	}
	return job, nil
}

// MarkReady records a successful render and its selected title hook.
func (db Manager) MarkReady(ctx context.Context, id, titleHook string) error {
	return db.setStatus(ctx, id, jobs.StatusReady, titleHook, "")
}

// MarkFailed records a failed render with its error message.
func (db Manager) MarkFailed(ctx context.Context, id, errMsg string) error {
	return db.setStatus(ctx, id, jobs.StatusFailed, "", errMsg)
}

// Get returns the job with the given id.
func (db Manager) Get(ctx context.Context, id string) (*jobs.Job, error) {
	if db.dbpool == nil {
		return nil, errors.New("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := db.dbpool.QueryRow(ctx,
		`SELECT id, video_id, raw_url, has_captions, settings, status, title_hook, error_msg, created_at, updated_at
		FROM render_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %v", err)
	}
	return job, nil
}

// RequeueStale returns running jobs older than staleAfter to the queue.
// Covers workers that died mid-render, at the cost of a possible duplicate callback.
func (db Manager) RequeueStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	if db.dbpool == nil {
		return 0, errors.New("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := db.dbpool.Exec(ctx,
		`UPDATE render_jobs SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < now() - $3::interval`,
		jobs.StatusQueued, jobs.StatusRunning, fmt.Sprintf("%f seconds", staleAfter.Seconds()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %v", err)
	}
	return tag.RowsAffected(), nil
}

func (db Manager) setStatus(ctx context.Context, id string, status jobs.Status, titleHook, errMsg string) error {
	if db.dbpool == nil {
		return errors.New("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := db.dbpool.Exec(ctx,
		`UPDATE render_jobs SET status = $1, title_hook = $2, error_msg = $3, updated_at = now()
		WHERE id = $4`,
		status, titleHook, errMsg, id,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("status update canceled: %v", err)
		}
		return fmt.Errorf("failed to update job status: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*jobs.Job, error) {
	var (
		job      jobs.Job
		settings []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.VideoID,
		&job.RawURL,
		&job.HasCaptions,
		&settings,
		&job.Status,
		&job.TitleHook,
		&job.ErrorMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &job.Settings); err != nil {
			return nil, fmt.Errorf("stored settings are corrupt: %v", err)
		}
	}
	return &job, nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (db *Manager) Close() error {
	if db.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.dbpool.Close()
	}()

	select {
	case <-done:
		db.dbpool = nil
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// URI is a helper method that returns a connection URI for PostgreSQL.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
