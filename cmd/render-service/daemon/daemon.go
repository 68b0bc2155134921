// Package daemon provides the clipforge render service daemon.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/clipforge/clipforge/internal/captions"
	"github.com/clipforge/clipforge/internal/cli"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/constants"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/notifier"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/processor"
	"github.com/clipforge/clipforge/internal/service"
	"github.com/clipforge/clipforge/internal/transcribe"
	"github.com/clipforge/clipforge/internal/webservice"
	"github.com/clipforge/clipforge/internal/workers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *service.Service

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	AuthToken string

	Web           webservice.StaticConfig
	MetricsConfig metrics.Config
	DBconfig      database.Config
	Webhook       webhookConfig
	Transcribe    transcribeConfig

	WorkDir       string
	MaxDownloadMB int64
	StaleRequeue  time.Duration

	PresetsPath   string
	MigrationsDir string
}

type webhookConfig struct {
	URL       string
	LegacyURL string
}

type transcribeConfig struct {
	Model    string
	CacheDir string
}

// plainEnv maps the plain environment variables hosting platforms inject to
// their viper configuration keys.
var plainEnv = map[string]string{
	"PORT":                "web.listenport",
	"AUTH_TOKEN":          "authtoken",
	"ZAPIER_WEBHOOK_URL":  "webhook.url",
	"BASE44_CALLBACK_URL": "webhook.legacyurl",
	"WHISPER_MODEL":       "transcribe.model",
	"WHISPER_CACHE":       "transcribe.cachedir",
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "clipforge render service",
		Long:          "clipforge render service accepts short-form video render requests over HTTP, processes them with ffmpeg and whisper, and delivers the result to a webhook.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			for env, key := range plainEnv {
				if err := a.viper.BindEnv(key, env); err != nil {
					return fmt.Errorf("could not bind environment variable %s: %w", env, err)
				}
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config.redacted())

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installMigrateCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultWeb := webservice.StaticConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		RequestTimeout: 3 * time.Second,
		MaxHeaderBytes: 1 << 13, // 8 KB
		MaxUploadBytes: 1 << 17, // 128 KB

		ListenPort: 8080,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	// Daemon flags
	cmd.Flags().StringVar(&app.config.AuthToken, "auth-token", "changeme", "shared token required on render requests")
	cmd.Flags().StringVarP(&app.config.PresetsPath, "daemon-config", "c", "", "path to the presets file")
	cmd.Flags().StringVar(&app.config.WorkDir, "work-dir", constants.DefaultWorkDir, "scratch directory for render jobs")
	cmd.Flags().Int64Var(&app.config.MaxDownloadMB, "max-download-mb", 512, "maximum source video size in MiB, 0 to disable")
	cmd.Flags().DurationVar(&app.config.StaleRequeue, "stale-requeue", 1*time.Hour, "requeue running jobs older than this at startup, 0 to disable")

	// HTTP server flags
	cmd.Flags().DurationVar(&app.config.Web.ReadTimeout, "read-timeout", defaultWeb.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Web.WriteTimeout, "write-timeout", defaultWeb.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Web.RequestTimeout, "request-timeout", defaultWeb.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Web.MaxHeaderBytes, "max-header-bytes", defaultWeb.MaxHeaderBytes, "maximum header bytes for HTTP server")
	cmd.Flags().IntVar(&app.config.Web.MaxUploadBytes, "max-upload-bytes", defaultWeb.MaxUploadBytes, "maximum request body bytes for HTTP server")
	cmd.Flags().StringVar(&app.config.Web.ListenHost, "listen-host", defaultWeb.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Web.ListenPort, "listen-port", defaultWeb.ListenPort, "port to listen on")

	// Metrics server flags
	cmd.Flags().StringVar(&app.config.MetricsConfig.Host, "metrics-host", "", "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.MetricsConfig.Port, "metrics-port", 2112, "port for the metrics endpoint")

	// Callback flags
	cmd.Flags().StringVar(&app.config.Webhook.URL, "webhook-url", "", "webhook receiving the final render")
	cmd.Flags().StringVar(&app.config.Webhook.LegacyURL, "legacy-webhook-url", "", "legacy URL receiving failure notices when no webhook is set")

	// Transcription flags
	cmd.Flags().StringVar(&app.config.Transcribe.Model, "whisper-model", transcribe.DefaultModel, "transcription model name")
	cmd.Flags().StringVar(&app.config.Transcribe.CacheDir, "model-cache-dir", constants.DefaultModelCacheDir, "cache directory for transcription models")

	addDBFlags(cmd, &app.config.DBconfig)

	if err := cmd.MarkFlagFilename("daemon-config"); err != nil {
		panic(fmt.Sprintf("failed to mark daemon-config flag as filename: %v", err))
	}
	if err := cmd.MarkFlagDirname("work-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark work-dir flag as directory: %v", err))
	}
}

func addDBFlags(cmd *cobra.Command, config *database.Config) {
	cmd.Flags().StringVar(&config.Host, "db-host", "", "database host")
	cmd.Flags().IntVarP(&config.Port, "db-port", "p", 5432, "database port")
	cmd.Flags().StringVarP(&config.User, "db-user", "u", "", "database user")
	cmd.Flags().StringVarP(&config.Password, "db-password", "P", "", "database password")
	cmd.Flags().StringVarP(&config.DBName, "db-name", "n", "", "database name")
	cmd.Flags().StringVarP(&config.SSLMode, "db-sslmode", "s", "", "database SSL mode")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	defer func() {
		if err != nil {
			// Let Quit callers unblock even though we never got running.
			select {
			case <-a.ready:
			default:
				close(a.ready)
			}
		}
	}()

	if a.config.PresetsPath != "" {
		a.config.PresetsPath, err = filepath.Abs(a.config.PresetsPath)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for presets file: %v", err)
		}
	}
	cm := config.New(a.config.PresetsPath)
	if err := cm.Load(); err != nil {
		return fmt.Errorf("failed to load presets: %v", err)
	}

	db, err := database.New(context.Background(), a.config.DBconfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	if a.config.StaleRequeue > 0 {
		n, err := db.RequeueStale(context.Background(), a.config.StaleRequeue)
		if err != nil {
			slog.Warn("Failed to requeue stale jobs", "err", err)
		} else if n > 0 {
			slog.Info("Requeued stale running jobs", "count", n)
		}
	}

	style := captions.DefaultStyle()
	if p := cm.CaptionStyle(); p != "" {
		if style, err = captions.LoadStyle(p); err != nil {
			return fmt.Errorf("failed to load caption style: %v", err)
		}
	}

	engine := transcribe.NewWhisperCLI(a.config.Transcribe.Model, a.config.Transcribe.CacheDir)
	renderer, err := pipeline.New(a.config.WorkDir, engine,
		pipeline.WithStyle(style),
		pipeline.WithMaxDownloadBytes(a.config.MaxDownloadMB<<20),
	)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %v", err)
	}

	notif := notifier.New(a.config.Webhook.URL, a.config.Webhook.LegacyURL)
	if !notif.Configured() {
		slog.Warn("No webhook URL set; finished renders will only be recorded in the job store")
	}

	registry := prometheus.NewRegistry()
	proc, err := processor.New(db, renderer, notif, registry)
	if err != nil {
		return fmt.Errorf("failed to create job processor: %v", err)
	}

	workerPool, err := workers.New(cm, proc, registry)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %v", err)
	}

	a.config.Web.AuthToken = a.config.AuthToken
	webServer, err := webservice.New(context.Background(), cm, db, registry, a.config.Web)
	if err != nil {
		return fmt.Errorf("failed to create web server: %v", err)
	}

	metricsServer := metrics.New(a.config.MetricsConfig, registry)

	a.daemon = service.New(context.Background(), webServer, workerPool, metricsServer)
	close(a.ready)

	return a.daemon.Run()
}

// redacted returns a copy of the configuration safe for logging.
func (c appConfig) redacted() appConfig {
	if c.AuthToken != "" {
		c.AuthToken = "***"
	}
	if c.DBconfig.Password != "" {
		c.DBconfig.Password = "***"
	}
	return c
}
