package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stemx/internal/checkpoint"
	"github.com/desertthunder/stemx/internal/match"
	"github.com/desertthunder/stemx/internal/pipeline"
	"github.com/desertthunder/stemx/internal/progress"
	"github.com/desertthunder/stemx/internal/repositories"
	"github.com/desertthunder/stemx/internal/separation"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/desertthunder/stemx/internal/stems"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config   *shared.Config
	logger   *log.Logger
	output   io.Writer
	input    io.Reader
	progress *progress.Store
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config   *shared.Config
	Logger   *log.Logger
	Output   io.Writer
	Input    io.Reader
	Progress *progress.Store
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Progress == nil {
		opts.Progress = progress.NewStore()
	}

	return &Runner{
		config:   opts.Config,
		logger:   opts.Logger,
		output:   opts.Output,
		input:    opts.Input,
		progress: opts.Progress,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, resolveCommand, processCommand, batchCommand, resumeCommand, statusCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger, e.g. with a file logger while
// a TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// reloadConfig swaps in the config file named by the command's --config
// flag when it differs from what the runner was constructed with.
func (r *Runner) reloadConfig(cmd *cli.Command) {
	path := cmd.String("config")
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, keeping current", "path", path, "error", err)
		return
	}
	r.config = config
}

// app bundles the wired pipeline and its stores for one command
// invocation. Close releases the database handle.
type app struct {
	db          *sql.DB
	engine      *pipeline.Engine
	catalog     services.Catalog
	checkpoints *checkpoint.Store
	recovery    *checkpoint.RecoveryCache
	matchCache  *match.Cache
	retries     *match.RetryQueue
	channels    []stems.Channel
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// buildApp wires the full pipeline from the runner's config. The
// catalog service is authenticated before returning; every processing
// command needs it.
func (r *Runner) buildApp(ctx context.Context) (*app, error) {
	cfg := r.config

	catalog := services.NewCatalogService(
		cfg.Catalog.BaseURL,
		cfg.Catalog.TokenURL,
		cfg.Catalog.ClientID,
		cfg.Catalog.ClientSecret,
	)
	if err := catalog.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("catalog authentication failed: %w", err)
	}

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	channels, err := stems.ParseChannels(cfg.Processing.Channels)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	var search services.SearchProvider
	if cfg.Search.ProxyURL != "" {
		search = services.NewProxySearchService(cfg.Search.ProxyURL, cfg.Search.RateLimit, cfg.Search.MaxCandidates)
	} else {
		search = services.NewYTDLPSearchService(cfg.Search.MaxCandidates)
	}
	matchCache := match.NewCache(cfg.State.MatchCacheFile, r.logger)
	retries := match.NewRetryQueue(cfg.State.RetryQueueFile, r.logger)
	matcher := match.NewMatcher(search, matchCache, retries, r.logger)

	validator := separation.NewValidator(cfg.Separation.MinStemBytes, cfg.Separation.MinStemSeconds)
	dispatcher := separation.NewDispatcher(
		cfg.Separation.Models,
		cfg.Separation.SeparatedDir,
		separation.NewExecRunner(r.logger),
		validator,
		r.logger,
	)
	dispatcher.Shifts = cfg.Separation.Shifts
	dispatcher.Timeout = time.Duration(cfg.Separation.ToolTimeoutSeconds * float64(time.Second))

	checkpoints := checkpoint.NewStore(cfg.State.CheckpointFile, r.logger)
	recovery := checkpoint.NewRecoveryCache(cfg.State.RecoveryCacheFile, r.logger)

	engine := pipeline.NewEngine(pipeline.EngineParams{
		Catalog:       catalog,
		Analyzer:      services.NewAnalyzerService(cfg.Analyzer.BaseURL),
		Matcher:       matcher,
		Downloader:    services.NewYTDLPDownloader(cfg.Separation.MP3Dir, r.logger),
		Preparer:      separation.NewPreparer(cfg.Separation.MP3Dir, r.logger),
		Dispatcher:    dispatcher,
		Processor:     stems.NewExportProcessor(cfg.Processing.OutputDir, stems.NewMixer(r.logger), r.logger),
		Checkpoints:   checkpoints,
		Recovery:      recovery,
		Progress:      r.progress,
		Tracks:        repositories.NewTrackRepository(db),
		Logger:        r.logger,
		Device:        cfg.Separation.Device,
		Channels:      channels,
		SeparatedRoot: cfg.Separation.SeparatedDir,
	})

	return &app{
		db:          db,
		engine:      engine,
		catalog:     catalog,
		checkpoints: checkpoints,
		recovery:    recovery,
		matchCache:  matchCache,
		retries:     retries,
		channels:    channels,
	}, nil
}

// trackOptions builds pipeline options from config plus command flags.
func (r *Runner) trackOptions(cmd *cli.Command, defaults []stems.Channel) (pipeline.Options, error) {
	cfg := r.config

	channels := defaults
	if keys := cmd.StringSlice("channels"); len(keys) > 0 {
		parsed, err := stems.ParseChannels(keys)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
		}
		channels = parsed
	}

	device := cfg.Separation.Device
	if d := cmd.String("device"); d != "" {
		device = d
	}

	return pipeline.Options{
		Channels:     channels,
		Device:       device,
		StartJitter:  cfg.Processing.StartJitterSeconds,
		Cooldown:     cfg.Processing.CooldownSeconds,
		RetryBackoff: cfg.Processing.RetryBackoffSeconds,
	}, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
