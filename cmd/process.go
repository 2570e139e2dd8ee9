package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stemx/internal/pipeline"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/desertthunder/stemx/internal/ui"
)

// Resolve performs one-shot source resolution for a track and prints
// the outcome without downloading or separating anything.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("id")
	if trackID == "" {
		return fmt.Errorf("%w: track ID", shared.ErrMissingArgument)
	}
	r.reloadConfig(cmd)

	app, err := r.buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	track, m, err := app.engine.ResolveTrack(ctx, trackID)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			TrackID  string  `json:"track_id"`
			Title    string  `json:"title"`
			Artist   string  `json:"artist"`
			SourceID string  `json:"source_id,omitempty"`
			Score    float64 `json:"score"`
			Accepted bool    `json:"accepted"`
			Review   bool    `json:"review"`
		}{trackID, track.Title, track.Artist, m.SourceID, m.Score, m.Accepted, m.Review}, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Resolution: %s", track.DisplayName()))
	switch {
	case m.SourceID == "":
		r.writePlainln("✗ No source match found (queued for retry)")
	case m.Accepted:
		r.writePlainln("✓ Matched %s (score %.1f, cached)", m.SourceID, m.Score)
	case m.Review:
		r.writePlainln("~ Matched %s (score %.1f, needs review)", m.SourceID, m.Score)
	}
	return nil
}

// Process runs the full pipeline for one track.
func (r *Runner) Process(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("id")
	if trackID == "" {
		return fmt.Errorf("%w: track ID", shared.ErrMissingArgument)
	}
	r.reloadConfig(cmd)

	app, err := r.buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	opts, err := r.trackOptions(cmd, app.channels)
	if err != nil {
		return err
	}

	sessionID := fmt.Sprintf("%s__%s", shared.GenerateID()[:8], trackID)
	r.logger.Info("processing track", "track", trackID, "session", sessionID)

	if err := app.engine.ProcessTrack(ctx, trackID, sessionID, opts); err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	r.writePlainln("✓ Track processed: %s", trackID)
	r.writePlain("  Output: %s\n", r.config.Processing.OutputDir)
	return nil
}

// Batch processes the given track IDs, or a playlist's tracks, with
// bounded concurrency. With --watch a live monitor owns the terminal
// until the batch completes.
func (r *Runner) Batch(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)
	defer r.redirectLogsForWatch(cmd)()

	app, err := r.buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	trackIDs := cmd.Args().Slice()
	playlistID := cmd.String("playlist")
	if playlistID != "" {
		export, err := app.catalog.GetPlaylist(ctx, playlistID)
		if err != nil {
			return fmt.Errorf("failed to fetch playlist: %w", err)
		}
		for _, track := range export.Tracks {
			trackIDs = append(trackIDs, track.ID)
		}
		r.logger.Info("expanded playlist", "playlist", playlistID, "tracks", len(export.Tracks))
	}
	if len(trackIDs) == 0 {
		return fmt.Errorf("%w: track IDs or --playlist", shared.ErrMissingArgument)
	}

	opts, err := r.trackOptions(cmd, app.channels)
	if err != nil {
		return err
	}

	batchOpts := pipeline.BatchOptions{
		PlaylistID:    playlistID,
		SessionPrefix: shared.GenerateID()[:8],
		MaxConcurrent: r.maxConcurrent(cmd),
		Options:       opts,
	}

	summary := r.runBatch(ctx, cmd, app, func() pipeline.BatchSummary {
		return app.engine.RunBatch(ctx, trackIDs, batchOpts)
	})

	return r.reportBatch(summary)
}

// Resume re-runs the incomplete tracks of a checkpointed playlist.
func (r *Runner) Resume(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.StringArg("playlist")
	if playlistID == "" {
		return fmt.Errorf("%w: playlist ID", shared.ErrMissingArgument)
	}
	r.reloadConfig(cmd)
	defer r.redirectLogsForWatch(cmd)()

	app, err := r.buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	opts, err := r.trackOptions(cmd, app.channels)
	if err != nil {
		return err
	}

	batchOpts := pipeline.BatchOptions{
		SessionPrefix: shared.GenerateID()[:8],
		MaxConcurrent: r.maxConcurrent(cmd),
		Options:       opts,
	}

	var resumeErr error
	summary := r.runBatch(ctx, cmd, app, func() pipeline.BatchSummary {
		s, err := app.engine.Resume(ctx, playlistID, batchOpts)
		resumeErr = err
		return s
	})
	if resumeErr != nil {
		return resumeErr
	}

	return r.reportBatch(summary)
}

// redirectLogsForWatch swaps the logger to a file when the command
// carries --watch, so the monitor owns the terminal alone. It must run
// before buildApp: everything built afterward inherits the file logger.
// The returned func restores the original logger.
func (r *Runner) redirectLogsForWatch(cmd *cli.Command) func() {
	if !cmd.Bool("watch") {
		return func() {}
	}
	restore := r.logger
	if fileLogger, err := shared.NewFileLogger("./tmp/stemx.log"); err == nil {
		r.SetLogger(fileLogger)
	}
	return func() { r.SetLogger(restore) }
}

// runBatch executes run, optionally behind the live monitor when the
// command carries --watch.
func (r *Runner) runBatch(ctx context.Context, cmd *cli.Command, app *app, run func() pipeline.BatchSummary) pipeline.BatchSummary {
	if !cmd.Bool("watch") {
		return run()
	}

	done := make(chan pipeline.BatchSummary, 1)
	go func() {
		done <- run()
	}()

	model := ui.NewModel(r.progress, 500*time.Millisecond, true)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		r.logger.Warn("monitor exited", "error", err)
	}

	return <-done
}

func (r *Runner) maxConcurrent(cmd *cli.Command) int {
	if n := cmd.Int("max-concurrent"); n > 0 {
		return int(n)
	}
	return r.config.Processing.MaxConcurrent
}

func (r *Runner) reportBatch(summary pipeline.BatchSummary) error {
	r.writePlainHeader("Batch Summary")
	r.writePlain("Completed: %d\n", len(summary.Completed))
	r.writePlain("Failed: %d\n", len(summary.Failed))
	for _, trackID := range summary.Failed {
		r.writePlain("  ✗ %s\n", trackID)
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d of %d tracks failed", len(summary.Failed), len(summary.Completed)+len(summary.Failed))
	}
	return nil
}
