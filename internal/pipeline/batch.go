package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BatchOptions configures a batch run. Overrides lets individual
// tracks deviate from the batch defaults.
type BatchOptions struct {
	PlaylistID    string
	SessionPrefix string
	MaxConcurrent int
	Options       Options
	Overrides     map[string]Options
}

// BatchSummary reports the outcome of a batch run.
type BatchSummary struct {
	Completed []string
	Failed    []string
}

// RunBatch processes tracks with at most MaxConcurrent in flight. Each
// track gets its own progress session named "<prefix>__<trackID>". A
// track failure or panic is isolated: the rest of the batch proceeds.
func (e *Engine) RunBatch(ctx context.Context, trackIDs []string, opts BatchOptions) BatchSummary {
	limit := opts.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	prefix := opts.SessionPrefix
	if prefix == "" {
		prefix = "batch"
	}

	if opts.PlaylistID != "" {
		if err := e.checkpoints.SavePlaylist(opts.PlaylistID, "processing", map[string]any{
			"total_tracks":     len(trackIDs),
			"processed_tracks": 0,
		}); err != nil {
			e.logger.Warn("could not checkpoint playlist start", "playlist", opts.PlaylistID, "error", err)
		}
	}

	var (
		mu        sync.Mutex
		summary   BatchSummary
		processed int
	)

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, trackID := range trackIDs {
		if ctx.Err() != nil {
			e.logger.Warn("batch cancelled", "remaining", trackID)
			break
		}

		wg.Add(1)
		go func(trackID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sessionID := fmt.Sprintf("%s__%s", prefix, trackID)
			err := e.runTrack(ctx, trackID, sessionID, e.trackOptions(trackID, opts))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Error("track failed", "track", trackID, "error", err)
				summary.Failed = append(summary.Failed, trackID)
				return
			}
			summary.Completed = append(summary.Completed, trackID)
			processed++
			if opts.PlaylistID != "" {
				if err := e.checkpoints.SavePlaylist(opts.PlaylistID, "processing", map[string]any{
					"total_tracks":     len(trackIDs),
					"processed_tracks": processed,
				}); err != nil {
					e.logger.Warn("could not checkpoint playlist progress", "playlist", opts.PlaylistID, "error", err)
				}
			}
		}(trackID)
	}
	wg.Wait()

	if opts.PlaylistID != "" {
		status := "processing"
		if len(summary.Failed) == 0 {
			status = "completed"
		}
		if err := e.checkpoints.SavePlaylist(opts.PlaylistID, status, map[string]any{
			"total_tracks":     len(trackIDs),
			"processed_tracks": processed,
		}); err != nil {
			e.logger.Warn("could not checkpoint playlist completion", "playlist", opts.PlaylistID, "error", err)
		}
	}

	e.logger.Info("batch finished",
		"completed", len(summary.Completed), "failed", len(summary.Failed))
	return summary
}

// runTrack wraps a single track with the start jitter and a panic
// guard so a misbehaving subprocess wrapper cannot take down the run.
func (e *Engine) runTrack(ctx context.Context, trackID, sessionID string, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", trackID, r)
			prev, _ := e.progress.Get(sessionID)
			e.progress.Set(sessionID, failureRecord(prev, "Internal processing error"))
		}
	}()

	e.applyJitter(opts.StartJitter)
	return e.ProcessTrack(ctx, trackID, sessionID, opts)
}

func (e *Engine) trackOptions(trackID string, batch BatchOptions) Options {
	opts := batch.Options
	opts.PlaylistID = batch.PlaylistID
	if override, ok := batch.Overrides[trackID]; ok {
		if len(override.Channels) > 0 {
			opts.Channels = override.Channels
		}
		if override.Device != "" {
			opts.Device = override.Device
		}
		if len(override.Cooldown) > 0 {
			opts.Cooldown = override.Cooldown
		}
		if len(override.RetryBackoff) > 0 {
			opts.RetryBackoff = override.RetryBackoff
		}
		if len(override.StartJitter) > 0 {
			opts.StartJitter = override.StartJitter
		}
	}
	return opts
}

// applyJitter staggers worker start so concurrent tracks do not hit
// the downloader and separator at the same instant.
func (e *Engine) applyJitter(jitter []float64) {
	if len(jitter) != 2 || jitter[1] <= 0 {
		return
	}
	e.sleep(time.Duration(e.uniform(jitter[0], jitter[1]) * float64(time.Second)))
}

// Resume re-runs the incomplete tracks of a checkpointed playlist.
func (e *Engine) Resume(ctx context.Context, playlistID string, opts BatchOptions) (BatchSummary, error) {
	incomplete := e.checkpoints.IncompleteTracks(playlistID)
	if len(incomplete) == 0 {
		return BatchSummary{}, fmt.Errorf("no incomplete tracks for playlist %s", playlistID)
	}

	trackIDs := make([]string, 0, len(incomplete))
	for _, entry := range incomplete {
		trackIDs = append(trackIDs, entry.TrackID)
	}

	opts.PlaylistID = playlistID
	e.logger.Info("resuming playlist", "playlist", playlistID, "tracks", len(trackIDs))
	return e.RunBatch(ctx, trackIDs, opts), nil
}
