// Package pipeline orchestrates the per-track processing sequence and
// the bounded-concurrency batch scheduler around it.
//
// A track moves through a strict order: checkpoint, catalog fetch,
// analysis merge, source resolution, audio acquisition (with a single
// backoff retry), preparation, separation dispatch, and channel
// handoff. Failures are terminal for the track, never for the batch.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stemx/internal/checkpoint"
	"github.com/desertthunder/stemx/internal/match"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/progress"
	"github.com/desertthunder/stemx/internal/repositories"
	"github.com/desertthunder/stemx/internal/separation"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/desertthunder/stemx/internal/stems"
)

// Options carries per-run knobs for a track. Zero values fall back to
// the engine's configured defaults.
type Options struct {
	PlaylistID   string
	Channels     []stems.Channel
	Device       string
	StartJitter  []float64 // seconds, [min, max]
	Cooldown     []float64 // seconds, [min, max] or [fixed]
	RetryBackoff []float64 // seconds, [min, max]
}

// AudioPreparer normalizes downloaded audio ahead of separation.
// *separation.Preparer is the production implementation.
type AudioPreparer interface {
	PreparedPath(uid string) string
	Prepare(ctx context.Context, srcPath, uid string) (string, bool)
}

// Engine wires the pipeline's collaborators together. All state stores
// are injected; the engine itself holds no global state.
type Engine struct {
	catalog     services.Catalog
	analyzer    services.Analyzer
	matcher     *match.Matcher
	downloader  services.Downloader
	preparer    AudioPreparer
	dispatcher  *separation.Dispatcher
	processor   stems.ChannelProcessor
	checkpoints *checkpoint.Store
	recovery    *checkpoint.RecoveryCache
	progress    *progress.Store
	tracks      *repositories.TrackRepository
	logger      *log.Logger

	defaultDevice   string
	defaultChannels []stems.Channel
	separatedRoot   string

	// injectable timing for tests
	sleep   func(time.Duration)
	uniform func(min, max float64) float64
}

// EngineParams bundles the collaborators for NewEngine.
type EngineParams struct {
	Catalog     services.Catalog
	Analyzer    services.Analyzer
	Matcher     *match.Matcher
	Downloader  services.Downloader
	Preparer    AudioPreparer
	Dispatcher  *separation.Dispatcher
	Processor   stems.ChannelProcessor
	Checkpoints *checkpoint.Store
	Recovery    *checkpoint.RecoveryCache
	Progress    *progress.Store
	Tracks      *repositories.TrackRepository
	Logger      *log.Logger

	Device        string
	Channels      []stems.Channel
	SeparatedRoot string
}

// NewEngine creates an Engine from its collaborators.
func NewEngine(p EngineParams) *Engine {
	device := p.Device
	if device == "" {
		device = "cpu"
	}
	root := p.SeparatedRoot
	if root == "" {
		root = "separated"
	}
	return &Engine{
		catalog:         p.Catalog,
		analyzer:        p.Analyzer,
		matcher:         p.Matcher,
		downloader:      p.Downloader,
		preparer:        p.Preparer,
		dispatcher:      p.Dispatcher,
		processor:       p.Processor,
		checkpoints:     p.Checkpoints,
		recovery:        p.Recovery,
		progress:        p.Progress,
		tracks:          p.Tracks,
		logger:          p.Logger,
		defaultDevice:   device,
		defaultChannels: p.Channels,
		separatedRoot:   root,
		sleep:           time.Sleep,
		uniform: func(min, max float64) float64 {
			if max <= min {
				return min
			}
			return min + rand.Float64()*(max-min)
		},
	}
}

// ProcessTrack runs the full pipeline for one track. The returned error
// is terminal for the track only; batch callers log it and continue.
func (e *Engine) ProcessTrack(ctx context.Context, trackID, sessionID string, opts Options) error {
	channels := opts.Channels
	if len(channels) == 0 {
		channels = e.defaultChannels
	}
	device := opts.Device
	if device == "" {
		device = e.defaultDevice
	}

	stemTypes := stemTypeNames(channels)
	if err := e.checkpoints.SaveTrack(trackID, opts.PlaylistID, "processing", nil, stemTypes, nil); err != nil {
		e.logger.Warn("could not checkpoint track start", "track", trackID, "error", err)
	}

	track, m, err := e.ResolveTrack(ctx, trackID)
	if err != nil {
		e.failTrack(trackID, sessionID, opts.PlaylistID, "Source resolution failed")
		return err
	}
	if m.SourceID == "" {
		e.failTrack(trackID, sessionID, opts.PlaylistID, "No source match found")
		return fmt.Errorf("%w: %s", shared.ErrNoCandidates, track.DisplayName())
	}

	// The source id doubles as the universal id: separation output
	// directories become recoverable across runs by name alone.
	uid := m.SourceID

	e.progress.Set(sessionID, downloadingRecord(trackID))
	audioPath, err := e.downloadWithRetry(ctx, m.SourceID, uid, track.Duration, opts.RetryBackoff)
	if err != nil {
		e.failTrack(trackID, sessionID, opts.PlaylistID, "Audio download failed")
		return err
	}

	inputPath, _ := e.preparer.Prepare(ctx, audioPath, uid)

	result, err := e.separate(ctx, sessionID, audioPath, inputPath, uid, device)
	if err != nil {
		e.failTrack(trackID, sessionID, opts.PlaylistID, "Stem separation failed on all models")
		return err
	}

	e.cacheSeparatedStems(uid, trackID, result.OutputDir)

	processed := e.runChannels(ctx, trackID, sessionID, uid, track, channels, result.OutputDir)

	if err := e.checkpoints.SaveTrack(trackID, opts.PlaylistID, checkpoint.StatusCompleted, nil, stemTypes, processed); err != nil {
		e.logger.Warn("could not checkpoint track completion", "track", trackID, "error", err)
	}

	e.applyCooldown(opts.Cooldown)

	prev, _ := e.progress.Get(sessionID)
	e.progress.Set(sessionID, doneRecord(prev))
	e.logger.Info("track complete", "track", trackID, "title", track.DisplayName())
	return nil
}

// ResolveTrack looks up the track, enriches it with analyzer signals,
// resolves it to a source candidate, and persists the outcome. An
// unresolvable track comes back with an empty-SourceID match and a nil
// error; that is a normal outcome, not a failure.
func (e *Engine) ResolveTrack(ctx context.Context, trackID string) (models.Track, match.Match, error) {
	track, err := e.lookupTrack(ctx, trackID)
	if err != nil {
		return models.Track{}, match.Match{}, err
	}

	track = e.enrich(ctx, track)

	m, err := e.resolve(ctx, track)
	if err != nil {
		return track, match.Match{}, err
	}
	if m.SourceID != "" {
		e.persistResolution(trackID, track, m)
	}
	return track, m, nil
}

// lookupTrack consults the local track cache before the catalog.
func (e *Engine) lookupTrack(ctx context.Context, trackID string) (models.Track, error) {
	if e.tracks != nil {
		if cached, err := e.tracks.GetByCatalogID(trackID); err == nil {
			e.logger.Debug("track cache hit", "track", trackID)
			return cached.Track(), nil
		}
	}
	return e.catalog.GetTrack(ctx, trackID)
}

// enrich merges analyzer tempo/key into the track. Analyzer failures
// are advisory: the track proceeds with whatever signals it has.
func (e *Engine) enrich(ctx context.Context, track models.Track) models.Track {
	if track.Tempo > 0 && track.Key != "" {
		return track
	}

	analysis, err := e.analyzer.Analyze(ctx, track.Title, track.Artist)
	if err != nil {
		e.logger.Warn("analyzer unavailable, proceeding without tempo/key", "track", track.DisplayName(), "error", err)
		analysis = services.EmptyAnalysis()
	}
	if track.Tempo == 0 {
		track.Tempo = analysis.Tempo
	}
	if track.Key == "" {
		track.Key = analysis.Key
	}
	return track
}

func (e *Engine) resolve(ctx context.Context, track models.Track) (match.Match, error) {
	return e.matcher.Resolve(ctx, match.Query{
		Title:    track.Title,
		Artist:   track.Artist,
		Duration: track.Duration,
		Tempo:    track.Tempo,
		Key:      keyForMatching(track.Key),
	})
}

// keyForMatching maps the analyzer's "Unknown" placeholder back to an
// absent signal so it is not scored as a mismatch.
func keyForMatching(key string) string {
	if key == "Unknown" {
		return ""
	}
	return key
}

// persistResolution upserts the resolved track into the sqlite cache.
func (e *Engine) persistResolution(trackID string, track models.Track, m match.Match) {
	if e.tracks == nil {
		return
	}

	existing, err := e.tracks.GetByCatalogID(trackID)
	if err == nil {
		existing.SetTempo(track.Tempo)
		existing.SetKey(track.Key)
		existing.SetMatch(m.SourceID, m.Score)
		if err := e.tracks.Update(existing); err != nil {
			e.logger.Warn("could not update track cache", "track", trackID, "error", err)
		}
		return
	}

	persisted := models.NewPersistedTrack(0, trackID, track)
	persisted.SetMatch(m.SourceID, m.Score)
	if err := e.tracks.Create(persisted); err != nil {
		e.logger.Warn("could not cache resolved track", "track", trackID, "error", err)
	}
}

// downloadWithRetry performs the acquisition with a single randomized
// backoff retry, matching the error taxonomy: one retry, then the
// failure is terminal for the track.
func (e *Engine) downloadWithRetry(ctx context.Context, sourceID, uid string, officialDuration int, backoff []float64) (string, error) {
	path, err := e.downloader.Download(ctx, sourceID, uid, officialDuration)
	if err == nil {
		return path, nil
	}

	wait := e.backoffDuration(backoff)
	e.logger.Warn("download failed, backing off before retry", "source", sourceID, "wait", wait, "error", err)
	e.sleep(wait)

	path, retryErr := e.downloader.Download(ctx, sourceID, uid, officialDuration)
	if retryErr != nil {
		return "", fmt.Errorf("download failed after retry: %w", retryErr)
	}
	return path, nil
}

func (e *Engine) backoffDuration(backoff []float64) time.Duration {
	min, max := 15.0, 30.0
	switch len(backoff) {
	case 1:
		min, max = backoff[0], backoff[0]
	case 2:
		min, max = backoff[0], backoff[1]
	}
	return time.Duration(e.uniform(min, max) * float64(time.Second))
}

// separate reuses cached stems when any model's prior output validates,
// otherwise runs the dispatcher's fallback chain.
func (e *Engine) separate(ctx context.Context, sessionID, originalPath, preparedPath, uid, device string) (separation.Result, error) {
	// A prior run may have separated the prepared copy even if this
	// run's preparation fell back to the original.
	if cached, ok := e.dispatcher.FindCached(ctx, originalPath, preparedPath, e.preparer.PreparedPath(uid)); ok {
		e.progress.Set(sessionID, cachedStemsRecord(cached.Model))
		return cached, nil
	}

	result, err := e.dispatcher.SeparateWithProgress(ctx, preparedPath, device, func(model string, attempt int) {
		e.progress.Set(sessionID, separatingRecord(model, attempt))
	})
	if err != nil {
		return result, err
	}
	e.progress.Set(sessionID, separatedRecord(result.Model))
	return result, nil
}

// cacheSeparatedStems records the raw separation outputs so later runs
// can recover them even if the checkpoint document is lost.
func (e *Engine) cacheSeparatedStems(uid, trackID, outputDir string) {
	for _, stem := range separation.RequiredStems {
		path := filepath.Join(outputDir, stem+".mp3")
		key := fmt.Sprintf("%s_%s", uid, stem)
		if err := e.recovery.CacheStemFile(key, path); err != nil {
			e.logger.Warn("could not cache stem file", "stem", key, "error", err)
		}
		if err := e.checkpoints.SaveStem(key, trackID, stem, path, checkpoint.StatusCompleted); err != nil {
			e.logger.Warn("could not checkpoint stem", "stem", key, "error", err)
		}
	}
}

// runChannels hands the stem directory to each channel processor. A
// channel failure is logged and the loop continues; one bad channel
// never blocks the others. Returns the labels of completed channels.
func (e *Engine) runChannels(ctx context.Context, trackID, sessionID, uid string, track models.Track, channels []stems.Channel, stemDir string) []string {
	total := len(channels)
	e.progress.Set(sessionID, channelsStartRecord(total))

	var processed []string
	completed := 0
	for _, channel := range channels {
		dir := stemDir
		if !dirUsable(dir) {
			if recovered, ok := checkpoint.RecoverStemDir(e.separatedRoot, uid, e.dispatcher.Models()); ok {
				e.logger.Info("recovered stem directory", "dir", recovered)
				dir = recovered
				stemDir = recovered
			} else {
				e.logger.Error("stem directory invalid", "channel", channel.Key(), "dir", dir)
				prev, _ := e.progress.Get(sessionID)
				e.progress.Set(sessionID, channelFailedRecord(prev, channel.Key()))
				continue
			}
		}

		if err := e.processor.Process(ctx, track, channel, dir); err != nil {
			e.logger.Error("channel processing failed, continuing", "channel", channel.Key(), "error", err)
			prev, _ := e.progress.Get(sessionID)
			e.progress.Set(sessionID, channelFailedRecord(prev, channel.Key()))
			continue
		}

		completed++
		processed = append(processed, channel.Key())
		e.progress.Set(sessionID, channelDoneRecord(channel.Key(), completed, total))
	}

	return processed
}

func (e *Engine) applyCooldown(cooldown []float64) {
	var wait time.Duration
	switch len(cooldown) {
	case 1:
		wait = time.Duration(cooldown[0] * float64(time.Second))
	case 2:
		wait = time.Duration(e.uniform(cooldown[0], cooldown[1]) * float64(time.Second))
	}
	if wait > 0 {
		e.sleep(wait)
	}
}

// failTrack records a terminal track failure in the checkpoint and
// progress stores. The percent stays where it was; Done stays unset.
func (e *Engine) failTrack(trackID, sessionID, playlistID, message string) {
	if err := e.checkpoints.SaveTrack(trackID, playlistID, "failed", map[string]any{"reason": message}, nil, nil); err != nil {
		e.logger.Warn("could not checkpoint track failure", "track", trackID, "error", err)
	}
	prev, _ := e.progress.Get(sessionID)
	e.progress.Set(sessionID, failureRecord(prev, message))
}

func stemTypeNames(channels []stems.Channel) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, channel := range channels {
		for _, stem := range channel.Stems() {
			name := stem.String()
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func dirUsable(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
