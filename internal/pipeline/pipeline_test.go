package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stemx/internal/checkpoint"
	"github.com/desertthunder/stemx/internal/match"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/progress"
	"github.com/desertthunder/stemx/internal/separation"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/stems"
)

type fakeCatalog struct {
	mu     sync.Mutex
	tracks map[string]models.Track
	calls  int
	err    error
}

func (f *fakeCatalog) Authenticate(context.Context) error { return nil }
func (f *fakeCatalog) Name() string                       { return "test-catalog" }

func (f *fakeCatalog) GetTrack(_ context.Context, trackID string) (models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Track{}, f.err
	}
	track, ok := f.tracks[trackID]
	if !ok {
		return models.Track{}, fmt.Errorf("unknown track %s", trackID)
	}
	return track, nil
}

func (f *fakeCatalog) GetPlaylist(context.Context, string) (*services.PlaylistExport, error) {
	return nil, errors.New("not implemented")
}

type fakeAnalyzer struct {
	analysis services.Analysis
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, string, string) (services.Analysis, error) {
	if f.err != nil {
		return services.EmptyAnalysis(), f.err
	}
	return f.analysis, nil
}

type fakeProvider struct {
	candidates []models.Candidate
}

func (f *fakeProvider) Search(context.Context, string) ([]models.Candidate, error) {
	return f.candidates, nil
}

type fakeDownloader struct {
	mu       sync.Mutex
	mp3Root  string
	failures int // number of leading calls that fail
	calls    int
}

func (f *fakeDownloader) Download(_ context.Context, _, uid string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("network hiccup")
	}
	path := filepath.Join(f.mp3Root, uid+".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakePreparer struct{ root string }

func (f *fakePreparer) PreparedPath(uid string) string {
	return filepath.Join(f.root, uid+"__prep.mp3")
}

func (f *fakePreparer) Prepare(_ context.Context, srcPath, _ string) (string, bool) {
	return srcPath, false
}

// fakeToolRunner materializes stem files for successful models so the
// dispatcher's validation passes without a real subprocess.
type fakeToolRunner struct {
	mu            sync.Mutex
	separatedRoot string
	failModels    map[string]bool
	delay         time.Duration
	runs          []separation.Job
	inFlight      int
	maxInFlight   int
}

func (f *fakeToolRunner) Run(_ context.Context, job separation.Job) (int, string, error) {
	f.mu.Lock()
	f.runs = append(f.runs, job)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	fail := f.failModels[job.Model]
	f.mu.Unlock()

	if fail {
		return 1, "model exploded", nil
	}

	base := strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
	dir := filepath.Join(f.separatedRoot, job.Model, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 1, "", err
	}
	for _, stem := range separation.RequiredStems {
		if err := os.WriteFile(filepath.Join(dir, stem+".mp3"), []byte(stem), 0o644); err != nil {
			return 1, "", err
		}
	}
	return 0, "done", nil
}

type processedCall struct {
	Track   models.Track
	Channel stems.Channel
	StemDir string
}

type fakeProcessor struct {
	mu           sync.Mutex
	calls        []processedCall
	failChannels map[stems.Channel]bool
	panicOn      map[string]bool // track title -> panic
}

func (f *fakeProcessor) Process(_ context.Context, track models.Track, channel stems.Channel, stemDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn[track.Title] {
		panic("processor blew up")
	}
	if f.failChannels[channel] {
		return errors.New("channel export failed")
	}
	f.calls = append(f.calls, processedCall{Track: track, Channel: channel, StemDir: stemDir})
	return nil
}

type harness struct {
	engine      *Engine
	catalog     *fakeCatalog
	downloader  *fakeDownloader
	runner      *fakeToolRunner
	processor   *fakeProcessor
	checkpoints *checkpoint.Store
	recovery    *checkpoint.RecoveryCache
	progress    *progress.Store
	slept       *[]time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	logger := log.New(io.Discard)

	separatedRoot := filepath.Join(root, "separated")
	mp3Root := filepath.Join(root, "mp3s")
	if err := os.MkdirAll(mp3Root, 0o755); err != nil {
		t.Fatal(err)
	}

	catalog := &fakeCatalog{tracks: map[string]models.Track{
		"trk-1": {ID: "trk-1", Title: "Night Drive", Artist: "Mirage", Duration: 200},
		"trk-2": {ID: "trk-2", Title: "Glass City", Artist: "Mirage", Duration: 185},
		"trk-3": {ID: "trk-3", Title: "Low Tide", Artist: "Mirage", Duration: 210},
	}}

	provider := &fakeProvider{candidates: []models.Candidate{
		{ID: "src-1", Title: "Night Drive", Uploader: "Mirage", Duration: 200},
		{ID: "src-2", Title: "Glass City", Uploader: "Mirage", Duration: 185},
		{ID: "src-3", Title: "Low Tide", Uploader: "Mirage", Duration: 210},
	}}

	matcher := match.NewMatcher(
		provider,
		match.NewCache(filepath.Join(root, "match_cache.json"), logger),
		match.NewRetryQueue(filepath.Join(root, "retry_queue.json"), logger),
		logger,
	)

	downloader := &fakeDownloader{mp3Root: mp3Root}
	runner := &fakeToolRunner{separatedRoot: separatedRoot}
	dispatcher := separation.NewDispatcher(nil, separatedRoot, runner, separation.NewValidator(1, 1), logger)
	processor := &fakeProcessor{}

	checkpoints := checkpoint.NewStore(filepath.Join(root, "checkpoint.json"), logger)
	recovery := checkpoint.NewRecoveryCache(filepath.Join(root, "recovery_cache.json"), logger)
	progressStore := progress.NewStore()

	slept := &[]time.Duration{}
	engine := NewEngine(EngineParams{
		Catalog:       catalog,
		Analyzer:      &fakeAnalyzer{analysis: services.Analysis{Tempo: 120, Key: "8A"}},
		Matcher:       matcher,
		Downloader:    downloader,
		Preparer:      &fakePreparer{root: mp3Root},
		Dispatcher:    dispatcher,
		Processor:     processor,
		Checkpoints:   checkpoints,
		Recovery:      recovery,
		Progress:      progressStore,
		Logger:        logger,
		Device:        "cpu",
		Channels:      []stems.Channel{stems.ChannelMain, stems.ChannelAcapellas},
		SeparatedRoot: separatedRoot,
	})
	engine.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	engine.uniform = func(min, _ float64) float64 { return min }

	return &harness{
		engine:      engine,
		catalog:     catalog,
		downloader:  downloader,
		runner:      runner,
		processor:   processor,
		checkpoints: checkpoints,
		recovery:    recovery,
		progress:    progressStore,
		slept:       slept,
	}
}

func TestProcessTrack(t *testing.T) {
	t.Run("completes the full sequence", func(t *testing.T) {
		h := newHarness(t)

		if err := h.engine.ProcessTrack(context.Background(), "trk-1", "sess", Options{}); err != nil {
			t.Fatalf("ProcessTrack: %v", err)
		}

		if h.downloader.calls != 1 {
			t.Errorf("downloader calls = %d, want 1", h.downloader.calls)
		}
		if len(h.runner.runs) != 1 {
			t.Fatalf("separation runs = %d, want 1", len(h.runner.runs))
		}
		if h.runner.runs[0].Model != "htdemucs_ft" {
			t.Errorf("model = %q, want htdemucs_ft", h.runner.runs[0].Model)
		}
		if len(h.processor.calls) != 2 {
			t.Errorf("processed channels = %d, want 2", len(h.processor.calls))
		}

		entry, ok := h.checkpoints.Track("trk-1")
		if !ok || entry.Status != checkpoint.StatusCompleted {
			t.Errorf("checkpoint status = %q, want completed", entry.Status)
		}
		if len(entry.ProcessedStems) != 2 {
			t.Errorf("processed stems = %v, want 2 channel keys", entry.ProcessedStems)
		}

		rec, ok := h.progress.Get("sess")
		if !ok || !rec.Done || rec.Percent != 100 {
			t.Errorf("final progress = %+v, want done at 100", rec)
		}

		if h.recovery.Len() != len(separation.RequiredStems) {
			t.Errorf("recovery cache entries = %d, want %d", h.recovery.Len(), len(separation.RequiredStems))
		}
	})

	t.Run("fails cleanly when no source matches", func(t *testing.T) {
		h := newHarness(t)
		h.catalog.tracks["trk-odd"] = models.Track{
			ID: "trk-odd", Title: "Completely Unrelated Song", Artist: "Somebody Else", Duration: 999,
		}

		err := h.engine.ProcessTrack(context.Background(), "trk-odd", "sess", Options{})
		if err == nil {
			t.Fatal("expected resolution failure")
		}
		if h.downloader.calls != 0 {
			t.Errorf("downloader calls = %d, want 0", h.downloader.calls)
		}

		entry, ok := h.checkpoints.Track("trk-odd")
		if !ok || entry.Status != "failed" {
			t.Errorf("checkpoint status = %q, want failed", entry.Status)
		}
		rec, _ := h.progress.Get("sess")
		if rec.Done {
			t.Error("failed track must not be marked done")
		}
		if !rec.Failed {
			t.Error("failed track must be marked failed so monitors can settle")
		}
	})

	t.Run("retries the download once with backoff", func(t *testing.T) {
		h := newHarness(t)
		h.downloader.failures = 1

		err := h.engine.ProcessTrack(context.Background(), "trk-1", "sess", Options{
			RetryBackoff: []float64{5, 10},
		})
		if err != nil {
			t.Fatalf("ProcessTrack: %v", err)
		}
		if h.downloader.calls != 2 {
			t.Errorf("downloader calls = %d, want 2", h.downloader.calls)
		}
		if len(*h.slept) != 1 || (*h.slept)[0] != 5*time.Second {
			t.Errorf("backoff sleeps = %v, want one 5s sleep", *h.slept)
		}
	})

	t.Run("gives up after the second download failure", func(t *testing.T) {
		h := newHarness(t)
		h.downloader.failures = 2

		err := h.engine.ProcessTrack(context.Background(), "trk-1", "sess", Options{
			RetryBackoff: []float64{0},
		})
		if err == nil {
			t.Fatal("expected download failure")
		}
		if h.downloader.calls != 2 {
			t.Errorf("downloader calls = %d, want 2", h.downloader.calls)
		}
		entry, _ := h.checkpoints.Track("trk-1")
		if entry.Status != "failed" {
			t.Errorf("checkpoint status = %q, want failed", entry.Status)
		}
	})

	t.Run("falls through model failures", func(t *testing.T) {
		h := newHarness(t)
		h.runner.failModels = map[string]bool{"htdemucs_ft": true, "htdemucs_6s": true}

		if err := h.engine.ProcessTrack(context.Background(), "trk-1", "sess", Options{}); err != nil {
			t.Fatalf("ProcessTrack: %v", err)
		}
		if len(h.runner.runs) != 3 {
			t.Fatalf("separation runs = %d, want 3", len(h.runner.runs))
		}
		if h.runner.runs[2].Model != "htdemucs" {
			t.Errorf("winning model = %q, want htdemucs", h.runner.runs[2].Model)
		}
	})

	t.Run("fails the track when every model fails", func(t *testing.T) {
		h := newHarness(t)
		h.runner.failModels = map[string]bool{
			"htdemucs_ft": true, "htdemucs_6s": true, "htdemucs": true,
		}

		err := h.engine.ProcessTrack(context.Background(), "trk-1", "sess", Options{})
		if err == nil {
			t.Fatal("expected separation failure")
		}
		if len(h.processor.calls) != 0 {
			t.Errorf("channels processed after separation failure: %d", len(h.processor.calls))
		}
	})

	t.Run("reuses cached stems without running the tool", func(t *testing.T) {
		h := newHarness(t)

		// First run populates separated/<model>/<uid>.
		if err := h.engine.ProcessTrack(context.Background(), "trk-1", "a", Options{}); err != nil {
			t.Fatalf("first run: %v", err)
		}
		runsAfterFirst := len(h.runner.runs)

		if err := h.engine.ProcessTrack(context.Background(), "trk-1", "b", Options{}); err != nil {
			t.Fatalf("second run: %v", err)
		}
		if len(h.runner.runs) != runsAfterFirst {
			t.Errorf("tool ran again despite cached stems: %d runs", len(h.runner.runs))
		}

		rec, _ := h.progress.Get("b")
		if !rec.Done {
			t.Errorf("cached run did not complete: %+v", rec)
		}
	})

	t.Run("one failing channel does not block the others", func(t *testing.T) {
		h := newHarness(t)
		h.processor.failChannels = map[stems.Channel]bool{stems.ChannelMain: true}

		if err := h.engine.ProcessTrack(context.Background(), "trk-1", "sess", Options{}); err != nil {
			t.Fatalf("ProcessTrack: %v", err)
		}

		entry, _ := h.checkpoints.Track("trk-1")
		if len(entry.ProcessedStems) != 1 || entry.ProcessedStems[0] != stems.ChannelAcapellas.Key() {
			t.Errorf("processed stems = %v, want only acapellas", entry.ProcessedStems)
		}
		if entry.Status != checkpoint.StatusCompleted {
			t.Errorf("checkpoint status = %q, want completed", entry.Status)
		}
	})

	t.Run("applies the cooldown after completion", func(t *testing.T) {
		h := newHarness(t)

		err := h.engine.ProcessTrack(context.Background(), "trk-1", "sess", Options{
			Cooldown: []float64{3},
		})
		if err != nil {
			t.Fatalf("ProcessTrack: %v", err)
		}
		if len(*h.slept) != 1 || (*h.slept)[0] != 3*time.Second {
			t.Errorf("cooldown sleeps = %v, want one 3s sleep", *h.slept)
		}
	})
}

func TestRunBatch(t *testing.T) {
	t.Run("bounds concurrency", func(t *testing.T) {
		h := newHarness(t)
		h.runner.delay = 20 * time.Millisecond

		summary := h.engine.RunBatch(context.Background(), []string{"trk-1", "trk-2", "trk-3"}, BatchOptions{
			PlaylistID:    "pl-1",
			SessionPrefix: "batch",
			MaxConcurrent: 2,
		})

		if len(summary.Completed) != 3 {
			t.Fatalf("completed = %v, want all 3", summary.Completed)
		}
		if h.runner.maxInFlight > 2 {
			t.Errorf("max concurrent separations = %d, want <= 2", h.runner.maxInFlight)
		}

		entry, ok := h.checkpoints.Playlist("pl-1")
		if !ok || entry.Status != checkpoint.StatusCompleted {
			t.Errorf("playlist status = %q, want completed", entry.Status)
		}
		if got := entry.ProcessedTracks; got != 3 {
			t.Errorf("processed tracks = %d, want 3", got)
		}
	})

	t.Run("names sessions by prefix and track", func(t *testing.T) {
		h := newHarness(t)

		h.engine.RunBatch(context.Background(), []string{"trk-1"}, BatchOptions{SessionPrefix: "run7"})

		if _, ok := h.progress.Get("run7__trk-1"); !ok {
			t.Errorf("missing session record, have %v", h.progress.Sessions())
		}
	})

	t.Run("isolates a panicking track", func(t *testing.T) {
		h := newHarness(t)
		h.processor.panicOn = map[string]bool{"Glass City": true}

		summary := h.engine.RunBatch(context.Background(), []string{"trk-1", "trk-2", "trk-3"}, BatchOptions{
			MaxConcurrent: 1,
		})

		if len(summary.Failed) != 1 || summary.Failed[0] != "trk-2" {
			t.Errorf("failed = %v, want [trk-2]", summary.Failed)
		}
		if len(summary.Completed) != 2 {
			t.Errorf("completed = %v, want 2 tracks", summary.Completed)
		}

		rec, _ := h.progress.Get("batch__trk-2")
		if rec.Done {
			t.Error("panicked track must not be marked done")
		}
	})

	t.Run("applies per-track overrides", func(t *testing.T) {
		h := newHarness(t)

		h.engine.RunBatch(context.Background(), []string{"trk-1", "trk-2"}, BatchOptions{
			MaxConcurrent: 1,
			Overrides: map[string]Options{
				"trk-2": {Channels: []stems.Channel{stems.ChannelDrums}},
			},
		})

		var drumCalls int
		for _, call := range h.processor.calls {
			if call.Channel == stems.ChannelDrums {
				drumCalls++
			}
		}
		if drumCalls != 1 {
			t.Errorf("drums channel calls = %d, want 1 (override only)", drumCalls)
		}
	})
}

func TestResume(t *testing.T) {
	t.Run("reprocesses only incomplete tracks", func(t *testing.T) {
		h := newHarness(t)

		if err := h.checkpoints.SaveTrack("trk-1", "pl-9", checkpoint.StatusCompleted, nil, nil, nil); err != nil {
			t.Fatal(err)
		}
		if err := h.checkpoints.SaveTrack("trk-2", "pl-9", "processing", nil, nil, nil); err != nil {
			t.Fatal(err)
		}
		if err := h.checkpoints.SaveTrack("trk-3", "pl-9", "failed", nil, nil, nil); err != nil {
			t.Fatal(err)
		}

		summary, err := h.engine.Resume(context.Background(), "pl-9", BatchOptions{MaxConcurrent: 1})
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if len(summary.Completed) != 2 {
			t.Errorf("completed = %v, want trk-2 and trk-3", summary.Completed)
		}
		if h.catalog.calls != 2 {
			t.Errorf("catalog calls = %d, want 2", h.catalog.calls)
		}
	})

	t.Run("errors when nothing is pending", func(t *testing.T) {
		h := newHarness(t)

		if _, err := h.engine.Resume(context.Background(), "pl-empty", BatchOptions{}); err == nil {
			t.Fatal("expected error for playlist with no incomplete tracks")
		}
	})
}
