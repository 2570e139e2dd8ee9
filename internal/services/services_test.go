package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/stemx/internal/shared"
)

func TestProxySearchService(t *testing.T) {
	t.Run("decodes candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/search" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("q"); got != "test song test artist" {
				t.Errorf("unexpected query %q", got)
			}
			fmt.Fprint(w, `[
				{"id": "v1", "title": "Test Song", "uploader": "Test Artist", "duration": 201},
				{"id": "v2", "title": "Test Song (Live)", "channel": "Live Channel", "duration": 260}
			]`)
		}))
		defer server.Close()

		svc := NewProxySearchService(server.URL, 100, 10)
		candidates, err := svc.Search(context.Background(), "test song test artist")
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(candidates))
		}
		if candidates[0].ID != "v1" || candidates[0].Duration != 201 {
			t.Errorf("unexpected first candidate: %+v", candidates[0])
		}
		if candidates[1].Uploader != "Live Channel" {
			t.Errorf("expected channel fallback for uploader, got %q", candidates[1].Uploader)
		}
	})

	t.Run("caps candidates at limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"id": "a"}, {"id": "b"}, {"id": "c"}]`)
		}))
		defer server.Close()

		svc := NewProxySearchService(server.URL, 100, 2)
		candidates, err := svc.Search(context.Background(), "anything")
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) != 2 {
			t.Errorf("expected 2 candidates, got %d", len(candidates))
		}
	})

	t.Run("surfaces proxy error detail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"detail": "upstream throttled"}`)
		}))
		defer server.Close()

		svc := NewProxySearchService(server.URL, 100, 10)
		_, err := svc.Search(context.Background(), "anything")
		if err == nil {
			t.Fatal("expected error for 502")
		}
	})
}

func TestCatalogService(t *testing.T) {
	newAuthedCatalog := func(t *testing.T, handler http.HandlerFunc) *CatalogService {
		t.Helper()

		mux := http.NewServeMux()
		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token": "test-token", "token_type": "Bearer", "expires_in": 3600}`)
		})
		mux.HandleFunc("/", handler)
		server := httptest.NewServer(mux)
		t.Cleanup(server.Close)

		svc := NewCatalogService(server.URL, server.URL+"/token", "client-id", "client-secret")
		if err := svc.Authenticate(context.Background()); err != nil {
			t.Fatalf("authenticate failed: %v", err)
		}
		return svc
	}

	t.Run("missing credentials", func(t *testing.T) {
		svc := NewCatalogService("http://localhost", "http://localhost/token", "", "")
		err := svc.Authenticate(context.Background())
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("unauthenticated request fails", func(t *testing.T) {
		svc := NewCatalogService("http://localhost", "http://localhost/token", "id", "secret")
		_, err := svc.GetTrack(context.Background(), "t1")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("get track converts wire format", func(t *testing.T) {
		svc := newAuthedCatalog(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/tracks/t1" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
				t.Errorf("unexpected authorization header %q", auth)
			}
			fmt.Fprint(w, `{
				"id": "t1",
				"name": "Test Song",
				"artists": [{"name": "Test Artist"}, {"name": "Featured One"}],
				"duration_ms": 200000
			}`)
		})

		track, err := svc.GetTrack(context.Background(), "t1")
		if err != nil {
			t.Fatal(err)
		}
		if track.Title != "Test Song" {
			t.Errorf("unexpected title %q", track.Title)
		}
		if track.Artist != "Test Artist, Featured One" {
			t.Errorf("unexpected artist %q", track.Artist)
		}
		if track.Duration != 200 {
			t.Errorf("expected 200s duration, got %d", track.Duration)
		}
	})

	t.Run("missing track maps to sentinel", func(t *testing.T) {
		svc := newAuthedCatalog(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := svc.GetTrack(context.Background(), "missing")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("get playlist", func(t *testing.T) {
		svc := newAuthedCatalog(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"id": "pl1",
				"name": "Test Playlist",
				"tracks": {
					"total": 2,
					"items": [
						{"track": {"id": "t1", "name": "Song A", "artists": [{"name": "Artist A"}], "duration_ms": 180000}},
						{"track": {"id": "t2", "name": "Song B", "artists": [{"name": "Artist B"}], "duration_ms": 240000}}
					]
				}
			}`)
		})

		export, err := svc.GetPlaylist(context.Background(), "pl1")
		if err != nil {
			t.Fatal(err)
		}
		if export.Playlist.Name != "Test Playlist" || export.Playlist.TrackCount != 2 {
			t.Errorf("unexpected playlist: %+v", export.Playlist)
		}
		if len(export.Tracks) != 2 || export.Tracks[1].Duration != 240 {
			t.Errorf("unexpected tracks: %+v", export.Tracks)
		}
	})
}

func TestAnalyzerService(t *testing.T) {
	t.Run("disabled analyzer returns empty analysis", func(t *testing.T) {
		svc := NewAnalyzerService("")
		analysis, err := svc.Analyze(context.Background(), "Test Song", "Test Artist")
		if err != nil {
			t.Fatal(err)
		}
		if analysis.Tempo != 0 || analysis.Key != "Unknown" {
			t.Errorf("expected empty analysis, got %+v", analysis)
		}
	})

	t.Run("decodes bpm and key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"bpm": 120, "key": "8A"}`)
		}))
		defer server.Close()

		svc := NewAnalyzerService(server.URL)
		analysis, err := svc.Analyze(context.Background(), "Test Song", "Test Artist")
		if err != nil {
			t.Fatal(err)
		}
		if analysis.Tempo != 120 || analysis.Key != "8A" {
			t.Errorf("unexpected analysis: %+v", analysis)
		}
	})

	t.Run("half-time rule applies at 140", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"bpm": 150, "key": "3B"}`)
		}))
		defer server.Close()

		svc := NewAnalyzerService(server.URL)
		analysis, err := svc.Analyze(context.Background(), "Fast Song", "Test Artist")
		if err != nil {
			t.Fatal(err)
		}
		if analysis.Tempo != 75 {
			t.Errorf("expected half-time 75, got %v", analysis.Tempo)
		}
	})

	t.Run("missing key defaults to Unknown", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"bpm": 100}`)
		}))
		defer server.Close()

		svc := NewAnalyzerService(server.URL)
		analysis, _ := svc.Analyze(context.Background(), "Test Song", "Test Artist")
		if analysis.Key != "Unknown" {
			t.Errorf("expected Unknown key, got %q", analysis.Key)
		}
	})

	t.Run("server error returns empty analysis with error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		svc := NewAnalyzerService(server.URL)
		analysis, err := svc.Analyze(context.Background(), "Test Song", "Test Artist")
		if err == nil {
			t.Error("expected error for 500")
		}
		if analysis.Tempo != 0 || analysis.Key != "Unknown" {
			t.Errorf("expected empty analysis on failure, got %+v", analysis)
		}
	})
}

// fakeRunner simulates yt-dlp by writing a file when invoked.
type fakeRunner struct {
	writePath string
	content   []byte
	err       error
	calls     int
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ ...string) (string, error) {
	f.calls++
	if f.err != nil {
		return "ERROR: fragment not found", f.err
	}
	if f.writePath != "" {
		if err := os.WriteFile(f.writePath, f.content, 0o644); err != nil {
			return "", err
		}
	}
	return "[download] 100%", nil
}

// outputRunner returns canned output without side effects.
type outputRunner struct {
	output string
	err    error
}

func (o outputRunner) Run(_ context.Context, _ string, _ ...string) (string, error) {
	return o.output, o.err
}

func TestYTDLPSearchService(t *testing.T) {
	t.Run("parses printed candidate lines", func(t *testing.T) {
		svc := NewYTDLPSearchService(5)
		svc.runner = outputRunner{output: "abc123\tNight Drive\tMirage\t200.0\n" +
			"def456\tNight Drive (Live)\tMirage\t215\n" +
			"\n" +
			"malformed line without tabs\n"}

		candidates, err := svc.Search(context.Background(), "Night Drive - Mirage topic")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candidates) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(candidates))
		}
		if candidates[0].ID != "abc123" || candidates[0].Duration != 200 {
			t.Errorf("unexpected first candidate: %+v", candidates[0])
		}
		if candidates[1].Uploader != "Mirage" || candidates[1].Duration != 215 {
			t.Errorf("unexpected second candidate: %+v", candidates[1])
		}
	})

	t.Run("caps results at maxCandidates", func(t *testing.T) {
		svc := NewYTDLPSearchService(1)
		svc.runner = outputRunner{output: "a\tOne\tUp\t100\nb\tTwo\tUp\t100\n"}

		candidates, err := svc.Search(context.Background(), "query")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candidates) != 1 || candidates[0].ID != "a" {
			t.Errorf("expected single capped candidate, got %+v", candidates)
		}
	})

	t.Run("wraps subprocess failure", func(t *testing.T) {
		svc := NewYTDLPSearchService(5)
		svc.runner = outputRunner{err: errors.New("exit status 1")}

		if _, err := svc.Search(context.Background(), "query"); err == nil {
			t.Error("expected error when yt-dlp fails")
		}
	})
}

func TestYTDLPDownloader(t *testing.T) {
	newDownloader := func(t *testing.T, runner commandRunner, probed float64, probeErr error) (*YTDLPDownloader, string) {
		t.Helper()
		root := t.TempDir()
		d := NewYTDLPDownloader(root, shared.NewLogger(io.Discard))
		d.runner = runner
		d.probe = func(_ context.Context, _ string) (float64, error) {
			return probed, probeErr
		}
		return d, root
	}

	t.Run("successful download", func(t *testing.T) {
		root := t.TempDir()
		runner := &fakeRunner{writePath: filepath.Join(root, "uid1.mp3"), content: []byte("audio")}
		d := NewYTDLPDownloader(root, shared.NewLogger(io.Discard))
		d.runner = runner
		d.probe = func(_ context.Context, _ string) (float64, error) { return 200, nil }

		path, err := d.Download(context.Background(), "v1", "uid1", 200)
		if err != nil {
			t.Fatal(err)
		}
		if path != filepath.Join(root, "uid1.mp3") {
			t.Errorf("unexpected path %s", path)
		}
	})

	t.Run("tool failure maps to acquisition error", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("exit status 1")}
		d, _ := newDownloader(t, runner, 0, nil)

		_, err := d.Download(context.Background(), "v1", "uid1", 200)
		if !errors.Is(err, shared.ErrAcquisitionFailed) {
			t.Errorf("expected ErrAcquisitionFailed, got %v", err)
		}
	})

	t.Run("no output file maps to acquisition error", func(t *testing.T) {
		runner := &fakeRunner{}
		d, _ := newDownloader(t, runner, 0, nil)

		_, err := d.Download(context.Background(), "v1", "uid1", 200)
		if !errors.Is(err, shared.ErrAcquisitionFailed) {
			t.Errorf("expected ErrAcquisitionFailed, got %v", err)
		}
	})

	t.Run("duration mismatch removes file", func(t *testing.T) {
		root := t.TempDir()
		outPath := filepath.Join(root, "uid1.mp3")
		runner := &fakeRunner{writePath: outPath, content: []byte("audio")}
		d := NewYTDLPDownloader(root, shared.NewLogger(io.Discard))
		d.runner = runner
		d.probe = func(_ context.Context, _ string) (float64, error) { return 300, nil }

		_, err := d.Download(context.Background(), "v1", "uid1", 200)
		if !errors.Is(err, shared.ErrAcquisitionFailed) {
			t.Fatalf("expected ErrAcquisitionFailed, got %v", err)
		}
		if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
			t.Error("mismatched download should be removed")
		}
	})

	t.Run("probe failure is advisory", func(t *testing.T) {
		root := t.TempDir()
		runner := &fakeRunner{writePath: filepath.Join(root, "uid1.mp3"), content: []byte("audio")}
		d := NewYTDLPDownloader(root, shared.NewLogger(io.Discard))
		d.runner = runner
		d.probe = func(_ context.Context, _ string) (float64, error) { return 0, errors.New("no ffprobe") }

		if _, err := d.Download(context.Background(), "v1", "uid1", 200); err != nil {
			t.Errorf("probe failure should not fail the download: %v", err)
		}
	})

	t.Run("reuses existing file that passes the check", func(t *testing.T) {
		root := t.TempDir()
		outPath := filepath.Join(root, "uid1.mp3")
		if err := os.WriteFile(outPath, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		runner := &fakeRunner{}
		d := NewYTDLPDownloader(root, shared.NewLogger(io.Discard))
		d.runner = runner
		d.probe = func(_ context.Context, _ string) (float64, error) { return 200, nil }

		if _, err := d.Download(context.Background(), "v1", "uid1", 200); err != nil {
			t.Fatal(err)
		}
		if runner.calls != 0 {
			t.Errorf("expected no tool invocation for cached file, got %d", runner.calls)
		}
	})
}

func TestDownloadTolerance(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		want     float64
	}{
		{"short track 5 percent", 100, 5},
		{"three minutes stays in base band", 180, 9},
		{"medium track widens to 10 percent", 200, 20},
		{"medium track stays under 30s cap", 220, 22},
		{"long track capped at 40s", 400, 40},
		{"floor of 2 seconds", 30, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DownloadTolerance(tt.duration); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DownloadTolerance(%d) = %v, want %v", tt.duration, got, tt.want)
			}
		})
	}
}
