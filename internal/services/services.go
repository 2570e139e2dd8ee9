// package services defines interfaces for the external collaborators
// of the stem extraction pipeline.
//
// Catalog (track metadata), search proxy (candidate discovery),
// analyzer (tempo/key enrichment), and audio downloader.
package services

import (
	"context"

	"github.com/desertthunder/stemx/internal/models"
)

// Catalog retrieves authoritative track and playlist metadata.
type Catalog interface {
	// Authenticate performs client-credentials authentication.
	Authenticate(ctx context.Context) error

	// GetTrack retrieves a single track by its catalog ID.
	GetTrack(ctx context.Context, trackID string) (models.Track, error)

	// GetPlaylist retrieves a playlist with its complete track listing.
	GetPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error)

	// Name returns the name of the catalog service.
	Name() string
}

// SearchProvider finds source candidates for a query string.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]models.Candidate, error)
}

// Analyzer enriches a track with tempo and key metadata.
// Analyzer failures are advisory; callers proceed without the signals.
type Analyzer interface {
	Analyze(ctx context.Context, title, artist string) (Analysis, error)
}

// Analysis holds the enrichment signals for one track.
// Tempo 0 and Key "Unknown" mean the analyzer had nothing.
type Analysis struct {
	Tempo float64 `json:"tempo"`
	Key   string  `json:"key"`
}

// Downloader acquires the audio for a resolved source candidate.
type Downloader interface {
	// Download fetches the candidate's audio to local storage and
	// returns the path of the resulting file. officialDuration (in
	// seconds, 0 when unknown) gates a post-download duration check.
	Download(ctx context.Context, candidateID, uid string, officialDuration int) (string, error)
}

// Playlist represents a playlist from the catalog.
type Playlist struct {
	ID         string
	Name       string
	TrackCount int
}

// PlaylistExport represents a playlist with all its tracks.
type PlaylistExport struct {
	Playlist Playlist
	Tracks   []models.Track
}
