// Package checkpoint persists pipeline progress across process restarts.
//
// Two JSON files back the package: a checkpoint document recording the
// status of playlists, tracks, and stems, and a recovery cache mapping
// stem keys to files produced by earlier runs. Both are rewritten whole
// on every save so a crash never leaves a partially applied update.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// StatusCompleted marks a playlist or track entry as fully processed.
// Any other status is treated as incomplete by the resume path.
const StatusCompleted = "completed"

// PlaylistEntry records batch-level progress for one playlist.
type PlaylistEntry struct {
	Status          string         `json:"status"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	TotalTracks     int            `json:"total_tracks"`
	ProcessedTracks int            `json:"processed_tracks"`
}

// TrackEntry records per-track progress within a playlist.
type TrackEntry struct {
	PlaylistID     string         `json:"playlist_id"`
	Status         string         `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	StemTypes      []string       `json:"stem_types,omitempty"`
	ProcessedStems []string       `json:"processed_stems,omitempty"`
}

// StemEntry records a produced stem file.
type StemEntry struct {
	TrackID   string    `json:"track_id"`
	StemType  string    `json:"stem_type"`
	FilePath  string    `json:"file_path"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// document is the on-disk shape of the checkpoint file.
type document struct {
	Playlists map[string]PlaylistEntry `json:"playlists"`
	Tracks    map[string]TrackEntry    `json:"tracks"`
	Stems     map[string]StemEntry     `json:"stems"`
}

func emptyDocument() document {
	return document{
		Playlists: make(map[string]PlaylistEntry),
		Tracks:    make(map[string]TrackEntry),
		Stems:     make(map[string]StemEntry),
	}
}

// IncompletePlaylist describes a playlist the resume path should revisit.
type IncompletePlaylist struct {
	PlaylistID string         `json:"playlist_id"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IncompleteTrack describes a track within a playlist that never completed.
type IncompleteTrack struct {
	TrackID   string         `json:"track_id"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Store persists checkpoint entries to a JSON file.
//
// Every mutation re-reads the file, applies the change, and writes the
// whole document back, so concurrent processes sharing the file converge
// on the union of their updates rather than clobbering each other.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewStore creates a checkpoint store backed by the given file path.
// The file is created lazily on first save.
func NewStore(path string, logger *log.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// load reads the checkpoint document from disk. A missing or corrupt
// file yields an empty document: stale progress is recomputable, a
// crashed pipeline is not.
func (s *Store) load() document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return emptyDocument()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("checkpoint file is corrupt, starting fresh", "path", s.path, "error", err)
		return emptyDocument()
	}

	if doc.Playlists == nil {
		doc.Playlists = make(map[string]PlaylistEntry)
	}
	if doc.Tracks == nil {
		doc.Tracks = make(map[string]TrackEntry)
	}
	if doc.Stems == nil {
		doc.Stems = make(map[string]StemEntry)
	}

	return doc
}

func (s *Store) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// SavePlaylist records the status of a playlist batch.
func (s *Store) SavePlaylist(playlistID, status string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	entry := PlaylistEntry{
		Status:    status,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	if total, ok := metadata["total_tracks"].(int); ok {
		entry.TotalTracks = total
	}
	if processed, ok := metadata["processed_tracks"].(int); ok {
		entry.ProcessedTracks = processed
	}
	doc.Playlists[playlistID] = entry

	if err := s.save(doc); err != nil {
		return err
	}
	s.logger.Debug("playlist checkpoint saved", "playlist", playlistID, "status", status)
	return nil
}

// SaveTrack records the status of a track within a playlist.
func (s *Store) SaveTrack(trackID, playlistID, status string, metadata map[string]any, stemTypes, processedStems []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Tracks[trackID] = TrackEntry{
		PlaylistID:     playlistID,
		Status:         status,
		Metadata:       metadata,
		Timestamp:      time.Now(),
		StemTypes:      stemTypes,
		ProcessedStems: processedStems,
	}

	if err := s.save(doc); err != nil {
		return err
	}
	s.logger.Debug("track checkpoint saved", "track", trackID, "status", status)
	return nil
}

// SaveStem records a produced stem file under its stem key.
func (s *Store) SaveStem(stemKey, trackID, stemType, filePath, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Stems[stemKey] = StemEntry{
		TrackID:   trackID,
		StemType:  stemType,
		FilePath:  filePath,
		Status:    status,
		Timestamp: time.Now(),
	}

	if err := s.save(doc); err != nil {
		return err
	}
	s.logger.Debug("stem checkpoint saved", "stem", stemKey, "status", status)
	return nil
}

// Playlist returns the checkpoint entry for a playlist, if present.
func (s *Store) Playlist(playlistID string) (PlaylistEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.load().Playlists[playlistID]
	return entry, ok
}

// Track returns the checkpoint entry for a track, if present.
func (s *Store) Track(trackID string) (TrackEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.load().Tracks[trackID]
	return entry, ok
}

// Stem returns the checkpoint entry for a stem key, if present.
func (s *Store) Stem(stemKey string) (StemEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.load().Stems[stemKey]
	return entry, ok
}

// IncompletePlaylists lists every playlist whose status is not completed.
func (s *Store) IncompletePlaylists() []IncompletePlaylist {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	var incomplete []IncompletePlaylist
	for id, entry := range doc.Playlists {
		if entry.Status != StatusCompleted {
			incomplete = append(incomplete, IncompletePlaylist{
				PlaylistID: id,
				Status:     entry.Status,
				Timestamp:  entry.Timestamp,
				Metadata:   entry.Metadata,
			})
		}
	}
	return incomplete
}

// IncompleteTracks lists every track in the playlist whose status is not completed.
func (s *Store) IncompleteTracks(playlistID string) []IncompleteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	var incomplete []IncompleteTrack
	for id, entry := range doc.Tracks {
		if entry.PlaylistID == playlistID && entry.Status != StatusCompleted {
			incomplete = append(incomplete, IncompleteTrack{
				TrackID:   id,
				Status:    entry.Status,
				Timestamp: entry.Timestamp,
				Metadata:  entry.Metadata,
			})
		}
	}
	return incomplete
}

// Stats summarizes the store for the status command.
func (s *Store) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()

	incomplete := 0
	for _, entry := range doc.Playlists {
		if entry.Status != StatusCompleted {
			incomplete++
		}
	}
	tracksCompleted := 0
	for _, entry := range doc.Tracks {
		if entry.Status == StatusCompleted {
			tracksCompleted++
		}
	}

	return map[string]int{
		"playlists":            len(doc.Playlists),
		"incomplete_playlists": incomplete,
		"tracks":               len(doc.Tracks),
		"tracks_completed":     tracksCompleted,
		"stems":                len(doc.Stems),
		"checkpoint_entries":   len(doc.Playlists) + len(doc.Tracks) + len(doc.Stems),
	}
}

// Export writes a copy of the checkpoint document to the given path.
func (s *Store) Export(outputPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to export checkpoint: %w", err)
	}
	s.logger.Info("checkpoint exported", "path", outputPath)
	return nil
}

// Clear removes the checkpoint file. Subsequent reads see an empty document.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	s.logger.Info("checkpoint cleared", "path", s.path)
	return nil
}
