package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// TrackRepository implements models.Repository[*models.PersistedTrack]
// for resolved-track caching.
//
// Tracks are cached with their accepted source match so repeated runs
// skip catalog lookups and source resolution entirely. Soft deletes
// keep history without resurfacing stale matches.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

const trackColumns = `id, sequence, catalog_id, title, artist, duration, tempo, key, matched_source_id, match_score, created_at, updated_at, deleted_at`

// Create inserts a new [models.PersistedTrack] into the database with generated ID and sequence
func (r *TrackRepository) Create(track *models.PersistedTrack) error {
	sequence, err := NextSequence(r.db, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	track.SetID(id)
	track.SetSequence(sequence)

	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO tracks (id, sequence, catalog_id, title, artist, duration, tempo, key, matched_source_id, match_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		track.CatalogID(),
		track.Title(),
		track.Artist(),
		track.Duration(),
		track.Tempo(),
		track.Key(),
		nullableString(track.MatchedSourceID()),
		track.MatchScore(),
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// Get retrieves a track by ID, excluding soft-deleted tracks
func (r *TrackRepository) Get(id string) (*models.PersistedTrack, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tracks
		WHERE id = ? AND deleted_at IS NULL
	`, trackColumns)

	return scanTrack(r.db.QueryRow(query, id))
}

// GetByCatalogID retrieves a track by its catalog identifier
func (r *TrackRepository) GetByCatalogID(catalogID string) (*models.PersistedTrack, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tracks
		WHERE catalog_id = ? AND deleted_at IS NULL
	`, trackColumns)

	return scanTrack(r.db.QueryRow(query, catalogID))
}

// Update modifies an existing track in the database
func (r *TrackRepository) Update(track *models.PersistedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	track.SetUpdatedAt(now)

	query := `
		UPDATE tracks
		SET title = ?, artist = ?, duration = ?, tempo = ?, key = ?, matched_source_id = ?, match_score = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		track.Title(),
		track.Artist(),
		track.Duration(),
		track.Tempo(),
		track.Key(),
		nullableString(track.MatchedSourceID()),
		track.MatchScore(),
		now,
		track.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("track not found or already deleted: %s", track.ID())
	}

	return nil
}

// Delete soft-deletes a track by ID
func (r *TrackRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE tracks
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("track not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all tracks matching the given criteria, excluding soft-deleted tracks
func (r *TrackRepository) List(criteria map[string]any) ([]*models.PersistedTrack, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tracks
		WHERE deleted_at IS NULL
	`, trackColumns)

	args := []any{}

	if artist, ok := criteria["artist"].(string); ok && artist != "" {
		query += " AND artist = ?"
		args = append(args, artist)
	}

	if resolved, ok := criteria["resolved"].(bool); ok {
		if resolved {
			query += " AND matched_source_id IS NOT NULL"
		} else {
			query += " AND matched_source_id IS NULL"
		}
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.PersistedTrack
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrack scans one row into a [models.PersistedTrack]
func scanTrack(row scanner) (*models.PersistedTrack, error) {
	var (
		id              string
		sequence        int
		catalogID       string
		title           string
		artist          string
		duration        int
		tempo           float64
		key             string
		matchedSourceID sql.NullString
		matchScore      float64
		createdAt       time.Time
		updatedAt       time.Time
		deletedAt       sql.NullTime
	)

	err := row.Scan(&id, &sequence, &catalogID, &title, &artist, &duration, &tempo, &key, &matchedSourceID, &matchScore, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	dto := models.Track{
		ID:       catalogID,
		Title:    title,
		Artist:   artist,
		Duration: duration,
		Tempo:    tempo,
		Key:      key,
	}

	track := models.NewPersistedTrack(sequence, catalogID, dto)
	track.SetID(id)
	track.SetUpdatedAt(updatedAt)
	if matchedSourceID.Valid {
		track.SetMatch(matchedSourceID.String, matchScore)
	}
	if deletedAt.Valid {
		track.SetDeletedAt(&deletedAt.Time)
	}

	return track, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
