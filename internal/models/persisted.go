package models

import (
	"fmt"
	"time"
)

// PersistedTrack is a database-backed track with resolution metadata.
// It records which source candidate the matcher accepted and at what score,
// so repeated runs can skip resolution entirely.
type PersistedTrack struct {
	id              string
	sequence        int
	catalogID       string
	track           Track
	matchedSourceID string
	matchScore      float64
	createdAt       time.Time
	updatedAt       time.Time
	deletedAt       *time.Time
}

// NewPersistedTrack creates a PersistedTrack from a catalog track DTO.
func NewPersistedTrack(sequence int, catalogID string, track Track) *PersistedTrack {
	now := time.Now()
	return &PersistedTrack{
		sequence:  sequence,
		catalogID: catalogID,
		track:     track,
		createdAt: now,
		updatedAt: now,
	}
}

func (t *PersistedTrack) ID() string            { return t.id }
func (t *PersistedTrack) Sequence() int         { return t.sequence }
func (t *PersistedTrack) CatalogID() string     { return t.catalogID }
func (t *PersistedTrack) Title() string         { return t.track.Title }
func (t *PersistedTrack) Artist() string        { return t.track.Artist }
func (t *PersistedTrack) Duration() int         { return t.track.Duration }
func (t *PersistedTrack) Tempo() float64        { return t.track.Tempo }
func (t *PersistedTrack) Key() string           { return t.track.Key }
func (t *PersistedTrack) CreatedAt() time.Time  { return t.createdAt }
func (t *PersistedTrack) UpdatedAt() time.Time  { return t.updatedAt }
func (t *PersistedTrack) DeletedAt() *time.Time { return t.deletedAt }

// Track returns the underlying DTO with the persisted catalog ID filled in.
func (t *PersistedTrack) Track() Track {
	dto := t.track
	dto.ID = t.catalogID
	return dto
}

// MatchedSourceID returns the accepted source candidate ID, empty when unresolved.
func (t *PersistedTrack) MatchedSourceID() string { return t.matchedSourceID }

// MatchScore returns the composite confidence of the accepted match.
func (t *PersistedTrack) MatchScore() float64 { return t.matchScore }

func (t *PersistedTrack) SetID(id string)             { t.id = id }
func (t *PersistedTrack) SetUpdatedAt(ts time.Time)   { t.updatedAt = ts }
func (t *PersistedTrack) SetDeletedAt(ts *time.Time)  { t.deletedAt = ts }
func (t *PersistedTrack) SetSequence(seq int)         { t.sequence = seq }
func (t *PersistedTrack) SetTempo(tempo float64)      { t.track.Tempo = tempo }
func (t *PersistedTrack) SetKey(key string)           { t.track.Key = key }

// SetMatch records the accepted source candidate and its score.
func (t *PersistedTrack) SetMatch(sourceID string, score float64) {
	t.matchedSourceID = sourceID
	t.matchScore = score
}

// Validate checks that the track carries the fields the pipeline requires.
func (t *PersistedTrack) Validate() error {
	if t.id == "" {
		return fmt.Errorf("track id is required")
	}
	if t.catalogID == "" {
		return fmt.Errorf("catalog id is required")
	}
	if t.track.Title == "" {
		return fmt.Errorf("track title is required")
	}
	if t.track.Artist == "" {
		return fmt.Errorf("track artist is required")
	}
	if t.track.Duration < 0 {
		return fmt.Errorf("track duration must not be negative")
	}
	if t.matchScore < 0 || t.matchScore > 100 {
		return fmt.Errorf("match score must be within [0, 100]")
	}
	return nil
}
