package models

// Track is the canonical metadata for a song moving through the pipeline.
// Tempo and Key are zero-valued when the analyzer could not resolve them.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Duration int     // Duration in seconds from the catalog
	Tempo    float64 // Beats per minute, 0 when unknown
	Key      string  // Musical key (e.g. "8A"), empty when unknown
}

// DisplayName formats the track as "Artist - Title" for logs and folder names.
func (t Track) DisplayName() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// Candidate is a search result from a source provider that may match a Track.
type Candidate struct {
	ID       string
	Title    string
	Uploader string
	Duration int     // Duration in seconds as reported by the provider
	Tempo    float64 // 0 when the provider reports no tempo
	Key      string  // Empty when the provider reports no key
}

// MatchResult pairs a candidate with its composite confidence score.
type MatchResult struct {
	Candidate Candidate
	Score     float64
	Accepted  bool // true when the score cleared the acceptance threshold
	Review    bool // true when the score landed in the soft-accept band
}
