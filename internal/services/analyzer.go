// Tempo/key analyzer [Analyzer] implementation
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// unknownKey is reported when the analyzer has no key signal.
const unknownKey = "Unknown"

// halfTimeThreshold is the BPM at and above which reported tempos are
// halved. Analyzers frequently report double-time for four-on-the-floor
// material; downstream matching expects the musical tempo.
const halfTimeThreshold = 140

// AnalyzerService fetches tempo/key enrichment from an HTTP endpoint.
// An empty base URL disables the analyzer entirely.
type AnalyzerService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAnalyzerService creates an analyzer client. baseURL may be empty.
func NewAnalyzerService(baseURL string) *AnalyzerService {
	return &AnalyzerService{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

// EmptyAnalysis is what disabled or failed analysis resolves to.
func EmptyAnalysis() Analysis {
	return Analysis{Tempo: 0, Key: unknownKey}
}

// Analyze fetches tempo and key for a track. Callers must treat errors
// as advisory and continue with EmptyAnalysis.
//
// Calls GET /api/analysis on the analyzer.
func (a *AnalyzerService) Analyze(ctx context.Context, title, artist string) (Analysis, error) {
	if a.baseURL == "" {
		return EmptyAnalysis(), nil
	}

	endpoint := fmt.Sprintf("%s/api/analysis?title=%s&artist=%s",
		a.baseURL, url.QueryEscape(title), url.QueryEscape(artist))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return EmptyAnalysis(), fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return EmptyAnalysis(), fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return EmptyAnalysis(), fmt.Errorf("analyzer error: status %d", resp.StatusCode)
	}

	var result struct {
		BPM float64 `json:"bpm"`
		Key string  `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return EmptyAnalysis(), fmt.Errorf("failed to decode analyzer response: %w", err)
	}

	analysis := Analysis{Tempo: normalizeTempo(result.BPM), Key: result.Key}
	if analysis.Key == "" {
		analysis.Key = unknownKey
	}
	return analysis, nil
}

// normalizeTempo applies the half-time rule to reported BPM values.
func normalizeTempo(bpm float64) float64 {
	if bpm >= halfTimeThreshold {
		return bpm / 2
	}
	return bpm
}
