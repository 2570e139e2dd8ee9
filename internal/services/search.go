// Search proxy [SearchProvider] implementation
//
// Communicates with the local search proxy wrapping yt-dlp flat
// extraction, so candidate discovery never hits the source site
// directly from this process.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/desertthunder/stemx/internal/models"
)

const defaultSearchBaseURL string = "http://127.0.0.1:8080"

// ProxySearchService implements SearchProvider against the search proxy.
// Requests are rate limited client-side to keep the proxy's upstream happy.
type ProxySearchService struct {
	baseURL       string
	maxCandidates int
	httpClient    *http.Client
	limiter       *rate.Limiter
}

// NewProxySearchService creates a search provider for the given proxy.
// ratePerSec bounds outgoing requests; maxCandidates caps result size.
func NewProxySearchService(baseURL string, ratePerSec float64, maxCandidates int) *ProxySearchService {
	if baseURL == "" {
		baseURL = defaultSearchBaseURL
	}
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if maxCandidates <= 0 {
		maxCandidates = 10
	}

	return &ProxySearchService{
		baseURL:       baseURL,
		maxCandidates: maxCandidates,
		httpClient:    http.DefaultClient,
		limiter:       rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// Search queries the proxy and returns up to maxCandidates candidates.
//
// Calls GET /api/search on the proxy.
func (p *ProxySearchService) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/search?q=%s&limit=%d", p.baseURL, url.QueryEscape(query), p.maxCandidates)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Detail != "" {
			return nil, fmt.Errorf("search proxy error (status %d): %s", resp.StatusCode, errResp.Detail)
		}
		return nil, fmt.Errorf("search proxy error: status %d", resp.StatusCode)
	}

	var results []struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		Uploader string  `json:"uploader"`
		Channel  string  `json:"channel"`
		Duration int     `json:"duration"`
		Tempo    float64 `json:"tempo"`
		Key      string  `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(results))
	for _, r := range results {
		uploader := r.Uploader
		if uploader == "" {
			uploader = r.Channel
		}
		candidates = append(candidates, models.Candidate{
			ID:       r.ID,
			Title:    r.Title,
			Uploader: uploader,
			Duration: r.Duration,
			Tempo:    r.Tempo,
			Key:      r.Key,
		})
		if len(candidates) >= p.maxCandidates {
			break
		}
	}

	return candidates, nil
}

// YTDLPSearchService implements SearchProvider with a local yt-dlp
// subprocess. It is the fallback provider for setups running without
// the search proxy.
type YTDLPSearchService struct {
	maxCandidates int
	runner        commandRunner
}

// NewYTDLPSearchService creates a subprocess-backed search provider.
func NewYTDLPSearchService(maxCandidates int) *YTDLPSearchService {
	if maxCandidates <= 0 {
		maxCandidates = 10
	}
	return &YTDLPSearchService{maxCandidates: maxCandidates, runner: execRunner{}}
}

// Search runs a flat-playlist extraction and parses one candidate per
// printed line. Flat extraction carries no tempo or key signals, so
// those stay zero-valued and score as unknowns.
func (y *YTDLPSearchService) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	output, err := y.runner.Run(ctx, "yt-dlp",
		fmt.Sprintf("ytsearch%d:%s", y.maxCandidates, query),
		"--flat-playlist", "--no-warnings",
		"--print", "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s",
	)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search failed: %w", err)
	}

	var candidates []models.Candidate
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		seconds, _ := strconv.ParseFloat(fields[3], 64)
		candidates = append(candidates, models.Candidate{
			ID:       fields[0],
			Title:    fields[1],
			Uploader: fields[2],
			Duration: int(seconds),
		})
		if len(candidates) >= y.maxCandidates {
			break
		}
	}
	return candidates, nil
}
