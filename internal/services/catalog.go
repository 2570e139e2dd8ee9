// Catalog API implementation of [Catalog]
//
// Uses oauth2 client credentials for machine-to-machine authentication.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// CatalogService implements Catalog against an HTTP metadata API.
type CatalogService struct {
	baseURL    string
	config     *clientcredentials.Config
	httpClient *http.Client
}

// NewCatalogService creates a catalog client for the given endpoints.
func NewCatalogService(baseURL, tokenURL, clientID, clientSecret string) *CatalogService {
	return &CatalogService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		},
	}
}

// Name returns the service name.
func (c *CatalogService) Name() string {
	return "Catalog"
}

// Authenticate exchanges client credentials for a token-refreshing HTTP client.
func (c *CatalogService) Authenticate(ctx context.Context) error {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return fmt.Errorf("%w: catalog client id and secret are required", shared.ErrMissingCredentials)
	}

	if _, err := c.config.Token(ctx); err != nil {
		return fmt.Errorf("catalog authentication failed: %w", err)
	}

	c.httpClient = c.config.Client(ctx)
	return nil
}

func (c *CatalogService) doRequest(ctx context.Context, method, endpoint string, result any) error {
	if c.httpClient == nil {
		return fmt.Errorf("%w: catalog client is not authenticated", shared.ErrMissingCredentials)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return shared.ErrTrackNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: catalog API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// catalogTrack is the wire shape of a track resource.
type catalogTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	DurationMS int `json:"duration_ms"`
}

func (t catalogTrack) toTrack() models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return models.Track{
		ID:       t.ID,
		Title:    t.Name,
		Artist:   strings.Join(artists, ", "),
		Duration: t.DurationMS / 1000,
	}
}

// GetTrack retrieves a single track by its catalog ID.
//
// Calls GET /v1/tracks/{id}.
func (c *CatalogService) GetTrack(ctx context.Context, trackID string) (models.Track, error) {
	var ct catalogTrack
	endpoint := fmt.Sprintf("/v1/tracks/%s", trackID)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, &ct); err != nil {
		return models.Track{}, err
	}
	return ct.toTrack(), nil
}

// GetPlaylist retrieves a playlist with its complete track listing.
//
// Calls GET /v1/playlists/{id}.
func (c *CatalogService) GetPlaylist(ctx context.Context, playlistID string) (*PlaylistExport, error) {
	var cp struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Tracks struct {
			Total int `json:"total"`
			Items []struct {
				Track catalogTrack `json:"track"`
			} `json:"items"`
		} `json:"tracks"`
	}

	endpoint := fmt.Sprintf("/v1/playlists/%s", playlistID)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, &cp); err != nil {
		return nil, err
	}

	export := &PlaylistExport{
		Playlist: Playlist{
			ID:         cp.ID,
			Name:       cp.Name,
			TrackCount: cp.Tracks.Total,
		},
		Tracks: make([]models.Track, 0, len(cp.Tracks.Items)),
	}
	for _, item := range cp.Tracks.Items {
		export.Tracks = append(export.Tracks, item.Track.toTrack())
	}
	return export, nil
}
