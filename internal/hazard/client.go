package hazard

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// datasetPath is the construction dataset endpoint, relative to the
// configured base URL.
const datasetPath = "/api/construction/geojson"

// DefaultRequestTimeout bounds a single dataset fetch.
const DefaultRequestTimeout = 15 * time.Second

// Client fetches the construction GeoJSON dataset over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     hclog.Logger
}

// NewClient creates a dataset client. A non-positive timeout falls back
// to DefaultRequestTimeout.
func NewClient(baseURL string, timeout time.Duration, logger hclog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchFeatures issues a GET against the dataset endpoint and decodes
// the response. A non-200 status or timeout is returned as an error for
// the owning refresh path to log and retry on its own schedule.
func (c *Client) FetchFeatures(ctx context.Context) ([]Feature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+datasetPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create dataset request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "dataset request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	features, err := DecodeFeatureCollection(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode construction dataset")
	}

	c.logger.Debug("fetched construction dataset", "features", len(features))
	return features, nil
}
