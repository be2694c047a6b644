// Package cities maintains the authoritative index of Brazilian municipality
// names used by the city matcher.
package cities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

const (
	DefaultDatasetURL = "https://raw.githubusercontent.com/kelvins/Municipios-Brasileiros/main/json/municipios.json"
	DefaultCommitsURL = "https://api.github.com/repos/kelvins/Municipios-Brasileiros/commits?path=json/municipios.json&per_page=1"
)

// ErrEmptyDataset is returned when the dataset holds no named municipality.
var ErrEmptyDataset = errors.New("empty city dataset")

// Client downloads the municipality dataset and its revision date.
type Client struct {
	datasetURL string
	commitsURL string
	httpClient *http.Client
}

// NewClient creates a client for the given dataset and commit-history URLs.
func NewClient(datasetURL, commitsURL string, timeout time.Duration) *Client {
	return &Client{
		datasetURL: datasetURL,
		commitsURL: commitsURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type municipality struct {
	Nome string `json:"nome"`
}

type commit struct {
	Commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// FetchNames downloads the dataset and returns every name folded to
// lowercase without diacritics, in dataset order.
func (c *Client) FetchNames(ctx context.Context) ([]string, error) {
	var rows []municipality
	if err := c.getJSON(ctx, c.datasetURL, &rows); err != nil {
		return nil, fmt.Errorf("fetch city dataset: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if n := domain.Fold(r.Nome); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, ErrEmptyDataset
	}
	return names, nil
}

// LatestRevision returns the committer date of the most recent commit
// touching the dataset.
func (c *Client) LatestRevision(ctx context.Context) (time.Time, error) {
	var commits []commit
	if err := c.getJSON(ctx, c.commitsURL, &commits); err != nil {
		return time.Time{}, fmt.Errorf("fetch city revision: %w", err)
	}
	if len(commits) == 0 || commits[0].Commit.Committer.Date.IsZero() {
		return time.Time{}, errors.New("fetch city revision: no commits")
	}
	return commits[0].Commit.Committer.Date, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
