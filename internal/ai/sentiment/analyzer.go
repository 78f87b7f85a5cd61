// Package sentiment polls external market-mood feeds (the alternative.me
// fear/greed index, optionally vote-scored crypto news) and serves the latest
// blended score. The poller runs on its own cadence; the trading loop only
// ever reads the cached score, and a stale cache surfaces as an error so the
// fusion layer degrades instead of trading on old mood.
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrUnavailable means no score has been fetched yet.
	ErrUnavailable = errors.New("sentiment: no score available")
	// ErrStale means the cached score is older than the configured maximum.
	ErrStale = errors.New("sentiment: cached score is stale")
)

// Config holds poller configuration.
type Config struct {
	Enabled         bool          `json:"enabled"`
	FearGreedURL    string        `json:"fear_greed_url"`   // Default alternative.me
	NewsURL         string        `json:"news_url"`         // Empty disables news
	NewsAPIKey      string        `json:"news_api_key"`
	RefreshInterval time.Duration `json:"refresh_interval"` // Default 15m
	MaxAge          time.Duration `json:"max_age"`          // Default 45m
	HTTPTimeout     time.Duration `json:"http_timeout"`     // Default 10s
}

// DefaultConfig returns the standard poller configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		FearGreedURL:    "https://api.alternative.me/fng/?limit=1",
		RefreshInterval: 15 * time.Minute,
		MaxAge:          45 * time.Minute,
		HTTPTimeout:     10 * time.Second,
	}
}

// Score is one blended sentiment reading.
type Score struct {
	Value     float64   `json:"value"` // -1 extreme fear to +1 extreme greed
	Index     int       `json:"index"` // Raw fear/greed index, 0-100
	Label     string    `json:"label"`
	NewsScore float64   `json:"news_score"`
	FetchedAt time.Time `json:"fetched_at"`
	Sources   []string  `json:"sources"`
}

// Extreme reports whether the mood is at a panic or euphoria extreme, where
// entries are best skipped entirely.
func (s *Score) Extreme() (bool, string) {
	if s.Index <= 10 {
		return true, "extreme fear"
	}
	if s.Index >= 90 {
		return true, "extreme greed"
	}
	return false, ""
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
}

// Analyzer polls the feeds and caches the latest score.
type Analyzer struct {
	config *Config
	client *http.Client
	logger zerolog.Logger

	mu    sync.RWMutex
	score *Score
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(config *Config, logger zerolog.Logger) *Analyzer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Analyzer{
		config: config,
		client: &http.Client{Timeout: config.HTTPTimeout},
		logger: logger.With().Str("component", "sentiment").Logger(),
	}
}

// Enabled reports whether the poller is configured to run.
func (a *Analyzer) Enabled() bool { return a.config.Enabled }

// Run polls until the context is cancelled. An initial fetch happens
// immediately so the engine does not wait a full interval for first data.
func (a *Analyzer) Run(ctx context.Context) {
	if !a.config.Enabled {
		return
	}
	a.refresh(ctx)

	ticker := time.NewTicker(a.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Current returns the cached score. ErrUnavailable before the first
// successful fetch, ErrStale once the cache outlives MaxAge.
func (a *Analyzer) Current() (*Score, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.score == nil {
		return nil, ErrUnavailable
	}
	if time.Since(a.score.FetchedAt) > a.config.MaxAge {
		return nil, fmt.Errorf("%w: fetched %s ago", ErrStale, time.Since(a.score.FetchedAt).Round(time.Second))
	}
	return a.score, nil
}

func (a *Analyzer) refresh(ctx context.Context) {
	index, label, err := a.fetchFearGreed(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("fear/greed fetch failed, keeping previous score")
		return
	}

	score := &Score{
		Index:     index,
		Label:     label,
		FetchedAt: time.Now().UTC(),
		Sources:   []string{"fear_greed"},
	}

	// Fear/greed 0-100 recentered onto -1..+1.
	score.Value = (float64(index) - 50) / 50

	if a.config.NewsURL != "" && a.config.NewsAPIKey != "" {
		if news, err := a.fetchNewsScore(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("news fetch failed, using fear/greed only")
		} else {
			score.NewsScore = news
			score.Sources = append(score.Sources, "news")
			score.Value = score.Value*0.7 + news*0.3
		}
	}

	a.mu.Lock()
	a.score = score
	a.mu.Unlock()

	a.logger.Debug().Int("index", index).Str("label", label).
		Float64("value", score.Value).Msg("sentiment refreshed")
}

func (a *Analyzer) fetchFearGreed(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.FearGreedURL, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("fetch fear/greed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("fear/greed endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, "", err
	}

	var parsed fearGreedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, "", fmt.Errorf("parse fear/greed: %w", err)
	}
	if len(parsed.Data) == 0 {
		return 0, "", errors.New("fear/greed response had no data")
	}
	index, err := strconv.Atoi(parsed.Data[0].Value)
	if err != nil {
		return 0, "", fmt.Errorf("parse fear/greed value %q: %w", parsed.Data[0].Value, err)
	}
	return index, parsed.Data[0].ValueClassification, nil
}

// fetchNewsScore aggregates community vote sentiment over the hot news list,
// weighting fresher items more.
func (a *Analyzer) fetchNewsScore(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s?auth_token=%s&filter=hot", a.config.NewsURL, a.config.NewsAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("news endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Results []struct {
			PublishedAt string `json:"published_at"`
			Votes       struct {
				Positive int `json:"positive"`
				Negative int `json:"negative"`
			} `json:"votes"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("parse news: %w", err)
	}

	now := time.Now()
	var weighted, weightSum float64
	for _, item := range parsed.Results {
		total := item.Votes.Positive + item.Votes.Negative
		if total == 0 {
			continue
		}
		sentiment := float64(item.Votes.Positive-item.Votes.Negative) / float64(total)

		weight := 1.0
		if ts, err := time.Parse(time.RFC3339, item.PublishedAt); err == nil {
			switch age := now.Sub(ts); {
			case age < time.Hour:
				weight = 2.0
			case age < 6*time.Hour:
				weight = 1.5
			case age > 24*time.Hour:
				weight = 0.5
			}
		}
		weighted += sentiment * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return 0, nil
	}
	return weighted / weightSum, nil
}
