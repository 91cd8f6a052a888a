// Package reddit fetches image listings from a Reddit JSON feed.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/awwvision/internal/fetcher/colly"
	"github.com/JakeFAU/awwvision/internal/scrape"
)

// DefaultURL is the listing scraped when no feed URL is configured.
const DefaultURL = "https://www.reddit.com/r/aww/hot.json"

// imageSuffix is appended to the preview image ID to form the object name.
const imageSuffix = ".jpg"

// Getter performs the HTTP GET for the feed document.
type Getter interface {
	Fetch(ctx context.Context, url string, headers http.Header) (collyfetcher.Response, error)
}

// Config controls the feed request.
type Config struct {
	URL       string
	UserAgent string
}

// Client implements scrape.FeedClient for Reddit listings.
type Client struct {
	getter Getter
	cfg    Config
	logger *zap.Logger
}

// New constructs a Client.
func New(getter Getter, cfg Config, logger *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{getter: getter, cfg: cfg, logger: logger}
}

// Fetch downloads and decodes the listing. Entries without preview images are dropped.
func (c *Client) Fetch(ctx context.Context) ([]scrape.FeedEntry, error) {
	headers := http.Header{}
	if c.cfg.UserAgent != "" {
		headers.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.getter.Fetch(ctx, c.cfg.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", scrape.ErrFetch, c.cfg.URL, err)
	}
	entries, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", scrape.ErrFetch, c.cfg.URL, err)
	}
	c.logger.Debug("feed decoded", zap.String("url", c.cfg.URL), zap.Int("entries", len(entries)))
	return entries, nil
}

// Decode parses a listing document into feed entries, keeping order.
// Unknown fields are ignored.
func Decode(body []byte) ([]scrape.FeedEntry, error) {
	var doc listingResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	entries := make([]scrape.FeedEntry, 0, len(doc.Data.Children))
	for _, child := range doc.Data.Children {
		if entry, ok := child.Data.entry(); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type listingResponse struct {
	Data struct {
		Children []listing `json:"children"`
	} `json:"data"`
}

type listing struct {
	Data listingData `json:"data"`
}

type listingData struct {
	URL     string   `json:"url"`
	Preview *preview `json:"preview"`
}

type preview struct {
	Images []image `json:"images"`
}

type image struct {
	ID     string `json:"id"`
	Source struct {
		URL string `json:"url"`
	} `json:"source"`
}

func (d listingData) entry() (scrape.FeedEntry, bool) {
	if d.Preview == nil || len(d.Preview.Images) == 0 || d.Preview.Images[0].ID == "" {
		return scrape.FeedEntry{}, false
	}
	return scrape.FeedEntry{
		SourceURL:        d.URL,
		Name:             d.Preview.Images[0].ID + imageSuffix,
		PreviewAvailable: true,
	}, true
}
