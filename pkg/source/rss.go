package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// RSS collects blog posts from a city's RSS/Atom feeds.
type RSS struct {
	client *http.Client
	parser *gofeed.Parser
	maxAge time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// NewRSS creates a new RSS collector accepting entries newer than maxAge.
func NewRSS(maxAge time.Duration, log zerolog.Logger) *RSS {
	return &RSS{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		maxAge: maxAge,
		log:    log.With().Str("source", "rss").Logger(),
		now:    time.Now,
	}
}

func (r *RSS) Name() string { return "rss" }

func (r *RSS) Collect(ctx context.Context, target Target) ([]Post, error) {
	var all []Post

	for _, feedURL := range target.Feeds {
		posts, err := r.collectFeed(ctx, feedURL)
		if err != nil {
			r.log.Warn().Err(err).Str("feed", feedURL).Msg("feed fetch failed")
			continue
		}
		all = append(all, posts...)
	}

	return all, nil
}

func (r *RSS) collectFeed(ctx context.Context, feedURL string) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss %s status %d", feedURL, resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feedURL, err)
	}

	var posts []Post
	now := r.now().UTC()
	cutoff := now.Add(-r.maxAge)

	for _, entry := range parsed.Items {
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		if r.maxAge > 0 && published.Before(cutoff) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		text := entry.Content
		if text == "" {
			text = entry.Description
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		id := entry.GUID
		if id == "" {
			id = link
		}

		posts = append(posts, Post{
			ID:          "rss:" + id,
			Source:      SourceBlog,
			URL:         link,
			Title:       entry.Title,
			Text:        stripTags(text),
			Author:      author,
			PublishedAt: published,
		})
	}

	return posts, nil
}
