package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// Blog collects the article body of individual blog pages.
type Blog struct {
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewBlog creates a new blog page collector.
func NewBlog(log zerolog.Logger) *Blog {
	return &Blog{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("source", "blog").Logger(),
		now:    time.Now,
	}
}

func (b *Blog) Name() string { return "blog" }

func (b *Blog) Collect(ctx context.Context, target Target) ([]Post, error) {
	var posts []Post
	for _, pageURL := range target.Pages {
		post, err := b.fetchPage(ctx, pageURL)
		if err != nil {
			b.log.Warn().Err(err).Str("url", pageURL).Msg("page fetch failed")
			continue
		}
		if post != nil {
			posts = append(posts, *post)
		}
	}
	return posts, nil
}

func (b *Blog) fetchPage(ctx context.Context, pageURL string) (*Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create blog request %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch blog %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blog %s status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse blog %s: %w", pageURL, err)
	}

	body := doc.Find("article").First()
	if body.Length() == 0 {
		body = doc.Find("main").First()
	}
	if body.Length() == 0 {
		return nil, nil
	}
	body.Find("script, style, nav").Remove()

	published := b.now().UTC()
	if ts, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			published = t.UTC()
		}
	}

	return &Post{
		ID:          "blog:" + pageURL,
		Source:      SourceBlog,
		URL:         pageURL,
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Text:        collapseSpace(body.Text()),
		PublishedAt: published,
	}, nil
}

// stripTags returns the text content of an HTML fragment.
func stripTags(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
