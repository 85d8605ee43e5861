package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"
	userAgent     = "gemradar/1.0"
)

// Reddit collects self-posts from a city's local subreddits.
type Reddit struct {
	client       *http.Client
	limiter      *rate.Limiter
	log          zerolog.Logger
	clientID     string
	clientSecret string
	limit        int
	authURL      string
	apiURL       string
	mu           sync.Mutex
	token        string
	tokenExpiry  time.Time
}

// RedditOption customizes a Reddit collector.
type RedditOption func(*Reddit)

// WithRedditEndpoints points the collector at other hosts (tests, proxies).
func WithRedditEndpoints(authURL, apiURL string) RedditOption {
	return func(r *Reddit) {
		r.authURL = authURL
		r.apiURL = strings.TrimRight(apiURL, "/")
	}
}

// NewReddit creates a new Reddit collector. ratePerSec bounds API calls.
func NewReddit(clientID, clientSecret string, limit int, ratePerSec float64, log zerolog.Logger, opts ...RedditOption) *Reddit {
	if limit <= 0 {
		limit = 50
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	r := &Reddit{
		client:       &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), 1),
		log:          log.With().Str("source", "reddit").Logger(),
		clientID:     clientID,
		clientSecret: clientSecret,
		limit:        limit,
		authURL:      redditAuthURL,
		apiURL:       redditAPIURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reddit) Name() string { return "reddit" }

func (r *Reddit) Collect(ctx context.Context, target Target) ([]Post, error) {
	if len(target.Subreddits) == 0 {
		return nil, nil
	}
	token, err := r.authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit auth: %w", err)
	}

	var all []Post
	for _, sub := range target.Subreddits {
		posts, err := r.fetchSubreddit(ctx, token, sub)
		if err != nil {
			r.log.Warn().Err(err).Str("subreddit", sub).Msg("subreddit fetch failed")
			continue
		}
		all = append(all, posts...)
	}

	return all, nil
}

// authenticate returns a valid bearer token, fetching a new one when the
// cached token is missing or about to expire.
func (r *Reddit) authenticate(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return r.token, nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.authURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}

	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reddit auth status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode reddit token: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return "", errors.New("empty access token")
	}

	// Refresh a minute early, but never treat a short-lived token as expired.
	lifetime := max(tokenResp.ExpiresIn-60, tokenResp.ExpiresIn/2)
	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(lifetime) * time.Second)
	return r.token, nil
}

func (r *Reddit) fetchSubreddit(ctx context.Context, token, subreddit string) ([]Post, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", r.apiURL, url.PathEscape(subreddit), r.limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s status %d", subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", subreddit, err)
	}

	var posts []Post
	for _, child := range listing.Data.Children {
		post := child.Data
		// Only self-posts carry the prose we mine for place names.
		if post.Stickied || strings.TrimSpace(post.Selftext) == "" {
			continue
		}

		posts = append(posts, Post{
			ID:          "reddit:" + post.ID,
			Source:      SourceForum,
			URL:         "https://reddit.com" + post.Permalink,
			Title:       post.Title,
			Text:        post.Selftext,
			Author:      post.Author,
			Engagement:  post.Score,
			PublishedAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
		})
	}

	return posts, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Permalink  string  `json:"permalink"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
}
