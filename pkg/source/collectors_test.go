package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRedditCollect(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if user, pass, ok := r.BasicAuth(); !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	})
	mux.HandleFunc("/r/paris/hot.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data":{"children":[
			{"data":{"id":"a1","title":"Bons plans","permalink":"/r/paris/comments/a1/","selftext":"J'habite le quartier, essayer Le Baratin.","author":"marie","score":42,"created_utc":1760000000}},
			{"data":{"id":"a2","title":"Link post","permalink":"/r/paris/comments/a2/","selftext":"","score":3,"created_utc":1760000000}},
			{"data":{"id":"a3","title":"Rules","permalink":"/r/paris/comments/a3/","selftext":"Read me","stickied":true,"created_utc":1760000000}}
		]}}`)
	})
	mux.HandleFunc("/r/broken/hot.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewReddit("id", "secret", 10, 100, zerolog.Nop(), WithRedditEndpoints(srv.URL+"/token", srv.URL))
	target := Target{Subreddits: []string{"paris", "broken"}}

	posts, err := r.Collect(context.Background(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 self-post, got %d", len(posts))
	}
	p := posts[0]
	if p.ID != "reddit:a1" || p.Source != SourceForum || p.Engagement != 42 {
		t.Errorf("unexpected post: %+v", p)
	}
	if p.URL != "https://reddit.com/r/paris/comments/a1/" {
		t.Errorf("unexpected url %q", p.URL)
	}
	if !p.PublishedAt.Equal(time.Unix(1760000000, 0)) {
		t.Errorf("unexpected published time %s", p.PublishedAt)
	}

	// Cached token is reused.
	if _, err := r.Collect(context.Background(), target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenCalls != 1 {
		t.Errorf("expected 1 token request, got %d", tokenCalls)
	}
}

func TestRedditConcurrentShortLivedToken(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := tokenCalls.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok%d","expires_in":30}`, n)
	})
	mux.HandleFunc("/r/paris/hot.json", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data":{"children":[
			{"data":{"id":"a1","title":"Bons plans","permalink":"/r/paris/comments/a1/","selftext":"Essayer Le Baratin.","created_utc":1760000000}}
		]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := NewReddit("id", "secret", 10, 1000, zerolog.Nop(), WithRedditEndpoints(srv.URL+"/token", srv.URL))
	target := Target{Subreddits: []string{"paris"}}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			posts, err := r.Collect(context.Background(), target)
			if err == nil && len(posts) != 1 {
				err = fmt.Errorf("expected 1 post, got %d", len(posts))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}

	// A 30s token stays cached instead of expiring on arrival.
	if n := tokenCalls.Load(); n != 1 {
		t.Errorf("expected 1 token request, got %d", n)
	}
}

func TestRedditAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewReddit("id", "bad", 10, 100, zerolog.Nop(), WithRedditEndpoints(srv.URL, srv.URL))
	if _, err := r.Collect(context.Background(), Target{Subreddits: []string{"paris"}}); err == nil {
		t.Error("expected auth error")
	}
}

func TestRedditNoSubreddits(t *testing.T) {
	r := NewReddit("id", "secret", 10, 1, zerolog.Nop(), WithRedditEndpoints("http://127.0.0.1:0", "http://127.0.0.1:0"))
	posts, err := r.Collect(context.Background(), Target{})
	if err != nil || posts != nil {
		t.Errorf("expected no work without subreddits, got %v %v", posts, err)
	}
}

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Paris Food</title>
<item><guid>g1</guid><title>Nos adresses</title><link>https://blog.example/adresses</link>
<description><![CDATA[<p>Je recommande <b>Septime</b>. Vraiment top.</p>]]></description>
<pubDate>Sat, 17 Oct 2026 10:00:00 GMT</pubDate></item>
<item><guid>g2</guid><title>Vieux billet</title><link>https://blog.example/old</link>
<description>Essayer Le Baratin.</description>
<pubDate>Mon, 01 Jun 2026 10:00:00 GMT</pubDate></item>
</channel></rss>`

func TestRSSCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	}))
	defer srv.Close()

	r := NewRSS(7*24*time.Hour, zerolog.Nop())
	r.now = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }

	posts, err := r.Collect(context.Background(), Target{Feeds: []string{srv.URL}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected only the recent entry, got %d", len(posts))
	}
	p := posts[0]
	if p.ID != "rss:g1" || p.Source != SourceBlog {
		t.Errorf("unexpected post: %+v", p)
	}
	if strings.Contains(p.Text, "<b>") || !strings.Contains(p.Text, "Je recommande Septime.") {
		t.Errorf("expected tag-free text, got %q", p.Text)
	}
}

const articleHTML = `<html><head><title>Mon Paris</title>
<meta property="article:published_time" content="2026-10-10T08:00:00Z"></head>
<body><nav>Accueil</nav><article><h1>Mes cantines</h1>
<p>Habitant du 11e, je recommande Chez Marcel.</p><script>var x = 1;</script></article></body></html>`

func TestBlogCollect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><div>no article</div></body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := NewBlog(zerolog.Nop())
	posts, err := b.Collect(context.Background(), Target{Pages: []string{srv.URL + "/post", srv.URL + "/empty", srv.URL + "/missing"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	p := posts[0]
	if p.Title != "Mon Paris" {
		t.Errorf("unexpected title %q", p.Title)
	}
	if p.Text != "Mes cantines Habitant du 11e, je recommande Chez Marcel." {
		t.Errorf("unexpected text %q", p.Text)
	}
	if !p.PublishedAt.Equal(time.Date(2026, 10, 10, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected published time %s", p.PublishedAt)
	}
}
