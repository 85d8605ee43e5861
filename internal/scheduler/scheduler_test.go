package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/elonfeng/gemradar/internal/store"
	"github.com/elonfeng/gemradar/pkg/alert"
	"github.com/elonfeng/gemradar/pkg/gem"
	"github.com/elonfeng/gemradar/pkg/ingest"
	"github.com/elonfeng/gemradar/pkg/source"
	"github.com/rs/zerolog"
)

var today = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	name  string
	posts map[int64][]source.Post
	err   error

	mu      sync.Mutex
	targets []source.Target
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Collect(_ context.Context, target source.Target) ([]source.Post, error) {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.posts[target.CityID], nil
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []*alert.Notification
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(_ context.Context, n *alert.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func setup(t *testing.T, sources []source.Source, notifiers ...alert.Notifier) (*Scheduler, *store.SQLiteStore) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	cities := []store.City{
		{ID: 1, Name: "Paris", Active: true, Subreddits: []string{"paris"}},
		{ID: 2, Name: "Lyon", Active: true, Feeds: []string{"https://lyon.example/feed"}},
		{ID: 3, Name: "Dormant", Active: false},
	}
	for _, c := range cities {
		if err := s.UpsertCity(ctx, &c); err != nil {
			t.Fatalf("upsert city: %v", err)
		}
	}
	places := []store.Place{
		{ID: "baratin", CityID: 1, Name: "Le Baratin", Category: "restaurant"},
		{ID: "louvre-cafe", CityID: 1, Name: "Café Marly", Category: "cafe", MichelinStars: 1},
		{ID: "bouchon", CityID: 2, Name: "Chez Hugon", Category: "restaurant"},
	}
	for _, p := range places {
		if err := s.UpsertPlace(ctx, &p); err != nil {
			t.Fatalf("upsert place: %v", err)
		}
	}

	log := zerolog.Nop()
	engine := gem.NewEngine(s, nil, log)
	in := ingest.New(s, source.NewClassifier(nil, nil), log)
	sched := New(s, sources, in, engine, alert.NewManager(notifiers), Options{Concurrency: 2, MinAlertScore: 90}, log)
	sched.now = func() time.Time { return today }
	return sched, s
}

func TestCollectAll(t *testing.T) {
	src := &fakeSource{name: "fake", posts: map[int64][]source.Post{
		1: {{ID: "p1", URL: "https://reddit.com/p1", Text: "J'habite le quartier, je recommande Le Baratin.", PublishedAt: today}},
		2: {{ID: "p2", URL: "https://lyon.example/p2", Text: "Chez Hugon est super.", PublishedAt: today}},
	}}
	broken := &fakeSource{name: "broken", err: errors.New("503")}

	sched, s := setup(t, []source.Source{broken, src})
	stats, err := sched.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Posts != 2 || stats.Mentions != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if len(src.targets) != 2 {
		t.Errorf("expected only active cities to be collected, got %d targets", len(src.targets))
	}
	for _, tg := range src.targets {
		if tg.CityID == 1 && (len(tg.Subreddits) != 1 || tg.Subreddits[0] != "paris") {
			t.Errorf("expected paris subreddit in target, got %+v", tg)
		}
	}

	mentions, err := s.RecentMentions(context.Background(), "baratin", 5)
	if err != nil || len(mentions) != 1 || !mentions[0].IsLocal {
		t.Errorf("expected one local mention, got %v %v", mentions, err)
	}
}

func TestScoreAll(t *testing.T) {
	sched, s := setup(t, nil)
	ctx := context.Background()

	results, err := sched.ScoreAll(ctx, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results for 2 active cities, got %d", len(results))
	}
	processed := 0
	for _, r := range results {
		processed += r.Processed
		if r.Day != "2026-10-19" {
			t.Errorf("unexpected day %q", r.Day)
		}
	}
	if processed != 3 {
		t.Errorf("expected 3 places processed, got %d", processed)
	}

	if _, err := s.LatestScore(ctx, "bouchon"); err != nil {
		t.Errorf("expected a snapshot for bouchon: %v", err)
	}
}

func TestScoreCityBusy(t *testing.T) {
	sched, _ := setup(t, nil)
	sched.inflight.Store(int64(1), struct{}{})

	if _, err := sched.ScoreCity(context.Background(), 1, today); !errors.Is(err, ErrCityBusy) {
		t.Errorf("expected ErrCityBusy, got %v", err)
	}

	// ScoreAll skips the busy city and scores the rest.
	results, err := sched.ScoreAll(context.Background(), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].CityID != 2 {
		t.Errorf("expected only city 2 scored, got %+v", results)
	}

	sched.inflight.Delete(int64(1))
	if _, err := sched.ScoreCity(context.Background(), 1, today); err != nil {
		t.Errorf("expected city to be free again, got %v", err)
	}
}

func TestAlertGems(t *testing.T) {
	src := &fakeSource{name: "fake", posts: map[int64][]source.Post{
		1: {{ID: "p1", URL: "https://reddit.com/p1", Title: "Bons plans", Text: "Habitant du 11e, je recommande Le Baratin.", PublishedAt: today}},
	}}
	capture := &captureNotifier{}
	sched, s := setup(t, []source.Source{src}, capture)
	ctx := context.Background()

	if _, err := sched.CollectAll(ctx); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if _, err := sched.ScoreAll(ctx, today); err != nil {
		t.Fatalf("score: %v", err)
	}

	sent, err := sched.AlertGems(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Unmentioned places score 100 as well but have no local evidence.
	if sent != 1 || len(capture.sent) != 1 {
		t.Fatalf("expected 1 alert, got %d", sent)
	}
	baratin := capture.sent[0]
	if baratin.PlaceID != "baratin" {
		t.Fatalf("expected an alert for baratin, got %s", baratin.PlaceID)
	}
	if baratin.City != "Paris" || baratin.URL != "https://reddit.com/p1" || len(baratin.Mentions) != 1 {
		t.Errorf("unexpected notification: %+v", baratin)
	}

	p, err := s.GetPlace(ctx, "baratin")
	if err != nil {
		t.Fatalf("get place: %v", err)
	}
	if p.GemAlertedAt == nil || !p.GemAlertedAt.Equal(today) {
		t.Errorf("expected place marked alerted at %s, got %v", today, p.GemAlertedAt)
	}

	for _, id := range []string{"louvre-cafe", "bouchon"} {
		p, err := s.GetPlace(ctx, id)
		if err != nil {
			t.Fatalf("get place: %v", err)
		}
		if p.GemAlertedAt != nil {
			t.Errorf("%s has no mentions and must stay unalerted", id)
		}
	}

	// Already alerted gems are not sent again.
	sent, err = sched.AlertGems(ctx)
	if err != nil || sent != 0 {
		t.Errorf("expected no repeat alerts, got %d %v", sent, err)
	}
}

func TestAlertGemsNeedsLocalMentions(t *testing.T) {
	capture := &captureNotifier{}
	sched, s := setup(t, nil, capture)
	ctx := context.Background()

	if _, err := sched.ScoreAll(ctx, today); err != nil {
		t.Fatalf("score: %v", err)
	}
	sent, err := sched.AlertGems(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 0 || len(capture.sent) != 0 {
		t.Errorf("expected no alerts without collected mentions, got %d", sent)
	}

	// The places stay eligible once locals start talking about them.
	s.InsertMention(ctx, &store.Mention{
		ID: "m1", PlaceID: "bouchon", SourceType: "forum", SourceURL: "https://lyon.example/p1",
		Text: "Chez Hugon, vraiment top.", MentionDate: today, IsLocal: true, Sentiment: 1,
	})
	if _, err := sched.ScoreAll(ctx, today); err != nil {
		t.Fatalf("rescore: %v", err)
	}
	sent, err = sched.AlertGems(ctx)
	if err != nil || sent != 1 || capture.sent[0].PlaceID != "bouchon" {
		t.Errorf("expected one alert for bouchon, got %d %v", sent, err)
	}
}

func TestAlertGemsWithoutNotifiers(t *testing.T) {
	sched, _ := setup(t, nil)
	sent, err := sched.AlertGems(context.Background())
	if err != nil || sent != 0 {
		t.Errorf("expected no-op, got %d %v", sent, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sched, _ := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
