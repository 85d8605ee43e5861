package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elonfeng/gemradar/internal/store"
	"github.com/elonfeng/gemradar/pkg/alert"
	"github.com/elonfeng/gemradar/pkg/gem"
	"github.com/elonfeng/gemradar/pkg/ingest"
	"github.com/elonfeng/gemradar/pkg/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrCityBusy is returned when a city's previous batch is still running.
var ErrCityBusy = errors.New("city batch already running")

// Options tunes the scheduler loop.
type Options struct {
	CollectInterval time.Duration
	ScoreInterval   time.Duration
	Concurrency     int
	MinAlertScore   float64

	// MinAlertMentions is the local mention count a gem needs in its
	// latest window before it is announced. An unmentioned place scores
	// high by default, so this is at least 1.
	MinAlertMentions int
}

// Scheduler runs periodic collection, scoring and gem alerts.
type Scheduler struct {
	store    store.Store
	sources  []source.Source
	ingester *ingest.Ingester
	engine   *gem.Engine
	alertMgr *alert.Manager
	opts     Options
	log      zerolog.Logger
	now      func() time.Time

	inflight sync.Map
}

// New creates a new scheduler.
func New(
	s store.Store,
	sources []source.Source,
	ingester *ingest.Ingester,
	engine *gem.Engine,
	alertMgr *alert.Manager,
	opts Options,
	log zerolog.Logger,
) *Scheduler {
	if opts.CollectInterval == 0 {
		opts.CollectInterval = time.Hour
	}
	if opts.ScoreInterval == 0 {
		opts.ScoreInterval = 6 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MinAlertScore == 0 {
		opts.MinAlertScore = 80
	}
	if opts.MinAlertMentions < 1 {
		opts.MinAlertMentions = 1
	}
	return &Scheduler{
		store:    s,
		sources:  sources,
		ingester: ingester,
		engine:   engine,
		alertMgr: alertMgr,
		opts:     opts,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	collectTicker := time.NewTicker(s.opts.CollectInterval)
	scoreTicker := time.NewTicker(s.opts.ScoreInterval)
	defer collectTicker.Stop()
	defer scoreTicker.Stop()

	s.log.Info().Msg("initial collection")
	s.collectTick(ctx)
	s.log.Info().Msg("initial scoring")
	s.scoreTick(ctx)

	s.log.Info().
		Dur("collect_every", s.opts.CollectInterval).
		Dur("score_every", s.opts.ScoreInterval).
		Msg("running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopped")
			return ctx.Err()
		case <-collectTicker.C:
			s.collectTick(ctx)
		case <-scoreTicker.C:
			s.scoreTick(ctx)
		}
	}
}

func (s *Scheduler) collectTick(ctx context.Context) {
	if _, err := s.CollectAll(ctx); err != nil {
		s.log.Error().Err(err).Msg("collection failed")
	}
}

func (s *Scheduler) scoreTick(ctx context.Context) {
	if _, err := s.ScoreAll(ctx, s.now()); err != nil {
		s.log.Error().Err(err).Msg("scoring failed")
	}
	if _, err := s.AlertGems(ctx); err != nil {
		s.log.Error().Err(err).Msg("gem alerts failed")
	}
}

// CollectAll collects and ingests posts for every active city. Every city
// runs even if another fails; the first failure is returned.
func (s *Scheduler) CollectAll(ctx context.Context) (ingest.Stats, error) {
	cities, err := s.store.ListCities(ctx, true)
	if err != nil {
		return ingest.Stats{}, err
	}

	var (
		mu    sync.Mutex
		total ingest.Stats
	)
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, city := range cities {
		g.Go(func() error {
			stats, err := s.CollectCity(ctx, city)
			if err != nil {
				return fmt.Errorf("collect city %d: %w", city.ID, err)
			}
			mu.Lock()
			total.Posts += stats.Posts
			total.Candidates += stats.Candidates
			total.Mentions += stats.Mentions
			total.Duplicates += stats.Duplicates
			total.Unresolved += stats.Unresolved
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	s.log.Info().
		Int("cities", len(cities)).
		Int("posts", total.Posts).
		Int("mentions", total.Mentions).
		Msg("collection done")
	return total, err
}

// CollectCity runs every source against one city. A failing source is logged
// and skipped; ingestion errors abort the city.
func (s *Scheduler) CollectCity(ctx context.Context, city store.City) (ingest.Stats, error) {
	target := source.Target{
		CityID:     city.ID,
		Subreddits: city.Subreddits,
		Feeds:      city.Feeds,
		Pages:      city.Pages,
	}
	log := s.log.With().Int64("city_id", city.ID).Logger()

	var posts []source.Post
	for _, src := range s.sources {
		got, err := src.Collect(ctx, target)
		if err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("source failed")
			continue
		}
		log.Debug().Str("source", src.Name()).Int("posts", len(got)).Msg("collected")
		posts = append(posts, got...)
	}

	return s.ingester.Ingest(ctx, city.ID, posts)
}

// ScoreAll scores every active city for day, at most Concurrency at a time.
// Every city runs even if another fails; the first failure is returned.
func (s *Scheduler) ScoreAll(ctx context.Context, day time.Time) ([]*gem.Result, error) {
	cities, err := s.store.ListCities(ctx, true)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []*gem.Result
	)
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, city := range cities {
		g.Go(func() error {
			res, err := s.ScoreCity(ctx, city.ID, day)
			if errors.Is(err, ErrCityBusy) {
				s.log.Info().Int64("city_id", city.ID).Msg("previous batch still running, skipping")
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	return results, g.Wait()
}

// ScoreCity runs one city batch unless one is already in flight for the city.
func (s *Scheduler) ScoreCity(ctx context.Context, cityID int64, day time.Time) (*gem.Result, error) {
	if _, busy := s.inflight.LoadOrStore(cityID, struct{}{}); busy {
		return nil, fmt.Errorf("score city %d: %w", cityID, ErrCityBusy)
	}
	defer s.inflight.Delete(cityID)

	return s.engine.UpdateAllScores(ctx, cityID, day)
}

// AlertGems broadcasts gems at or above the alert threshold, backed by
// recent local mentions, that have not been announced yet, and marks them. It returns how many were sent.
func (s *Scheduler) AlertGems(ctx context.Context) (int, error) {
	if s.alertMgr == nil || !s.alertMgr.HasNotifiers() {
		return 0, nil
	}

	gems, err := s.store.ListGems(ctx, store.GemListOpts{
		MinScore:         s.opts.MinAlertScore,
		MinLocalMentions: s.opts.MinAlertMentions,
		Unalerted:        true,
		Limit:            50,
	})
	if err != nil {
		return 0, err
	}

	cityNames := make(map[int64]string)
	sent := 0
	for _, g := range gems {
		name, ok := cityNames[g.CityID]
		if !ok {
			if city, err := s.store.GetCity(ctx, g.CityID); err == nil {
				name = city.Name
			}
			cityNames[g.CityID] = name
		}

		n := s.notification(ctx, g, name)
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			s.log.Warn().Err(err).Str("place_id", g.ID).Msg("alert failed")
			continue
		}
		if err := s.store.MarkGemAlerted(ctx, g.ID, s.now()); err != nil {
			return sent, err
		}
		sent++
		s.log.Info().Str("place", g.Name).Float64("score", g.HiddenGemScore).Msg("alerted")
	}
	return sent, nil
}

func (s *Scheduler) notification(ctx context.Context, g store.Gem, city string) *alert.Notification {
	n := &alert.Notification{
		Title:        g.Name,
		Body:         fmt.Sprintf("%d local mentions this week, tourism saturation %.0f%%", g.LocalMentions7d, g.TourismSaturation*100),
		PlaceID:      g.ID,
		City:         city,
		Category:     g.Category,
		Score:        g.HiddenGemScore,
		Authenticity: g.AuthenticityScore,
	}

	mentions, err := s.store.RecentMentions(ctx, g.ID, 5)
	if err != nil {
		s.log.Debug().Err(err).Str("place_id", g.ID).Msg("no mentions for alert")
		return n
	}
	for _, m := range mentions {
		if m.SourceURL == "" {
			continue
		}
		if n.URL == "" {
			n.URL = m.SourceURL
		}
		n.Mentions = append(n.Mentions, alert.Link{
			Title: source.Truncate(m.Text, 80),
			URL:   m.SourceURL,
			Kind:  m.SourceType,
		})
	}
	return n
}
