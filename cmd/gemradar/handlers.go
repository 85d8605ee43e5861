package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/gemradar/internal/config"
	"github.com/elonfeng/gemradar/internal/logging"
	"github.com/elonfeng/gemradar/internal/scheduler"
	"github.com/elonfeng/gemradar/internal/store"
	"github.com/elonfeng/gemradar/pkg/alert"
	"github.com/elonfeng/gemradar/pkg/gem"
	"github.com/elonfeng/gemradar/pkg/ingest"
	"github.com/elonfeng/gemradar/pkg/server"
	"github.com/elonfeng/gemradar/pkg/source"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// app holds everything a command needs.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	db    *store.SQLiteStore
	sched *scheduler.Scheduler
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine := gem.NewEngine(db, cfg.Scoring.Landmarks, log)
	classifier := source.NewClassifier(cfg.Classifier.LocalIndicators, cfg.Classifier.Stopwords)
	sched := scheduler.New(db,
		buildSources(cfg, log),
		ingest.New(db, classifier, log),
		engine,
		buildAlertManager(cfg),
		scheduler.Options{
			CollectInterval:  cfg.Schedule.ParseCollectInterval(),
			ScoreInterval:    cfg.Schedule.ParseScoreInterval(),
			Concurrency:      cfg.Schedule.Concurrency,
			MinAlertScore:    cfg.Alerts.MinScore,
			MinAlertMentions: cfg.Alerts.MinLocalMentions,
		},
		log,
	)

	return &app{cfg: cfg, log: log, db: db, sched: sched}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func buildSources(cfg *config.Config, log zerolog.Logger) []source.Source {
	var sources []source.Source

	if cfg.Reddit.Enabled && cfg.Reddit.ClientID != "" {
		sources = append(sources, source.NewReddit(
			cfg.Reddit.ClientID,
			cfg.Reddit.ClientSecret,
			cfg.Reddit.Limit,
			cfg.Reddit.RatePerSec,
			log,
		))
	}
	if cfg.Blogs.Enabled {
		sources = append(sources,
			source.NewRSS(cfg.Blogs.ParseMaxAge(), log),
			source.NewBlog(log),
		)
	}

	return sources
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runSeed(ctx context.Context, path string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	cat, err := parseCatalog(f)
	if err != nil {
		return err
	}
	cities, places, err := applyCatalog(ctx, a.db, cat)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "seeded %d cities and %d places\n", cities, places)
	return nil
}

func runCollect(ctx context.Context, cityID int64) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var stats ingest.Stats
	if cityID > 0 {
		city, err := a.db.GetCity(ctx, cityID)
		if err != nil {
			return err
		}
		stats, err = a.sched.CollectCity(ctx, *city)
		if err != nil {
			return err
		}
	} else {
		stats, err = a.sched.CollectAll(ctx)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "posts: %d  candidates: %d  mentions: %d  duplicates: %d  unresolved: %d\n",
		stats.Posts, stats.Candidates, stats.Mentions, stats.Duplicates, stats.Unresolved)
	return nil
}

func runScore(ctx context.Context, cityID int64, date string) error {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse(store.DayLayout, date)
		if err != nil {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
		}
		day = parsed
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var results []*gem.Result
	if cityID > 0 {
		res, err := a.sched.ScoreCity(ctx, cityID, day)
		if err != nil {
			return err
		}
		results = append(results, res)
	} else {
		results, err = a.sched.ScoreAll(ctx, day)
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CITY\tDAY\tPROCESSED\tSKIPPED")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", r.CityID, r.Day, r.Processed, r.Skipped)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, r := range results {
		for _, f := range r.Failures {
			fmt.Fprintf(os.Stderr, "city %d: skipped %s: %s\n", r.CityID, f.PlaceID, f.Error)
		}
	}
	return nil
}

func runGems(ctx context.Context, cityID int64, category string, minScore float64, limit int, jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	city, err := a.db.GetCity(ctx, cityID)
	if err != nil {
		return err
	}

	gems, err := a.db.ListGems(ctx, store.GemListOpts{
		CityID:   city.ID,
		Category: category,
		MinScore: minScore,
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("list gems: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(gems)
	}

	if len(gems) == 0 {
		fmt.Printf("no gems in %s yet (try: gemradar collect && gemradar score)\n", city.Name)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GEM\tAUTH\tLOCAL 7D\tCATEGORY\tPLACE\tAS OF")
	for _, g := range gems {
		fmt.Fprintf(w, "%.1f\t%.1f\t%d\t%s\t%s\t%s\n",
			g.HiddenGemScore, g.AuthenticityScore, g.LocalMentions7d,
			g.Category, g.Name, g.ScoreDate)
	}
	return w.Flush()
}

func runServe(ctx context.Context, port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(a.db, a.sched, port, a.log).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.sched.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return server.New(a.db, a.sched, port, a.log).ListenAndServe(gctx)
	})

	err = g.Wait()
	a.log.Info().Msg("shut down")
	return err
}
