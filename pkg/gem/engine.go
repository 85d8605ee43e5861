package gem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/elonfeng/gemradar/internal/store"
	"github.com/rs/zerolog"
)

// ScoreStore is the storage the engine needs.
type ScoreStore interface {
	ListPlaces(ctx context.Context, cityID int64) ([]store.Place, error)
	BeginBatch(ctx context.Context) (store.Batch, error)
}

// Engine recomputes gem scores for whole cities.
type Engine struct {
	store     ScoreStore
	landmarks []string
	log       zerolog.Logger
}

// NewEngine creates a new scoring engine.
func NewEngine(s ScoreStore, landmarks []string, log zerolog.Logger) *Engine {
	return &Engine{
		store:     s,
		landmarks: landmarks,
		log:       log.With().Str("component", "gem").Logger(),
	}
}

// PlaceFailure records a place skipped during a batch.
type PlaceFailure struct {
	PlaceID string `json:"place_id"`
	Error   string `json:"error"`
}

// Result summarizes one city batch.
type Result struct {
	CityID    int64          `json:"city_id"`
	Day       string         `json:"day"`
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Failures  []PlaceFailure `json:"failures,omitempty"`
}

// Scores are the values computed for one place on one day.
type Scores struct {
	HiddenGem         float64
	Authenticity      float64
	Trending          float64
	TourismSaturation float64
	LocalMentions7d   int
}

// UpdateAllScores scores every place of a city for the given calendar day and
// upserts one snapshot per place. The batch commits once; a place whose
// computation fails is logged and skipped without affecting the others.
// Errors are returned only when the batch as a whole could not run.
func (e *Engine) UpdateAllScores(ctx context.Context, cityID int64, day time.Time) (*Result, error) {
	res := &Result{CityID: cityID, Day: store.Day(day)}
	log := e.log.With().Int64("city_id", cityID).Str("day", res.Day).Logger()

	places, err := e.store.ListPlaces(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("list places for city %d: %w", cityID, err)
	}

	batch, err := e.store.BeginBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("score city %d: %w", cityID, err)
	}
	defer batch.Rollback()

	for _, place := range places {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("score city %d: %w", cityID, err)
		}

		err := batch.Savepoint(ctx, func() error {
			return e.scorePlace(ctx, batch, place, day)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("score city %d: %w", cityID, err)
			}
			log.Warn().Err(err).Str("place_id", place.ID).Msg("skipping place")
			res.Skipped++
			res.Failures = append(res.Failures, PlaceFailure{PlaceID: place.ID, Error: err.Error()})
			continue
		}
		res.Processed++
	}

	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("score city %d: %w", cityID, err)
	}

	log.Info().Int("processed", res.Processed).Int("skipped", res.Skipped).Msg("updated scores")
	return res, nil
}

func (e *Engine) scorePlace(ctx context.Context, b store.Batch, place store.Place, day time.Time) error {
	scores, err := e.ComputeScores(ctx, b, place, day)
	if err != nil {
		return err
	}

	snap, created, err := b.GetOrCreateSnapshot(ctx, place.ID, day)
	if err != nil {
		return err
	}

	snap.HiddenGemScore = scores.HiddenGem
	snap.AuthenticityScore = scores.Authenticity
	snap.LocalMentions7d = scores.LocalMentions7d
	trending := scores.Trending
	snap.TrendingScore = &trending
	if created {
		snap.TourismSaturation = scores.TourismSaturation
	}

	return b.SaveSnapshot(ctx, snap)
}

// ComputeScores gathers mention statistics for place as of the end of day
// and runs the scoring formulas. It reads but never writes.
func (e *Engine) ComputeScores(ctx context.Context, b store.Batch, place store.Place, day time.Time) (Scores, error) {
	until := endOfDay(day)
	weekAgo := until.AddDate(0, 0, -LocalWindowDays)

	local, err := b.CountMentions(ctx, place.ID, true, weekAgo, until)
	if err != nil {
		return Scores{}, err
	}
	tourist, err := b.CountMentions(ctx, place.ID, false, weekAgo, until)
	if err != nil {
		return Scores{}, err
	}
	sentiment, err := b.AverageSentiment(ctx, place.ID)
	if err != nil {
		return Scores{}, err
	}
	first, ok, err := b.FirstMentionAt(ctx, place.ID)
	if err != nil {
		return Scores{}, err
	}
	recentLocal, err := b.CountMentions(ctx, place.ID, true, until.AddDate(0, 0, -AuthenticityWindowDays), until)
	if err != nil {
		return Scores{}, err
	}
	previousWeek, err := b.CountAllMentions(ctx, place.ID, weekAgo.AddDate(0, 0, -LocalWindowDays), weekAgo)
	if err != nil {
		return Scores{}, err
	}

	return Scores{
		HiddenGem:         HiddenGemScore(local, tourist, sentiment, discoveryAge(first, ok, until)),
		Authenticity:      AuthenticityScore(place, recentLocal, e.landmarks),
		Trending:          TrendingScore(local+tourist, previousWeek),
		TourismSaturation: TourismSaturation(local, tourist),
		LocalMentions7d:   local,
	}, nil
}

// discoveryAge is the number of whole days between the first mention and
// until. Places never mentioned get no freshness bonus.
func discoveryAge(first time.Time, ok bool, until time.Time) int {
	if !ok {
		return freshnessDays
	}
	days := int(math.Floor(until.Sub(first).Hours() / 24))
	return max(0, days)
}

// endOfDay returns the exclusive upper bound of day's UTC calendar day.
func endOfDay(day time.Time) time.Time {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
