package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Batch is one city-wide unit of work. Nothing written through a Batch is
// visible to other readers until Commit.
type Batch interface {
	// CountMentions counts mentions of a place by local or non-local authors
	// observed in [since, until).
	CountMentions(ctx context.Context, placeID string, isLocal bool, since, until time.Time) (int, error)
	// CountAllMentions counts every mention of a place in [since, until).
	CountAllMentions(ctx context.Context, placeID string, since, until time.Time) (int, error)
	// AverageSentiment is the mean sentiment over all mentions, 0 when none.
	AverageSentiment(ctx context.Context, placeID string) (float64, error)
	// FirstMentionAt reports the earliest mention time, ok=false when none.
	FirstMentionAt(ctx context.Context, placeID string) (t time.Time, ok bool, err error)
	// GetOrCreateSnapshot returns the stored snapshot for (place, day) or a
	// fresh unsaved one with ID 0 and created=true.
	GetOrCreateSnapshot(ctx context.Context, placeID string, day time.Time) (snap *GemScore, created bool, err error)
	SaveSnapshot(ctx context.Context, snap *GemScore) error
	// Savepoint runs fn and undoes its writes if it fails, leaving the rest
	// of the batch intact.
	Savepoint(ctx context.Context, fn func() error) error
	Commit() error
	Rollback() error
}

func (s *SQLiteStore) BeginBatch(ctx context.Context) (Batch, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &sqliteBatch{tx: tx}, nil
}

type sqliteBatch struct {
	tx *sqlx.Tx
	sp int
}

func (b *sqliteBatch) CountMentions(ctx context.Context, placeID string, isLocal bool, since, until time.Time) (int, error) {
	var n int
	err := b.tx.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM mentions
		WHERE place_id = ? AND is_local_author = ? AND mention_date >= ? AND mention_date < ?
	`, placeID, isLocal, since.UTC(), until.UTC())
	if err != nil {
		return 0, fmt.Errorf("count mentions %s: %w", placeID, err)
	}
	return n, nil
}

func (b *sqliteBatch) CountAllMentions(ctx context.Context, placeID string, since, until time.Time) (int, error) {
	var n int
	err := b.tx.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM mentions
		WHERE place_id = ? AND mention_date >= ? AND mention_date < ?
	`, placeID, since.UTC(), until.UTC())
	if err != nil {
		return 0, fmt.Errorf("count all mentions %s: %w", placeID, err)
	}
	return n, nil
}

func (b *sqliteBatch) AverageSentiment(ctx context.Context, placeID string) (float64, error) {
	var avg sql.NullFloat64
	err := b.tx.GetContext(ctx, &avg,
		"SELECT AVG(sentiment_score) FROM mentions WHERE place_id = ?", placeID)
	if err != nil {
		return 0, fmt.Errorf("average sentiment %s: %w", placeID, err)
	}
	return avg.Float64, nil
}

func (b *sqliteBatch) FirstMentionAt(ctx context.Context, placeID string) (time.Time, bool, error) {
	var first time.Time
	// Selecting the column itself (not MIN) keeps the DATETIME decoding.
	err := b.tx.GetContext(ctx, &first,
		"SELECT mention_date FROM mentions WHERE place_id = ? ORDER BY mention_date ASC LIMIT 1", placeID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("first mention %s: %w", placeID, err)
	}
	return first, true, nil
}

func (b *sqliteBatch) GetOrCreateSnapshot(ctx context.Context, placeID string, day time.Time) (*GemScore, bool, error) {
	var snap GemScore
	err := b.tx.GetContext(ctx, &snap,
		"SELECT * FROM gem_scores WHERE place_id = ? AND score_date = ?", placeID, Day(day))
	if errors.Is(err, sql.ErrNoRows) {
		return &GemScore{PlaceID: placeID, ScoreDate: Day(day)}, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot %s/%s: %w", placeID, Day(day), err)
	}
	return &snap, false, nil
}

// SaveSnapshot writes snap. New snapshots are inserted with last-writer-wins
// on (place_id, score_date) so a concurrent run for the same day cannot
// produce a duplicate row.
func (b *sqliteBatch) SaveSnapshot(ctx context.Context, snap *GemScore) error {
	if snap.ID > 0 {
		_, err := b.tx.ExecContext(ctx, `
			UPDATE gem_scores
			SET hidden_gem_score = ?, authenticity_score = ?, trending_score = ?, local_mentions_7d = ?
			WHERE id = ?
		`, snap.HiddenGemScore, snap.AuthenticityScore, snap.TrendingScore, snap.LocalMentions7d, snap.ID)
		if err != nil {
			return fmt.Errorf("update snapshot %d: %w", snap.ID, err)
		}
		return nil
	}

	err := b.tx.GetContext(ctx, &snap.ID, `
		INSERT INTO gem_scores (place_id, score_date, hidden_gem_score, authenticity_score, trending_score, tourism_saturation, local_mentions_7d)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(place_id, score_date) DO UPDATE SET
			hidden_gem_score = excluded.hidden_gem_score,
			authenticity_score = excluded.authenticity_score,
			trending_score = excluded.trending_score,
			local_mentions_7d = excluded.local_mentions_7d
		RETURNING id
	`, snap.PlaceID, snap.ScoreDate, snap.HiddenGemScore, snap.AuthenticityScore,
		snap.TrendingScore, snap.TourismSaturation, snap.LocalMentions7d)
	if err != nil {
		return fmt.Errorf("insert snapshot %s/%s: %w", snap.PlaceID, snap.ScoreDate, err)
	}
	return nil
}

func (b *sqliteBatch) Savepoint(ctx context.Context, fn func() error) error {
	b.sp++
	name := fmt.Sprintf("place_%d", b.sp)

	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := b.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to %s: %w", name, rbErr))
		}
		if _, relErr := b.tx.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			return errors.Join(err, fmt.Errorf("release %s: %w", name, relErr))
		}
		return err
	}

	if _, err := b.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

func (b *sqliteBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (b *sqliteBatch) Rollback() error {
	err := b.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestScore(ctx context.Context, placeID string) (*GemScore, error) {
	var snap GemScore
	err := s.db.GetContext(ctx, &snap,
		"SELECT * FROM gem_scores WHERE place_id = ? ORDER BY score_date DESC LIMIT 1", placeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest score %s: %w", placeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest score %s: %w", placeID, err)
	}
	return &snap, nil
}

// ScoreHistory returns the most recent snapshots of a place, newest first.
func (s *SQLiteStore) ScoreHistory(ctx context.Context, placeID string, limit int) ([]GemScore, error) {
	if limit <= 0 {
		limit = 30
	}
	var history []GemScore
	err := s.db.SelectContext(ctx, &history,
		"SELECT * FROM gem_scores WHERE place_id = ? ORDER BY score_date DESC LIMIT ?", placeID, limit)
	if err != nil {
		return nil, fmt.Errorf("score history %s: %w", placeID, err)
	}
	return history, nil
}

// ListGems returns places with their latest snapshot, most authentic first.
func (s *SQLiteStore) ListGems(ctx context.Context, opts GemListOpts) ([]Gem, error) {
	query := `
		SELECT p.*, g.score_date, g.hidden_gem_score, g.authenticity_score,
		       g.trending_score, g.tourism_saturation, g.local_mentions_7d
		FROM places p
		JOIN gem_scores g ON g.place_id = p.id
		WHERE g.score_date = (SELECT MAX(score_date) FROM gem_scores WHERE place_id = p.id)
		  AND g.hidden_gem_score >= ?`
	args := []any{opts.MinScore}

	if opts.CityID > 0 {
		query += " AND p.city_id = ?"
		args = append(args, opts.CityID)
	}
	if opts.Category != "" {
		query += " AND p.category = ?"
		args = append(args, opts.Category)
	}
	if opts.Unalerted {
		query += " AND p.gem_alerted_at IS NULL"
	}
	if opts.MinLocalMentions > 0 {
		query += " AND g.local_mentions_7d >= ?"
		args = append(args, opts.MinLocalMentions)
	}

	query += " ORDER BY g.authenticity_score DESC, g.hidden_gem_score DESC, p.name"

	limit := opts.Limit
	if limit <= 0 {
		limit = 30
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var gems []Gem
	if err := s.db.SelectContext(ctx, &gems, query, args...); err != nil {
		return nil, fmt.Errorf("list gems: %w", err)
	}
	return gems, nil
}
