package store

import (
	"context"
	"fmt"
	"time"
)

// InsertMention appends a mention. Re-inserting an existing id is a no-op
// and reports false.
func (s *SQLiteStore) InsertMention(ctx context.Context, m *Mention) (bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mentions (id, place_id, source_type, source_url, mention_text, mention_date, is_local_author, sentiment_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, m.ID, m.PlaceID, m.SourceType, m.SourceURL, m.Text, m.MentionDate.UTC(),
		m.IsLocal, m.Sentiment, m.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert mention %s: %w", m.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) RecentMentions(ctx context.Context, placeID string, limit int) ([]Mention, error) {
	if limit <= 0 {
		limit = 5
	}
	var mentions []Mention
	err := s.db.SelectContext(ctx, &mentions,
		"SELECT * FROM mentions WHERE place_id = ? ORDER BY mention_date DESC LIMIT ?",
		placeID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent mentions %s: %w", placeID, err)
	}
	return mentions, nil
}
