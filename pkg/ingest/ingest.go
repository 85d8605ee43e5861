package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/gemradar/internal/store"
	"github.com/elonfeng/gemradar/pkg/source"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxExcerpt is the longest mention text kept, in bytes.
const maxExcerpt = 1000

// MentionStore is the storage the ingester writes to.
type MentionStore interface {
	FindPlaceByName(ctx context.Context, cityID int64, name string) (*store.Place, error)
	InsertMention(ctx context.Context, m *store.Mention) (bool, error)
}

// Stats counts what one ingestion run did.
type Stats struct {
	Posts      int `json:"posts"`
	Candidates int `json:"candidates"`
	Mentions   int `json:"mentions"`
	Duplicates int `json:"duplicates"`
	Unresolved int `json:"unresolved"`
}

// Ingester turns collected posts into place mentions.
type Ingester struct {
	store      MentionStore
	classifier *source.Classifier
	log        zerolog.Logger
	now        func() time.Time
}

// New creates an ingester.
func New(s MentionStore, c *source.Classifier, log zerolog.Logger) *Ingester {
	return &Ingester{
		store:      s,
		classifier: c,
		log:        log.With().Str("component", "ingest").Logger(),
		now:        time.Now,
	}
}

// Ingest classifies every post and appends one mention per place of the city
// it resolves to. Names that match no known place are counted and dropped.
// Mention ids derive from the post URL and place, so re-ingesting the same
// post is a no-op.
func (in *Ingester) Ingest(ctx context.Context, cityID int64, posts []source.Post) (Stats, error) {
	var stats Stats
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Posts++

		text := postText(post)
		if text == "" {
			continue
		}
		cls := in.classifier.Classify(text, post.Source)

		seen := make(map[string]bool)
		for name := range cls.Names {
			stats.Candidates++

			place, err := in.store.FindPlaceByName(ctx, cityID, name)
			if errors.Is(err, store.ErrNotFound) {
				stats.Unresolved++
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("resolve %q: %w", name, err)
			}
			if seen[place.ID] {
				continue
			}
			seen[place.ID] = true

			m := in.mention(post, place.ID, text, cls)
			inserted, err := in.store.InsertMention(ctx, m)
			if err != nil {
				return stats, fmt.Errorf("store mention for %s: %w", place.ID, err)
			}
			if !inserted {
				stats.Duplicates++
				continue
			}
			stats.Mentions++
		}
	}

	in.log.Debug().
		Int64("city_id", cityID).
		Int("posts", stats.Posts).
		Int("mentions", stats.Mentions).
		Int("unresolved", stats.Unresolved).
		Msg("ingested posts")
	return stats, nil
}

// postText joins the non-empty title and body of a post.
func postText(post source.Post) string {
	title := strings.TrimSpace(post.Title)
	body := strings.TrimSpace(post.Text)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	}
	return title + ". " + body
}

func (in *Ingester) mention(post source.Post, placeID, text string, cls source.Classification) *store.Mention {
	// Posts without a URL or id are keyed by their content.
	key := post.URL
	if key == "" {
		key = post.ID
	}
	if key == "" {
		key = "text:" + text
	}

	at := post.PublishedAt
	if at.IsZero() {
		at = in.now()
	}

	return &store.Mention{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(key+"#"+placeID)).String(),
		PlaceID:     placeID,
		SourceType:  string(cls.Source),
		SourceURL:   post.URL,
		Text:        source.Truncate(text, maxExcerpt),
		MentionDate: at.UTC(),
		IsLocal:     cls.IsLocal,
		Sentiment:   cls.Sentiment,
	}
}
