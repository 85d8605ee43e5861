package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// DayLayout is the calendar-day key used for score snapshots.
const DayLayout = "2006-01-02"

// Day returns the UTC calendar-day key for t.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// City is a destination whose places get scored together.
type City struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Region         string    `db:"region" json:"region"`
	Country        string    `db:"country" json:"country"`
	Subreddits     []string  `db:"-" json:"subreddits"`
	Feeds          []string  `db:"-" json:"feeds"`
	Pages          []string  `db:"-" json:"pages"`
	Active         bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	SubredditsJSON string    `db:"subreddits" json:"-"`
	FeedsJSON      string    `db:"feeds" json:"-"`
	PagesJSON      string    `db:"pages" json:"-"`
}

// Place is a point of interest. Address may be unknown.
type Place struct {
	ID             string     `db:"id" json:"id"`
	CityID         int64      `db:"city_id" json:"city_id"`
	Name           string     `db:"name" json:"name"`
	Category       string     `db:"category" json:"category"`
	Subcategory    string     `db:"subcategory" json:"subcategory"`
	Address        *string    `db:"address" json:"address"`
	Arrondissement string     `db:"arrondissement" json:"arrondissement"`
	PriceLevel     int        `db:"price_level" json:"price_level"`
	MichelinStars  int        `db:"michelin_stars" json:"michelin_stars"`
	GemAlertedAt   *time.Time `db:"gem_alerted_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Mention is a single observation of a place in external text.
// Mentions are append-only.
type Mention struct {
	ID          string    `db:"id" json:"id"`
	PlaceID     string    `db:"place_id" json:"place_id"`
	SourceType  string    `db:"source_type" json:"source_type"`
	SourceURL   string    `db:"source_url" json:"source_url"`
	Text        string    `db:"mention_text" json:"mention_text"`
	MentionDate time.Time `db:"mention_date" json:"date"`
	IsLocal     bool      `db:"is_local_author" json:"is_local"`
	Sentiment   float64   `db:"sentiment_score" json:"sentiment_score"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
}

// GemScore is one day's score snapshot for a place.
type GemScore struct {
	ID                int64    `db:"id" json:"-"`
	PlaceID           string   `db:"place_id" json:"place_id"`
	ScoreDate         string   `db:"score_date" json:"score_date"`
	HiddenGemScore    float64  `db:"hidden_gem_score" json:"hidden_gem_score"`
	AuthenticityScore float64  `db:"authenticity_score" json:"authenticity_score"`
	TrendingScore     *float64 `db:"trending_score" json:"trending_score"`
	TourismSaturation float64  `db:"tourism_saturation" json:"tourism_saturation"`
	LocalMentions7d   int      `db:"local_mentions_7d" json:"local_mentions_7d"`
}

// Gem joins a place with its latest snapshot.
type Gem struct {
	Place
	ScoreDate         string   `db:"score_date" json:"score_date"`
	HiddenGemScore    float64  `db:"hidden_gem_score" json:"hidden_gem_score"`
	AuthenticityScore float64  `db:"authenticity_score" json:"authenticity_score"`
	TrendingScore     *float64 `db:"trending_score" json:"trending_score"`
	TourismSaturation float64  `db:"tourism_saturation" json:"tourism_saturation"`
	LocalMentions7d   int      `db:"local_mentions_7d" json:"local_mentions_7d"`
}

// PlaceSearchOpts controls place search.
type PlaceSearchOpts struct {
	Query    string
	CityID   int64
	Category string
	Limit    int
}

// GemListOpts controls gem listing.
type GemListOpts struct {
	CityID    int64
	Category  string
	MinScore  float64
	Limit     int
	Unalerted bool

	// MinLocalMentions drops gems with fewer local mentions in their
	// latest snapshot window.
	MinLocalMentions int
}

// Store is the persistence interface.
type Store interface {
	UpsertCity(ctx context.Context, c *City) error
	GetCity(ctx context.Context, id int64) (*City, error)
	ListCities(ctx context.Context, activeOnly bool) ([]City, error)

	UpsertPlace(ctx context.Context, p *Place) error
	GetPlace(ctx context.Context, id string) (*Place, error)
	ListPlaces(ctx context.Context, cityID int64) ([]Place, error)
	FindPlaceByName(ctx context.Context, cityID int64, name string) (*Place, error)
	SearchPlaces(ctx context.Context, opts PlaceSearchOpts) ([]Place, error)
	MarkGemAlerted(ctx context.Context, placeID string, at time.Time) error

	InsertMention(ctx context.Context, m *Mention) (bool, error)
	RecentMentions(ctx context.Context, placeID string, limit int) ([]Mention, error)

	LatestScore(ctx context.Context, placeID string) (*GemScore, error)
	ScoreHistory(ctx context.Context, placeID string, limit int) ([]GemScore, error)
	ListGems(ctx context.Context, opts GemListOpts) ([]Gem, error)

	BeginBatch(ctx context.Context) (Batch, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
