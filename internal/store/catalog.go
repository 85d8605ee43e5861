package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

func (s *SQLiteStore) UpsertCity(ctx context.Context, c *City) error {
	subsJSON, err := json.Marshal(nonNil(c.Subreddits))
	if err != nil {
		return fmt.Errorf("upsert city %d: encode subreddits: %w", c.ID, err)
	}
	feedsJSON, err := json.Marshal(nonNil(c.Feeds))
	if err != nil {
		return fmt.Errorf("upsert city %d: encode feeds: %w", c.ID, err)
	}
	pagesJSON, err := json.Marshal(nonNil(c.Pages))
	if err != nil {
		return fmt.Errorf("upsert city %d: encode pages: %w", c.ID, err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Country == "" {
		c.Country = "France"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cities (id, name, region, country, subreddits, feeds, pages, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			region = excluded.region,
			country = excluded.country,
			subreddits = excluded.subreddits,
			feeds = excluded.feeds,
			pages = excluded.pages,
			is_active = excluded.is_active
	`, c.ID, c.Name, c.Region, c.Country, string(subsJSON), string(feedsJSON), string(pagesJSON),
		c.Active, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert city %d: %w", c.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetCity(ctx context.Context, id int64) (*City, error) {
	var c City
	err := s.db.GetContext(ctx, &c, "SELECT * FROM cities WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get city %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get city %d: %w", id, err)
	}
	if err := c.decode(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) ListCities(ctx context.Context, activeOnly bool) ([]City, error) {
	query := "SELECT * FROM cities"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id"

	var cities []City
	if err := s.db.SelectContext(ctx, &cities, query); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	for i := range cities {
		if err := cities[i].decode(); err != nil {
			return nil, err
		}
	}
	return cities, nil
}

func (c *City) decode() error {
	fields := []struct {
		name string
		raw  string
		dst  *[]string
	}{
		{"subreddits", c.SubredditsJSON, &c.Subreddits},
		{"feeds", c.FeedsJSON, &c.Feeds},
		{"pages", c.PagesJSON, &c.Pages},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return fmt.Errorf("city %d: decode %s: %w", c.ID, f.name, err)
		}
	}
	return nil
}

// UpsertPlace inserts or updates catalog data for a place. The alert marker
// is left untouched on update.
func (s *SQLiteStore) UpsertPlace(ctx context.Context, p *Place) error {
	if p.ID == "" {
		return fmt.Errorf("upsert place %q: missing id", p.Name)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO places (id, city_id, name, category, subcategory, address, arrondissement, price_level, michelin_stars, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			city_id = excluded.city_id,
			name = excluded.name,
			category = excluded.category,
			subcategory = excluded.subcategory,
			address = excluded.address,
			arrondissement = excluded.arrondissement,
			price_level = excluded.price_level,
			michelin_stars = excluded.michelin_stars
	`, p.ID, p.CityID, p.Name, p.Category, p.Subcategory, p.Address, p.Arrondissement,
		p.PriceLevel, p.MichelinStars, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert place %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPlace(ctx context.Context, id string) (*Place, error) {
	var p Place
	err := s.db.GetContext(ctx, &p, "SELECT * FROM places WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get place %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get place %s: %w", id, err)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPlaces(ctx context.Context, cityID int64) ([]Place, error) {
	var places []Place
	err := s.db.SelectContext(ctx, &places,
		"SELECT * FROM places WHERE city_id = ? ORDER BY name, id", cityID)
	if err != nil {
		return nil, fmt.Errorf("list places for city %d: %w", cityID, err)
	}
	return places, nil
}

// FindPlaceByName resolves an extracted candidate to a place of the city.
// An exact case-insensitive match wins; otherwise the longest place name the
// candidate starts with ("Chez Marcel demain soir" -> "Chez Marcel").
// Case is folded in Go since SQLite's lower() only handles ASCII.
func (s *SQLiteStore) FindPlaceByName(ctx context.Context, cityID int64, name string) (*Place, error) {
	name = strings.TrimSpace(name)
	places, err := s.ListPlaces(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("find place %q: %w", name, err)
	}

	want := strings.ToLower(name)
	var best *Place
	bestLen := 0
	for i := range places {
		pn := strings.ToLower(strings.TrimSpace(places[i].Name))
		if pn == "" {
			continue
		}
		if pn == want {
			return &places[i], nil
		}
		if strings.HasPrefix(want, pn+" ") && len(pn) > bestLen {
			best, bestLen = &places[i], len(pn)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("find place %q: %w", name, ErrNotFound)
	}
	return best, nil
}

func (s *SQLiteStore) SearchPlaces(ctx context.Context, opts PlaceSearchOpts) ([]Place, error) {
	query := "SELECT * FROM places WHERE name LIKE ?"
	args := []any{"%" + opts.Query + "%"}

	if opts.CityID > 0 {
		query += " AND city_id = ?"
		args = append(args, opts.CityID)
	}
	if opts.Category != "" {
		query += " AND category = ?"
		args = append(args, opts.Category)
	}

	query += " ORDER BY name"

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var places []Place
	if err := s.db.SelectContext(ctx, &places, query, args...); err != nil {
		return nil, fmt.Errorf("search places: %w", err)
	}
	return places, nil
}

func (s *SQLiteStore) MarkGemAlerted(ctx context.Context, placeID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE places SET gem_alerted_at = ? WHERE id = ?", at.UTC(), placeID)
	if err != nil {
		return fmt.Errorf("mark alerted %s: %w", placeID, err)
	}
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
