package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elonfeng/gemradar/internal/store"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// catalog is the seed file layout:
//
//	cities:
//	  - id: 1
//	    name: Paris
//	    subreddits: [paris, AskFrance]
//	    places:
//	      - name: Le Baratin
//	        category: restaurant
//	        address: 3 rue Jouye-Rouve
type catalog struct {
	Cities []catalogCity `yaml:"cities"`
}

type catalogCity struct {
	ID         int64          `yaml:"id"`
	Name       string         `yaml:"name"`
	Region     string         `yaml:"region"`
	Country    string         `yaml:"country"`
	Subreddits []string       `yaml:"subreddits"`
	Feeds      []string       `yaml:"feeds"`
	Pages      []string       `yaml:"pages"`
	Inactive   bool           `yaml:"inactive"`
	Places     []catalogPlace `yaml:"places"`
}

type catalogPlace struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Category       string `yaml:"category"`
	Subcategory    string `yaml:"subcategory"`
	Address        string `yaml:"address"`
	Arrondissement string `yaml:"arrondissement"`
	PriceLevel     int    `yaml:"price_level"`
	MichelinStars  int    `yaml:"michelin_stars"`
}

func parseCatalog(r io.Reader) (*catalog, error) {
	var cat catalog
	if err := yaml.NewDecoder(r).Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return &cat, nil
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for i, c := range cat.Cities {
		if c.ID <= 0 || strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("parse catalog: city #%d needs a positive id and a name", i+1)
		}
		for j, p := range c.Places {
			if strings.TrimSpace(p.Name) == "" {
				return nil, fmt.Errorf("parse catalog: place #%d of %s has no name", j+1, c.Name)
			}
		}
	}
	return &cat, nil
}

// placeID derives a stable id so reseeding updates instead of duplicating.
func placeID(cityID int64, name string) string {
	key := strconv.FormatInt(cityID, 10) + "/" + strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

type catalogStore interface {
	UpsertCity(ctx context.Context, c *store.City) error
	UpsertPlace(ctx context.Context, p *store.Place) error
}

func applyCatalog(ctx context.Context, s catalogStore, cat *catalog) (cities, places int, err error) {
	for _, c := range cat.Cities {
		city := &store.City{
			ID:         c.ID,
			Name:       c.Name,
			Region:     c.Region,
			Country:    c.Country,
			Subreddits: c.Subreddits,
			Feeds:      c.Feeds,
			Pages:      c.Pages,
			Active:     !c.Inactive,
		}
		if err := s.UpsertCity(ctx, city); err != nil {
			return cities, places, err
		}
		cities++

		for _, p := range c.Places {
			id := p.ID
			if id == "" {
				id = placeID(c.ID, p.Name)
			}
			place := &store.Place{
				ID:             id,
				CityID:         c.ID,
				Name:           strings.TrimSpace(p.Name),
				Category:       p.Category,
				Subcategory:    p.Subcategory,
				Arrondissement: p.Arrondissement,
				PriceLevel:     p.PriceLevel,
				MichelinStars:  p.MichelinStars,
			}
			if addr := strings.TrimSpace(p.Address); addr != "" {
				place.Address = &addr
			}
			if err := s.UpsertPlace(ctx, place); err != nil {
				return cities, places, err
			}
			places++
		}
	}
	return cities, places, nil
}
