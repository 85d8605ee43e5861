package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elonfeng/gemradar/internal/store"
)

const catalogYAML = `
cities:
  - id: 1
    name: Paris
    region: Île-de-France
    subreddits: [paris, AskFrance]
    feeds: [https://blog.example/feed]
    places:
      - name: Le Baratin
        category: restaurant
        address: 3 rue Jouye-Rouve
      - name: Café Marly
        category: cafe
        michelin_stars: 1
      - id: fixed-id
        name: Septime
        category: restaurant
  - id: 2
    name: Lyon
    inactive: true
`

func TestParseCatalog(t *testing.T) {
	cat, err := parseCatalog(strings.NewReader(catalogYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cat.Cities) != 2 || len(cat.Cities[0].Places) != 3 {
		t.Fatalf("unexpected catalog %+v", cat)
	}
	if !cat.Cities[1].Inactive {
		t.Error("expected Lyon to be inactive")
	}

	empty, err := parseCatalog(strings.NewReader(""))
	if err != nil || len(empty.Cities) != 0 {
		t.Errorf("expected empty catalog, got %+v %v", empty, err)
	}
}

func TestParseCatalogInvalid(t *testing.T) {
	tests := map[string]string{
		"missing id":    "cities:\n  - name: Paris\n",
		"missing name":  "cities:\n  - id: 1\n",
		"nameless spot": "cities:\n  - id: 1\n    name: Paris\n    places:\n      - category: bar\n",
		"bad yaml":      "cities: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseCatalog(strings.NewReader(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyCatalog(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	cat, err := parseCatalog(strings.NewReader(catalogYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	for run := 0; run < 2; run++ {
		cities, places, err := applyCatalog(ctx, s, cat)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if cities != 2 || places != 3 {
			t.Errorf("expected 2 cities and 3 places, got %d and %d", cities, places)
		}
	}

	got, err := s.ListPlaces(ctx, 1)
	if err != nil {
		t.Fatalf("list places: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("reseeding must not duplicate places, got %d", len(got))
	}

	baratin, err := s.GetPlace(ctx, placeID(1, "Le Baratin"))
	if err != nil {
		t.Fatalf("get place: %v", err)
	}
	if baratin.Address == nil || *baratin.Address != "3 rue Jouye-Rouve" {
		t.Errorf("unexpected address %v", baratin.Address)
	}

	marly, err := s.GetPlace(ctx, placeID(1, "café marly"))
	if err != nil {
		t.Fatalf("get place: %v", err)
	}
	if marly.Address != nil || marly.MichelinStars != 1 {
		t.Errorf("unexpected place %+v", marly)
	}

	if _, err := s.GetPlace(ctx, "fixed-id"); err != nil {
		t.Errorf("expected explicit id to be kept: %v", err)
	}

	active, err := s.ListCities(ctx, true)
	if err != nil || len(active) != 1 {
		t.Errorf("expected 1 active city, got %v %v", active, err)
	}
}

func TestPlaceIDStable(t *testing.T) {
	if placeID(1, "Le Baratin") != placeID(1, "  le baratin ") {
		t.Error("expected case and space insensitive ids")
	}
	if placeID(1, "Le Baratin") == placeID(2, "Le Baratin") {
		t.Error("expected ids to differ across cities")
	}
}
