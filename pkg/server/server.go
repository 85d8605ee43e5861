package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/gemradar/internal/scheduler"
	"github.com/elonfeng/gemradar/internal/store"
	"github.com/elonfeng/gemradar/pkg/gem"
	"github.com/elonfeng/gemradar/pkg/source"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	defaultGemLimit    = 30
	defaultMinScore    = 20
	defaultSearchLimit = 20
	maxLimit           = 100
	mentionPreview     = 200
)

// Scorer runs one city batch.
type Scorer interface {
	ScoreCity(ctx context.Context, cityID int64, day time.Time) (*gem.Result, error)
}

// Server provides the HTTP API.
type Server struct {
	store  store.Store
	scorer Scorer
	port   int
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a new HTTP server.
func New(s store.Store, scorer Scorer, port int, log zerolog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:  s,
		scorer: scorer,
		port:   port,
		log:    log.With().Str("component", "server").Logger(),
		now:    time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.accessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/cities", s.handleCities)
		r.Route("/cities/{cityID}", func(r chi.Router) {
			r.Get("/", s.handleCity)
			r.Get("/gems", s.handleGems)
			r.Post("/scores", s.handleScore)
		})
		r.Get("/places", s.handleSearchPlaces)
		r.Get("/places/{placeID}", s.handlePlace)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.store.ListCities(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  nonNil(cities),
		"count": len(cities),
	})
}

func (s *Server) handleCity(w http.ResponseWriter, r *http.Request) {
	city, ok := s.city(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, city)
}

func (s *Server) handleGems(w http.ResponseWriter, r *http.Request) {
	city, ok := s.city(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultGemLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	minScore, err := floatParam(q.Get("min_score"), defaultMinScore, 0, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "min_score: "+err.Error())
		return
	}

	gems, err := s.store.ListGems(r.Context(), store.GemListOpts{
		CityID:   city.ID,
		Category: q.Get("category"),
		MinScore: minScore,
		Limit:    limit,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"city":  city.Name,
		"data":  nonNil(gems),
		"count": len(gems),
	})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	city, ok := s.city(w, r)
	if !ok {
		return
	}

	day := s.now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse(store.DayLayout, d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	res, err := s.scorer.ScoreCity(r.Context(), city.ID, day)
	if errors.Is(err, scheduler.ErrCityBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type mentionPreviewJSON struct {
	SourceType string    `json:"source_type"`
	SourceURL  string    `json:"source_url"`
	Text       string    `json:"text"`
	Date       time.Time `json:"date"`
	IsLocal    bool      `json:"is_local"`
	Sentiment  float64   `json:"sentiment"`
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "placeID")

	place, err := s.store.GetPlace(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "place not found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	latest, err := s.store.LatestScore(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, err)
		return
	}

	mentions, err := s.store.RecentMentions(ctx, id, 5)
	if err != nil {
		s.internalError(w, err)
		return
	}
	previews := make([]mentionPreviewJSON, 0, len(mentions))
	for _, m := range mentions {
		previews = append(previews, mentionPreviewJSON{
			SourceType: m.SourceType,
			SourceURL:  m.SourceURL,
			Text:       source.Truncate(m.Text, mentionPreview),
			Date:       m.MentionDate,
			IsLocal:    m.IsLocal,
			Sentiment:  m.Sentiment,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"place":           place,
		"latest_score":    latest,
		"recent_mentions": previews,
	})
}

func (s *Server) handleSearchPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultSearchLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	cityID, err := intParam(q.Get("city_id"), 0, 0, math.MaxInt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "city_id: "+err.Error())
		return
	}

	places, err := s.store.SearchPlaces(r.Context(), store.PlaceSearchOpts{
		Query:    q.Get("q"),
		CityID:   int64(cityID),
		Category: q.Get("category"),
		Limit:    limit,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  nonNil(places),
		"count": len(places),
	})
}

// city loads the {cityID} route parameter, writing 400/404 itself.
func (s *Server) city(w http.ResponseWriter, r *http.Request) (*store.City, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "cityID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid city id")
		return nil, false
	}
	city, err := s.store.GetCity(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "city not found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, err)
		return nil, false
	}
	return city, true
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return v, nil
}

func floatParam(raw string, def, lo, hi float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("must be between %g and %g", lo, hi)
	}
	return v, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
