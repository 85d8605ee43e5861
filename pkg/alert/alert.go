package alert

import (
	"context"
	"errors"
	"fmt"
)

// Notification describes a newly detected hidden gem.
type Notification struct {
	Title        string  `json:"title"`
	Body         string  `json:"body"`
	URL          string  `json:"url,omitempty"`
	PlaceID      string  `json:"place_id"`
	City         string  `json:"city"`
	Category     string  `json:"category"`
	Score        float64 `json:"score"`
	Authenticity float64 `json:"authenticity"`
	Mentions     []Link  `json:"mentions,omitempty"`
}

// Link is a source that mentioned the place.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Kind  string `json:"kind"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. Every notifier
// is tried; failures are joined.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func topLinks(n *Notification, limit int) []Link {
	if len(n.Mentions) < limit {
		limit = len(n.Mentions)
	}
	return n.Mentions[:limit]
}
