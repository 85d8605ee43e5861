package source

import (
	"context"
	"time"
)

// SourceType identifies what kind of text a post came from.
type SourceType string

const (
	SourceForum SourceType = "forum"
	SourceBlog  SourceType = "blog"
	SourceOther SourceType = "other"
)

// Post is a raw text blob collected from an external source. Posts are not
// stored; the ingester turns them into mentions.
type Post struct {
	ID          string     `json:"id"`
	Source      SourceType `json:"source"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Text        string     `json:"text"`
	Author      string     `json:"author"`
	Engagement  int        `json:"engagement"`
	PublishedAt time.Time  `json:"published_at"`
}

// Target tells collectors where to look for one city.
type Target struct {
	CityID     int64
	Subreddits []string
	Feeds      []string
	Pages      []string
}

// Source is the interface every collector must implement.
type Source interface {
	Name() string
	Collect(ctx context.Context, target Target) ([]Post, error)
}

// ParseSourceType maps free-form labels onto the known types.
func ParseSourceType(s string) SourceType {
	switch SourceType(s) {
	case SourceForum, SourceBlog:
		return SourceType(s)
	case "reddit":
		return SourceForum
	}
	return SourceOther
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Avoid splitting a multi-byte rune.
	for maxLen > 0 && (s[maxLen]&0xC0) == 0x80 {
		maxLen--
	}
	return s[:maxLen] + "..."
}

// Truncate shortens s to at most maxLen bytes plus an ellipsis.
func Truncate(s string, maxLen int) string {
	return truncate(s, maxLen)
}
