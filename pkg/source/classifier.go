package source

import (
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultPlacePatterns capture a candidate place name in group 1. They target
// French forum prose ("je recommande Chez Marcel", "Le Baratin est top").
var DefaultPlacePatterns = []string{
	`(?i)(?:aller à|essayer|visiter|recommande)\s+([A-Z][^.!?,;\n]{2,30})`,
	`(?i)([A-Z][^.!?,;\n]{2,30})\s+(?:est super|est génial|est top)`,
	`(?i)(?:restaurant|café|bar|bistrot)\s+(?:appelé)?\s*([A-Z][^.!?,;\n]{2,30})`,
}

// DefaultLocalIndicators suggest the author lives in the city.
var DefaultLocalIndicators = []string{
	"habitant", "j'habite", "local", "quartier", "voisin",
}

// DefaultStopwords are rejected as place candidates.
var DefaultStopwords = []string{
	"les", "des", "une", "dans", "avec", "pour",
}

var (
	positiveWords = []string{
		"super", "génial", "top", "excellent", "délicieux", "parfait", "adore",
		"incroyable", "great", "amazing", "love", "best", "delicious",
	}
	negativeWords = []string{
		"nul", "mauvais", "décevant", "horrible", "arnaque", "cher",
		"bad", "awful", "terrible", "avoid", "worst", "overpriced",
	}
)

// minNameLen is the shortest accepted candidate, in runes.
const minNameLen = 3

// Classification is the result of classifying one text blob.
type Classification struct {
	// Names yields deduplicated candidate place names lazily.
	Names iter.Seq[string]
	// IsLocal applies to the whole blob.
	IsLocal bool
	// Sentiment is a lexicon estimate in [-1, 1].
	Sentiment float64
	// Source is the normalized provenance of the blob.
	Source SourceType
}

// Classifier extracts place-name candidates and authorship hints from text.
// It is best-effort: false positives are filtered later by place resolution.
type Classifier struct {
	patterns   []*regexp.Regexp
	indicators []string
	stopwords  map[string]bool
	positive   map[string]bool
	negative   map[string]bool
}

// NewClassifier creates a classifier with the default heuristics plus extras.
func NewClassifier(extraIndicators, extraStopwords []string) *Classifier {
	c := &Classifier{
		stopwords: make(map[string]bool),
		positive:  toSet(positiveWords),
		negative:  toSet(negativeWords),
	}
	for _, p := range DefaultPlacePatterns {
		c.patterns = append(c.patterns, regexp.MustCompile(p))
	}

	indicators := append(append([]string{}, DefaultLocalIndicators...), extraIndicators...)
	for _, ind := range indicators {
		c.indicators = append(c.indicators, strings.ToLower(ind))
	}
	for _, w := range append(append([]string{}, DefaultStopwords...), extraStopwords...) {
		c.stopwords[strings.ToLower(w)] = true
	}
	return c
}

// Classify runs every heuristic over a text blob from the given source.
func (c *Classifier) Classify(text string, src SourceType) Classification {
	return Classification{
		Names:     c.ExtractNames(text),
		IsLocal:   c.IsLocal(text),
		Sentiment: c.Sentiment(text),
		Source:    ParseSourceType(string(src)),
	}
}

// ExtractNames returns candidate place names in order of discovery.
// Matching runs as the sequence is consumed.
func (c *Classifier) ExtractNames(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]bool)
		for _, re := range c.patterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				name := strings.TrimSpace(m[1])
				key := strings.ToLower(name)
				if utf8.RuneCountInString(name) < minNameLen || c.stopwords[key] || seen[key] {
					continue
				}
				seen[key] = true
				if !yield(name) {
					return
				}
			}
		}
	}
}

// IsLocal reports whether text contains a local-residency indicator.
func (c *Classifier) IsLocal(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range c.indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// Sentiment scores text as (positive - negative) / (positive + negative).
func (c *Classifier) Sentiment(text string) float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	pos, neg := 0, 0
	for _, w := range words {
		switch {
		case c.positive[w]:
			pos++
		case c.negative[w]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
