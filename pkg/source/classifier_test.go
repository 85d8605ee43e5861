package source

import (
	"slices"
	"testing"
)

func TestExtractNames(t *testing.T) {
	c := NewClassifier(nil, nil)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "patterns in order",
			text: "Il faut essayer Le Baratin, puis visiter le Louvre. Allez au bistrot appelé Septime!",
			want: []string{"Le Baratin", "le Louvre", "Septime"},
		},
		{
			name: "praise suffix",
			text: "Super soirée. Chez Marcel est top!",
			want: []string{"Chez Marcel"},
		},
		{
			name: "case-insensitive dedup keeps first spelling",
			text: "Je recommande LE BARATIN. Essayer le baratin.",
			want: []string{"LE BARATIN"},
		},
		{
			name: "stopwords and short names dropped",
			text: "Je recommande Des. Essayer Xy .",
			want: nil,
		},
		{
			name: "nothing to extract",
			text: "Quel temps pourri aujourd'hui",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(c.ExtractNames(tt.text))
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractNamesStopsEarly(t *testing.T) {
	c := NewClassifier(nil, nil)
	text := "Essayer Le Baratin. Visiter Septime. Recommande Chez Marcel."

	var got []string
	for name := range c.ExtractNames(text) {
		got = append(got, name)
		break
	}
	if len(got) != 1 || got[0] != "Le Baratin" {
		t.Errorf("expected only first name, got %q", got)
	}
}

func TestExtraStopwords(t *testing.T) {
	c := NewClassifier(nil, []string{"Paris"})
	got := slices.Collect(c.ExtractNames("Il faut visiter Paris. Essayer Septime."))
	if !slices.Equal(got, []string{"Septime"}) {
		t.Errorf("expected Paris filtered, got %q", got)
	}
}

func TestIsLocal(t *testing.T) {
	c := NewClassifier([]string{"born and raised"}, nil)

	tests := []struct {
		text string
		want bool
	}{
		{"J'habite à deux rues, c'est mon QUARTIER", true},
		{"Born and raised in the 11th", true},
		{"Premier voyage à Paris, trop bien", false},
	}
	for _, tt := range tests {
		if got := c.IsLocal(tt.text); got != tt.want {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSentiment(t *testing.T) {
	c := NewClassifier(nil, nil)

	tests := []struct {
		text string
		want float64
	}{
		{"Chez Marcel est top, vraiment excellent", 1},
		{"Trop cher et décevant", -1},
		{"Super mais cher", 0},
		{"Rien à signaler", 0},
		{"génial génial génial mais nul", 0.5},
	}
	for _, tt := range tests {
		if got := c.Sentiment(tt.text); got != tt.want {
			t.Errorf("Sentiment(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestClassifyWholeBlob(t *testing.T) {
	c := NewClassifier(nil, nil)
	got := c.Classify("Habitant du quartier, je recommande Chez Marcel. Le Baratin est super.", "reddit")

	if !got.IsLocal {
		t.Error("expected local classification")
	}
	names := slices.Collect(got.Names)
	if !slices.Equal(names, []string{"Chez Marcel", "Le Baratin"}) {
		t.Errorf("unexpected names %q", names)
	}
	if got.Sentiment != 1 {
		t.Errorf("expected positive sentiment, got %v", got.Sentiment)
	}
	if got.Source != SourceForum {
		t.Errorf("expected forum source, got %q", got.Source)
	}
	if got := c.Classify("Septime est top.", ""); got.Source != SourceOther {
		t.Errorf("expected unlabeled text to be other, got %q", got.Source)
	}
}

func TestParseSourceType(t *testing.T) {
	if ParseSourceType("reddit") != SourceForum {
		t.Error("reddit should map to forum")
	}
	if ParseSourceType("blog") != SourceBlog {
		t.Error("blog should stay blog")
	}
	if ParseSourceType("instagram") != SourceOther {
		t.Error("unknown types map to other")
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	got := Truncate("café crème", 4)
	if got != "caf..." {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
	if Truncate("abc", 10) != "abc" {
		t.Error("short strings are unchanged")
	}
}
