package plex

import (
	"testing"

	"github.com/saltyorg/plexrefresh/internal/pathmap"
)

func TestInferSeasonIndex(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected int
	}{
		{
			name:     "Season folder",
			path:     "/data/TV/Bar/Season 2/Bar - S02E05.mkv",
			expected: 2,
		},
		{
			name:     "Season folder wins over episode code",
			path:     "/data/TV/Bar/Season 3/Bar - S02E05.mkv",
			expected: 3,
		},
		{
			name:     "Season folder is case-insensitive",
			path:     "/data/TV/Bar/SEASON 10/episode.mkv",
			expected: 10,
		},
		{
			name:     "Season folder higher up",
			path:     "/data/TV/Bar/Season 2/Extras/clip.mkv",
			expected: 2,
		},
		{
			name:     "Season folder needs a space",
			path:     "/tv/Show/Season2/ep.mkv",
			expected: SeasonUnknown,
		},
		{
			name:     "Season folder without space falls back to episode code",
			path:     "/tv/Show/Season2/Show - S03E01.mkv",
			expected: 3,
		},
		{
			name:     "Specials folder",
			path:     "/data/TV/The Office/Specials/Special1.mkv",
			expected: 0,
		},
		{
			name:     "Flat layout with episode code",
			path:     "/data/TV/Bar/Bar.S01E07.1080p.mkv",
			expected: 1,
		},
		{
			name:     "Lower case episode code",
			path:     "/data/TV/Bar/bar s04e123.mkv",
			expected: 4,
		},
		{
			name:     "Movie path",
			path:     "/data/Movies/Foo (2020)/Foo.mkv",
			expected: SeasonUnknown,
		},
		{
			name:     "Empty path",
			path:     "",
			expected: SeasonUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := pathmap.Segments(tt.path)
			got := InferSeasonIndex(segments)
			if got != tt.expected {
				t.Errorf("InferSeasonIndex(%q) = %d, want %d", tt.path, got, tt.expected)
			}
			if again := InferSeasonIndex(segments); again != got {
				t.Errorf("InferSeasonIndex(%q) not stable: %d then %d", tt.path, got, again)
			}
		})
	}
}

func TestDeriveShowTitle(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "Season layout", path: "/data/TV/Bar/Season 2/Bar - S02E05.mkv", expected: "Bar"},
		{name: "Show with year", path: "/tv/Absentia (2017)/Season 02/e.mkv", expected: "Absentia (2017)"},
		{name: "Too short", path: "/Season 1/e.mkv", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveShowTitle(pathmap.Segments(tt.path)); got != tt.expected {
				t.Errorf("DeriveShowTitle(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "  Bar  ", expected: "bar"},
		{input: "Absentia (2017)", expected: "absentia"},
		{input: "Absentia (2017) {tvdb-330500}", expected: "absentia"},
		{input: "The Matrix [1080p]", expected: "the matrix"},
		{input: "Marvel's Agents of S.H.I.E.L.D.", expected: "marvels agents of s h i e l d"},
		{input: "Law & Order", expected: "law and order"},
		{input: "Pokémon", expected: "pokemon"},
		{input: "Doctor Who - Classic", expected: "doctor who classic"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeTitle(tt.input); got != tt.expected {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("The Office (US)"); got != "the-office-us" {
		t.Errorf("Slugify() = %q", got)
	}
}

func TestEditDistance(t *testing.T) {
	words := []string{"", "a", "bar", "Bar", "baz", "barn", "kitten", "sitting", "the office", "office"}

	for _, a := range words {
		if d := EditDistance(a, a); d != 0 {
			t.Errorf("EditDistance(%q, %q) = %d, want 0", a, a, d)
		}
		for _, b := range words {
			ab, ba := EditDistance(a, b), EditDistance(b, a)
			if ab != ba {
				t.Errorf("EditDistance not symmetric for %q/%q: %d vs %d", a, b, ab, ba)
			}
			for _, c := range words {
				if ac, bc := EditDistance(a, c), EditDistance(b, c); ac > ab+bc {
					t.Errorf("triangle inequality violated for %q, %q, %q: %d > %d + %d", a, b, c, ac, ab, bc)
				}
			}
		}
	}

	known := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"bar", "BAR", 0},
		{"", "abc", 3},
		{"bar", "barn", 1},
	}
	for _, k := range known {
		if got := EditDistance(k.a, k.b); got != k.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", k.a, k.b, got, k.want)
		}
	}
}
