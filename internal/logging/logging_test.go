package logging

import (
	"path/filepath"
	"testing"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		verbosity int
		expected  string
	}{
		{name: "Default", level: "", verbosity: 0, expected: "info"},
		{name: "Configured level", level: "warn", verbosity: 0, expected: "warn"},
		{name: "Single -v", level: "warn", verbosity: 1, expected: "debug"},
		{name: "Double -v", level: "info", verbosity: 2, expected: "trace"},
		{name: "More than two", level: "", verbosity: 5, expected: "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevelFor(tt.level, tt.verbosity); got != tt.expected {
				t.Errorf("LevelFor(%q, %d) = %q, want %q", tt.level, tt.verbosity, got, tt.expected)
			}
		})
	}
}

func TestFilePathForDB(t *testing.T) {
	if got := FilePathForDB(""); got != "plexrefresh.log" {
		t.Errorf("FilePathForDB(\"\") = %q", got)
	}

	got := FilePathForDB("/var/lib/plexrefresh/history.db")
	want := filepath.Join("/var/lib/plexrefresh", "plexrefresh.log")
	if got != want {
		t.Errorf("FilePathForDB() = %q, want %q", got, want)
	}
}
