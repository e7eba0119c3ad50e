package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestFromUnix(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected time.Time
	}{
		{"zero is zero time", 0, time.Time{}},
		{"epoch seconds", 1767225600, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromUnix(tt.input)
			if !got.Equal(tt.expected) {
				t.Errorf("FromUnix(%d) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	if FromUnixPtr(0) != nil {
		t.Error("FromUnixPtr(0) should be nil")
	}
	if p := FromUnixPtr(1767225600); p == nil || p.Location() != time.UTC {
		t.Errorf("FromUnixPtr returned %v", p)
	}
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(36 * time.Hour)
	if want := start.Add(36 * time.Hour); !c.Now().Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", c.Now(), want)
	}
}
