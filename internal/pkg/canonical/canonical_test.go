package canonical

import (
	"testing"
	"time"
)

func TestURLStripsTrackingParams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "utm params removed",
			in:   "https://Example.com/story?utm_source=x&utm_medium=email&id=7",
			want: "https://example.com/story?id=7",
		},
		{
			name: "all tracked params removed leaves bare path",
			in:   "https://news.example.com/a?gclid=abc&mc_cid=1&igshid=2",
			want: "https://news.example.com/a",
		},
		{
			name: "host casing normalized",
			in:   "HTTPS://NEWS.Example.COM/a",
			want: "https://news.example.com/a",
		},
		{
			name: "fragment dropped",
			in:   "https://example.com/a#section",
			want: "https://example.com/a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, ok := URL(tt.in)
			if !ok {
				t.Fatalf("URL(%q) not ok", tt.in)
			}
			if got != tt.want {
				t.Errorf("URL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Canonicalization stability: URLs differing only in tracked params or host
// casing canonicalize identically.
func TestURLStability(t *testing.T) {
	variants := []string{
		"https://example.com/story?id=7",
		"https://EXAMPLE.com/story?id=7",
		"https://example.com/story?id=7&utm_campaign=daily",
		"https://example.com/story?utm_source=rss&id=7",
	}

	first, _, ok := URL(variants[0])
	if !ok {
		t.Fatal("canonicalization failed")
	}
	for _, v := range variants[1:] {
		got, _, ok := URL(v)
		if !ok {
			t.Fatalf("URL(%q) not ok", v)
		}
		if got != first {
			t.Errorf("URL(%q) = %q, want %q", v, got, first)
		}
	}
}

func TestURLInvalid(t *testing.T) {
	for _, in := range []string{"", "not a url", "mailto:a@b.c", "/relative/only"} {
		if _, _, ok := URL(in); ok {
			t.Errorf("URL(%q) = ok, want dropped", in)
		}
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Fed Holds  Rates\tSteady  ", "fed holds rates steady"},
		{"Breaking: Apple — record quarter!", "breaking apple record quarter"},
		{"ALL CAPS", "all caps"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := Title(tt.in); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Hash determinism: pure function of its inputs, date folded to UTC calendar
// day, nil timestamp folded to the empty string.
func TestHash(t *testing.T) {
	ts := time.Date(2025, 3, 10, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	a := Hash("fed holds rates", "https://example.com/a", &ts, "example.com")
	b := Hash("fed holds rates", "https://example.com/a", &ts, "example.com")
	if a != b {
		t.Error("identical inputs must hash identically")
	}

	// 23:30 EST is the next day in UTC; same UTC date must collide, different
	// UTC date must not.
	sameDay := time.Date(2025, 3, 11, 4, 0, 0, 0, time.UTC)
	if Hash("fed holds rates", "https://example.com/a", &sameDay, "example.com") != a {
		t.Error("timestamps on the same UTC date must hash identically")
	}
	nextDay := sameDay.Add(24 * time.Hour)
	if Hash("fed holds rates", "https://example.com/a", &nextDay, "example.com") == a {
		t.Error("different UTC dates must change the hash")
	}

	if Hash("fed holds rates", "https://example.com/a", nil, "example.com") == a {
		t.Error("missing timestamp must hash differently from a dated item")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
