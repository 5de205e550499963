package logging

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "anthropic key",
			in:   "auth failed: sk-ant-REDACTED",
			want: "auth failed: [REDACTED]",
		},
		{
			name: "openai key",
			in:   "key sk-0123456789abcdef rejected",
			want: "key [REDACTED] rejected",
		},
		{
			name: "bearer header",
			in:   "Authorization: Bearer abc.def.ghi",
			want: "Authorization: [REDACTED]",
		},
		{
			name: "dsn password",
			in:   "postgres://user:hunter2@db:5432/app",
			want: "postgres://user:[REDACTED]@db:5432/app",
		},
		{
			name: "long alphanumeric token",
			in:   "token=A1B2C3D4E5F6G7H8I9J0K1 trailing",
			want: "token=[REDACTED] trailing",
		},
		{
			name: "short tokens untouched",
			in:   "feed example.com returned 7 items",
			want: "feed example.com returned 7 items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.in); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactLeavesNoKeyMaterial(t *testing.T) {
	secret := "sk-ant-REDACTED"
	out := Redact("provider call failed: " + secret)
	if strings.Contains(out, "verylongsecret") {
		t.Fatalf("secret survived redaction: %q", out)
	}
}

func TestRingBuffer(t *testing.T) {
	ring := NewRing(3)
	for i := 0; i < 5; i++ {
		ring.Push(Entry{Message: string(rune('a' + i))})
	}

	snap := ring.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() length = %d, want 3", len(snap))
	}
	// Oldest two entries were overwritten.
	if snap[0].Message != "c" || snap[2].Message != "e" {
		t.Errorf("Snapshot() = %v, want c..e oldest-first", snap)
	}
}

func TestRingBufferPartial(t *testing.T) {
	ring := NewRing(8)
	ring.Push(Entry{Message: "only"})
	snap := ring.Snapshot()
	if len(snap) != 1 || snap[0].Message != "only" {
		t.Errorf("Snapshot() = %v, want single entry", snap)
	}
}
