package slack

import (
	"testing"
)

func TestDirectoryResolve(t *testing.T) {
	dir := NewDirectory(map[string]string{
		"U123ABC": "alice",
		"U456DEF": "bob",
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "mention",
			input: "hey <@U123ABC> can you look at this?",
			want:  "hey @alice can you look at this?",
		},
		{
			name:  "unknown mention falls back to raw ID",
			input: "ping <@U999ZZZ>",
			want:  "ping @U999ZZZ",
		},
		{
			name:  "channel reference",
			input: "posted in <#C04ABCDEF|general>",
			want:  "posted in #general",
		},
		{
			name:  "labeled link",
			input: "see <https://example.com/doc|the doc>",
			want:  "see the doc (https://example.com/doc)",
		},
		{
			name:  "bare link",
			input: "see <https://example.com/doc>",
			want:  "see https://example.com/doc",
		},
		{
			name:  "special mention",
			input: "<!here> deploy starting",
			want:  "@here deploy starting",
		},
		{
			name:  "mixed",
			input: "<@U456DEF> see <#C04ABCDEF|ops> and <https://x.io|x>",
			want:  "@bob see #ops and x (https://x.io)",
		},
		{
			name:  "plain text untouched",
			input: "nothing special here",
			want:  "nothing special here",
		},
		{
			name:  "whitespace trimmed",
			input: "  padded  ",
			want:  "padded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dir.Resolve(tt.input); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDirectoryName(t *testing.T) {
	dir := NewDirectory(map[string]string{"U1": "alice"})

	if got := dir.Name("U1"); got != "alice" {
		t.Errorf("Name(U1) = %q, want alice", got)
	}
	if got := dir.Name("U2"); got != "U2" {
		t.Errorf("Name(U2) = %q, want raw ID fallback", got)
	}
	if got := dir.Name(""); got != "unknown" {
		t.Errorf("Name(\"\") = %q, want unknown", got)
	}
}

func TestFilterChannels(t *testing.T) {
	channels := []Channel{
		{ID: "C1", Name: "general"},
		{ID: "C2", Name: "engineering"},
		{ID: "C3", Name: "random"},
	}

	tests := []struct {
		name      string
		allowList []string
		wantIDs   []string
	}{
		{
			name:      "empty allow-list keeps everything",
			allowList: nil,
			wantIDs:   []string{"C1", "C2", "C3"},
		},
		{
			name:      "by name",
			allowList: []string{"engineering"},
			wantIDs:   []string{"C2"},
		},
		{
			name:      "by ID",
			allowList: []string{"C3"},
			wantIDs:   []string{"C3"},
		},
		{
			name:      "hash prefix stripped",
			allowList: []string{"#general"},
			wantIDs:   []string{"C1"},
		},
		{
			name:      "missing channel yields nothing",
			allowList: []string{"nonexistent"},
			wantIDs:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterChannels(channels, tt.allowList)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("FilterChannels() returned %d channels, want %d", len(got), len(tt.wantIDs))
			}
			for i, ch := range got {
				if ch.ID != tt.wantIDs[i] {
					t.Errorf("FilterChannels()[%d].ID = %s, want %s", i, ch.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestTSLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"100.000000", "200.000000", true},
		{"200.000000", "100.000000", false},
		{"100.000000", "100.000000", false},
		{"100.000002", "100.000010", true},
		{"99.000000", "100.000000", true}, // numeric, not lexicographic
	}
	for _, tt := range tests {
		if got := TSLess(tt.a, tt.b); got != tt.want {
			t.Errorf("TSLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
