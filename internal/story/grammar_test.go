package story

import (
	"strings"
	"testing"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"#-\\", `\#\-\\`},
		{"a\nb\rc\td", `a\nb\rc\td`},
		{"  lead", "  lead"},
		{"mid dle ", `mid dle\s`},
		{"   ", `\s\s\s`},
		{"日本語", "日本語"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := escape(tt.in)
			if got != tt.want {
				t.Errorf("escape(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.ContainsAny(got, "\n\r") {
				t.Errorf("escape(%q) = %q contains reserved characters", tt.in, got)
			}
			back, err := unescape(got, 1, 1)
			if err != nil {
				t.Fatalf("unescape(%q) error = %v", got, err)
			}
			if back != tt.in {
				t.Errorf("unescape(escape(%q)) = %q", tt.in, back)
			}
		})
	}
}

func TestUnescape(t *testing.T) {
	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			in      string
			wantCol int
		}{
			{"truncated", `ab\`, 12},
			{"unknown", `a\x`, 11},
			{"hash", "a#", 11},
			{"dash", "-a", 10},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := unescape(tt.in, 3, 10)
				me, ok := err.(*MalformedFormatError)
				if !ok {
					t.Fatalf("unescape(%q) error = %v, want *MalformedFormatError", tt.in, err)
				}
				if me.Line != 3 || me.Column != tt.wantCol {
					t.Errorf("position = %d:%d, want 3:%d", me.Line, me.Column, tt.wantCol)
				}
			})
		}
	})
}
