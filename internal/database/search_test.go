package database

import "testing"

func TestGlobEscape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain path", "/media/shows", "/media/shows"},
		{"star", "/media/a*b", "/media/a[*]b"},
		{"question mark", "/media/a?b", "/media/a[?]b"},
		{"bracket", "/media/season [1]", "/media/season [[]1]"},
		{"mixed", "/m/*?[", "/m/[*][?][[]"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := globEscape(tt.in); got != tt.want {
				t.Errorf("globEscape(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
