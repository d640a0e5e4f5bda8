package memory

import (
	"runtime/debug"
	"testing"
)

// withRestoredLimit snapshots the process memory limit so tests that
// call debug.SetMemoryLimit cannot leak into each other.
func withRestoredLimit(t *testing.T) {
	t.Helper()
	old := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(old) })
}

func TestConfigureFromEnvUnset(t *testing.T) {
	withRestoredLimit(t)
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	if got := ConfigureFromEnv(); got != 0 {
		t.Errorf("Expected no limit without environment, got %d", got)
	}
}

func TestConfigureFromEnvContainerLimit(t *testing.T) {
	withRestoredLimit(t)
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_RATIO", "")
	t.Setenv("MEMORY_LIMIT", "1073741824")

	ratio := float64(DefaultMemoryRatio)
	want := int64(float64(1073741824) * ratio)
	if got := ConfigureFromEnv(); got != want {
		t.Errorf("Expected limit %d, got %d", want, got)
	}
	if applied := debug.SetMemoryLimit(-1); applied != want {
		t.Errorf("Expected runtime limit %d, got %d", want, applied)
	}
}

func TestConfigureFromEnvCustomRatio(t *testing.T) {
	withRestoredLimit(t)
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1000000")
	t.Setenv("MEMORY_RATIO", "0.5")

	if got := ConfigureFromEnv(); got != 500000 {
		t.Errorf("Expected limit 500000, got %d", got)
	}
}

func TestConfigureFromEnvExplicitGoMemLimit(t *testing.T) {
	withRestoredLimit(t)
	t.Setenv("GOMEMLIMIT", "64MiB")
	t.Setenv("MEMORY_LIMIT", "1000000")
	// The runtime would have applied the env var at startup.
	debug.SetMemoryLimit(64 << 20)

	if got := ConfigureFromEnv(); got != 64<<20 {
		t.Errorf("Expected the explicit GOMEMLIMIT %d, got %d", int64(64<<20), got)
	}
	if applied := debug.SetMemoryLimit(-1); applied != 64<<20 {
		t.Errorf("MEMORY_LIMIT must not override an explicit GOMEMLIMIT, runtime has %d", applied)
	}
}

func TestConfigureFromEnvBadValues(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		ratio string
		want  int64
	}{
		{"unparseable limit", "lots", "", 0},
		{"negative limit", "-5", "", 0},
		{"ratio above one falls back", "1000000", "2.0", int64(1000000 * DefaultMemoryRatio)},
		{"unparseable ratio falls back", "1000000", "most of it", int64(1000000 * DefaultMemoryRatio)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withRestoredLimit(t)
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			if got := ConfigureFromEnv(); got != tt.want {
				t.Errorf("ConfigureFromEnv() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHumanBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 30, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := humanBytes(tt.in); got != tt.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
