package probe

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"media-catalog/internal/database"
)

func TestTypeForPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path     string
		wantType database.MediaType
		wantOK   bool
	}{
		{"/media/photo.jpg", database.MediaTypeImage, true},
		{"/media/PHOTO.JPG", database.MediaTypeImage, true},
		{"/media/clip.mp4", database.MediaTypeVideo, true},
		{"/media/song.flac", database.MediaTypeAudio, true},
		{"/media/readme.txt", "", false},
		{"/media/noext", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			got, ok := TypeForPath(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("TypeForPath(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if ok && got != tt.wantType {
				t.Errorf("TypeForPath(%q) = %s, want %s", tt.path, got, tt.wantType)
			}
		})
	}
}

func TestParseFramerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997002997},
		{"0/0", 0},
		{"24", 24},
		{"garbage", 0},
	}
	for _, tt := range tests {
		tt := tt
		if got := parseFramerate(tt.in); got != tt.want {
			t.Errorf("parseFramerate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewFFProbe()
	sum, err := p.Checksum(path)
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}
	// sha256("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if sum != want {
		t.Errorf("Expected %s, got %s", want, sum)
	}

	// Identical content at a different path hashes identically.
	path2 := filepath.Join(dir, "copy.bin")
	if err := os.WriteFile(path2, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	sum2, err := p.Checksum(path2)
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}
	if sum2 != sum {
		t.Error("Expected identical content to hash identically")
	}

	if _, err := p.Checksum(filepath.Join(dir, "missing.bin")); err == nil {
		t.Error("Expected checksum of missing file to fail")
	}
}

func TestProbeImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tiny.png")
	writeTestPNG(t, path, 12, 8)

	p := NewFFProbe()
	res, err := p.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if res.MediaType != database.MediaTypeImage {
		t.Errorf("Expected IMAGE, got %s", res.MediaType)
	}
	if res.Width != 12 || res.Height != 8 {
		t.Errorf("Expected 12x8, got %dx%d", res.Width, res.Height)
	}
	if res.Animated {
		t.Error("Expected still image")
	}
	if res.Codec != "png" {
		t.Errorf("Expected codec png, got %s", res.Codec)
	}
}

func TestProbeUnsupportedExtension(t *testing.T) {
	t.Parallel()

	p := NewFFProbe()
	_, err := p.Probe(context.Background(), "/media/notes.txt")
	if err == nil {
		t.Fatal("Expected unsupported extension to fail")
	}
	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Errorf("Expected probe Error, got %T", err)
	}
}

func TestGenerateImageThumbnail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "big.png")
	writeTestPNG(t, path, 1200, 800)

	p := NewFFProbe()
	res, err := p.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	destDir := ThumbnailDir(dir, "deadbeef")
	thumbs, err := p.GenerateThumbnails(context.Background(), path, res, destDir)
	if err != nil {
		t.Fatalf("GenerateThumbnails failed: %v", err)
	}
	if len(thumbs) != 1 {
		t.Fatalf("Expected 1 thumbnail, got %d", len(thumbs))
	}
	if filepath.Dir(thumbs[0].Path) != destDir {
		t.Errorf("Expected thumbnail under %s, got %s", destDir, thumbs[0].Path)
	}

	f, err := os.Open(thumbs[0].Path)
	if err != nil {
		t.Fatalf("Thumbnail not written: %v", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Thumbnail not decodable: %v", err)
	}
	if cfg.Width > 480 || cfg.Height > 480 {
		t.Errorf("Expected thumbnail within 480x480, got %dx%d", cfg.Width, cfg.Height)
	}
}

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}
