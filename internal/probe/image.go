package probe

import (
	"fmt"
	"image"
	"image/gif"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // bmp decoding
	_ "golang.org/x/image/tiff" // tiff decoding
	_ "golang.org/x/image/webp" // webp decoding
)

// probeImage fills in dimensions and animation data by decoding the
// image header locally; GIFs decode fully to count frames.
func probeImage(path string, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode image header: %w", err)
	}

	res.Codec = format
	res.Width = cfg.Width
	res.Height = cfg.Height

	if format == "gif" {
		return probeGIF(path, res)
	}
	return nil
}

// probeGIF decodes all frames to determine whether a GIF animates,
// its total duration, and an average frame rate.
func probeGIF(path string, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return fmt.Errorf("failed to decode gif: %w", err)
	}

	if len(g.Image) <= 1 {
		return nil
	}

	res.Animated = true
	// Delays are in hundredths of a second.
	var total int
	for _, d := range g.Delay {
		total += d
	}
	res.Duration = float64(total) / 100
	if res.Duration > 0 {
		res.Framerate = float64(len(g.Image)) / res.Duration
	}
	return nil
}

// loadImage decodes an image file for thumbnailing, preferring the
// libvips path when available.
func (p *FFProbe) loadImage(path string) (image.Image, error) {
	if IsVipsAvailable() {
		img, err := loadImageWithVips(path, p.ThumbnailSize, p.ThumbnailSize)
		if err == nil {
			return img, nil
		}
		// Fall through to the pure-Go decoder.
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}
