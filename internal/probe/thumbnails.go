package probe

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
)

// ThumbnailDir returns the per-file thumbnail directory under root,
// named deterministically from the content checksum.
func ThumbnailDir(root, checksum string) string {
	return filepath.Join(root, checksum)
}

// GenerateThumbnails writes preview images for a file into destDir and
// returns them in timestamp order. Images get a single thumbnail;
// videos get frames spaced evenly across the duration; audio gets
// none.
func (p *FFProbe) GenerateThumbnails(ctx context.Context, path string, res *Result, destDir string) ([]Thumbnail, error) {
	switch res.MediaType {
	case database.MediaTypeImage:
		if res.Animated {
			// Animated images sample frames like video.
			return p.videoThumbnails(ctx, path, res, destDir)
		}
		return p.imageThumbnail(path, destDir)
	case database.MediaTypeVideo:
		return p.videoThumbnails(ctx, path, res, destDir)
	default:
		return nil, nil
	}
}

func (p *FFProbe) imageThumbnail(path, destDir string) ([]Thumbnail, error) {
	img, err := p.loadImage(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	thumb, err := p.writeThumb(img, destDir, 0)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return []Thumbnail{{Timestamp: 0, Index: 0, Path: thumb}}, nil
}

func (p *FFProbe) videoThumbnails(ctx context.Context, path string, res *Result, destDir string) ([]Thumbnail, error) {
	count := p.MaxThumbnails
	if count <= 0 {
		count = 1
	}
	if res.Duration <= 0 {
		count = 1
	}

	var thumbs []Thumbnail
	for i := 0; i < count; i++ {
		// Sample inside the stream, never at the very start or end.
		ts := res.Duration * float64(i+1) / float64(count+1)
		img, err := extractFrame(ctx, path, ts)
		if err != nil {
			if i == 0 {
				return nil, &Error{Path: path, Err: err}
			}
			logging.Warn("Frame extraction at %.2fs failed for %s: %v", ts, filepath.Base(path), err)
			continue
		}
		out, err := p.writeThumb(img, destDir, len(thumbs))
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
		thumbs = append(thumbs, Thumbnail{Timestamp: ts, Index: len(thumbs), Path: out})
	}
	return thumbs, nil
}

// extractFrame pulls one frame at the given timestamp via ffmpeg.
func extractFrame(ctx context.Context, path string, ts float64) (image.Image, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}

	img, err := imaging.Decode(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// writeThumb resizes into the bounding box and writes one JPEG.
func (p *FFProbe) writeThumb(img image.Image, destDir string, index int) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	size := p.ThumbnailSize
	if size <= 0 {
		size = 480
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	out := filepath.Join(destDir, fmt.Sprintf("%04d.jpg", index))
	if err := imaging.Save(thumb, out, imaging.JPEGQuality(85)); err != nil {
		return "", err
	}
	return out, nil
}
