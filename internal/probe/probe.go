package probe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"media-catalog/internal/database"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
)

// Result is the technical metadata extracted from one media file.
type Result struct {
	MediaType   database.MediaType `json:"mediaType"`
	Codec       string             `json:"codec,omitempty"`
	ContentType string             `json:"contentType,omitempty"`
	Width       int                `json:"width,omitempty"`
	Height      int                `json:"height,omitempty"`
	Animated    bool               `json:"animated"`
	HasAudio    bool               `json:"hasAudio"`
	Duration    float64            `json:"duration"`
	Framerate   float64            `json:"framerate"`
}

// Thumbnail is one preview image written to disk during probing.
type Thumbnail struct {
	Timestamp float64
	Index     int
	Path      string
}

// Error wraps a probing failure with the file it occurred on.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe failed for %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// mediaTypes classifies files by extension. Anything absent here is
// not media this catalog handles.
var mediaTypes = map[string]database.MediaType{
	".jpg":  database.MediaTypeImage,
	".jpeg": database.MediaTypeImage,
	".png":  database.MediaTypeImage,
	".gif":  database.MediaTypeImage,
	".webp": database.MediaTypeImage,
	".bmp":  database.MediaTypeImage,
	".tiff": database.MediaTypeImage,
	".mp4":  database.MediaTypeVideo,
	".webm": database.MediaTypeVideo,
	".mkv":  database.MediaTypeVideo,
	".avi":  database.MediaTypeVideo,
	".mov":  database.MediaTypeVideo,
	".m4v":  database.MediaTypeVideo,
	".mp3":  database.MediaTypeAudio,
	".flac": database.MediaTypeAudio,
	".ogg":  database.MediaTypeAudio,
	".wav":  database.MediaTypeAudio,
	".m4a":  database.MediaTypeAudio,
	".opus": database.MediaTypeAudio,
}

// TypeForPath classifies a path by extension; ok is false for
// non-media extensions.
func TypeForPath(path string) (database.MediaType, bool) {
	t, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]
	return t, ok
}

// KnownExtensions returns every media extension the probe recognizes,
// without the leading dot.
func KnownExtensions() []string {
	exts := make([]string, 0, len(mediaTypes))
	for ext := range mediaTypes {
		exts = append(exts, strings.TrimPrefix(ext, "."))
	}
	return exts
}

// FFProbe extracts media metadata using local image decoding for
// images and the ffprobe/ffmpeg binaries for time-based media.
type FFProbe struct {
	// MaxThumbnails caps how many preview frames video thumbnailing
	// extracts per file.
	MaxThumbnails int

	// ThumbnailSize is the bounding box (longest edge) thumbnails are
	// resized into.
	ThumbnailSize int
}

// NewFFProbe returns a prober with the default thumbnail settings.
func NewFFProbe() *FFProbe {
	return &FFProbe{
		MaxThumbnails: 9,
		ThumbnailSize: 480,
	}
}

// Checksum computes the sha256 content hash of a file, hex-encoded.
func (p *FFProbe) Checksum(path string) (string, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &Error{Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Probe extracts technical metadata for a media file.
func (p *FFProbe) Probe(ctx context.Context, path string) (*Result, error) {
	mediaType, ok := TypeForPath(path)
	if !ok {
		return nil, &Error{Path: path, Err: fmt.Errorf("unsupported extension %q", filepath.Ext(path))}
	}

	res := &Result{
		MediaType:   mediaType,
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}

	switch mediaType {
	case database.MediaTypeImage:
		if err := probeImage(path, res); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	case database.MediaTypeVideo, database.MediaTypeAudio:
		if err := p.ffprobe(ctx, path, res); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	}
	return res, nil
}

// ffprobeOutput is the subset of `ffprobe -print_format json` this
// probe reads.
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFProbe) ffprobe(ctx context.Context, path string, res *Result) error {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			res.Codec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.Framerate = parseFramerate(s.AvgFrameRate)
			res.Animated = res.Framerate > 0
		case "audio":
			res.HasAudio = true
			if res.Codec == "" {
				res.Codec = s.CodecName
			}
		}
	}

	if res.MediaType == database.MediaTypeVideo && res.Width == 0 {
		return fmt.Errorf("no video stream found")
	}
	logging.Debug("Probed %s: %s %s %dx%d %.1fs",
		filepath.Base(path), res.MediaType, res.Codec, res.Width, res.Height, res.Duration)
	return nil
}

// parseFramerate parses ffprobe's "num/den" rational frame rate.
func parseFramerate(r string) float64 {
	num, den, found := strings.Cut(r, "/")
	if !found {
		v, _ := strconv.ParseFloat(r, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
