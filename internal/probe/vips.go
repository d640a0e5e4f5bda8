//go:build cgo

package probe

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"media-catalog/internal/logging"
)

var (
	vipsInitMutex sync.Mutex
	vipsAvailable bool
)

// InitVips starts libvips for decode-time image shrinking. Call once
// at startup; thumbnailing falls back to pure Go when skipped.
func InitVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		return
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch {
		case level >= vips.LogLevelError:
			logging.Error("[%s] %s", domain, msg)
		case level == vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vips.LogLevelWarning)

	// Conservative memory settings: one image at a time, small cache.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsAvailable = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsAvailable {
		vips.Shutdown()
		vipsAvailable = false
	}
}

// IsVipsAvailable reports whether the libvips fast path is usable.
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// loadImageWithVips loads and resizes an image with decode-time
// shrinking, which is far cheaper than decoding at full resolution.
func loadImageWithVips(path string, targetWidth, targetHeight int) (image.Image, error) {
	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.Thumbnail(targetWidth, targetHeight, vips.InterestingNone); err != nil {
		return nil, fmt.Errorf("vips resize failed: %w", err)
	}

	imgBytes, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        95,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(imgBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vips output: %w", err)
	}
	return img, nil
}
