//go:build !cgo

package probe

import (
	"errors"
	"image"

	"media-catalog/internal/logging"
)

// InitVips is a no-op without cgo: govips binds libvips through C, so
// the fast path is unavailable and thumbnailing uses pure Go.
func InitVips() {
	logging.Warn("libvips support not compiled in (cgo disabled); using pure Go thumbnailing")
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {}

// IsVipsAvailable reports whether the libvips fast path is usable.
func IsVipsAvailable() bool {
	return false
}

// loadImageWithVips loads and resizes an image with decode-time
// shrinking, which is far cheaper than decoding at full resolution.
func loadImageWithVips(path string, targetWidth, targetHeight int) (image.Image, error) {
	return nil, errors.New("vips support not compiled in")
}
