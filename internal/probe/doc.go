// Package probe extracts technical metadata and preview images from
// media files. Images decode locally (libvips when initialized, pure
// Go otherwise); video and audio shell out to ffprobe/ffmpeg. The
// catalog consumes it through a narrow interface, so tests substitute
// a fake.
package probe
