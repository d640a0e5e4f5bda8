// Package logging provides leveled logging for the media catalog.
//
// The log level is controlled by the LOG_LEVEL environment variable
// (debug, info, warn, error) or by setting DEBUG=true. The default
// level is info. Output goes through the standard library logger so
// callers can redirect it as usual.
package logging
