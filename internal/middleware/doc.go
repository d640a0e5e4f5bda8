// Package middleware provides HTTP middleware for the media catalog
// service.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with bounded path cardinality
//   - Response compression (gzip)
package middleware
