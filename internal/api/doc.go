// Package api exposes the catalog as a JSON RPC surface. Every
// operation is a POST route under /api that decodes one request
// document, calls one engine operation, and encodes the result. Typed
// engine errors map onto HTTP statuses: invalid input is 400, missing
// references are 404, duplicate content and concurrent ingestion are
// 409, probe failures are 422.
package api
