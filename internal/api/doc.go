// Package api defines wire-format types and converters for the HTTP API
// layer. It translates annotation store models into transport-friendly DTOs
// that the annotation UI and the CLI can render without coupling to internal
// types.
//
// DTOs use camelCase JSON tags. Stage statuses are exposed as lowercase
// strings and timestamps use RFC3339 with milliseconds. Media sizes are read
// from the filesystem each time a payload is built, never cached.
package api
