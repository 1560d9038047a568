// Package mediastream serves registered media files over HTTP with byte-range
// support so browsers can seek through large videos.
//
// Resolve turns a Range header and a file size into a Plan. Server.ServeFile
// executes a plan by reading the file positionally in fixed-size chunks; it
// never loads more than one chunk into memory and stops as soon as the client
// goes away.
package mediastream
