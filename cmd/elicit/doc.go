// Package main hosts the Elicit CLI entrypoint and command graph.
//
// The Cobra-based command tree starts the daemon, registers media files,
// inspects annotations, reports local health, and scaffolds configuration.
// Inspection commands read the job store directly, so they work whether or not
// the daemon is running.
package main
