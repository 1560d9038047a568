// Package pipeline runs the two remote stages of every annotation job in the
// background.
//
// Submit stores the audio and the job record, publishes a created event, and
// returns before any remote call starts. Each job then runs in its own
// goroutine on the scheduler's base context, never on the submitting
// request's context: transcription first, and enhancement only after the
// transcription result has been committed. Every stage task holds its own
// store handle; jobs never share locks.
//
// Stage state changes go through annotations.Handle, so a result that arrives
// after the job was deleted is discarded by the store and produces no event.
package pipeline
