// Package language normalizes the language hints sent to the transcription
// endpoint and renders language codes for display.
package language
