// Package remote adapts the OpenAI-compatible inference endpoints used by the
// annotation pipeline: speech-to-text for stage one and chat completion for
// stage two.
//
// Every error returned by this package carries one of the services markers,
// so callers can report the failure category with services.Kind without
// inspecting vendor types. Neither client retries; a failed call is final.
package remote
