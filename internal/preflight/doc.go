// Package preflight provides readiness checks for the filesystem paths and
// remote endpoints Elicit depends on.
//
// These checks run in two contexts:
//   - The health endpoint reports RunAll, which never touches the network.
//   - The CLI "elicit status" command adds RunRemote to probe the configured
//     transcription and enhancement endpoints.
package preflight
