// Package cli provides rsctl, the command-line client of the remote storage
// subsystem.
//
// It wires configuration, the disk cache, the credential channel (HTTP or
// gRPC) and the optional SQLite upload index into a remotestorage.Service,
// and exposes its operations as cobra commands:
//   - upload: queue files and wait for their links
//   - fetch / url / meta: resolve and download remote resources
//   - find / list: look up completed uploads
//   - cleanup: drop old cached resources and index rows
//   - token: mint a development session token
//
// Build the command tree with NewRootCommand and run it with Execute.
package cli
