// Package constants centralizes defaults shared by the scanner stages, the
// orchestrator and the CLI: request timeouts, body read limits and file
// permissions used by the archive.
package constants
