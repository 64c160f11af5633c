// Package logging writes structured JSON logs to a size-rotated file under
// ~/.file-compass/logs, optionally mirrored to stderr. The MCP serve path
// disables the stderr mirror because stdio is reserved for JSON-RPC
// traffic.
package logging
