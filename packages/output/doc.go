// Package output renders executed calls.
//
// Supported output formats:
//   - Console: status line and a colourised, pretty-printed JSON body
//   - JSON: one machine-readable envelope per call
//
// Both formatters mask the Authorization header when printing requests.
package output
