// Package http is the transport used to execute descriptor entries.
//
// It wraps the standard library's http package with:
//   - Configurable timeouts and redirect handling
//   - Default headers shared by every request
//   - Whole-body response reading with timing
//   - Flattening of JSON objects into urlencoded forms
package http
