// Package capture extracts values from JSON response bodies.
//
// Paths are dotted chains of object keys such as "token.access_token".
// Segments are literal member names, so "items.0" looks for a key named "0"
// and never indexes into an array.
//
// Extracted values are persisted by the store package and read back by later
// invocations, either as credentials or as {{NAME}} body placeholders.
package capture
