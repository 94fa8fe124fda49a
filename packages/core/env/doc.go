// Package env resolves {{NAME}} placeholders in outgoing request bodies.
//
// It provides functionality for:
//   - Detecting placeholder string values in a JSON body
//   - Reading NAME.txt from the descriptor's variable directory
//   - Rewriting the body with the trimmed file contents
//
// Variable files are normally produced by earlier invocations through the
// store package, which is how a login call hands a refresh token to the next
// request.
package env
