// Package runner executes a single descriptor entry.
//
// Execution assembles the URL, headers and credential, loads and
// substitutes the body, sends the request and persists the configured
// response fields. Optional steps are switched on by the descriptor's
// Capabilities. Each execution moves through the states
// Idle, Sending and either Succeeded or Failed.
package runner
