// Package cmd implements the hitcall CLI commands using Cobra.
//
// Available commands:
//   - run: Execute one request selected by tag or index
//   - list: Display the requests in a descriptor
//   - validate: Check a descriptor, its body files and placeholders
//   - vars: Show the variable files used for placeholders
//   - version: Show hitcall version information
//
// Configuration comes from ~/.hitcall.yaml, HITCALL_ environment variables
// and a .env file in the working directory; flags override all of them.
package cmd
