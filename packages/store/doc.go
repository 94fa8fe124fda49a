// Package store persists response values as small text files.
//
// A destination is either a single file, which receives the value at one
// dotted path, or an existing directory, which receives one file per entry
// of a file mapping structure:
//
//	{"access.txt": "token.access_token", "refresh/token.txt": "token.refresh_token"}
//	access.txt:token.access_token, refresh/token.txt:token.refresh_token
//
// Directory writes resolve every mapping before any file is written. Each
// file is replaced through a rename, so readers never see a truncated value.
package store
