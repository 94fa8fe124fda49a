// Package descriptor loads request descriptor files.
//
// A descriptor names a base URL, default headers and a list of request
// entries selectable by tag or index:
//
//	{
//	  "base_url": "https://api.example.com",
//	  "headers": {"Accept": "application/json"},
//	  "access_token_file": "~/.hitcall/token.txt",
//	  "variable_dir": "~/.hitcall/vars",
//	  "requests": [
//	    {"tag": "login", "method": "POST", "endpoint": "/auth",
//	     "body": {"body_type": "JSON", "body_file": "login.json"},
//	     "token_path": "token.access_token", "token_save": true},
//	    {"tag": "me", "method": "GET", "endpoint": "/me", "token_type": "Bearer"}
//	  ]
//	}
//
// Descriptors are validated against an embedded JSON Schema, and tags must be
// unique. YAML descriptors (.yaml, .yml) use the same keys.
package descriptor
