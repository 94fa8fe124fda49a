package capture

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup resolves a dotted key path against a JSON document. Every segment is
// matched literally against object member names; arrays are never indexed.
// The second return value is false when any segment is missing or when an
// intermediate value is not an object.
func Lookup(body []byte, path string) (gjson.Result, bool) {
	if path == "" || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}

	current := gjson.ParseBytes(body)
	for _, key := range strings.Split(path, ".") {
		next, ok := member(current, key)
		if !ok {
			return gjson.Result{}, false
		}
		current = next
	}
	return current, true
}

// member returns the first member of obj named key.
func member(obj gjson.Result, key string) (gjson.Result, bool) {
	if !obj.IsObject() {
		return gjson.Result{}, false
	}

	var found gjson.Result
	ok := false
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			found = v
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// Text returns the string form of a resolved value: strings are unquoted,
// null becomes empty, and everything else is its JSON text.
func Text(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	default:
		return v.Raw
	}
}
