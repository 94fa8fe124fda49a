package http

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrNotObject      = errors.New("form body must be a JSON object")
	ErrNonScalarField = errors.New("form field must be a scalar")
)

// EncodeForm flattens a JSON object into an urlencoded form. Strings are
// sent as-is, numbers and booleans as their JSON text, null as an empty
// value. Nested objects and arrays are rejected. Fields keep the object's
// member order.
func EncodeForm(body []byte) (string, error) {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return "", ErrNotObject
	}

	var parts []string
	var err error
	root.ForEach(func(k, v gjson.Result) bool {
		var value string
		switch v.Type {
		case gjson.String:
			value = v.Str
		case gjson.Null:
			value = ""
		case gjson.Number, gjson.True, gjson.False:
			value = v.Raw
		default:
			err = fmt.Errorf("%w: %q", ErrNonScalarField, k.Str)
			return false
		}
		parts = append(parts, url.QueryEscape(k.Str)+"="+url.QueryEscape(value))
		return true
	})
	if err != nil {
		return "", err
	}
	return strings.Join(parts, "&"), nil
}
