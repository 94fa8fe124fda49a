package env

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/hitcall/packages/store"
	"github.com/tidwall/gjson"
)

const (
	placeholderOpen  = "{{"
	placeholderClose = "}}"
	// VariableExt is appended to a placeholder name to find its file.
	VariableExt = ".txt"
)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// SubstitutionError reports a placeholder whose variable file could not be read.
type SubstitutionError struct {
	Name string
	Path string
	Err  error
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("failed to resolve {{%s}} from %s: %v", e.Name, e.Path, e.Err)
}

func (e *SubstitutionError) Unwrap() error {
	return e.Err
}

// Resolver replaces {{NAME}} string values in JSON bodies with the content of
// NAME.txt in a variable directory.
type Resolver struct {
	store    *store.Store
	dir      string
	warnFunc WarnFunc
}

func NewResolver(s *store.Store, variableDir string) *Resolver {
	return &Resolver{
		store: s,
		dir:   variableDir,
	}
}

// SetWarnFunc sets a function to be called for each substituted variable
// whose file was empty.
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	if r.warnFunc != nil {
		r.warnFunc(format, args...)
	}
}

// VariablePath returns the file a placeholder name is read from. Names that
// would leave the variable directory fail with store.ErrPathEscape.
func (r *Resolver) VariablePath(name string) (string, error) {
	file := name + VariableExt
	if !filepath.IsLocal(file) {
		return "", fmt.Errorf("%w: %q", store.ErrPathEscape, name)
	}
	return filepath.Join(r.dir, file), nil
}

// PlaceholderName reports whether s is a placeholder and returns its
// trimmed name. Only whole values count: "Bearer {{T}}" is not a placeholder.
func PlaceholderName(s string) (string, bool) {
	if len(s) < len(placeholderOpen)+len(placeholderClose) {
		return "", false
	}
	if !strings.HasPrefix(s, placeholderOpen) || !strings.HasSuffix(s, placeholderClose) {
		return "", false
	}
	name := strings.TrimSpace(s[len(placeholderOpen) : len(s)-len(placeholderClose)])
	if name == "" {
		return "", false
	}
	return name, true
}

// Placeholders lists the placeholder names in body in document order,
// without duplicates.
func Placeholders(body []byte) []string {
	var names []string
	seen := make(map[string]bool)
	walkStrings(gjson.ParseBytes(body), func(s string) {
		if name, ok := PlaceholderName(s); ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	})
	return names
}

// Substitute returns body with every placeholder replaced. Objects and
// arrays are walked recursively; bodies that are not objects are returned
// unchanged. All variables are read before any rewriting, so an error
// leaves nothing half substituted.
func (r *Resolver) Substitute(body []byte) ([]byte, error) {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return body, nil
	}

	values := make(map[string]string)
	for _, name := range Placeholders(body) {
		path, err := r.VariablePath(name)
		if err != nil {
			return nil, &SubstitutionError{Name: name, Path: r.store.Expand(r.dir), Err: err}
		}
		content, err := r.store.Read(path)
		if err != nil {
			return nil, &SubstitutionError{Name: name, Path: r.store.Expand(path), Err: err}
		}
		value := strings.TrimRight(content, " \t\r\n")
		if value == "" {
			r.warn("variable %s is empty (%s)", name, path)
		}
		values[name] = value
	}

	if len(values) == 0 {
		return body, nil
	}

	var buf bytes.Buffer
	if err := rewrite(&buf, root, values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func walkStrings(v gjson.Result, fn func(string)) {
	switch {
	case v.Type == gjson.String:
		fn(v.Str)
	case v.IsObject(), v.IsArray():
		v.ForEach(func(_, child gjson.Result) bool {
			walkStrings(child, fn)
			return true
		})
	}
}

// rewrite emits v as compact JSON with placeholders replaced. Keys and
// untouched scalars are copied from the source text.
func rewrite(buf *bytes.Buffer, v gjson.Result, values map[string]string) error {
	switch {
	case v.IsObject():
		buf.WriteByte('{')
		first := true
		var err error
		v.ForEach(func(k, child gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.WriteString(k.Raw)
			buf.WriteByte(':')
			err = rewrite(buf, child, values)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	case v.IsArray():
		buf.WriteByte('[')
		first := true
		var err error
		v.ForEach(func(_, child gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			err = rewrite(buf, child, values)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte(']')
	case v.Type == gjson.String:
		if name, ok := PlaceholderName(v.Str); ok {
			if value, ok := values[name]; ok {
				return writeString(buf, value)
			}
		}
		buf.WriteString(v.Raw)
	default:
		buf.WriteString(v.Raw)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
