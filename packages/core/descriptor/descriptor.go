package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// HasBody reports whether requests with this method may carry a body.
func (m Method) HasBody() bool {
	return m == MethodPost || m == MethodPut
}

type BodyType string

const (
	BodyJSON     BodyType = "JSON"
	BodyFormData BodyType = "FORM_DATA"
)

// BodySource points at the file holding an entry's request body. The file is
// read when the entry is executed, not when the descriptor is loaded.
type BodySource struct {
	Type BodyType `json:"body_type"`
	File string   `json:"body_file"`
}

// Entry is one selectable request.
type Entry struct {
	Tag             string      `json:"tag"`
	Title           string      `json:"title,omitempty"`
	Method          Method      `json:"method"`
	Endpoint        string      `json:"endpoint,omitempty"`
	Params          string      `json:"params,omitempty"`
	Body            *BodySource `json:"body,omitempty"`
	TokenPath       string      `json:"token_path,omitempty"`
	TokenSave       bool        `json:"token_save,omitempty"`
	TokenType       string      `json:"token_type,omitempty"`
	AccessTokenFile string      `json:"access_token_file,omitempty"`
	SaveTo          string      `json:"save_to,omitempty"`
	// Timeout bounds this entry's call, for example "5s". It cannot extend
	// the client timeout.
	Timeout string `json:"timeout,omitempty"`
	// Structure is the file mapping used when the save destination is a
	// directory. It may be written as a JSON object or as a string.
	Structure json.RawMessage `json:"structure,omitempty"`
}

// TimeoutDuration returns the parsed entry timeout, zero when unset.
func (e *Entry) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// StructureString returns the file mapping structure in the string form the
// store understands. Without an explicit structure, the token path is used.
func (e *Entry) StructureString() string {
	raw := strings.TrimSpace(string(e.Structure))
	if raw == "" || raw == "null" {
		return e.TokenPath
	}

	var s string
	if err := json.Unmarshal(e.Structure, &s); err == nil {
		return s
	}
	return raw
}

// Descriptor is a parsed request descriptor file.
type Descriptor struct {
	BaseURL         string            `json:"base_url"`
	Headers         map[string]string `json:"headers,omitempty"`
	DefaultHeaders  map[string]string `json:"default_headers,omitempty"`
	VariableDir     string            `json:"variable_dir,omitempty"`
	AccessTokenFile string            `json:"access_token_file,omitempty"`
	Requests        []*Entry          `json:"requests"`

	// Path is the file the descriptor was loaded from.
	Path string `json:"-"`
}

// Dir returns the directory relative paths in the descriptor resolve against.
func (d *Descriptor) Dir() string {
	if d.Path == "" {
		return "."
	}
	return filepath.Dir(d.Path)
}

// Resolve makes a relative path relative to the descriptor's directory.
// Absolute paths and paths starting with "~" are returned unchanged.
func (d *Descriptor) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(d.Dir(), path)
}

// RequestHeaders merges headers and default_headers, the latter winning.
func (d *Descriptor) RequestHeaders() map[string]string {
	result := make(map[string]string, len(d.Headers)+len(d.DefaultHeaders))
	for k, v := range d.Headers {
		result[k] = v
	}
	for k, v := range d.DefaultHeaders {
		result[k] = v
	}
	return result
}

// TokenFile returns the credential file for e, preferring the entry's own.
func (d *Descriptor) TokenFile(e *Entry) string {
	if e.AccessTokenFile != "" {
		return e.AccessTokenFile
	}
	return d.AccessTokenFile
}

// SaveDestination returns where values extracted from e's response go.
func (d *Descriptor) SaveDestination(e *Entry) string {
	if e.SaveTo != "" {
		return e.SaveTo
	}
	return d.TokenFile(e)
}

// ByTag returns the entry with the given tag.
func (d *Descriptor) ByTag(tag string) (*Entry, bool) {
	for _, e := range d.Requests {
		if e.Tag == tag {
			return e, true
		}
	}
	return nil, false
}

// ByIndex returns the entry at a zero-based position.
func (d *Descriptor) ByIndex(i int) (*Entry, bool) {
	if i < 0 || i >= len(d.Requests) {
		return nil, false
	}
	return d.Requests[i], true
}

// Load reads, validates and normalises a descriptor. Files ending in .yaml
// or .yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	d, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// Parse decodes and validates descriptor content.
func Parse(data []byte, fromYAML bool) (*Descriptor, error) {
	if fromYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}

	for _, e := range d.Requests {
		e.Method = Method(strings.ToUpper(string(e.Method)))
		if e.Body != nil {
			e.Body.Type = BodyType(strings.ToUpper(string(e.Body.Type)))
		}
	}

	if err := validateEntries(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML descriptor: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting YAML descriptor: %w", err)
	}
	return out, nil
}

func validateEntries(d *Descriptor) error {
	seen := make(map[string]int)
	var problems []string
	for i, e := range d.Requests {
		if e.Timeout != "" {
			if t, err := time.ParseDuration(e.Timeout); err != nil || t <= 0 {
				problems = append(problems, fmt.Sprintf("requests.%d: invalid timeout %q", i, e.Timeout))
			}
		}
		if first, ok := seen[e.Tag]; ok {
			problems = append(problems, fmt.Sprintf("requests.%d: duplicate tag %q (first used by requests.%d)", i, e.Tag, first))
			continue
		}
		seen[e.Tag] = i
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
