package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/hitcall/packages/capture"
	"github.com/google/uuid"
)

const (
	// FileMode is the permission used for variable files. They usually hold credentials.
	FileMode = 0600
	// DirMode is the permission used for directories created on demand.
	DirMode = 0755
)

var (
	ErrPathNotFound = errors.New("JSON path not found")
	ErrNoMappings   = errors.New("no file mappings in structure")
	ErrPathEscape   = errors.New("path escapes target directory")
	ErrNotDirectory = errors.New("not a directory")
)

// Store reads and writes variable files. Paths may start with "~", which is
// expanded against the home directory given to New.
type Store struct {
	home   string
	logger *slog.Logger
}

type Option func(*Store)

// WithLogger sets the logger used to report written files.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func New(home string, opts ...Option) *Store {
	s := &Store{
		home:   home,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Expand rewrites a leading "~" or "~/" to the home directory. Other paths,
// including "~user", are returned unchanged.
func (s *Store) Expand(path string) string {
	if s.home == "" {
		return path
	}
	if path == "~" {
		return s.home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(s.home, rest)
	}
	return path
}

// Write persists values extracted from body.
//
// An empty destination is a no-op. When destination is an existing directory,
// structure is parsed as a set of file mappings and every mapped file is
// written below it. Otherwise structure is a dotted path and its value is
// written to destination. It returns the paths written.
func (s *Store) Write(body []byte, destination, structure string) ([]string, error) {
	if destination == "" {
		return nil, nil
	}

	path := s.Expand(destination)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return s.writeMultiple(body, path, structure)
	}

	if err := s.writeSingle(body, path, structure); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (s *Store) writeSingle(body []byte, path, jsonPath string) error {
	v, ok := capture.Lookup(body, jsonPath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, jsonPath)
	}

	if err := writeFile(path, capture.Text(v)); err != nil {
		return err
	}
	s.logger.Debug("variable written", "file", path, "path", jsonPath)
	return nil
}

type stagedFile struct {
	path     string
	jsonPath string
	value    string
}

// writeMultiple resolves every mapping before touching the filesystem, so a
// missing path or an escaping filename leaves the directory untouched.
func (s *Store) writeMultiple(body []byte, dir, structure string) ([]string, error) {
	mappings := ParseMappings(structure)
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMappings, structure)
	}

	staged := make([]stagedFile, 0, len(mappings))
	for _, m := range mappings {
		target, err := withinDir(dir, m.Filename)
		if err != nil {
			return nil, err
		}

		v, ok := capture.Lookup(body, m.JSONPath)
		if !ok {
			return nil, fmt.Errorf("%w: %s (for %s)", ErrPathNotFound, m.JSONPath, m.Filename)
		}
		staged = append(staged, stagedFile{path: target, jsonPath: m.JSONPath, value: capture.Text(v)})
	}

	written := make([]string, 0, len(staged))
	for _, f := range staged {
		if err := writeFile(f.path, f.value); err != nil {
			return written, err
		}
		s.logger.Debug("variable written", "file", f.path, "path", f.jsonPath)
		written = append(written, f.path)
	}
	return written, nil
}

// withinDir joins name onto dir and rejects results outside dir.
func withinDir(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}

	base, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	target := filepath.Join(base, name)

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, name)
	}
	return target, nil
}

// writeFile replaces path with content through a temporary sibling file and
// a rename, creating parent directories as needed.
func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, []byte(content), FileMode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Read returns the whole content of a variable file.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(s.Expand(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadDir reads every regular file directly under path, keyed by file name.
func (s *Store) ReadDir(path string) (map[string]string, error) {
	dir := s.Expand(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		result[entry.Name()] = string(data)
	}
	return result, nil
}
