package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitcall/packages/core/descriptor"
	"github.com/abdul-hamid-achik/hitcall/packages/core/env"
	"github.com/abdul-hamid-achik/hitcall/packages/http"
	"github.com/abdul-hamid-achik/hitcall/packages/store"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ParseFailureBody replaces response bodies that are not valid JSON.
const ParseFailureBody = `{"error":"Failed to parse response as JSON"}`

var (
	ErrCredentialUnavailable = errors.New("credential unavailable")
	ErrUnsupportedMethod     = errors.New("unsupported method")
	ErrInvalidBody           = errors.New("body file is not valid JSON")
)

// SendError wraps a transport failure.
type SendError struct {
	URL string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Transport sends a prepared request. *http.Client satisfies it.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

type Config struct {
	Timeout        time.Duration
	FollowRedirect bool
	MaxRedirects   int
	// DefaultHeaders are sent with every request, under the descriptor's headers.
	DefaultHeaders map[string]string
	// StrictCredentials makes a missing token file fail the call instead of
	// sending it without Authorization.
	StrictCredentials bool
	Logger            *slog.Logger
}

type Runner struct {
	transport Transport
	store     *store.Store
	config    *Config
	logger    *slog.Logger
}

type Option func(*Runner)

// WithTransport replaces the HTTP client built from the config.
func WithTransport(t Transport) Option {
	return func(r *Runner) {
		r.transport = t
	}
}

// WithStore sets the store used for credentials, bodies and saved values.
func WithStore(s *store.Store) Option {
	return func(r *Runner) {
		r.store = s
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{FollowRedirect: true}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Runner{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.transport == nil {
		clientOpts := []http.ClientOption{
			http.WithFollowRedirects(cfg.FollowRedirect),
			http.WithDefaultHeaders(cfg.DefaultHeaders),
		}
		if cfg.Timeout > 0 {
			clientOpts = append(clientOpts, http.WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRedirects > 0 {
			clientOpts = append(clientOpts, http.WithMaxRedirects(cfg.MaxRedirects))
		}
		r.transport = http.NewClient(clientOpts...)
	}
	if r.store == nil {
		r.store = store.New("", store.WithLogger(logger))
	}
	return r
}

// Result is the outcome of one executed entry.
type Result struct {
	Tag      string
	Method   descriptor.Method
	URL      string
	Request  *http.Request
	Response *http.Response
	// Body is the response body when it is valid JSON, ParseFailureBody otherwise.
	Body     []byte
	Saved    []string
	State    State
	Duration time.Duration
}

// Prepare builds the request for e without sending it.
func (r *Runner) Prepare(d *descriptor.Descriptor, e *descriptor.Entry) (*http.Request, error) {
	if !validMethod(e.Method) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, e.Method)
	}

	caps := CapabilitiesOf(d, e)
	req := http.NewRequest(string(e.Method), d.BaseURL+e.Endpoint+e.Params)
	if t := e.TimeoutDuration(); t > 0 {
		req.SetTimeout(t)
	}
	for k, v := range d.RequestHeaders() {
		req.SetHeader(k, v)
	}

	if caps.TokenFile {
		credential, err := r.credential(d, e)
		if err != nil {
			return nil, err
		}
		if credential != "" {
			req.SetHeader("Authorization", credential)
		}
	}

	if e.Method.HasBody() && e.Body != nil {
		if err := r.setBody(req, d, e, caps); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// Execute sends e and persists the configured response fields. The result is
// never nil; on a persistence failure it carries the response alongside the
// returned error.
func (r *Runner) Execute(ctx context.Context, d *descriptor.Descriptor, e *descriptor.Entry) (*Result, error) {
	result := &Result{
		Tag:    e.Tag,
		Method: e.Method,
		URL:    d.BaseURL + e.Endpoint + e.Params,
		State:  StateIdle,
	}

	req, err := r.Prepare(d, e)
	if err != nil {
		r.transition(result, StateFailed)
		return result, err
	}
	result.Request = req

	r.transition(result, StateSending)
	start := time.Now()
	resp, err := r.transport.Do(ctx, req)
	result.Duration = time.Since(start)
	if err != nil {
		r.transition(result, StateFailed)
		return result, &SendError{URL: req.URL, Err: err}
	}
	result.Response = resp

	if resp.HasJSONBody() {
		result.Body = resp.Body
	} else {
		if resp.IsJSON() {
			r.logger.Warn("response declares JSON but the body does not parse", "tag", e.Tag, "content_type", resp.ContentType())
		} else {
			r.logger.Debug("response is not JSON", "tag", e.Tag, "content_type", resp.ContentType())
		}
		result.Body = []byte(ParseFailureBody)
	}

	if e.TokenSave {
		saved, err := r.persist(d, e, resp, result.Body)
		result.Saved = saved
		if err != nil {
			r.transition(result, StateFailed)
			return result, fmt.Errorf("saving response: %w", err)
		}
	}

	r.transition(result, StateSucceeded)
	return result, nil
}

func (r *Runner) persist(d *descriptor.Descriptor, e *descriptor.Entry, resp *http.Response, body []byte) ([]string, error) {
	if !resp.IsSuccess() {
		r.logger.Warn("not saving response", "tag", e.Tag, "status", resp.StatusCode)
		return nil, nil
	}
	dest := d.Resolve(d.SaveDestination(e))
	if dest == "" {
		r.logger.Warn("token_save is set but no destination is configured", "tag", e.Tag)
		return nil, nil
	}
	return r.store.Write(body, dest, e.StructureString())
}

// credential reads the token file and formats the Authorization value.
func (r *Runner) credential(d *descriptor.Descriptor, e *descriptor.Entry) (string, error) {
	path := d.Resolve(d.TokenFile(e))
	content, err := r.store.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		if r.config.StrictCredentials {
			return "", fmt.Errorf("%w: %s does not exist", ErrCredentialUnavailable, path)
		}
		r.logger.Warn("token file not found, sending without Authorization", "path", path)
		return "", nil
	}

	token := strings.TrimSpace(content)
	if token == "" {
		if r.config.StrictCredentials {
			return "", fmt.Errorf("%w: %s is empty", ErrCredentialUnavailable, path)
		}
		r.logger.Warn("token file is empty, sending without Authorization", "path", path)
		return "", nil
	}
	if e.TokenType != "" {
		token = e.TokenType + " " + token
	}
	return token, nil
}

func (r *Runner) setBody(req *http.Request, d *descriptor.Descriptor, e *descriptor.Entry, caps Capabilities) error {
	path := d.Resolve(e.Body.File)
	content, err := r.store.Read(path)
	if err != nil {
		return fmt.Errorf("reading body file: %w", err)
	}
	data := []byte(content)
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: %s", ErrInvalidBody, path)
	}

	if caps.Placeholders {
		resolver := env.NewResolver(r.store, d.Resolve(d.VariableDir))
		resolver.SetWarnFunc(func(format string, args ...any) {
			r.logger.Warn(fmt.Sprintf(format, args...), "tag", e.Tag)
		})
		data, err = resolver.Substitute(data)
		if err != nil {
			return err
		}
	}

	switch e.Body.Type {
	case descriptor.BodyFormData:
		form, err := http.EncodeForm(data)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		req.SetBody(form)
		req.SetContentType(http.ContentTypeForm)
	default:
		req.SetBody(string(pretty.Pretty(data)))
		if _, ok := req.Header("Content-Type"); !ok {
			req.SetContentType(http.ContentTypeJSON)
		}
	}
	return nil
}

func (r *Runner) transition(result *Result, to State) {
	r.logger.Debug("state change", "tag", result.Tag, "from", result.State, "to", to)
	result.State = to
}

func validMethod(m descriptor.Method) bool {
	switch m {
	case descriptor.MethodGet, descriptor.MethodPost, descriptor.MethodPut, descriptor.MethodDelete:
		return true
	}
	return false
}
