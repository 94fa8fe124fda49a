package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/abdul-hamid-achik/hitcall/packages/core/runner"
	"github.com/abdul-hamid-achik/hitcall/packages/http"
)

// JSONOutput is the envelope written for one executed entry.
type JSONOutput struct {
	Tag      string          `json:"tag"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Status   int             `json:"status"`
	Duration float64         `json:"duration"`
	State    string          `json:"state"`
	Saved    []string        `json:"saved,omitempty"`
	Request  *JSONRequest    `json:"request,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// JSONRequest represents request details
type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// JSONFormatter writes results as JSON documents, one per call.
type JSONFormatter struct {
	writer  io.Writer
	verbose bool
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// JSONWithVerbose includes the sent request in the output.
func JSONWithVerbose(v bool) JSONOption {
	return func(f *JSONFormatter) {
		f.verbose = v
	}
}

func (f *JSONFormatter) FormatResult(result *runner.Result) {
	out := JSONOutput{
		Tag:      result.Tag,
		Method:   string(result.Method),
		URL:      result.URL,
		Duration: float64(result.Duration.Milliseconds()),
		State:    result.State.String(),
		Saved:    result.Saved,
	}
	if result.Response != nil {
		out.Status = result.Response.StatusCode
	}
	if len(result.Body) > 0 {
		out.Body = json.RawMessage(result.Body)
	}
	if f.verbose && result.Request != nil {
		out.Request = jsonRequest(result.Request)
	}
	f.encode(out)
}

func (f *JSONFormatter) FormatRequest(req *http.Request) {
	f.encode(jsonRequest(req))
}

func (f *JSONFormatter) FormatError(err error) {
	f.encode(JSONOutput{State: runner.StateFailed.String(), Error: err.Error()})
}

func (f *JSONFormatter) FormatNotFound() {
	f.encode(JSONOutput{Error: NotFoundMessage})
}

func jsonRequest(req *http.Request) *JSONRequest {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		if isAuthorization(k) {
			v = maskValue(v)
		}
		headers[k] = v
	}
	return &JSONRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: headers,
		Body:    req.Body,
	}
}

func (f *JSONFormatter) encode(v any) {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(v)
}
