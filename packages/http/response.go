package http

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

// IsJSON reports whether the declared content type is JSON.
func (r *Response) IsJSON() bool {
	return strings.Contains(r.ContentType(), ContentTypeJSON)
}

// HasJSONBody reports whether the body parses as JSON, whatever the
// declared content type.
func (r *Response) HasJSONBody() bool {
	return gjson.ValidBytes(r.Body)
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}
