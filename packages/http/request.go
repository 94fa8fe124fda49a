package http

import (
	"strings"
	"time"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// Header returns the value of a header, matching the name case-insensitively.
func (r *Request) Header(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// SetContentType sets Content-Type, replacing any differently cased variant.
func (r *Request) SetContentType(ct string) *Request {
	for k := range r.Headers {
		if strings.EqualFold(k, "Content-Type") {
			delete(r.Headers, k)
		}
	}
	return r.SetHeader("Content-Type", ct)
}
