// Package transport issues the HTTP requests of the pipeline. It knows nothing
// about tracing or stages; callers decide what to record.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	headerAuthorization = "Authorization"
	headerTokenType     = "X-Snowflake-Authorization-Token-Type"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerUserAgent     = "User-Agent"

	contentTypeJSON = "application/json"
)

// Options configures a Client
type Options struct {
	Credential string       // bearer token sent on every request
	TokenType  string       // optional Snowflake token type header value
	UserAgent  string       // optional User-Agent header value
	HTTPClient *http.Client // optional underlying client
}

// Request describes one outbound call
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}
}

// Response is a fully buffered, decoded response
type Response struct {
	StatusCode int
	Header     http.Header
	Raw        []byte
	Data       interface{}
}

// Decode unmarshals the raw body into target
func (r *Response) Decode(target interface{}) error {
	if err := json.Unmarshal(r.Raw, target); err != nil {
		return &ParseError{Raw: string(r.Raw), Err: err}
	}
	return nil
}

// StreamResponse exposes an undecoded response body for incremental reads.
// The caller must close Body.
type StreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Client sends requests carrying a fixed credential
type Client struct {
	rest       *resty.Client
	credential string
	tokenType  string
	userAgent  string
}

// New creates a client. The credential is bound for the client's lifetime.
func New(opts Options) *Client {
	var rest *resty.Client
	if opts.HTTPClient != nil {
		rest = resty.NewWithClient(opts.HTTPClient)
	} else {
		rest = resty.New()
	}

	return &Client{
		rest:       rest,
		credential: opts.Credential,
		tokenType:  opts.TokenType,
		userAgent:  opts.UserAgent,
	}
}

// EffectiveHeaders returns the exact headers Send and Stream put on the wire for req
func (c *Client) EffectiveHeaders(req Request) map[string]string {
	headers := make(map[string]string, len(req.Headers)+4)
	if req.Body != nil {
		headers[headerContentType] = contentTypeJSON
	}
	if c.credential != "" {
		headers[headerAuthorization] = bearer(c.credential)
	}
	if c.tokenType != "" {
		headers[headerTokenType] = c.tokenType
	}
	if c.userAgent != "" {
		headers[headerUserAgent] = c.userAgent
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	return headers
}

// Send performs a buffered request. On a non-success status or malformed body
// the response is still returned alongside the error so callers can trace it.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.newRequest(ctx, req).Execute(req.Method, req.URL)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Raw:        resp.Body(),
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return out, &HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       strings.TrimSpace(string(out.Raw)),
		}
	}

	if len(bytes.TrimSpace(out.Raw)) == 0 {
		return out, &ParseError{Raw: "", Err: errors.New("empty body")}
	}

	decoder := json.NewDecoder(bytes.NewReader(out.Raw))
	decoder.UseNumber()
	if err := decoder.Decode(&out.Data); err != nil {
		return out, &ParseError{Raw: string(out.Raw), Err: err}
	}

	return out, nil
}

// Stream performs a request whose body is handed back unread
func (c *Client) Stream(ctx context.Context, req Request) (*StreamResponse, error) {
	resp, err := c.newRequest(ctx, req).
		SetDoNotParseResponse(true).
		Execute(req.Method, req.URL)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		raw, _ := io.ReadAll(body)
		body.Close()
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	return &StreamResponse{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       body,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) *resty.Request {
	r := c.rest.R().
		SetContext(ctx).
		SetHeaders(c.EffectiveHeaders(req))
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	return r
}

func bearer(credential string) string {
	if strings.HasPrefix(credential, "Bearer ") {
		return credential
	}
	return "Bearer " + credential
}
