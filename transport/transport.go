// Package transport defines the opaque request/response abstractions
// the HTTP transport is treated as: TransportRequest and
// TransportResponse. The binding engine (package binding) and the
// security-policy pipeline (package policy) read inbound requests and
// write responses only through these two interfaces, so they stay
// host-agnostic the way a MessageEncoder/MessageDecoder contract
// would. The binding engine's outbound SOAP calls use net/http's
// client directly.
package transport

import (
	"io"
	"net/http"
	"net/url"

	"github.com/crewjam/httperr"
)

// httpStatuser is implemented by error types (saml.BindingError) that
// know which HTTP status they should surface as.
type httpStatuser interface {
	HTTPStatus() int
}

// TransportRequest is the inbound side of the transport collaborator
// interface.
type TransportRequest interface {
	URL() *url.URL
	Method() string
	ContentType() string
	Body() ([]byte, error)
	Parameter(name string) string
	Cookie(name string) (string, error)
	Header(name string) string
}

// TransportResponse is the outbound side.
type TransportResponse interface {
	SetContentType(contentType string)
	SetHeader(name, value string)
	SetCookie(cookie *http.Cookie)
	SendRedirect(url string)
	SendResponse(body []byte) error
	SendError(err error)
}

// HTTPRequest adapts an *http.Request to TransportRequest.
type HTTPRequest struct {
	Req *http.Request

	body    []byte
	bodyErr error
	read    bool
}

// NewHTTPRequest wraps req. The request body is read on the first
// Body() call and buffered, so Body() can be called more than once.
func NewHTTPRequest(req *http.Request) *HTTPRequest {
	return &HTTPRequest{Req: req}
}

func (r *HTTPRequest) URL() *url.URL     { return r.Req.URL }
func (r *HTTPRequest) Method() string    { return r.Req.Method }
func (r *HTTPRequest) ContentType() string {
	return r.Req.Header.Get("Content-Type")
}

func (r *HTTPRequest) Body() ([]byte, error) {
	if !r.read {
		r.read = true
		if r.Req.Body != nil {
			defer r.Req.Body.Close()
			r.body, r.bodyErr = io.ReadAll(r.Req.Body)
		}
	}
	return r.body, r.bodyErr
}

func (r *HTTPRequest) Parameter(name string) string {
	if err := r.Req.ParseForm(); err != nil {
		return ""
	}
	return r.Req.Form.Get(name)
}

func (r *HTTPRequest) Cookie(name string) (string, error) {
	c, err := r.Req.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

func (r *HTTPRequest) Header(name string) string {
	return r.Req.Header.Get(name)
}

// HTTPResponse adapts an http.ResponseWriter to TransportResponse. Req
// is kept alongside so SendRedirect can resolve relative locations the
// way http.Redirect expects.
type HTTPResponse struct {
	W   http.ResponseWriter
	Req *http.Request
}

// NewHTTPResponse wraps w, resolving redirects against req.
func NewHTTPResponse(w http.ResponseWriter, req *http.Request) *HTTPResponse {
	return &HTTPResponse{W: w, Req: req}
}

func (r *HTTPResponse) SetContentType(contentType string) {
	r.W.Header().Set("Content-Type", contentType)
}

func (r *HTTPResponse) SetHeader(name, value string) {
	r.W.Header().Set(name, value)
}

func (r *HTTPResponse) SetCookie(cookie *http.Cookie) {
	http.SetCookie(r.W, cookie)
}

func (r *HTTPResponse) SendRedirect(url string) {
	http.Redirect(r.W, r.Req, url, http.StatusFound)
}

func (r *HTTPResponse) SendResponse(body []byte) error {
	_, err := r.W.Write(body)
	return err
}

// SendError writes err to the transport's error channel. A
// *saml.BindingError (or anything else exposing HTTPStatus() int) is
// honored via httperr.Error so the status line matches §7's
// propagation policy; anything else is a 500.
func (r *HTTPResponse) SendError(err error) {
	status := http.StatusInternalServerError
	if hs, ok := err.(httpStatuser); ok {
		status = hs.HTTPStatus()
	}
	he := httperr.Error{Code: status, Err: err}
	http.Error(r.W, he.Error(), status)
}
