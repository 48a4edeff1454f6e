// Package envelope wraps every REST response in a uniform JSON shape:
//
//	{"success":true,"statusCode":201,"message":"...","data":{...},"metadata":{...},"requestId":"..."}
package envelope

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// Pagination keys a handler may put next to "value" to have them hoisted.
const (
	countKey    = "@odata.count"
	nextLinkKey = "@odata.nextLink"
	valueKey    = "value"
)

type Metadata struct {
	ODataCount    *int64  `json:"oDataCount,omitempty"`
	ODataNextLink *string `json:"oDataNextLink,omitempty"`
}

type Response struct {
	Success    bool      `json:"success"`
	StatusCode int       `json:"statusCode"`
	Message    string    `json:"message"`
	Data       any       `json:"data"`
	Metadata   *Metadata `json:"metadata,omitempty"`
	RequestID  string    `json:"requestId"`
}

// Page is what list handlers return to get pagination metadata.
type Page[T any] struct {
	Value    []T     `json:"value"`
	Count    int64   `json:"@odata.count"`
	NextLink *string `json:"@odata.nextLink,omitempty"`
}

// bufferedWriter holds the handler's status and body until the envelope is built.
type bufferedWriter struct {
	gin.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() { w.written = true }

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int   { return w.status }
func (w *bufferedWriter) Size() int     { return w.body.Len() }
func (w *bufferedWriter) Written() bool { return w.written }

// Middleware wraps the JSON responses of every downstream handler.
func Middleware(messages *Messages) gin.HandlerFunc {
	return func(c *gin.Context) {
		bw := &bufferedWriter{ResponseWriter: c.Writer, status: http.StatusOK}
		c.Writer = bw
		defer func() {
			c.Writer = bw.ResponseWriter
			if r := recover(); r != nil {
				// Answer with a 500 envelope, then let the outer recovery log the panic.
				status := http.StatusInternalServerError
				c.Writer.Header().Del("Content-Length")
				c.AbortWithStatusJSON(status, Build(status, nil, messages.Resolve(c.Request.Method, c.FullPath(), status), RequestID(c)))
				panic(r)
			}
		}()
		c.Next()
		c.Writer = bw.ResponseWriter

		status := bw.status
		body := bw.body.Bytes()
		if !bodyAllowed(status) || (len(body) > 0 && !isJSON(c.Writer.Header().Get("Content-Type"))) {
			c.Writer.WriteHeader(status)
			if len(body) > 0 {
				_, _ = c.Writer.Write(body)
			}
			return
		}

		resp := Build(status, body, messages.Resolve(c.Request.Method, c.FullPath(), status), RequestID(c))
		c.Writer.Header().Del("Content-Length")
		c.JSON(status, resp)
	}
}

// Build assembles the envelope for a raw JSON body.
func Build(status int, body []byte, message, requestID string) Response {
	resp := Response{
		Success:    status >= 200 && status < 300,
		StatusCode: status,
		Message:    message,
		RequestID:  requestID,
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return resp
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		resp.Data = string(body)
		return resp
	}
	resp.Data, resp.Metadata = hoistPagination(data)
	return resp
}

func hoistPagination(data any) (any, *Metadata) {
	obj, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	value, hasValue := obj[valueKey]
	rawCount, hasCount := obj[countKey]
	rawNext, hasNext := obj[nextLinkKey]
	if !hasValue || (!hasCount && !hasNext) {
		return data, nil
	}

	meta := &Metadata{}
	if n, ok := rawCount.(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			meta.ODataCount = &v
		}
	}
	if s, ok := rawNext.(string); ok && s != "" {
		meta.ODataNextLink = &s
	}
	if value == nil {
		value = []any{}
	}
	return value, meta
}

// RequestID returns the id assigned by the request id middleware, or a fresh one.
func RequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Set(RequestIDKey, id)
	return id
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

func isJSON(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "json")
}
