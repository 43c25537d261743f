package http

import (
	"encoding/json"
	"net/http"
	"strings"
)

// JSONResponseBuilder builds JSON API responses.
type JSONResponseBuilder struct {
	status  int
	headers map[string]string
	data    any
}

// NewJSONResponse creates a builder defaulting to 200 OK.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		status:  http.StatusOK,
		headers: make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.status = code
	return b
}

func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write encodes the body and sends the response. An encoding failure turns
// into a generic 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) error {
	body, err := json.Marshal(b.data)
	if err != nil {
		body = []byte(`{"error":"Internal server error"}`)
		b.status = http.StatusInternalServerError
	}
	body = append(body, '\n')

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(b.status)
	_, werr := w.Write(body)
	if err != nil {
		return err
	}
	return werr
}

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

// ErrorResponse creates an {"error": msg} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(errorBody{Error: message})
}

// MessageResponse creates a {"message": msg} response.
func MessageResponse(message string) *JSONResponseBuilder {
	return NewJSONResponse().Data(messageBody{Message: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Internal server error")
}

func MethodNotAllowedError(allowed ...string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").
		Header("Allow", strings.Join(allowed, ", "))
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "Too many requests, please try again later").
		Header("Retry-After", "60")
}

func RequestTooLargeError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusRequestEntityTooLarge, "Request body too large")
}
