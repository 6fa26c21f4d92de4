package models

// Envelope is the uniform wrapper returned by every API endpoint.
// Success=false is a failure even when the HTTP status is 2xx.
type Envelope[T any] struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    T        `json:"data"`
	Errors  []string `json:"errors"`
}

// Wrap builds a successful envelope around data.
func Wrap[T any](data T, message string) Envelope[T] {
	return Envelope[T]{Success: true, Message: message, Data: data}
}

// Fail builds a failed envelope carrying an optional list of field errors.
func Fail(message string, errs ...string) Envelope[any] {
	return Envelope[any]{Success: false, Message: message, Errors: errs}
}
