// Package apperrors carries typed service errors up to the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error is a service-level failure with a stable machine code and a
// human-readable message. Status picks the HTTP status the handlers answer
// with.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return New(fiber.StatusNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(fiber.StatusConflict, code, message)
}

func BadRequest(code, message string) *Error {
	return New(fiber.StatusBadRequest, code, message)
}

func Unprocessable(code, message string) *Error {
	return New(fiber.StatusUnprocessableEntity, code, message)
}

// BadGateway marks collaborator failures (registry, mail, queue, storage)
// surfaced to the caller unmodified, never retried here.
func BadGateway(code, message string) *Error {
	return New(fiber.StatusBadGateway, code, message)
}

// As unwraps err into an *Error when one is in the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}
