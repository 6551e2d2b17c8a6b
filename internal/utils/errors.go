package utils

import (
	"errors"
	"fmt"
)

// CustomError is a failure carrying a numeric code, usually the HTTP status
// an upstream service answered with.
type CustomError struct {
	Code    int
	Message string
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

func New(code int, message string) error {
	return &CustomError{
		Code:    code,
		Message: message,
	}
}

// CodeOf returns the code of the first CustomError in err's chain, or 0.
func CodeOf(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}
