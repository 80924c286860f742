package app

import (
	"fmt"
	"net/http"
)

// Error codes carried in the {code,error,details} envelope.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeNotFound     = "NOT_FOUND"
	codeForbidden    = "FORBIDDEN"
	codeUnauthorized = "UNAUTHORIZED"
	codeEmailExists  = "EMAIL_EXISTS"
)

// DomainError is an error that already knows its HTTP status and envelope code.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

func validationError(message string) error {
	return domainError(http.StatusBadRequest, codeValidation, message, nil)
}

func notFound(message string) error {
	return domainError(http.StatusNotFound, codeNotFound, message, nil)
}

func forbidden(message string, details any) error {
	return domainError(http.StatusForbidden, codeForbidden, message, details)
}

func unauthorized(message string) error {
	return domainError(http.StatusUnauthorized, codeUnauthorized, message, nil)
}
