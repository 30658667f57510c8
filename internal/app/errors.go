package app

import "net/http"

type DomainError struct {
	Status  int
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func domainError(status int, message string) *DomainError {
	return &DomainError{Status: status, Message: message}
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusBadRequest, message)
}

func errUnauthorized(message string) *DomainError {
	return domainError(http.StatusUnauthorized, message)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "Forbidden")
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, message)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, message)
}
