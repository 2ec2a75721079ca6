package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call for user-facing messages and retry policy.
type Kind int

const (
	KindOther Kind = iota
	// KindConnectivity covers transport failures, reported as status 0.
	KindConnectivity
	KindAuth
	KindNotFound
	KindValidation
)

// StatusError is returned for every failed backend call. Status is 0 when
// the request never got a response.
type StatusError struct {
	Status int
	Method string
	Path   string
	Body   string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: connection failed: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Kind maps the status to an error kind.
func (e *StatusError) Kind() Kind {
	switch e.Status {
	case 0:
		return KindConnectivity
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		return KindValidation
	default:
		return KindOther
	}
}

// KindOf returns the kind of err, or KindOther when err is not a
// StatusError.
func KindOf(err error) Kind {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Kind()
	}
	return KindOther
}

// IsAuthError reports whether err (or any error in its chain) is a 401.
func IsAuthError(err error) bool {
	return KindOf(err) == KindAuth
}
