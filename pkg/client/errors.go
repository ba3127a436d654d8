package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jhjames1/peerchat/pkg/models"
)

// ErrorKind classifies failures reported to callers.
type ErrorKind string

const (
	// KindTransientNetwork means the server or feed was unreachable or
	// temporarily failing; the operation may be retried.
	KindTransientNetwork ErrorKind = "transient_network"
	// KindConflict means the operation lost against current state, such as
	// a claim race or a send to an ended session.
	KindConflict ErrorKind = "conflict"
	// KindValidation means the request was rejected as malformed. Local
	// validation failures never reach the network.
	KindValidation ErrorKind = "validation"
	// KindAuthorization means the caller may not perform the operation.
	KindAuthorization ErrorKind = "authorization"
	// KindNotFound means the addressed entity does not exist.
	KindNotFound ErrorKind = "not_found"
)

// ErrSessionCreate wraps failures of StartSession other than validation
// and authorization.
var ErrSessionCreate = errors.New("failed to create session")

// ErrHistoryLoad wraps a failed message history fetch. The session it
// belongs to is still applied; RefreshSession retries the load.
var ErrHistoryLoad = errors.New("failed to load session history")

// Error is the client-side error taxonomy.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Field   string
	// Current names the state that caused a conflict.
	Current string
	// Session is the refreshed session reported with a claim conflict.
	Session *models.ChatSession
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	return IsKind(err, KindTransientNetwork)
}

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	}
	return KindTransientNetwork
}
