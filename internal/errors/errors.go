package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation is returned when a request body or parameter is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrUsernameTaken is returned when signing up with an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials is returned when username or password is wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotAuthenticated is returned when no bearer token was presented.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenExpired is returned when the token expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken is returned when the token signature or claims are bad.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserNotFound is returned when a valid token names a missing user.
	ErrUserNotFound = errors.New("user does not exist")
	// ErrUnauthorized is returned when the caller may not see the resource.
	ErrUnauthorized = errors.New("user is not authorized")
	// ErrNoteNotFound is returned when a note is missing or not owned by the caller.
	ErrNoteNotFound = errors.New("note does not exist")
	// ErrPersistence is returned when the store rejects a write.
	ErrPersistence = errors.New("persistence failure")
	// ErrRenderFailed is returned when a note cannot be rendered.
	ErrRenderFailed = errors.New("render failed")
)

// UserMessage is the safe text shown to clients for every failure.
const UserMessage = "Invalid request to server"

// Detail carries the safe and the diagnostic message.
type Detail struct {
	UserMsg string `json:"user_msg"`
	Msg     string `json:"msg"`
}

// ErrorResponse represents the standardized error envelope.
type ErrorResponse struct {
	Detail Detail `json:"detail"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	UserMsg    string
	Msg        string
}

func (e *HTTPError) Error() string {
	return e.Msg
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, msg string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		UserMsg:    UserMessage,
		Msg:        msg,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Detail: Detail{
			UserMsg: e.UserMsg,
			Msg:     e.Msg,
		},
	}
}

// detailedError attaches a diagnostic message to a sentinel.
type detailedError struct {
	kind error
	msg  string
}

func (e *detailedError) Error() string { return e.msg }
func (e *detailedError) Unwrap() error { return e.kind }

// WithMessage returns an error that matches kind under errors.Is and
// reports msg as its diagnostic text.
func WithMessage(kind error, msg string) error {
	return &detailedError{kind: kind, msg: msg}
}

// Validation wraps a binder or validator failure.
func Validation(err error) error {
	return WithMessage(ErrValidation, err.Error())
}

// Persistence wraps a store failure. The cause is kept for logging only.
func Persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

type mapping struct {
	kind   error
	status int
	msg    string
}

// Order matters: the first matching kind wins.
var mappings = []mapping{
	{ErrValidation, http.StatusBadRequest, ""},
	{ErrRenderFailed, http.StatusBadRequest, ""},
	{ErrUsernameTaken, http.StatusBadRequest, "Username already taken"},
	{ErrPersistence, http.StatusBadRequest, "Something went wrong"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username and/or password"},
	{ErrNotAuthenticated, http.StatusUnauthorized, "Not authenticated"},
	{ErrTokenExpired, http.StatusUnauthorized, "Signature has expired"},
	{ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{ErrUserNotFound, http.StatusForbidden, "User does not exist"},
	{ErrUnauthorized, http.StatusUnauthorized, "User is not authorized"},
	{ErrNoteNotFound, http.StatusBadRequest, "Note does not exist"},
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	for _, m := range mappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		msg := m.msg
		if msg == "" {
			msg = diagnostic(err)
		}
		return NewHTTPError(m.status, msg)
	}
	return NewHTTPError(http.StatusInternalServerError, "Internal server error")
}

func diagnostic(err error) string {
	var d *detailedError
	if errors.As(err, &d) {
		return d.msg
	}
	return err.Error()
}
