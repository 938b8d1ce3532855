package errors

import "errors"

// Code is the machine-readable failure code clients receive in extensions.code.
type Code string

const (
	CodeNotAuthorized Code = "NOT_AUTHORIZED"
	CodeNotFound      Code = "NOT_FOUND"
	CodeBadRequest    Code = "BAD_REQUEST"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL_SERVER_ERROR"
)

// CodedError is a client-facing failure. Message is sent to the client verbatim;
// Err is kept for logs only.
type CodedError struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *CodedError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *CodedError) Unwrap() error {
	return e.Err
}

// Extensions is picked up by the GraphQL executor and rendered under
// "extensions" in the response.
func (e *CodedError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": string(e.Code)}
}

// NotAuthorized reports missing or insufficient identity.
func NotAuthorized(message string) error {
	return &CodedError{Code: CodeNotAuthorized, Message: message}
}

// NotFound reports an absent entity or a failed upstream call.
func NotFound(message string) error {
	return &CodedError{Code: CodeNotFound, Message: message}
}

// NotFoundCause is NotFound with an underlying cause attached for logging.
func NotFoundCause(message string, cause error) error {
	return &CodedError{Code: CodeNotFound, Message: message, Err: cause}
}

// BadRequest reports an operation that would violate a state invariant.
func BadRequest(message string) error {
	return &CodedError{Code: CodeBadRequest, Message: message}
}

// RateLimited reports a call rejected by a rate-limit policy.
func RateLimited(message string) error {
	return &CodedError{Code: CodeRateLimited, Message: message, Err: ErrRateLimited}
}

// Internal hides cause behind a generic message.
func Internal(cause error) error {
	if cause == nil {
		return nil
	}
	return &CodedError{Code: CodeInternal, Message: "Internal server error", Err: cause}
}

// CodeOf returns the code carried by err, "" for nil and CodeInternal for
// errors that carry none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}
