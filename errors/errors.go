package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Class says how a caller should react to an infrastructure error
type Class uint8

const (
	// Transient errors may succeed on retry
	Transient Class = iota
	// Invalid errors come from bad input or configuration
	Invalid
	// Fatal errors stop the process
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

var (
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")

	ErrInvalidData   = errors.New("invalid data")
	ErrParsingFailed = errors.New("parse failed")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	ErrRateLimited = errors.New("rate limited")
)

// Classified is an error tagged with its Class and the component and
// method that produced it.
type Classified struct {
	Class     Class
	Component string
	Method    string
	Err       error
}

func (e *Classified) Error() string { return e.Err.Error() }

func (e *Classified) Unwrap() error { return e.Err }

// ClassOf returns the class of err. Unclassified errors fall back to their
// sentinels, then to message hints. ok is false when nothing matched.
func ClassOf(err error) (class Class, ok bool) {
	if err == nil {
		return 0, false
	}
	var ce *Classified
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return Transient, true
		}
	}
	return 0, false
}

var sentinelClasses = []struct {
	err   error
	class Class
}{
	{context.DeadlineExceeded, Transient},
	{context.Canceled, Transient},
	{ErrRateLimited, Transient},
	{ErrInvalidData, Invalid},
	{ErrParsingFailed, Invalid},
	{ErrInvalidConfig, Fatal},
	{ErrMissingConfig, Fatal},
}

var transientHints = []string{"timeout", "connection", "network", "temporary", "unavailable"}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool { return is(err, Transient) }

// IsInvalid reports whether err is caused by bad input
func IsInvalid(err error) bool { return is(err, Invalid) }

// IsFatal reports whether err should stop the process
func IsFatal(err error) bool { return is(err, Fatal) }

func is(err error, want Class) bool {
	class, ok := ClassOf(err)
	return ok && class == want
}

// Wrap adds "component.method: action failed:" context without classifying
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func WrapTransient(err error, component, method, action string) error {
	return classify(Transient, err, component, method, action)
}

func WrapInvalid(err error, component, method, action string) error {
	return classify(Invalid, err, component, method, action)
}

func WrapFatal(err error, component, method, action string) error {
	return classify(Fatal, err, component, method, action)
}

func classify(class Class, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Classified{
		Class:     class,
		Component: component,
		Method:    method,
		Err:       Wrap(err, component, method, action),
	}
}

// Helpers so callers importing this package as "errors" need no second import.

func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func New(text string) error { return errors.New(text) }
func Unwrap(err error) error { return errors.Unwrap(err) }
