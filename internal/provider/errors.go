package provider

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter failure for the UI surface. Each kind maps to
// exactly one remediation hint; stage callers surface one notification per
// failure and never retry automatically.
type Kind string

const (
	// KindAuth: no key is stored/activated for the selected provider.
	// Raised before any network call.
	KindAuth Kind = "authentication_error"
	// KindKeyInvalid: the validation probe rejected the secret.
	KindKeyInvalid Kind = "key_invalid"
	// KindNetwork: transport failure or non-2xx vendor response.
	KindNetwork Kind = "network_error"
	// KindShape: a JSON-mode call returned text that does not parse or does
	// not match the expected shape. The HTTP call itself succeeded.
	KindShape Kind = "response_shape_error"
	// KindValidation: bad user input (empty seed, wrong file type, ...).
	KindValidation Kind = "validation_error"
)

// Error is a classified adapter error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Hint returns the human-readable remediation hint for the error's kind.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindAuth:
		return "add and activate an API key for this provider in key management"
	case KindKeyInvalid:
		return "the key was rejected by the provider; check it and try again"
	case KindNetwork:
		return "check your connection and the provider's status, then retry"
	case KindShape:
		return "the model returned an unexpected format; retry the generation"
	case KindValidation:
		return "check the input and try again"
	}
	return ""
}

// Errf builds a classified error with a formatted message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the classification from err, defaulting to KindNetwork
// for unclassified failures that crossed an adapter boundary.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNetwork
}
