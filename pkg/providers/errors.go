package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

type ErrorKind int

const (
	MissingKey ErrorKind = iota + 1
	InvalidRequest
	RateLimited
	ServerError
	DecodingFailed
)

func (k ErrorKind) String() string {
	switch k {
	case MissingKey:
		return "missing_key"
	case InvalidRequest:
		return "invalid_request"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case DecodingFailed:
		return "decoding_failed"
	default:
		return "unknown"
	}
}

// ModelError is a classified failure of a model call. Code is the HTTP
// status when one was received.
type ModelError struct {
	Kind ErrorKind
	Code int
	Err  error
}

func (e *ModelError) Error() string {
	msg := ""
	if e.Err != nil {
		msg = augmentProviderError(e.Err.Error())
	}
	if e.Code != 0 {
		return fmt.Sprintf("model %s (%d): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("model %s: %s", e.Kind, msg)
}

func (e *ModelError) Unwrap() error { return e.Err }

// IsKind reports whether err is a ModelError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Kind == kind
}

// classifyError maps client errors onto ModelError. Context cancellation is
// returned unchanged so callers can tell it apart from model failures.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var me *ModelError
	if errors.As(err, &me) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ModelError{Kind: kindForStatus(apiErr.HTTPStatusCode), Code: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ModelError{Kind: kindForStatus(reqErr.HTTPStatusCode), Code: reqErr.HTTPStatusCode, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &ModelError{Kind: DecodingFailed, Err: err}
	}
	return &ModelError{Kind: ServerError, Err: err}
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return MissingKey
	case code == http.StatusTooManyRequests:
		return RateLimited
	case code >= 400 && code < 500:
		return InvalidRequest
	default:
		return ServerError
	}
}
