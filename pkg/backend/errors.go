package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindRateLimit ErrorKind = "rate-limit"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindMalformed ErrorKind = "malformed"
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindCanceled  ErrorKind = "canceled"
)

// Transient kinds are worth one retry of the round.
func (k ErrorKind) Transient() bool {
	return k == ErrorKindTimeout || k == ErrorKindRateLimit
}

// StreamFailure is the error carried by a StreamError event.
type StreamFailure struct {
	Kind ErrorKind
	Err  error
}

func (f *StreamFailure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *StreamFailure) Unwrap() error {
	return f.Err
}

// httpStatusError is implemented by provider errors that know their status code.
type httpStatusError interface {
	HTTPCode() int
}

// StatusCoder lets adapters expose a status code for classification.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps an error from a provider SDK or the network stack to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var sf *StreamFailure
	if errors.As(err, &sf) {
		return sf.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCanceled
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if k, ok := KindForStatus(sc.StatusCode()); ok {
			return k
		}
	}
	var hc httpStatusError
	if errors.As(err, &hc) {
		if k, ok := KindForStatus(hc.HTTPCode()); ok {
			return k
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorKindMalformed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource exhausted"), strings.Contains(msg, "quota"):
		return ErrorKindRateLimit
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthenticated"), strings.Contains(msg, "permission denied"):
		return ErrorKindAuth
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return ErrorKindTimeout
	}
	return ErrorKindTransport
}

// KindForStatus classifies an HTTP status code. ok is false for codes that say nothing.
func KindForStatus(code int) (ErrorKind, bool) {
	switch {
	case code == 401 || code == 403:
		return ErrorKindAuth, true
	case code == 429:
		return ErrorKindRateLimit, true
	case code == 408 || code == 504:
		return ErrorKindTimeout, true
	case code == 400 || code == 404 || code == 422:
		return ErrorKindTransport, true
	case code >= 500:
		return ErrorKindTransport, true
	}
	return "", false
}

// Failure wraps err as a *StreamFailure, classifying it if needed.
func Failure(err error) *StreamFailure {
	var sf *StreamFailure
	if errors.As(err, &sf) {
		return sf
	}
	return &StreamFailure{Kind: Classify(err), Err: err}
}
