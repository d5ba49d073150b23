package advisory

import (
	"context"
	"errors"
	"fmt"
	"net"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
)

// Kind classifies an advisory failure.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindThrottled Kind = "throttled"
)

// Error is the typed failure of one advisory call.
type Error struct {
	Kind       Kind
	StatusCode int // set for KindStatus
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("advisory %s %d: %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("advisory %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify maps a provider error to an *Error. ctx is the bounded call context.
func classify(ctx context.Context, err error) *Error {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}

	if code := statusCode(err); code != 0 {
		return &Error{Kind: KindStatus, StatusCode: code, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

// statusCode extracts the HTTP status from an SDK error, or 0.
func statusCode(err error) int {
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode
	}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return aerr.StatusCode
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
