package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Request is a single prompt for a single model. Model ordering belongs to the
// caller.
type Request struct {
	Prompt string
	// System carries optional instructions kept apart from the prompt.
	System string
	Model  string
}

type Response struct {
	Text  string
	Model string
}

// Provider is the boundary to an AI backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

var ErrEmptyResponse = errors.New("ai provider returned empty response")

// StatusError is a provider failure carrying an HTTP-like status code.
type StatusError struct {
	Provider string
	Code     int
	Status   string
	Message  string
	// Permanent overrides the code based classification.
	Permanent bool
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d: %s", e.Provider, e.Code, e.Message)
}

// IsTransient reports whether retrying the same model may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Permanent {
			return false
		}
		switch statusErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout:
			return true
		}
		return statusErr.Code >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
