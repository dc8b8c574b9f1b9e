package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/resilience"
)

// Cursor tells an adapter what the radar already knows. A zero Since asks
// for everything the source is willing to return.
type Cursor struct {
	Since time.Time
}

// Adapter wraps one external job source. Implementations only fetch: no
// retries, no caching, no shared state.
type Adapter interface {
	Name() string
	// Domain keys the rate limiter; adapters hitting the same host share it.
	Domain() string
	// Fetch may return postings together with an error when only part of
	// the source could be read.
	Fetch(ctx context.Context, since Cursor) ([]jobs.RawPosting, error)
}

type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
)

// Error is the tagged failure every adapter reports.
type Error struct {
	Kind       Kind
	Source     string
	Detail     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s source %s", e.Kind, e.Source)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e.Kind == KindTransient }

func Transient(source, detail string, err error) *Error {
	return &Error{Kind: KindTransient, Source: source, Detail: detail, Err: err}
}

func Permanent(source, detail string, err error) *Error {
	return &Error{Kind: KindPermanent, Source: source, Detail: detail, Err: err}
}

// FromStatus classifies an unsuccessful HTTP response.
func FromStatus(source string, code int, body string) *Error {
	e := &Error{Kind: KindPermanent, Source: source, StatusCode: code, Detail: body}
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		e.Kind = KindTransient
	case code >= http.StatusInternalServerError:
		e.Kind = KindTransient
	}
	return e
}

// FromError classifies a transport failure. Timeouts and connection problems
// are transient; anything else is permanent.
func FromError(source string, err error) error {
	if err == nil {
		return nil
	}

	var srcErr *Error
	if errors.As(err, &srcErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resilience.ErrRateLimited) {
		return Transient(source, "", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(source, "", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Transient(source, "", err)
	}

	return Permanent(source, "", err)
}

// KindOf reports the kind of err, treating unknown errors as permanent.
func KindOf(err error) Kind {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resilience.ErrRateLimited) {
		return KindTransient
	}
	return KindPermanent
}

// IsTransient is the retry classifier for adapter fetches.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}
