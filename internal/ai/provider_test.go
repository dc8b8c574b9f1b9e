package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect bool
	}{
		{name: "nil", err: nil, expect: false},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), expect: true},
		{name: "canceled", err: context.Canceled, expect: false},
		{name: "429", err: &StatusError{Code: http.StatusTooManyRequests}, expect: true},
		{name: "503 wrapped", err: fmt.Errorf("x: %w", &StatusError{Code: http.StatusServiceUnavailable}), expect: true},
		{name: "400", err: &StatusError{Code: http.StatusBadRequest}, expect: false},
		{name: "429 forced permanent", err: &StatusError{Code: http.StatusTooManyRequests, Permanent: true}, expect: false},
		{name: "empty response", err: ErrEmptyResponse, expect: false},
		{name: "plain", err: errors.New("boom"), expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expect {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expect)
			}
		})
	}
}
